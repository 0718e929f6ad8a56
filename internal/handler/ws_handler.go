package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
	ws "github.com/stemsi/proctorexam/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the exam stream: autosave, submit and proctoring signals
// over one connection.
type WSHandler struct {
	attempts *service.AttemptService
	proctor  *service.ProctorService
	now      func() time.Time
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, proctor *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		proctor:  proctor,
		now:      time.Now,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// streamSession is the per-connection state.
type streamSession struct {
	conn      *websocket.Conn
	userID    int
	attemptID uuid.UUID
	log       zerolog.Logger
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Requires an in-progress attempt; the stream ends once it is submitted.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	// Resolve the attempt before upgrading so failures are plain HTTP errors.
	state, err := h.attempts.GetState(c.Request.Context(), claims.UserID, examID, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	switch state.State {
	case model.AttemptStateNotStarted:
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
		return
	case model.AttemptStateCompleted:
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sess := &streamSession{
		conn:      conn,
		userID:    claims.UserID,
		attemptID: state.Attempt.ID,
		log: h.log.With().
			Int("user_id", claims.UserID).
			Str("exam_id", examID.String()).
			Str("attempt_id", state.Attempt.ID.String()).
			Logger(),
	}

	sess.log.Info().Msg("Student connected")

	for {
		env, err := ws.ReadEnvelope(conn)
		if errors.Is(err, ws.ErrMalformedMessage) {
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "malformed message")
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				sess.log.Debug().Msg("Connection closed")
			}
			return
		}

		// Each message gets its own context; the request context is tied to
		// the hijacked connection and is not cancelled on close.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		done := h.dispatch(ctx, sess, env)
		cancel()
		if done {
			return
		}
	}
}

// dispatch handles one message. It reports true when the stream should end.
func (h *WSHandler) dispatch(ctx context.Context, sess *streamSession, env *ws.RequestEnvelope) bool {
	switch env.Action {
	case ws.ActionAutosave:
		h.handleAutosave(ctx, sess, env)
	case ws.ActionSubmit:
		return h.handleSubmit(ctx, sess, env)
	case ws.ActionTabSwitch:
		a, err := h.proctor.RecordTabSwitch(ctx, sess.userID, sess.attemptID, h.now())
		h.writeProctor(sess, a, err)
	case ws.ActionWebcamStatus:
		var req ws.WebcamStatusRequest
		if err := env.Decode(&req); err != nil {
			_ = ws.WriteError(sess.conn, string(response.ErrInvalidPayload), "malformed webcam_status")
			return false
		}
		a, err := h.proctor.UpdateWebcamStatus(ctx, sess.userID, sess.attemptID, req.Enabled, req.Message, h.now())
		h.writeProctor(sess, a, err)
	case ws.ActionPing:
		_ = ws.WriteTyped(sess.conn, ws.PongResponse{Event: ws.EventPong})
	default:
		sess.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		_ = ws.WriteError(sess.conn, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
	}
	return false
}

func (h *WSHandler) handleAutosave(ctx context.Context, sess *streamSession, env *ws.RequestEnvelope) {
	var req ws.AutosaveRequest
	if err := env.Decode(&req); err != nil || req.QID == "" {
		_ = ws.WriteError(sess.conn, string(response.ErrInvalidPayload), "q_id is required")
		return
	}
	qid, err := uuid.Parse(req.QID)
	if err != nil {
		_ = ws.WriteError(sess.conn, string(response.ErrInvalidID), "invalid q_id format")
		return
	}

	_, err = h.attempts.SubmitAnswer(ctx, service.SubmitAnswerInput{
		UserID:     sess.userID,
		AttemptID:  sess.attemptID,
		QuestionID: qid,
		Content:    req.Answer,
		Autosave:   true,
	}, h.now())
	switch {
	case errors.Is(err, service.ErrDeadlineExceeded):
		_ = ws.WriteTyped(sess.conn, ws.SavedResponse{Event: ws.EventSaved, Status: ws.StatusDropped, QID: req.QID})
	case err != nil:
		h.writeServiceError(sess, err)
	default:
		_ = ws.WriteTyped(sess.conn, ws.SavedResponse{Event: ws.EventSaved, Status: ws.StatusSaved, QID: req.QID})
	}
}

func (h *WSHandler) handleSubmit(ctx context.Context, sess *streamSession, env *ws.RequestEnvelope) bool {
	var req ws.SubmitRequest
	if err := env.Decode(&req); err != nil {
		_ = ws.WriteError(sess.conn, string(response.ErrInvalidPayload), "malformed submit")
		return false
	}
	answers, err := parseAnswerMap(req.Answers)
	if err != nil {
		_ = ws.WriteError(sess.conn, string(response.ErrInvalidID), "invalid question id in answers")
		return false
	}

	res, err := h.attempts.Submit(ctx, sess.userID, sess.attemptID, answers, h.now())
	if err != nil {
		h.writeServiceError(sess, err)
		return false
	}

	sess.log.Info().
		Bool("late", res.Late).
		Bool("already_finalized", res.AlreadyFinalized).
		Msg("Attempt submitted")

	_ = ws.WriteTyped(sess.conn, ws.SubmittedResponse{
		Event:            ws.EventSubmitted,
		AttemptID:        sess.attemptID.String(),
		AlreadyFinalized: res.AlreadyFinalized,
		Late:             res.Late,
	})
	return true
}

func (h *WSHandler) writeProctor(sess *streamSession, a *model.ExamAttempt, err error) {
	if err != nil {
		h.writeServiceError(sess, err)
		return
	}
	_ = ws.WriteTyped(sess.conn, ws.ProctorResponse{
		Event:                ws.EventProctor,
		TabSwitchCount:       a.TabSwitchCount,
		WebcamViolationCount: a.WebcamViolationCount,
	})
}

func (h *WSHandler) writeServiceError(sess *streamSession, err error) {
	_, code := classify(err)
	if code == response.ErrInternal {
		sess.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = ws.WriteError(sess.conn, string(code), response.GetMessage(code))
}
