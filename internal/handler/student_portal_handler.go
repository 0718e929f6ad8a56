package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
	"github.com/stemsi/proctorexam/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (exam taking, proctoring).
type StudentPortalHandler struct {
	attempts *service.AttemptService
	proctor  *service.ProctorService
	scoring  *service.ScoringService
	now      func() time.Time
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attempts *service.AttemptService,
	proctor *service.ProctorService,
	scoring *service.ScoringService,
	log zerolog.Logger,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attempts: attempts,
		proctor:  proctor,
		scoring:  scoring,
		now:      time.Now,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempt
// Starts the attempt or resumes the one in progress (idempotent).
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.attempts.StartOrResume(c.Request.Context(), claims.UserID, examID, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns the attempt, saved answers and remaining time for resuming.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	state, err := h.attempts.GetState(c.Request.Context(), claims.UserID, examID, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the questions without answers. Requires an in-progress attempt.
func (h *StudentPortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	paper, err := h.attempts.GetPaper(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
// Autosave or final answer. A late autosave is answered 200 with status
// "dropped" so the client keeps going.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.SubmitAnswer(c.Request.Context(), service.SubmitAnswerInput{
		UserID:     claims.UserID,
		AttemptID:  attemptID,
		QuestionID: questionID,
		Content:    req.Content,
		Autosave:   req.Autosave,
	}, h.now())
	if errors.Is(err, service.ErrDeadlineExceeded) {
		response.Success(c, http.StatusOK, gin.H{"status": "dropped", "question_id": questionID})
		return
	}
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status": "saved",
		"answer": res.Answer,
		"late":   res.Late,
	})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Writes the final answers and closes the attempt. Repeating it is safe.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answers, err := parseAnswerMap(req.Answers)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.attempts.Submit(c.Request.Context(), claims.UserID, attemptID, answers, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// RecordTabSwitch godoc
// POST /api/v1/student/attempts/:attempt_id/tab-switch
func (h *StudentPortalHandler) RecordTabSwitch(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.proctor.RecordTabSwitch(c.Request.Context(), claims.UserID, attemptID, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tab_switch_count": attempt.TabSwitchCount})
}

// UpdateWebcamStatus godoc
// POST /api/v1/student/attempts/:attempt_id/webcam/status
func (h *StudentPortalHandler) UpdateWebcamStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.WebcamStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.proctor.UpdateWebcamStatus(c.Request.Context(), claims.UserID, attemptID, *req.Enabled, req.Message, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"webcam_enabled":         attempt.WebcamEnabled,
		"webcam_violation_count": attempt.WebcamViolationCount,
	})
}

// RecordWebcamConsent godoc
// POST /api/v1/student/attempts/:attempt_id/webcam/consent
func (h *StudentPortalHandler) RecordWebcamConsent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.WebcamConsentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.proctor.RecordWebcamConsent(c.Request.Context(), claims.UserID, attemptID, *req.Consent, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"webcam_consent_given": attempt.WebcamConsentGiven})
}

// UploadFrame godoc
// POST /api/v1/student/attempts/:attempt_id/webcam/frames
// Accepts one captured frame as a data URL.
func (h *StudentPortalHandler) UploadFrame(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.WebcamFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	contentType, payload, err := decodeDataURI(req.ImageData)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	signal, err := h.proctor.CaptureFrame(c.Request.Context(), claims.UserID, attemptID, payload, contentType, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, signal)
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.scoring.ScoreForUser(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	// Students see totals only; the breakdown would leak correct answers.
	response.Success(c, http.StatusOK, gin.H{
		"attempt_id":      res.AttemptID,
		"points_earned":   res.PointsEarned,
		"points_possible": res.PointsPossible,
		"late":            res.Late,
	})
}

func parseAnswerMap(raw map[string]string) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

var errBadDataURI = errors.New("malformed data URI")

// decodeDataURI splits "data:<type>;base64,<payload>" into type and bytes.
func decodeDataURI(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errBadDataURI
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errBadDataURI
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errBadDataURI
	}
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, err
	}
	return contentType, payload, nil
}
