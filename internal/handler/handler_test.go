package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository/memory"
	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
	"github.com/stemsi/proctorexam/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

var (
	t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	questionA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	questionB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

const (
	student = 42
	other   = 43
	teacher = 7
)

// frameTestLimit is the frame store size cap in handler tests.
const frameTestLimit = 64 * 1024

// pngFrame is a 1x1 transparent PNG as produced by canvas.toDataURL.
const pngFrame = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type testEnv struct {
	t      *testing.T
	exam   *model.ExamDefinition
	store  *memory.Store
	tokens *service.TokenService
	engine *gin.Engine

	mu  sync.Mutex
	now time.Time

	attempts *service.AttemptService
	proctor  *service.ProctorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	exam := &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Geography",
		ScheduledStart:  t0,
		DurationMinutes: 30,
		Questions: []model.Question{
			{ID: questionA, QuestionType: model.QuestionTypeMCQ, QuestionText: "Pick B", Options: []string{"A", "B"}, CorrectAnswer: model.Key("B"), Points: 1, OrderNum: 1},
			{ID: questionB, QuestionType: model.QuestionTypeShortAnswer, QuestionText: "Capital of France", CorrectAnswer: model.Key("Paris"), Points: 2, OrderNum: 2},
		},
	}

	store := memory.NewStore()
	catalog := memory.NewCatalog(exam)
	log := zerolog.Nop()

	attempts := service.NewAttemptService(store, catalog, log)
	proctor := service.NewProctorService(store, service.NewFileFrameStore(t.TempDir(), frameTestLimit), nil, log)
	scoring := service.NewScoringService(store, catalog)

	e := &testEnv{
		t:        t,
		exam:     exam,
		store:    store,
		tokens:   service.NewTokenService("test-secret", 24*time.Hour),
		now:      t0.Add(time.Minute),
		attempts: attempts,
		proctor:  proctor,
	}
	clock := func() time.Time {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.now
	}

	portal := NewStudentPortalHandler(attempts, proctor, scoring, log)
	portal.now = clock
	staff := NewExamHandler(attempts, proctor, scoring, nil, log)
	staff.now = clock
	stream := NewWSHandler(attempts, proctor, log, nil)
	stream.now = clock

	r := gin.New()
	r.Use(response.RequestIDMiddleware())

	st := r.Group("/api/v1/student", middleware.Authenticate(e.tokens), middleware.RequireStudent())
	st.POST("/exams/:exam_id/attempt", portal.StartAttempt)
	st.GET("/exams/:exam_id/state", portal.GetState)
	st.GET("/exams/:exam_id/paper", portal.GetPaper)
	st.PUT("/attempts/:attempt_id/answers/:question_id", portal.SaveAnswer)
	st.POST("/attempts/:attempt_id/submit", portal.SubmitAttempt)
	st.GET("/attempts/:attempt_id/result", portal.GetResult)
	st.POST("/attempts/:attempt_id/tab-switch", portal.RecordTabSwitch)
	st.POST("/attempts/:attempt_id/webcam/status", portal.UpdateWebcamStatus)
	st.POST("/attempts/:attempt_id/webcam/consent", portal.RecordWebcamConsent)
	st.POST("/attempts/:attempt_id/webcam/frames", middleware.BodyLimit(middleware.FrameBodyLimit(frameTestLimit)), portal.UploadFrame)

	sf := r.Group("/api/v1/staff", middleware.Authenticate(e.tokens), middleware.RequireStaff())
	sf.GET("/exams/:exam_id/status", staff.GetStatus)
	sf.GET("/exams/:exam_id/attempts", staff.ListAttempts)
	sf.POST("/exams/:exam_id/cache/refresh", staff.RefreshCache)
	sf.GET("/attempts/:attempt_id/score", staff.GetScore)
	sf.GET("/attempts/:attempt_id/signals", staff.ListSignals)
	sf.GET("/attempts/:attempt_id/events", staff.ListEvents)

	r.GET("/ws/v1/student/exams/:exam_id/stream", middleware.Authenticate(e.tokens), middleware.RequireStudent(), stream.ExamWebSocketStream)

	e.engine = r
	return e
}

// setNow moves the clock every handler reads.
func (e *testEnv) setNow(at time.Time) {
	e.mu.Lock()
	e.now = at
	e.mu.Unlock()
}

func (e *testEnv) token(userID int, role model.Role) string {
	tok, err := e.tokens.Issue(userID, role, time.Now())
	require.NoError(e.t, err)
	return tok
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (e *testEnv) do(method, path, token string, body any) (int, envelope) {
	e.t.Helper()

	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (e *testEnv) startAttempt(userID int) *model.ExamAttempt {
	e.t.Helper()
	code, env := e.do(http.MethodPost, e.examPath("attempt"), e.token(userID, model.RoleStudent), nil)
	require.Equal(e.t, http.StatusOK, code)

	var out struct {
		Attempt model.ExamAttempt `json:"attempt"`
	}
	require.NoError(e.t, json.Unmarshal(env.Data, &out))
	return &out.Attempt
}

func (e *testEnv) examPath(suffix string) string {
	return "/api/v1/student/exams/" + e.exam.ID.String() + "/" + suffix
}

func attemptPath(id uuid.UUID, suffix string) string {
	return "/api/v1/student/attempts/" + id.String() + "/" + suffix
}

func answerPath(id, q uuid.UUID) string {
	return attemptPath(id, "answers/"+q.String())
}

func staffPath(parts ...string) string {
	return "/api/v1/staff/" + strings.Join(parts, "/")
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
