package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/proctorexam/internal/middleware"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
)

func TestStartAttempt(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(student, model.RoleStudent)

	e.setNow(t0.Add(-time.Minute))
	code, env := e.do(http.MethodPost, e.examPath("attempt"), tok, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.ErrExamNotYetAvailable, env.Error.Code)

	e.setNow(t0.Add(time.Minute))
	first := e.startAttempt(student)
	again := e.startAttempt(student)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, e.store.AttemptCount())

	code, env = e.do(http.MethodPost, "/api/v1/student/exams/"+uuid.NewString()+"/attempt", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, response.ErrExamNotFound, env.Error.Code)

	code, env = e.do(http.MethodPost, "/api/v1/student/exams/not-a-uuid/attempt", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrInvalidID, env.Error.Code)
}

func TestStudentRoutes_RequireStudentToken(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(http.MethodPost, e.examPath("attempt"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, response.ErrTokenRequired, env.Error.Code)

	code, env = e.do(http.MethodPost, e.examPath("attempt"), e.token(teacher, model.RoleTeacher), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.ErrStudentAccessOnly, env.Error.Code)
}

func TestAnswerLifecycle(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(student, model.RoleStudent)
	a := e.startAttempt(student)

	code, env := e.do(http.MethodPut, answerPath(a.ID, questionA), tok, gin.H{"content": "A", "autosave": true})
	require.Equal(t, http.StatusOK, code)
	saved := decode[map[string]any](t, env.Data)
	assert.Equal(t, "saved", saved["status"])

	// Overwrite: last write wins.
	code, _ = e.do(http.MethodPut, answerPath(a.ID, questionA), tok, gin.H{"content": "B", "autosave": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, e.store.AnswerCount())

	code, env = e.do(http.MethodPut, answerPath(a.ID, uuid.New()), tok, gin.H{"content": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, response.ErrQuestionNotInExam, env.Error.Code)

	code, env = e.do(http.MethodGet, e.examPath("state"), tok, nil)
	require.Equal(t, http.StatusOK, code)
	state := decode[service.AttemptSnapshot](t, env.Data)
	assert.Equal(t, model.AttemptStateInProgress, state.State)
	assert.Equal(t, "B", state.Answers[questionA])
	assert.Equal(t, int64(30*60), state.RemainingSeconds)

	code, env = e.do(http.MethodGet, e.examPath("paper"), tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "correct_answer")
	assert.NotContains(t, string(env.Data), "Paris")

	code, env = e.do(http.MethodGet, attemptPath(a.ID, "result"), tok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrAttemptNotFinalized, env.Error.Code)

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "submit"), tok, gin.H{
		"answers": map[string]string{questionB.String(): "Paris"},
	})
	require.Equal(t, http.StatusOK, code)
	fin := decode[service.FinalizeResult](t, env.Data)
	assert.False(t, fin.AlreadyFinalized)
	assert.False(t, fin.Late)
	assert.True(t, fin.Attempt.Completed)

	// Repeat submission is harmless.
	code, env = e.do(http.MethodPost, attemptPath(a.ID, "submit"), tok, gin.H{})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[service.FinalizeResult](t, env.Data).AlreadyFinalized)

	code, env = e.do(http.MethodPut, answerPath(a.ID, questionA), tok, gin.H{"content": "A"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrAttemptCompleted, env.Error.Code)

	code, env = e.do(http.MethodGet, attemptPath(a.ID, "result"), tok, nil)
	require.Equal(t, http.StatusOK, code)
	result := decode[map[string]any](t, env.Data)
	assert.EqualValues(t, 3, result["points_earned"])
	assert.EqualValues(t, 3, result["points_possible"])
	assert.NotContains(t, result, "questions")

	code, env = e.do(http.MethodGet, e.examPath("paper"), tok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrAttemptCompleted, env.Error.Code)

	code, env = e.do(http.MethodPost, e.examPath("attempt"), tok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrAttemptAlreadyDone, env.Error.Code)
}

func TestSaveAnswer_AfterDeadline(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(student, model.RoleStudent)
	a := e.startAttempt(student)

	e.setNow(a.StartTime.Add(45 * time.Minute))

	code, env := e.do(http.MethodPut, answerPath(a.ID, questionA), tok, gin.H{"content": "B", "autosave": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "dropped", decode[map[string]any](t, env.Data)["status"])
	assert.Equal(t, 0, e.store.AnswerCount())

	code, env = e.do(http.MethodPut, answerPath(a.ID, questionA), tok, gin.H{"content": "B"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]any](t, env.Data)["late"])
	assert.Equal(t, 1, e.store.AnswerCount())

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "submit"), tok, gin.H{})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[service.FinalizeResult](t, env.Data).Late)
}

func TestAttemptOwnership(t *testing.T) {
	e := newTestEnv(t)
	a := e.startAttempt(student)
	intruder := e.token(other, model.RoleStudent)

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPut, answerPath(a.ID, questionA), gin.H{"content": "B"}},
		{http.MethodPost, attemptPath(a.ID, "submit"), gin.H{}},
		{http.MethodPost, attemptPath(a.ID, "tab-switch"), nil},
		{http.MethodGet, attemptPath(a.ID, "result"), nil},
	} {
		code, env := e.do(tc.method, tc.path, intruder, tc.body)
		assert.Equal(t, http.StatusNotFound, code, tc.path)
		assert.Equal(t, response.ErrAttemptNotFound, env.Error.Code, tc.path)
	}
}

func TestProctoringEndpoints(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(student, model.RoleStudent)
	a := e.startAttempt(student)

	for i := 1; i <= 2; i++ {
		code, env := e.do(http.MethodPost, attemptPath(a.ID, "tab-switch"), tok, nil)
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, i, decode[map[string]any](t, env.Data)["tab_switch_count"])
	}

	code, env := e.do(http.MethodPost, attemptPath(a.ID, "webcam/status"), tok, gin.H{
		"enabled": false, "message": "Permission DENIED by user",
	})
	require.Equal(t, http.StatusOK, code)
	status := decode[map[string]any](t, env.Data)
	assert.Equal(t, false, status["webcam_enabled"])
	assert.EqualValues(t, 1, status["webcam_violation_count"])

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "webcam/status"), tok, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)
	assert.Contains(t, env.Error.Fields, "enabled")

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "webcam/consent"), tok, gin.H{"consent": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]any](t, env.Data)["webcam_consent_given"])

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "webcam/frames"), tok, gin.H{"image_data": pngFrame})
	require.Equal(t, http.StatusCreated, code)
	sig := decode[model.ProctoringSignal](t, env.Data)
	assert.Equal(t, a.ID, sig.AttemptID)
	assert.Regexp(t, `^frames/[0-9a-f]{64}\.png$`, sig.PayloadRef)

	oversized := "data:image/png;base64," + strings.Repeat("A", int(middleware.FrameBodyLimit(frameTestLimit)))
	code, env = e.do(http.MethodPost, attemptPath(a.ID, "webcam/frames"), tok, gin.H{"image_data": oversized})
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, response.ErrFileTooLarge, env.Error.Code)

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "webcam/frames"), tok, gin.H{"image_data": "data:image/gif;base64,R0lGODlh"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)

	// Signals after completion are refused.
	code, _ = e.do(http.MethodPost, attemptPath(a.ID, "submit"), tok, gin.H{})
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(http.MethodPost, attemptPath(a.ID, "tab-switch"), tok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrAttemptCompleted, env.Error.Code)
}

func TestSubmitAttempt_RejectsBadQuestionKey(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(student, model.RoleStudent)
	a := e.startAttempt(student)

	code, env := e.do(http.MethodPost, attemptPath(a.ID, "submit"), tok, gin.H{
		"answers": map[string]string{"question-one": "B"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)

	stored, err := e.store.GetAttempt(t.Context(), a.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
}

func TestDecodeDataURI(t *testing.T) {
	ct, payload, err := decodeDataURI(pngFrame)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, []byte("\x89PNG"), payload[:4])

	for _, bad := range []string{
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:image/png;base64,!!!",
	} {
		_, _, err := decodeDataURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestUploadFrame_ChunkedBodyOverLimit(t *testing.T) {
	e := newTestEnv(t)
	a := e.startAttempt(student)

	body := `{"image_data":"data:image/png;base64,` + strings.Repeat("A", int(middleware.FrameBodyLimit(frameTestLimit))) + `"}`
	// A plain io.Reader leaves Content-Length unknown, as with chunked uploads.
	req := httptest.NewRequest(http.MethodPost, attemptPath(a.ID, "webcam/frames"), io.MultiReader(strings.NewReader(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(student, model.RoleStudent))
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, response.ErrFileTooLarge, env.Error.Code)
	signals, err := e.store.ListSignals(t.Context(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
