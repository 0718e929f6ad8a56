package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
)

// serviceErrors maps lifecycle errors onto HTTP status and API code.
var serviceErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrNoActiveAttempt, http.StatusNotFound, response.ErrNoActiveAttempt},
	{service.ErrNotYetAvailable, http.StatusForbidden, response.ErrExamNotYetAvailable},
	{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAttemptAlreadyDone},
	{service.ErrAttemptCompleted, http.StatusConflict, response.ErrAttemptCompleted},
	{service.ErrAttemptNotFinalized, http.StatusConflict, response.ErrAttemptNotFinalized},
	{service.ErrDeadlineExceeded, http.StatusGone, response.ErrDeadlineExceeded},
	{service.ErrQuestionNotInExam, http.StatusUnprocessableEntity, response.ErrQuestionNotInExam},
	{service.ErrAnswerTooLong, http.StatusBadRequest, response.ErrValidation},
	{service.ErrUnsupportedFrameType, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile},
	{service.ErrFrameTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
	{service.ErrEmptyFrame, http.StatusBadRequest, response.ErrFileRequired},
}

// classify returns the status and code for err. Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the error envelope for a service error. Only internal
// errors are logged; their text never reaches the client.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if code == response.ErrInternal {
		log.Error().
			Err(err).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// uuidParam parses a UUID path parameter, answering 400 on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
