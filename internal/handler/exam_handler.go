package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/response"
	"github.com/stemsi/proctorexam/internal/service"
)

// ExamHandler handles staff review endpoints.
type ExamHandler struct {
	attempts *service.AttemptService
	proctor  *service.ProctorService
	scoring  *service.ScoringService
	catalog  *service.ExamCatalogService
	now      func() time.Time
	log      zerolog.Logger
}

// NewExamHandler creates a new ExamHandler. catalog may be nil, in which case
// cache refresh is a no-op.
func NewExamHandler(
	attempts *service.AttemptService,
	proctor *service.ProctorService,
	scoring *service.ScoringService,
	catalog *service.ExamCatalogService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		attempts: attempts,
		proctor:  proctor,
		scoring:  scoring,
		catalog:  catalog,
		now:      time.Now,
		log:      log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetStatus godoc
// GET /api/v1/staff/exams/:exam_id/status
func (h *ExamHandler) GetStatus(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	status, window, err := h.attempts.ExamStatus(c.Request.Context(), examID, h.now())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id": examID,
		"status":  status,
		"window":  window,
	})
}

// ListAttempts godoc
// GET /api/v1/staff/exams/:exam_id/attempts
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	attempts, err := h.attempts.ListByExam(c.Request.Context(), examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// GetScore godoc
// GET /api/v1/staff/attempts/:attempt_id/score
// Score with the per-question breakdown.
func (h *ExamHandler) GetScore(c *gin.Context) {
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.scoring.Score(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ListSignals godoc
// GET /api/v1/staff/attempts/:attempt_id/signals
func (h *ExamHandler) ListSignals(c *gin.Context) {
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	signals, err := h.proctor.ListSignals(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"signals": signals})
}

// ListEvents godoc
// GET /api/v1/staff/attempts/:attempt_id/events
func (h *ExamHandler) ListEvents(c *gin.Context) {
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	events, err := h.proctor.ListEvents(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// RefreshCache godoc
// POST /api/v1/staff/exams/:exam_id/cache/refresh
// Drops the cached definition; the next read reloads it from the database.
func (h *ExamHandler) RefreshCache(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	if h.catalog != nil {
		if err := h.catalog.Invalidate(c.Request.Context(), examID); err != nil {
			failWith(c, h.log, err)
			return
		}
	}

	h.log.Info().Str("exam_id", examID.String()).Msg("Exam cache invalidated")
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "refreshed": true})
}
