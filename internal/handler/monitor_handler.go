package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live proctoring activity of one exam to staff.
type MonitorHandler struct {
	rdb      *redis.Client
	attempts *service.AttemptService
	log      zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	attempts *service.AttemptService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		attempts: attempts,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// monitorStats aggregates the attempt list for the header of the monitor view.
type monitorStats struct {
	TotalJoined     int `json:"total_joined"`
	TotalInProgress int `json:"total_in_progress"`
	TotalCompleted  int `json:"total_completed"`
	TotalLate       int `json:"total_late"`
	TotalTabSwitch  int `json:"total_tab_switches"`
	TotalViolations int `json:"total_webcam_violations"`
}

func summarize(attempts []service.AttemptSummary) monitorStats {
	st := monitorStats{TotalJoined: len(attempts)}
	for _, a := range attempts {
		switch a.State {
		case model.AttemptStateInProgress:
			st.TotalInProgress++
		case model.AttemptStateCompleted:
			st.TotalCompleted++
		}
		if a.Late {
			st.TotalLate++
		}
		st.TotalTabSwitch += a.TabSwitchCount
		st.TotalViolations += a.WebcamViolationCount
	}
	return st
}

// MonitorExamSSE godoc
// GET /api/v1/staff/exams/:exam_id/monitor
// Sends a snapshot, then forwards every proctoring event published for the
// exam. A compact refresh follows every refreshInterval once activity is seen.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	exam, err := h.attempts.Definition(reqCtx, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	attempts, err := h.attempts.ListByExam(reqCtx, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":              examID.String(),
				"title":           exam.Title,
				"scheduled_start": exam.ScheduledStart,
				"duration":        exam.DurationMinutes,
				"total_questions": len(exam.Questions),
			},
			"stats":    summarize(attempts),
			"attempts": attempts,
		},
	})
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	hasActivity := len(attempts) > 0

	h.log.Info().Str("exam_id", examID.String()).Msg("Staff attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Staff disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))
			hasActivity = true

		case <-refreshTicker.C:
			if !hasActivity {
				continue
			}
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendRefresh re-reads the attempt list and sends the aggregated counters.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	attempts, err := h.attempts.ListByExam(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh monitor snapshot")
		return
	}

	progress := make([]gin.H, 0, len(attempts))
	for _, a := range attempts {
		progress = append(progress, gin.H{
			"attempt_id":             a.ID,
			"user_id":                a.UserID,
			"state":                  a.State,
			"tab_switch_count":       a.TabSwitchCount,
			"webcam_violation_count": a.WebcamViolationCount,
			"late":                   a.Late,
		})
	}

	c.SSEvent("message", gin.H{
		"type":     "refresh",
		"stats":    summarize(attempts),
		"attempts": progress,
	})
	c.Writer.Flush()
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
