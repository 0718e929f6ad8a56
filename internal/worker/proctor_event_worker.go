package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventWriter persists proctoring audit events.
type EventWriter interface {
	BulkInsert(ctx context.Context, events []*model.ProctoringEvent) error
	Insert(ctx context.Context, e *model.ProctoringEvent) error
}

// ProctorEventWorker drains the proctoring event queue into PostgreSQL.
type ProctorEventWorker struct {
	events EventWriter
	rdb    *redis.Client
	log    zerolog.Logger
}

func NewProctorEventWorker(events EventWriter, rdb *redis.Client, log zerolog.Logger) *ProctorEventWorker {
	return &ProctorEventWorker{
		events: events,
		rdb:    rdb,
		log:    log.With().Str("component", "proctor_event_worker").Logger(),
	}
}

func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorEventWorker started")

	buffer := make([]*model.ProctoringEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop blocks for PollTimeout, returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctoringEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		ev, err := decodeEvent(result[1])
		if err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, ev)
	}
}

func decodeEvent(raw string) (*model.ProctoringEvent, error) {
	var ev model.ProctoringEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, err
	}
	if ev.AttemptID == uuid.Nil || ev.Kind == "" {
		return nil, errors.New("event without attempt or kind")
	}
	return &ev, nil
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []*model.ProctoringEvent) {
	if err := w.events.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Proctoring events persisted")
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []*model.ProctoringEvent) {
	requeueList := make([]*model.ProctoringEvent, 0)

	for _, ev := range batch {
		if err := w.events.Insert(ctx, ev); err != nil {
			w.log.Error().
				Err(err).
				Str("attempt_id", ev.AttemptID.String()).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ProctorEventWorker) requeue(ctx context.Context, items []*model.ProctoringEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistProctoringEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Back off so a database outage does not spin the loop.
	pause(ctx, requeueBackoff)
}

const requeueBackoff = 2 * time.Second

// pause waits for d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *ProctorEventWorker) shutdown(buffer []*model.ProctoringEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
