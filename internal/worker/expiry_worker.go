package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/repository"
	"github.com/stemsi/proctorexam/internal/service"
)

// ExpirySweepLimit caps how many attempts one sweep closes.
const ExpirySweepLimit = 200

// ExpiredLister finds in-progress attempts past their deadline.
type ExpiredLister interface {
	ListExpiredAttempts(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]repository.ExpiredAttempt, error)
}

// Finalizer closes an attempt.
type Finalizer interface {
	Finalize(ctx context.Context, userID int, attemptID uuid.UUID, now time.Time) (*service.FinalizeResult, error)
}

// ExpiryWorker finalizes attempts whose owners never submitted. It goes
// through the regular Finalize, so a student submitting at the same moment
// simply wins or loses the same conditional update.
type ExpiryWorker struct {
	lister    ExpiredLister
	finalizer Finalizer
	grace     time.Duration
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewExpiryWorker(lister ExpiredLister, finalizer Finalizer, grace, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		lister:    lister,
		finalizer: finalizer,
		grace:     grace,
		interval:  interval,
		now:       time.Now,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.grace < 0 {
		w.log.Info().Msg("ExpiryWorker disabled")
		return
	}
	w.log.Info().
		Dur("grace", w.grace).
		Dur("interval", w.interval).
		Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
		}
	}
}

// Sweep finalizes one batch of expired attempts at their deadline and
// returns how many it closed.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	expired, err := w.lister.ListExpiredAttempts(ctx, w.now(), w.grace, ExpirySweepLimit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, e := range expired {
		res, err := w.finalizer.Finalize(ctx, e.UserID, e.AttemptID, e.Deadline)
		if err != nil {
			if errors.Is(err, service.ErrAttemptNotFound) {
				continue
			}
			w.log.Warn().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Auto-finalize failed")
			continue
		}
		if !res.AlreadyFinalized {
			closed++
		}
	}

	if closed > 0 {
		w.log.Info().Int("count", closed).Msg("Auto-finalized expired attempts")
	}
	return closed, nil
}
