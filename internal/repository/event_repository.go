package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/proctorexam/internal/model"
)

// EventRepository appends proctoring audit events.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

var eventColumns = []string{
	"attempt_id", "exam_id", "user_id", "kind", "detail",
	"tab_switch_count", "webcam_violation_count", "recorded_at",
}

// BulkInsert copies a batch of events with the COPY protocol.
func (r *EventRepository) BulkInsert(ctx context.Context, events []*model.ProctoringEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{
			e.AttemptID, e.ExamID, e.UserID, string(e.Kind), e.Detail,
			e.TabSwitchCount, e.WebcamViolationCount, e.At,
		})
	}

	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"proctoring_events"}, eventColumns, pgx.CopyFromRows(rows))
	return err
}

// Insert stores a single event. Used when a bulk copy fails and the batch is
// replayed row by row.
func (r *EventRepository) Insert(ctx context.Context, e *model.ProctoringEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO proctoring_events
		   (attempt_id, exam_id, user_id, kind, detail, tab_switch_count, webcam_violation_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.AttemptID, e.ExamID, e.UserID, string(e.Kind), e.Detail,
		e.TabSwitchCount, e.WebcamViolationCount, e.At,
	)
	return err
}

// ListByAttempt returns the audit trail of an attempt in order.
func (r *EventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, exam_id, user_id, kind, COALESCE(detail, ''),
		        tab_switch_count, webcam_violation_count, recorded_at
		 FROM proctoring_events
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ProctoringEvent
	for rows.Next() {
		var e model.ProctoringEvent
		if err := rows.Scan(&e.AttemptID, &e.ExamID, &e.UserID, &e.Kind, &e.Detail,
			&e.TabSwitchCount, &e.WebcamViolationCount, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
