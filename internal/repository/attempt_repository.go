package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/proctorexam/internal/model"
)

const attemptColumns = `id, user_id, exam_id, start_time, end_time, completed,
	tab_switch_count, webcam_enabled, webcam_consent_given,
	COALESCE(webcam_status_message, ''), webcam_violation_count`

// AttemptRepository persists exam attempts, answers and webcam frame metadata.
// Every mutation is a single conditional statement or a short transaction that
// holds a lock on the attempt row, so concurrent requests from several
// server instances stay consistent without in-process locks.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.StartTime, &a.EndTime, &a.Completed,
		&a.TabSwitchCount, &a.WebcamEnabled, &a.WebcamConsentGiven,
		&a.WebcamStatusMessage, &a.WebcamViolationCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetAttempt retrieves an attempt by ID.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetAttemptByUserExam retrieves the attempt for a user-exam pair.
func (r *AttemptRepository) GetAttemptByUserExam(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE user_id = $1 AND exam_id = $2`,
		userID, examID))
}

// CreateAttempt inserts a new in-progress attempt. When another request already
// created the row for the same (user, exam) pair it returns ErrDuplicate and
// leaves the winner untouched.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *model.ExamAttempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, user_id, exam_id, start_time, completed)
		 VALUES ($1, $2, $3, $4, FALSE)
		 ON CONFLICT (user_id, exam_id) DO NOTHING
		 RETURNING id, start_time`,
		a.ID, a.UserID, a.ExamID, a.StartTime,
	).Scan(&a.ID, &a.StartTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// FinalizeAttempt flips completed to true and stamps end_time, once. The
// boolean result is false when the attempt was already completed, in which
// case the stored row is returned unchanged.
func (r *AttemptRepository) FinalizeAttempt(ctx context.Context, id uuid.UUID, endTime time.Time) (*model.ExamAttempt, bool, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET completed = TRUE, end_time = $2
		 WHERE id = $1 AND completed = FALSE
		 RETURNING `+attemptColumns, id, endTime))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Either the row does not exist or someone finalized it first.
	existing, err := r.GetAttempt(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// IncrementTabSwitch adds one to tab_switch_count of an open attempt.
func (r *AttemptRepository) IncrementTabSwitch(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET tab_switch_count = tab_switch_count + 1
		 WHERE id = $1 AND completed = FALSE
		 RETURNING `+attemptColumns, id))
	if errors.Is(err, ErrNotFound) {
		return nil, r.closedOrMissing(ctx, id)
	}
	return a, err
}

// UpdateWebcamStatus stores the webcam flag and message of an open attempt and
// bumps the violation counter when violation is true.
func (r *AttemptRepository) UpdateWebcamStatus(ctx context.Context, id uuid.UUID, enabled bool, message string, violation bool) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET webcam_enabled = $2,
		     webcam_status_message = NULLIF($3, ''),
		     webcam_violation_count = webcam_violation_count + CASE WHEN $4 THEN 1 ELSE 0 END
		 WHERE id = $1 AND completed = FALSE
		 RETURNING `+attemptColumns, id, enabled, message, violation))
	if errors.Is(err, ErrNotFound) {
		return nil, r.closedOrMissing(ctx, id)
	}
	return a, err
}

// SetWebcamConsent records the consent flag of an open attempt.
func (r *AttemptRepository) SetWebcamConsent(ctx context.Context, id uuid.UUID, consent bool) (*model.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE exam_attempts
		 SET webcam_consent_given = $2
		 WHERE id = $1 AND completed = FALSE
		 RETURNING `+attemptColumns, id, consent))
	if errors.Is(err, ErrNotFound) {
		return nil, r.closedOrMissing(ctx, id)
	}
	return a, err
}

// closedOrMissing explains why a conditional update matched no row.
func (r *AttemptRepository) closedOrMissing(ctx context.Context, id uuid.UUID) error {
	var completed bool
	err := r.pool.QueryRow(ctx, `SELECT completed FROM exam_attempts WHERE id = $1`, id).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if completed {
		return ErrAttemptClosed
	}
	return fmt.Errorf("attempt %s changed concurrently", id)
}

// withOpenAttempt runs fn inside a transaction that holds a shared lock on the
// attempt row. FinalizeAttempt needs an exclusive lock on the same row, so a
// finalize either happens before (and fn never runs) or waits for fn to commit.
func (r *AttemptRepository) withOpenAttempt(ctx context.Context, attemptID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var completed bool
	err = tx.QueryRow(ctx,
		`SELECT completed FROM exam_attempts WHERE id = $1 FOR SHARE`, attemptID,
	).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock attempt: %w", err)
	}
	if completed {
		return ErrAttemptClosed
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertAnswer creates or overwrites the answer for (user, question, exam) as
// long as the owning attempt is still open. An older write never replaces a
// newer one.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, rec *model.AnswerRecord) error {
	return r.withOpenAttempt(ctx, rec.AttemptID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO answers (user_id, question_id, exam_id, attempt_id, content, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, question_id, exam_id) DO UPDATE
			 SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
			 WHERE answers.updated_at <= EXCLUDED.updated_at`,
			rec.UserID, rec.QuestionID, rec.ExamID, rec.AttemptID, rec.Content, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
}

// ListAnswers returns every answer a user gave in an exam.
func (r *AttemptRepository) ListAnswers(ctx context.Context, userID int, examID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, question_id, exam_id, attempt_id, content, updated_at
		 FROM answers
		 WHERE user_id = $1 AND exam_id = $2`, userID, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.AnswerRecord
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.UserID, &a.QuestionID, &a.ExamID, &a.AttemptID, &a.Content, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// InsertSignal appends webcam frame metadata to an open attempt.
func (r *AttemptRepository) InsertSignal(ctx context.Context, s *model.ProctoringSignal) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.withOpenAttempt(ctx, s.AttemptID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO proctoring_signals (id, attempt_id, payload_ref, captured_at, flagged, flag_reason)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.AttemptID, s.PayloadRef, s.CapturedAt, s.Flagged, s.FlagReason,
		)
		if err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
		return nil
	})
}

// ListSignals returns the frame metadata of an attempt in capture order.
func (r *AttemptRepository) ListSignals(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringSignal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, payload_ref, captured_at, flagged, flag_reason
		 FROM proctoring_signals
		 WHERE attempt_id = $1
		 ORDER BY captured_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []model.ProctoringSignal
	for rows.Next() {
		var s model.ProctoringSignal
		if err := rows.Scan(&s.ID, &s.AttemptID, &s.PayloadRef, &s.CapturedAt, &s.Flagged, &s.FlagReason); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// ListAttemptsByExam returns every attempt of an exam, oldest first.
func (r *AttemptRepository) ListAttemptsByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY start_time ASC, id ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ExpiredAttempt identifies an in-progress attempt whose deadline has passed.
type ExpiredAttempt struct {
	AttemptID uuid.UUID
	UserID    int
	Deadline  time.Time
}

// ListExpiredAttempts returns up to limit in-progress attempts whose deadline
// plus grace lies before now.
func (r *AttemptRepository) ListExpiredAttempts(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]ExpiredAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.start_time + make_interval(mins => e.duration_minutes) AS deadline
		 FROM exam_attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.completed = FALSE
		   AND a.start_time + make_interval(mins => e.duration_minutes) + make_interval(secs => $2) < $1
		 ORDER BY deadline ASC
		 LIMIT $3`,
		now, grace.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredAttempt
	for rows.Next() {
		var e ExpiredAttempt
		if err := rows.Scan(&e.AttemptID, &e.UserID, &e.Deadline); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}
