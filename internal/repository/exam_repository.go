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

// ExamRepository reads exam definitions and their question sets. Authoring
// happens elsewhere; the only write path is Seed, used by cmd/seed-exam.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetDefinition loads an exam together with its ordered question set.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	e := &model.ExamDefinition{}
	var bankID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, scheduled_start, duration_minutes, question_bank_id
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.ScheduledStart, &e.DurationMinutes, &bankID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	questions, err := r.listQuestions(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

func (r *ExamRepository) listQuestions(ctx context.Context, bankID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_type, question_text, options, correct_answer,
		        COALESCE(explanation, ''), points, order_num
		 FROM questions
		 WHERE question_bank_id = $1
		 ORDER BY order_num ASC, id ASC`, bankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuestionType, &q.QuestionText, &q.Options, &q.CorrectAnswer,
			&q.Explanation, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListOpenExamIDs returns exams whose window has not closed at now.
func (r *ExamRepository) ListOpenExamIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams
		 WHERE scheduled_start + make_interval(mins => duration_minutes) > $1
		 ORDER BY scheduled_start ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Seed stores an exam and its questions under a fresh question bank in one
// transaction. IDs left as uuid.Nil are generated.
func (r *ExamRepository) Seed(ctx context.Context, exam *model.ExamDefinition, authorID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	bankID := uuid.New()
	if _, err := tx.Exec(ctx,
		`INSERT INTO question_banks (id, title, created_by) VALUES ($1, $2, $3)`,
		bankID, exam.Title, authorID,
	); err != nil {
		return fmt.Errorf("insert question bank: %w", err)
	}

	for i := range exam.Questions {
		q := &exam.Questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if q.Options == nil {
			q.Options = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (id, question_bank_id, question_type, question_text, options,
			                        correct_answer, explanation, points, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
			q.ID, bankID, q.QuestionType, q.QuestionText, q.Options,
			q.CorrectAnswer, q.Explanation, q.Points, q.OrderNum,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	if exam.ID == uuid.Nil {
		exam.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO exams (id, title, question_bank_id, scheduled_start, duration_minutes)
		 VALUES ($1, $2, $3, $4, $5)`,
		exam.ID, exam.Title, bankID, exam.ScheduledStart, exam.DurationMinutes,
	); err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	return tx.Commit(ctx)
}
