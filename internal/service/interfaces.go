package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/proctorexam/internal/model"
)

// AttemptStore persists attempts, answers and frame metadata. Implementations
// enforce UNIQUE(user, exam) and UNIQUE(user, question, exam) and refuse
// writes to completed attempts atomically.
type AttemptStore interface {
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetAttemptByUserExam(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error)
	CreateAttempt(ctx context.Context, a *model.ExamAttempt) error
	FinalizeAttempt(ctx context.Context, id uuid.UUID, endTime time.Time) (*model.ExamAttempt, bool, error)

	IncrementTabSwitch(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	UpdateWebcamStatus(ctx context.Context, id uuid.UUID, enabled bool, message string, violation bool) (*model.ExamAttempt, error)
	SetWebcamConsent(ctx context.Context, id uuid.UUID, consent bool) (*model.ExamAttempt, error)

	UpsertAnswer(ctx context.Context, rec *model.AnswerRecord) error
	ListAnswers(ctx context.Context, userID int, examID uuid.UUID) ([]model.AnswerRecord, error)

	InsertSignal(ctx context.Context, s *model.ProctoringSignal) error
	ListSignals(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringSignal, error)

	ListAttemptsByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
}

// ExamCatalog is the read-only exam definition lookup.
type ExamCatalog interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
}

// FrameStore keeps raw webcam frames and hands back an opaque reference.
type FrameStore interface {
	Save(ctx context.Context, payload []byte, contentType string) (string, error)
}

// EventSink receives proctoring events after they have been applied.
// Publish must not block for long and its failure never fails the caller.
type EventSink interface {
	Publish(ctx context.Context, ev *model.ProctoringEvent) error
}

// EventLog reads back the persisted proctoring audit trail.
type EventLog interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error)
}

// nopSink drops every event.
type nopSink struct{}

func (nopSink) Publish(context.Context, *model.ProctoringEvent) error { return nil }
