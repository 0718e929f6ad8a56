package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository"
	"github.com/stemsi/proctorexam/internal/repository/memory"
)

var (
	t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	questionA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	questionB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	foreignQ  = uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
)

const (
	student = 42
	other   = 43
)

// newExam returns a 30 minute exam starting at t0 with two questions worth
// 1 and 2 points.
func newExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Geography",
		ScheduledStart:  t0,
		DurationMinutes: 30,
		Questions: []model.Question{
			{ID: questionA, QuestionType: model.QuestionTypeMCQ, QuestionText: "Pick B", Options: []string{"A", "B"}, CorrectAnswer: model.Key("B"), Points: 1, OrderNum: 1},
			{ID: questionB, QuestionType: model.QuestionTypeShortAnswer, QuestionText: "Capital of France", CorrectAnswer: model.Key("Paris"), Points: 2, OrderNum: 2},
		},
	}
}

type env struct {
	exam    *model.ExamDefinition
	store   *memory.Store
	catalog *memory.Catalog
	attempt *AttemptService
	proctor *ProctorService
	scoring *ScoringService
}

func newEnv() *env {
	exam := newExam()
	store := memory.NewStore()
	catalog := memory.NewCatalog(exam)
	return &env{
		exam:    exam,
		store:   store,
		catalog: catalog,
		attempt: NewAttemptService(store, catalog, zerolog.Nop()),
		proctor: NewProctorService(store, nil, nil, zerolog.Nop()),
		scoring: NewScoringService(store, catalog),
	}
}

func (e *env) start(userID int, at time.Time) *model.ExamAttempt {
	a, err := e.attempt.StartOrResume(context.Background(), userID, e.exam.ID, at)
	if err != nil {
		panic(err)
	}
	return a
}

// racingStore lets a competing request create the attempt right before the
// caller's own insert.
type racingStore struct {
	*memory.Store
	winnerStart time.Time
}

func (s *racingStore) CreateAttempt(ctx context.Context, a *model.ExamAttempt) error {
	winner := &model.ExamAttempt{UserID: a.UserID, ExamID: a.ExamID, StartTime: s.winnerStart}
	if err := s.Store.CreateAttempt(ctx, winner); err != nil {
		return err
	}
	return s.Store.CreateAttempt(ctx, a)
}

var errStoreDown = errors.New("connection refused")

// brokenAnswerStore fails every answer write.
type brokenAnswerStore struct {
	*memory.Store
}

func (s *brokenAnswerStore) UpsertAnswer(context.Context, *model.AnswerRecord) error {
	return errStoreDown
}

// MockEventSink is a mock implementation of EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Publish(ctx context.Context, ev *model.ProctoringEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockFrameStore is a mock implementation of FrameStore
type MockFrameStore struct {
	mock.Mock
}

func (m *MockFrameStore) Save(ctx context.Context, payload []byte, contentType string) (string, error) {
	args := m.Called(ctx, payload, contentType)
	return args.String(0), args.Error(1)
}

// staticSource is an ExamSource over a fixed map.
type staticSource struct {
	exams map[uuid.UUID]*model.ExamDefinition
	calls int
}

func (s *staticSource) GetDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	s.calls++
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (s *staticSource) ListOpenExamIDs(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, e := range s.exams {
		if e.ScheduledStart.Add(e.Duration()).After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
