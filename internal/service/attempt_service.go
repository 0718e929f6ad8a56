package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/deadline"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository"
)

// AttemptService drives the attempt lifecycle: NOT_STARTED -> IN_PROGRESS ->
// COMPLETED. It holds no locks of its own; every check-then-write is pushed
// down to the store as a conditional write.
type AttemptService struct {
	store AttemptStore
	exams ExamCatalog
	log   zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(store AttemptStore, exams ExamCatalog, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		store: store,
		exams: exams,
		log:   log.With().Str("component", "attempt_service").Logger(),
	}
}

// SubmitAnswerInput identifies one answer write.
type SubmitAnswerInput struct {
	UserID     int
	AttemptID  uuid.UUID
	QuestionID uuid.UUID
	Content    string
	Autosave   bool
}

// SubmitAnswerResult is returned for an accepted answer. Late is set when a
// final submission arrived after the attempt deadline.
type SubmitAnswerResult struct {
	Answer model.AnswerRecord `json:"answer"`
	Late   bool               `json:"late"`
}

// FinalizeResult describes the completed attempt. AlreadyFinalized is true
// when this call did not perform the transition.
type FinalizeResult struct {
	Attempt          *model.ExamAttempt `json:"attempt"`
	AlreadyFinalized bool               `json:"already_finalized"`
	Late             bool               `json:"late"`
}

// AttemptSnapshot is what a student needs to resume an exam.
type AttemptSnapshot struct {
	ExamID           uuid.UUID            `json:"exam_id"`
	ExamStatus       model.ExamStatus     `json:"exam_status"`
	State            model.AttemptState   `json:"state"`
	Window           deadline.Window      `json:"window"`
	Attempt          *model.ExamAttempt   `json:"attempt,omitempty"`
	Deadline         *time.Time           `json:"deadline,omitempty"`
	RemainingSeconds int64                `json:"remaining_seconds"`
	Answers          map[uuid.UUID]string `json:"answers,omitempty"`
}

// AttemptSummary is one row of the staff review list.
type AttemptSummary struct {
	model.ExamAttempt
	State    model.AttemptState `json:"state"`
	Deadline time.Time          `json:"deadline"`
	Late     bool               `json:"late"`
}

// StartOrResume returns the user's in-progress attempt for an exam, creating
// it on first call. Concurrent first calls all observe the same attempt.
func (s *AttemptService) StartOrResume(ctx context.Context, userID int, examID uuid.UUID, now time.Time) (*model.ExamAttempt, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetAttemptByUserExam(ctx, userID, examID)
	switch {
	case err == nil:
		return resumable(existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if now.Before(exam.ScheduledStart) {
		return nil, ErrNotYetAvailable
	}

	attempt := &model.ExamAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		ExamID:    examID,
		StartTime: now,
	}
	err = s.create(ctx, attempt)
	if errors.Is(err, errConcurrentCreateLost) {
		winner, err := s.store.GetAttemptByUserExam(ctx, userID, examID)
		if err != nil {
			return nil, fmt.Errorf("get attempt after lost create: %w", err)
		}
		return resumable(winner)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Msg("Attempt started")
	return attempt, nil
}

func (s *AttemptService) create(ctx context.Context, a *model.ExamAttempt) error {
	err := s.store.CreateAttempt(ctx, a)
	if errors.Is(err, repository.ErrDuplicate) {
		return errConcurrentCreateLost
	}
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func resumable(a *model.ExamAttempt) (*model.ExamAttempt, error) {
	if a.Completed {
		return nil, ErrAlreadyCompleted
	}
	return a, nil
}

// MaxAnswerRunes caps the length of one answer on every transport.
const MaxAnswerRunes = 20000

func checkAnswer(content string) error {
	if utf8.RuneCountInString(content) > MaxAnswerRunes {
		return ErrAnswerTooLong
	}
	return nil
}

// SubmitAnswer stores one answer. Late autosaves are dropped with
// ErrDeadlineExceeded; a late final submission is accepted and reported as Late.
func (s *AttemptService) SubmitAnswer(ctx context.Context, in SubmitAnswerInput, now time.Time) (*SubmitAnswerResult, error) {
	attempt, err := ownedAttempt(ctx, s.store, in.UserID, in.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Completed {
		return nil, ErrAttemptCompleted
	}

	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	return s.writeAnswer(ctx, attempt, exam, in.QuestionID, in.Content, in.Autosave, now)
}

func (s *AttemptService) writeAnswer(ctx context.Context, attempt *model.ExamAttempt, exam *model.ExamDefinition,
	questionID uuid.UUID, content string, autosave bool, now time.Time,
) (*SubmitAnswerResult, error) {
	late := deadline.Passed(attempt.StartTime, exam.DurationMinutes, now)
	if late && autosave {
		s.log.Debug().
			Str("attempt_id", attempt.ID.String()).
			Str("question_id", questionID.String()).
			Msg("Late autosave dropped")
		return nil, ErrDeadlineExceeded
	}
	if !exam.HasQuestion(questionID) {
		return nil, ErrQuestionNotInExam
	}
	if err := checkAnswer(content); err != nil {
		return nil, err
	}

	rec := model.AnswerRecord{
		UserID:     attempt.UserID,
		QuestionID: questionID,
		ExamID:     attempt.ExamID,
		AttemptID:  attempt.ID,
		Content:    content,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertAnswer(ctx, &rec); err != nil {
		return nil, storeError(err, "upsert answer")
	}
	return &SubmitAnswerResult{Answer: rec, Late: late}, nil
}

// Finalize closes the attempt at now. Calling it again, from any number of
// requests, returns the first outcome without touching end_time.
func (s *AttemptService) Finalize(ctx context.Context, userID int, attemptID uuid.UUID, now time.Time) (*FinalizeResult, error) {
	attempt, err := ownedAttempt(ctx, s.store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if attempt.Completed {
		return &FinalizeResult{Attempt: attempt, AlreadyFinalized: true, Late: attempt.IsLate(exam.Duration())}, nil
	}

	final, transitioned, err := s.store.FinalizeAttempt(ctx, attemptID, now)
	if err != nil {
		return nil, storeError(err, "finalize attempt")
	}

	res := &FinalizeResult{Attempt: final, AlreadyFinalized: !transitioned, Late: final.IsLate(exam.Duration())}
	if transitioned {
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("exam_id", final.ExamID.String()).
			Int("user_id", userID).
			Bool("late", res.Late).
			Msg("Attempt finalized")
	}
	return res, nil
}

// Submit writes every given answer as a final submission and then finalizes.
// All question IDs are checked before anything is written. Submitting an
// already completed attempt returns the stored outcome.
func (s *AttemptService) Submit(ctx context.Context, userID int, attemptID uuid.UUID, answers map[uuid.UUID]string, now time.Time) (*FinalizeResult, error) {
	attempt, err := ownedAttempt(ctx, s.store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Completed {
		return s.Finalize(ctx, userID, attemptID, now)
	}

	exam, err := s.loadExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(answers))
	for qid := range answers {
		if !exam.HasQuestion(qid) {
			return nil, ErrQuestionNotInExam
		}
		if err := checkAnswer(answers[qid]); err != nil {
			return nil, err
		}
		ids = append(ids, qid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, qid := range ids {
		_, err := s.writeAnswer(ctx, attempt, exam, qid, answers[qid], false, now)
		if errors.Is(err, ErrAttemptCompleted) {
			// Someone else finalized in between; report their outcome.
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return s.Finalize(ctx, userID, attemptID, now)
}

// GetState returns the user's attempt for an exam with saved answers and the
// time left. A user without an attempt gets State NOT_STARTED.
func (s *AttemptService) GetState(ctx context.Context, userID int, examID uuid.UUID, now time.Time) (*AttemptSnapshot, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	snap := &AttemptSnapshot{
		ExamID:     examID,
		ExamStatus: deadline.Status(exam, now),
		State:      model.AttemptStateNotStarted,
		Window:     deadline.WindowOf(exam),
	}

	attempt, err := s.store.GetAttemptByUserExam(ctx, userID, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	due := deadline.AttemptDeadline(attempt.StartTime, exam.DurationMinutes)
	snap.Attempt = attempt
	snap.State = attempt.State()
	snap.Deadline = &due
	if !attempt.Completed {
		snap.RemainingSeconds = int64(deadline.Remaining(attempt.StartTime, exam.DurationMinutes, now) / time.Second)
	}

	answers, err := s.store.ListAnswers(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	snap.Answers = make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		snap.Answers[a.QuestionID] = a.Content
	}
	return snap, nil
}

// GetPaper returns the questions without correct answers. Only a user with an
// in-progress attempt on the exam may read it.
func (s *AttemptService) GetPaper(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempt, err := s.store.GetAttemptByUserExam(ctx, userID, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Completed {
		return nil, ErrAttemptCompleted
	}
	return exam.Paper(), nil
}

// ListByExam lists every attempt of an exam for staff review.
func (s *AttemptService) ListByExam(ctx context.Context, examID uuid.UUID) ([]AttemptSummary, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttemptsByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	out := make([]AttemptSummary, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		out = append(out, AttemptSummary{
			ExamAttempt: *a,
			State:       a.State(),
			Deadline:    a.Deadline(exam.Duration()),
			Late:        a.IsLate(exam.Duration()),
		})
	}
	return out, nil
}

// ExamStatus classifies now against the exam window.
func (s *AttemptService) ExamStatus(ctx context.Context, examID uuid.UUID, now time.Time) (model.ExamStatus, deadline.Window, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return "", deadline.Window{}, err
	}
	return deadline.Status(exam, now), deadline.WindowOf(exam), nil
}

// Definition returns the exam definition, mapping a miss to ErrExamNotFound.
func (s *AttemptService) Definition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	return s.loadExam(ctx, examID)
}

func (s *AttemptService) loadExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	exam, err := s.exams.GetDefinition(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// ownedAttempt loads an attempt and hides it from anyone but its owner.
func ownedAttempt(ctx context.Context, store AttemptStore, userID int, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := store.GetAttempt(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

// storeError maps store sentinels onto lifecycle errors.
func storeError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrAttemptClosed):
		return ErrAttemptCompleted
	case errors.Is(err, repository.ErrNotFound):
		return ErrAttemptNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
