// Package memory is an in-process implementation of the attempt store and
// exam catalog contracts. It enforces the same uniqueness and open-attempt
// rules as the PostgreSQL repositories and is used to exercise the services
// under real goroutine concurrency in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository"
)

type userExam struct {
	userID int
	examID uuid.UUID
}

type answerKey struct {
	userID     int
	questionID uuid.UUID
	examID     uuid.UUID
}

// Store keeps attempts, answers and signals in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
	byPair   map[userExam]uuid.UUID
	answers  map[answerKey]*model.AnswerRecord
	signals  map[uuid.UUID][]model.ProctoringSignal

	// Creates counts successful CreateAttempt calls.
	Creates int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
		byPair:   make(map[userExam]uuid.UUID),
		answers:  make(map[answerKey]*model.AnswerRecord),
		signals:  make(map[uuid.UUID][]model.ProctoringSignal),
	}
}

func copyAttempt(a *model.ExamAttempt) *model.ExamAttempt {
	c := *a
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	return &c
}

func (s *Store) GetAttempt(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAttempt(a), nil
}

func (s *Store) GetAttemptByUserExam(_ context.Context, userID int, examID uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPair[userExam{userID, examID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAttempt(s.attempts[id]), nil
}

func (s *Store) CreateAttempt(_ context.Context, a *model.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userExam{a.UserID, a.ExamID}
	if _, exists := s.byPair[key]; exists {
		return repository.ErrDuplicate
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Completed = false
	a.EndTime = nil
	s.attempts[a.ID] = copyAttempt(a)
	s.byPair[key] = a.ID
	s.Creates++
	return nil
}

func (s *Store) FinalizeAttempt(_ context.Context, id uuid.UUID, endTime time.Time) (*model.ExamAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if a.Completed {
		return copyAttempt(a), false, nil
	}
	a.Completed = true
	a.EndTime = &endTime
	return copyAttempt(a), true, nil
}

// openAttempt must be called with mu held.
func (s *Store) openAttempt(id uuid.UUID) (*model.ExamAttempt, error) {
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Completed {
		return nil, repository.ErrAttemptClosed
	}
	return a, nil
}

func (s *Store) IncrementTabSwitch(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.openAttempt(id)
	if err != nil {
		return nil, err
	}
	a.TabSwitchCount++
	return copyAttempt(a), nil
}

func (s *Store) UpdateWebcamStatus(_ context.Context, id uuid.UUID, enabled bool, message string, violation bool) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.openAttempt(id)
	if err != nil {
		return nil, err
	}
	// Same width as exam_attempts.webcam_status_message.
	if utf8.RuneCountInString(message) > 255 {
		return nil, fmt.Errorf("webcam_status_message: value too long for type character varying(255)")
	}
	a.WebcamEnabled = enabled
	a.WebcamStatusMessage = message
	if violation {
		a.WebcamViolationCount++
	}
	return copyAttempt(a), nil
}

func (s *Store) SetWebcamConsent(_ context.Context, id uuid.UUID, consent bool) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.openAttempt(id)
	if err != nil {
		return nil, err
	}
	a.WebcamConsentGiven = consent
	return copyAttempt(a), nil
}

func (s *Store) UpsertAnswer(_ context.Context, rec *model.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.openAttempt(rec.AttemptID); err != nil {
		return err
	}
	key := answerKey{rec.UserID, rec.QuestionID, rec.ExamID}
	if existing, ok := s.answers[key]; ok && existing.UpdatedAt.After(rec.UpdatedAt) {
		return nil
	}
	c := *rec
	s.answers[key] = &c
	return nil
}

func (s *Store) ListAnswers(_ context.Context, userID int, examID uuid.UUID) ([]model.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AnswerRecord
	for k, v := range s.answers {
		if k.userID == userID && k.examID == examID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionID.String() < out[j].QuestionID.String()
	})
	return out, nil
}

func (s *Store) InsertSignal(_ context.Context, sig *model.ProctoringSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.openAttempt(sig.AttemptID); err != nil {
		return err
	}
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	s.signals[sig.AttemptID] = append(s.signals[sig.AttemptID], *sig)
	return nil
}

func (s *Store) ListSignals(_ context.Context, attemptID uuid.UUID) ([]model.ProctoringSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ProctoringSignal, len(s.signals[attemptID]))
	copy(out, s.signals[attemptID])
	return out, nil
}

func (s *Store) ListAttemptsByExam(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExamAttempt
	for _, a := range s.attempts {
		if a.ExamID == examID {
			out = append(out, *copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// AnswerCount returns the number of stored answer records.
func (s *Store) AnswerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// AttemptCount returns the number of stored attempts.
func (s *Store) AttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
