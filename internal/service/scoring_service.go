package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/proctorexam/internal/model"
)

// ScoringService grades finalized attempts. It only reads.
type ScoringService struct {
	store AttemptStore
	exams ExamCatalog
}

// NewScoringService creates a new ScoringService.
func NewScoringService(store AttemptStore, exams ExamCatalog) *ScoringService {
	return &ScoringService{store: store, exams: exams}
}

// QuestionScore is the grading of one question.
type QuestionScore struct {
	QuestionID uuid.UUID `json:"question_id"`
	Points     int       `json:"points"`
	Earned     int       `json:"earned"`
	Answered   bool      `json:"answered"`
	Correct    bool      `json:"correct"`
	Answer     string    `json:"answer,omitempty"`
}

// ScoreResult is the outcome of grading an attempt.
type ScoreResult struct {
	AttemptID      uuid.UUID       `json:"attempt_id"`
	ExamID         uuid.UUID       `json:"exam_id"`
	UserID         int             `json:"user_id"`
	PointsEarned   int             `json:"points_earned"`
	PointsPossible int             `json:"points_possible"`
	Late           bool            `json:"late"`
	Questions      []QuestionScore `json:"questions"`
}

// Score grades a finalized attempt against the exam's question set.
func (s *ScoringService) Score(ctx context.Context, attemptID uuid.UUID) (*ScoreResult, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, storeError(err, "get attempt")
	}
	return s.score(ctx, attempt)
}

// ScoreForUser is Score restricted to the attempt's owner.
func (s *ScoringService) ScoreForUser(ctx context.Context, userID int, attemptID uuid.UUID) (*ScoreResult, error) {
	attempt, err := ownedAttempt(ctx, s.store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.score(ctx, attempt)
}

func (s *ScoringService) score(ctx context.Context, attempt *model.ExamAttempt) (*ScoreResult, error) {
	if !attempt.Completed {
		return nil, ErrAttemptNotFinalized
	}
	exam, err := s.exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	answers, err := s.store.ListAnswers(ctx, attempt.UserID, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	res := Grade(exam, answers)
	res.AttemptID = attempt.ID
	res.UserID = attempt.UserID
	res.Late = attempt.IsLate(exam.Duration())
	return res, nil
}

// Grade compares answers to the correct answers by exact string equality.
// There is no partial credit and no normalization, for any question type.
// Questions without a correct answer never score. Answers to questions
// outside the exam are ignored.
func Grade(exam *model.ExamDefinition, answers []model.AnswerRecord) *ScoreResult {
	given := make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.Content
	}

	res := &ScoreResult{
		ExamID:    exam.ID,
		Questions: make([]QuestionScore, 0, len(exam.Questions)),
	}
	for _, q := range exam.Questions {
		qs := QuestionScore{QuestionID: q.ID, Points: q.Points}
		if content, ok := given[q.ID]; ok {
			qs.Answered = true
			qs.Answer = content
			qs.Correct = q.Accepts(content)
		}
		if qs.Correct {
			qs.Earned = q.Points
		}
		res.PointsEarned += qs.Earned
		res.PointsPossible += q.Points
		res.Questions = append(res.Questions, qs)
	}
	return res
}
