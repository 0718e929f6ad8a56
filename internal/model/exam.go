package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus is the availability of an exam at a point in time.
type ExamStatus string

const (
	ExamStatusUpcoming ExamStatus = "UPCOMING"
	ExamStatusActive   ExamStatus = "ACTIVE"
	ExamStatusExpired  ExamStatus = "EXPIRED"
)

// ExamDefinition is the read-only view of an exam: its schedule and the
// question set attempts are scored against.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	ScheduledStart  time.Time  `json:"scheduled_start"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}

// Duration returns the exam duration as a time.Duration.
func (e *ExamDefinition) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question looks up a question of this exam by ID.
func (e *ExamDefinition) Question(id uuid.UUID) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// HasQuestion reports whether the question belongs to this exam's question set.
func (e *ExamDefinition) HasQuestion(id uuid.UUID) bool {
	_, ok := e.Question(id)
	return ok
}

// PointsPossible sums the point values of every question.
func (e *ExamDefinition) PointsPossible() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// Paper returns the student-facing copy of the exam (no correct answers).
func (e *ExamDefinition) Paper() *ExamPaper {
	paper := &ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		Questions:       make([]QuestionForStudent, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		paper.Questions = append(paper.Questions, QuestionForStudent{
			ID:           q.ID,
			QuestionType: q.QuestionType,
			QuestionText: q.QuestionText,
			Options:      q.Options,
			Points:       q.Points,
			OrderNum:     q.OrderNum,
		})
	}
	return paper
}

// ExamPaper is what a student with an active attempt receives.
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID    `json:"id"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	Options      []string     `json:"options,omitempty"`
	Points       int          `json:"points"`
	OrderNum     int          `json:"order_num"`
}
