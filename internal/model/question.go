package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats. All of them are
// scored by exact string comparison against CorrectAnswer.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "mcq"
	QuestionTypeShortAnswer QuestionType = "short_answer"
	QuestionTypeEssay       QuestionType = "essay"
)

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	QuestionType  QuestionType `json:"question_type"`
	QuestionText  string       `json:"question_text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer *string      `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Points        int          `json:"points"`
	OrderNum      int          `json:"order_num"`
}

// Key returns a correct-answer reference for a question literal.
func Key(answer string) *string {
	return &answer
}

// Accepts reports whether answer matches the correct answer exactly. A
// question without a reference, such as a hand-graded essay, accepts nothing.
func (q *Question) Accepts(answer string) bool {
	return q.CorrectAnswer != nil && *q.CorrectAnswer == answer
}
