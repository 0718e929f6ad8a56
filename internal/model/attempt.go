package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle states of an exam attempt.
type AttemptState string

const (
	AttemptStateNotStarted AttemptState = "NOT_STARTED"
	AttemptStateInProgress AttemptState = "IN_PROGRESS"
	AttemptStateCompleted  AttemptState = "COMPLETED"
)

// ExamAttempt is one user's single attempt at one exam.
type ExamAttempt struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               int        `json:"user_id"`
	ExamID               uuid.UUID  `json:"exam_id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Completed            bool       `json:"completed"`
	TabSwitchCount       int        `json:"tab_switch_count"`
	WebcamEnabled        bool       `json:"webcam_enabled"`
	WebcamConsentGiven   bool       `json:"webcam_consent_given"`
	WebcamStatusMessage  string     `json:"webcam_status_message,omitempty"`
	WebcamViolationCount int        `json:"webcam_violation_count"`
}

// State maps the completion flag onto the lifecycle state.
func (a *ExamAttempt) State() AttemptState {
	if a == nil {
		return AttemptStateNotStarted
	}
	if a.Completed {
		return AttemptStateCompleted
	}
	return AttemptStateInProgress
}

// Deadline is start_time + exam duration.
func (a *ExamAttempt) Deadline(duration time.Duration) time.Time {
	return a.StartTime.Add(duration)
}

// IsLate reports whether a finalized attempt ended after its deadline.
// Lateness is never stored; callers derive it from end_time.
func (a *ExamAttempt) IsLate(duration time.Duration) bool {
	if a.EndTime == nil {
		return false
	}
	return a.EndTime.After(a.Deadline(duration))
}

// AnswerRecord is the latest answer a user gave to one question of one exam.
type AnswerRecord struct {
	UserID     int       `json:"user_id"`
	QuestionID uuid.UUID `json:"question_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}
