// Package deadline computes exam availability windows and attempt deadlines.
// Everything here is a pure function of its arguments.
package deadline

import (
	"time"

	"github.com/stemsi/proctorexam/internal/model"
)

// Window is the scheduled availability of an exam: [Opens, Closes).
type Window struct {
	Opens  time.Time `json:"opens"`
	Closes time.Time `json:"closes"`
}

// WindowOf returns the availability window of an exam.
func WindowOf(exam *model.ExamDefinition) Window {
	return Window{
		Opens:  exam.ScheduledStart,
		Closes: exam.ScheduledStart.Add(exam.Duration()),
	}
}

// Status classifies now against the exam window.
func Status(exam *model.ExamDefinition, now time.Time) model.ExamStatus {
	w := WindowOf(exam)
	switch {
	case now.Before(w.Opens):
		return model.ExamStatusUpcoming
	case now.Before(w.Closes):
		return model.ExamStatusActive
	default:
		return model.ExamStatusExpired
	}
}

// AttemptDeadline is start + duration.
func AttemptDeadline(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Passed reports whether now is strictly after the attempt deadline.
func Passed(start time.Time, durationMinutes int, now time.Time) bool {
	return now.After(AttemptDeadline(start, durationMinutes))
}

// Remaining returns the time left before the attempt deadline, never negative.
func Remaining(start time.Time, durationMinutes int, now time.Time) time.Duration {
	left := AttemptDeadline(start, durationMinutes).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
