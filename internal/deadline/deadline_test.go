package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/proctorexam/internal/model"
)

func TestStatus(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	exam := &model.ExamDefinition{ScheduledStart: t0, DurationMinutes: 30}

	testCases := []struct {
		name string
		now  time.Time
		want model.ExamStatus
	}{
		{name: "one minute before start", now: t0.Add(-time.Minute), want: model.ExamStatusUpcoming},
		{name: "exactly at start", now: t0, want: model.ExamStatusActive},
		{name: "inside window", now: t0.Add(29 * time.Minute), want: model.ExamStatusActive},
		{name: "exactly at close", now: t0.Add(30 * time.Minute), want: model.ExamStatusExpired},
		{name: "long after", now: t0.Add(24 * time.Hour), want: model.ExamStatusExpired},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(exam, tc.now))
		})
	}
}

func TestWindowOf(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	w := WindowOf(&model.ExamDefinition{ScheduledStart: t0, DurationMinutes: 90})
	assert.Equal(t, t0, w.Opens)
	assert.Equal(t, t0.Add(90*time.Minute), w.Closes)
}

func TestPassedAndRemaining(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)

	assert.False(t, Passed(start, 30, start.Add(30*time.Minute)), "deadline itself is not past")
	assert.True(t, Passed(start, 30, start.Add(30*time.Minute+time.Second)))

	assert.Equal(t, 10*time.Minute, Remaining(start, 30, start.Add(20*time.Minute)))
	assert.Equal(t, time.Duration(0), Remaining(start, 30, start.Add(time.Hour)))
}
