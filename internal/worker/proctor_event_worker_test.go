package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/proctorexam/internal/model"
)

type fakeEventWriter struct {
	mu        sync.Mutex
	bulkErr   error
	insertErr func(*model.ProctoringEvent) error
	bulk      [][]*model.ProctoringEvent
	rows      []*model.ProctoringEvent
}

func (f *fakeEventWriter) BulkInsert(_ context.Context, events []*model.ProctoringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulk = append(f.bulk, append([]*model.ProctoringEvent(nil), events...))
	return nil
}

func (f *fakeEventWriter) Insert(_ context.Context, e *model.ProctoringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		if err := f.insertErr(e); err != nil {
			return err
		}
	}
	f.rows = append(f.rows, e)
	return nil
}

func sampleEvents(n int) []*model.ProctoringEvent {
	out := make([]*model.ProctoringEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &model.ProctoringEvent{
			AttemptID: uuid.New(),
			ExamID:    uuid.New(),
			UserID:    i,
			Kind:      model.EventTabSwitch,
			At:        time.Date(2026, 3, 2, 9, 0, i, 0, time.UTC),
		})
	}
	return out
}

func TestDecodeEvent(t *testing.T) {
	attemptID := uuid.New()
	ev, err := decodeEvent(`{"attempt_id":"` + attemptID.String() + `","kind":"frame","user_id":7,"at":"2026-03-02T09:00:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, attemptID, ev.AttemptID)
	assert.Equal(t, model.EventFrame, ev.Kind)
	assert.Equal(t, 7, ev.UserID)

	_, err = decodeEvent(`{not json`)
	assert.Error(t, err)

	_, err = decodeEvent(`{"kind":"frame"}`)
	assert.Error(t, err)
}

func TestFlushSafe_BulkPath(t *testing.T) {
	writer := &fakeEventWriter{}
	w := NewProctorEventWorker(writer, nil, zerolog.Nop())

	w.flushSafe(context.Background(), sampleEvents(3))

	require.Len(t, writer.bulk, 1)
	assert.Len(t, writer.bulk[0], 3)
	assert.Empty(t, writer.rows)
}

func TestFlushSafe_FallsBackToRowInserts(t *testing.T) {
	writer := &fakeEventWriter{bulkErr: errors.New("copy failed")}
	w := NewProctorEventWorker(writer, nil, zerolog.Nop())

	w.flushSafe(context.Background(), sampleEvents(4))

	assert.Empty(t, writer.bulk)
	assert.Len(t, writer.rows, 4)
}

func TestPause_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	pause(ctx, time.Minute)

	assert.Less(t, time.Since(start), time.Second)
}

func TestPause_WaitsForDuration(t *testing.T) {
	start := time.Now()
	pause(context.Background(), 20*time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
