package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/model"
)

// ProctorService folds integrity signals into per-attempt counters. Each
// operation is a single store write on fields answer submission never
// touches, so it neither waits for nor delays autosaves.
type ProctorService struct {
	store  AttemptStore
	frames FrameStore
	sink   EventSink
	audit  EventLog
	log    zerolog.Logger
}

// NewProctorService creates a new ProctorService. A nil sink discards events.
func NewProctorService(store AttemptStore, frames FrameStore, sink EventSink, log zerolog.Logger) *ProctorService {
	if sink == nil {
		sink = nopSink{}
	}
	return &ProctorService{
		store:  store,
		frames: frames,
		sink:   sink,
		log:    log.With().Str("component", "proctor_service").Logger(),
	}
}

// WithAuditLog attaches the store the event worker persists into, enabling
// ListEvents.
func (s *ProctorService) WithAuditLog(audit EventLog) *ProctorService {
	s.audit = audit
	return s
}

// MaxWebcamMessageRunes is the stored width of a webcam status message.
// Longer messages are cut after the violation check.
const MaxWebcamMessageRunes = 255

func clampRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// IsAccessDenied reports whether a webcam status message says the browser
// refused camera access.
func IsAccessDenied(message string) bool {
	return strings.Contains(strings.ToLower(message), "denied")
}

// RecordTabSwitch adds one to the attempt's tab switch counter.
func (s *ProctorService) RecordTabSwitch(ctx context.Context, userID int, attemptID uuid.UUID, now time.Time) (*model.ExamAttempt, error) {
	if _, err := openOwnedAttempt(ctx, s.store, userID, attemptID); err != nil {
		return nil, err
	}
	a, err := s.store.IncrementTabSwitch(ctx, attemptID)
	if err != nil {
		return nil, storeError(err, "increment tab switch")
	}
	s.emit(ctx, a, model.EventTabSwitch, "", now)
	return a, nil
}

// UpdateWebcamStatus stores the camera state. A disabled camera whose message
// reports denied access counts as one violation.
func (s *ProctorService) UpdateWebcamStatus(ctx context.Context, userID int, attemptID uuid.UUID, enabled bool, message string, now time.Time) (*model.ExamAttempt, error) {
	if _, err := openOwnedAttempt(ctx, s.store, userID, attemptID); err != nil {
		return nil, err
	}
	violation := !enabled && IsAccessDenied(message)
	a, err := s.store.UpdateWebcamStatus(ctx, attemptID, enabled, clampRunes(message, MaxWebcamMessageRunes), violation)
	if err != nil {
		return nil, storeError(err, "update webcam status")
	}
	if violation {
		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Int("violations", a.WebcamViolationCount).
			Msg("Webcam access denied")
	}
	s.emit(ctx, a, model.EventWebcamStatus, message, now)
	return a, nil
}

// RecordWebcamConsent sets the consent flag. Consent can be withdrawn.
func (s *ProctorService) RecordWebcamConsent(ctx context.Context, userID int, attemptID uuid.UUID, consent bool, now time.Time) (*model.ExamAttempt, error) {
	if _, err := openOwnedAttempt(ctx, s.store, userID, attemptID); err != nil {
		return nil, err
	}
	a, err := s.store.SetWebcamConsent(ctx, attemptID, consent)
	if err != nil {
		return nil, storeError(err, "set webcam consent")
	}
	detail := "withdrawn"
	if consent {
		detail = "given"
	}
	s.emit(ctx, a, model.EventWebcamConsent, detail, now)
	return a, nil
}

// IngestFrame appends frame metadata for a payload already stored under
// payloadRef. Flagging is left to a later analyzer.
func (s *ProctorService) IngestFrame(ctx context.Context, userID int, attemptID uuid.UUID, payloadRef string, now time.Time) (*model.ProctoringSignal, error) {
	a, err := openOwnedAttempt(ctx, s.store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.insertSignal(ctx, a, payloadRef, now)
}

// CaptureFrame stores a raw frame and records it against the attempt.
func (s *ProctorService) CaptureFrame(ctx context.Context, userID int, attemptID uuid.UUID, payload []byte, contentType string, now time.Time) (*model.ProctoringSignal, error) {
	a, err := openOwnedAttempt(ctx, s.store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	ref, err := s.frames.Save(ctx, payload, contentType)
	if err != nil {
		return nil, fmt.Errorf("save frame: %w", err)
	}
	return s.insertSignal(ctx, a, ref, now)
}

func (s *ProctorService) insertSignal(ctx context.Context, a *model.ExamAttempt, ref string, now time.Time) (*model.ProctoringSignal, error) {
	sig := &model.ProctoringSignal{
		ID:         uuid.New(),
		AttemptID:  a.ID,
		PayloadRef: ref,
		CapturedAt: now,
	}
	if err := s.store.InsertSignal(ctx, sig); err != nil {
		return nil, storeError(err, "insert signal")
	}
	s.emit(ctx, a, model.EventFrame, ref, now)
	return sig, nil
}

// ListSignals returns the frame metadata of an attempt for staff review.
func (s *ProctorService) ListSignals(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringSignal, error) {
	if _, err := s.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, storeError(err, "get attempt")
	}
	signals, err := s.store.ListSignals(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	return signals, nil
}

// ListEvents returns the persisted audit trail of an attempt. Events reach the
// log asynchronously, so the newest ones may be missing for a short while.
func (s *ProctorService) ListEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error) {
	if _, err := s.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, storeError(err, "get attempt")
	}
	if s.audit == nil {
		return []model.ProctoringEvent{}, nil
	}
	events, err := s.audit.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.ProctoringEvent{}
	}
	return events, nil
}

func (s *ProctorService) emit(ctx context.Context, a *model.ExamAttempt, kind model.ProctoringEventKind, detail string, now time.Time) {
	ev := &model.ProctoringEvent{
		AttemptID:            a.ID,
		ExamID:               a.ExamID,
		UserID:               a.UserID,
		Kind:                 kind,
		Detail:               detail,
		TabSwitchCount:       a.TabSwitchCount,
		WebcamViolationCount: a.WebcamViolationCount,
		At:                   now,
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.log.Warn().
			Err(err).
			Str("attempt_id", a.ID.String()).
			Str("kind", string(kind)).
			Msg("Failed to publish proctoring event")
	}
}

func openOwnedAttempt(ctx context.Context, store AttemptStore, userID int, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	a, err := ownedAttempt(ctx, store, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Completed {
		return nil, ErrAttemptCompleted
	}
	return a, nil
}
