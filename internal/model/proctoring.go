package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctoringSignal is the metadata of one captured webcam frame. The payload
// itself lives in the frame store; PayloadRef points at it.
type ProctoringSignal struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	PayloadRef string    `json:"payload_ref"`
	CapturedAt time.Time `json:"captured_at"`
	Flagged    bool      `json:"flagged"`
	FlagReason *string   `json:"flag_reason,omitempty"`
}

// ProctoringEventKind enumerates the integrity events fanned out to monitors
// and the audit log.
type ProctoringEventKind string

const (
	EventTabSwitch     ProctoringEventKind = "tab_switch"
	EventWebcamStatus  ProctoringEventKind = "webcam_status"
	EventWebcamConsent ProctoringEventKind = "webcam_consent"
	EventFrame         ProctoringEventKind = "frame"
)

// ProctoringEvent is an append-only audit entry describing one accepted
// proctoring mutation together with the counters it produced.
type ProctoringEvent struct {
	AttemptID            uuid.UUID           `json:"attempt_id"`
	ExamID               uuid.UUID           `json:"exam_id"`
	UserID               int                 `json:"user_id"`
	Kind                 ProctoringEventKind `json:"kind"`
	Detail               string              `json:"detail,omitempty"`
	TabSwitchCount       int                 `json:"tab_switch_count"`
	WebcamViolationCount int                 `json:"webcam_violation_count"`
	At                   time.Time           `json:"at"`
}
