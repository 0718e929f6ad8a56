package websocket

import (
	"encoding/json"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave     Action = "autosave"
	ActionSubmit       Action = "submit"
	ActionTabSwitch    Action = "tab_switch"
	ActionWebcamStatus Action = "webcam_status"
	ActionPing         Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// SubmitRequest finishes the attempt. Answers, keyed by question ID, are
// written as final submissions first.
type SubmitRequest struct {
	Action  Action            `json:"action"`
	Answers map[string]string `json:"answers,omitempty"`
}

// WebcamStatusRequest reports the camera state.
type WebcamStatusRequest struct {
	Action  Action `json:"action"`
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventProctor   Event = "proctor"
	EventPong      Event = "pong"
)

// Autosave statuses.
const (
	StatusSaved   = "saved"
	StatusDropped = "dropped"
)

type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
	QID    string `json:"q_id"`
	Late   bool   `json:"late,omitempty"`
}

type SubmittedResponse struct {
	Event            Event  `json:"event"`
	AttemptID        string `json:"attempt_id"`
	AlreadyFinalized bool   `json:"already_finalized"`
	Late             bool   `json:"late"`
}

type ProctorResponse struct {
	Event                Event `json:"event"`
	TabSwitchCount       int   `json:"tab_switch_count"`
	WebcamViolationCount int   `json:"webcam_violation_count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
