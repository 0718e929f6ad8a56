package service

import "errors"

// Lifecycle errors. All of them are expected outcomes the caller can act on.
var (
	ErrNotYetAvailable     = errors.New("exam has not started yet")
	ErrAlreadyCompleted    = errors.New("exam attempt already completed")
	ErrAttemptCompleted    = errors.New("attempt is completed")
	ErrDeadlineExceeded    = errors.New("attempt deadline exceeded")
	ErrQuestionNotInExam   = errors.New("question does not belong to this exam")
	ErrAnswerTooLong       = errors.New("answer exceeds the maximum length")
	ErrAttemptNotFinalized = errors.New("attempt is not finalized")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrExamNotFound        = errors.New("exam not found")
	ErrNoActiveAttempt     = errors.New("no active attempt for this exam")
)

// Frame payload errors.
var (
	ErrUnsupportedFrameType = errors.New("unsupported frame type")
	ErrFrameTooLarge        = errors.New("frame too large")
	ErrEmptyFrame           = errors.New("empty frame")
)

// errConcurrentCreateLost is returned by the store when another request
// created the attempt first. StartOrResume recovers from it by re-reading.
var errConcurrentCreateLost = errors.New("concurrent attempt create lost")
