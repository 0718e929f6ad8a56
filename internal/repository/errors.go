package repository

import "errors"

// Store-level error vocabulary. Anything else returned by a repository is a
// driver or connectivity failure.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("record already exists")
	ErrAttemptClosed = errors.New("attempt is completed")
)
