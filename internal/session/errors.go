package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for an id that is not registered.
	ErrNotFound = errors.New("session not found")

	// ErrRegistryClosed is wrapped in an AttachmentError when Create is
	// called after Shutdown.
	ErrRegistryClosed = errors.New("session registry closed")
)

// AttachmentError reports that a new transport could not be bound to the
// engine. Nothing is registered when it is returned.
type AttachmentError struct {
	SessionID string
	Err       error
}

func (e *AttachmentError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("attach session: %v", e.Err)
	}
	return fmt.Sprintf("attach session %s: %v", e.SessionID, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}
