package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when a stream cannot take a message: it is
	// closed, not yet bound to an engine, busy past the caller's deadline, or
	// its outbox is full.
	ErrUnavailable = errors.New("transport unavailable")

	// ErrInvalidMessage is returned for a message body that is not JSON.
	ErrInvalidMessage = errors.New("invalid message")
)

// HandlerError wraps a failure raised while the engine processed a message
// or while its reply was encoded. A recovered panic is reported the same way.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error: %v", e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
