package session

import (
	"errors"
	"fmt"
)

// ErrNotRegistered is returned when sending to a session that has been unregistered.
var ErrNotRegistered = errors.New("session not registered")

// ErrRegistryClosed is returned by Register once the registry has shut down.
var ErrRegistryClosed = errors.New("session registry closed")

// TransportError reports a failure to deliver a frame to one session.
type TransportError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
