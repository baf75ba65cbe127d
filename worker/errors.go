package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted indicates Backend.Start was called twice.
	ErrAlreadyStarted = errors.New("backend already started")

	// ErrNotReady indicates a frontend was used before its backend announced
	// readiness.
	ErrNotReady = errors.New("frontend not ready")

	// ErrRuntimeClosed indicates the runtime was closed.
	ErrRuntimeClosed = errors.New("runtime closed")

	// ErrPortClosed indicates a post on a closed port.
	ErrPortClosed = errors.New("port closed")

	// ErrNoPort indicates the runtime has no attached port to send through.
	ErrNoPort = errors.New("runtime has no attached port")

	// ErrUnknownAction indicates a handler received an action it does not
	// implement.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownMainWindowFunc indicates CallMainWindow named a function the
	// main runtime never registered.
	ErrUnknownMainWindowFunc = errors.New("unknown main window function")

	// ErrNilHandler indicates CreateBackend was given no handler.
	ErrNilHandler = errors.New("nil action handler")

	// ErrMessageTooLarge indicates an encoded envelope exceeds the frame limit.
	ErrMessageTooLarge = errors.New("encoded message too large")
)

// RemoteError carries an error raised by the other context. The original
// error value does not cross the port, only its text. Name is set for failed
// main window calls, Action for failed channel calls.
type RemoteError struct {
	Action  Action
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("remote %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Action, e.Message)
}
