package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is returned when a transcoder cannot be launched.
	ErrSpawn = errors.New("transcoder spawn failed")
	// ErrSourceUnavailable is returned when a source cannot be resolved.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrClientGone is returned when writing to the client sink fails.
	ErrClientGone = errors.New("client gone")
	// ErrAbnormalTermination marks a transcoder that died or was killed.
	ErrAbnormalTermination = errors.New("transcoder terminated abnormally")
	// ErrSourceExhaustedFatal is returned when restarts run out.
	ErrSourceExhaustedFatal = errors.New("source failed permanently")

	// ErrSessionNotFound is returned when a relay session is not found.
	ErrSessionNotFound = errors.New("relay session not found")
	// ErrSessionAttached is returned when a sink is attached twice.
	ErrSessionAttached = errors.New("relay session already attached")
	// ErrSessionClosed is returned when trying to use a closed session.
	ErrSessionClosed = errors.New("relay session closed")
	// ErrTooManySessions is returned when max_sessions is reached.
	ErrTooManySessions = errors.New("too many relay sessions")
	// ErrManagerClosed is returned after shutdown has begun.
	ErrManagerClosed = errors.New("relay manager closed")
	// ErrNoSource is returned when a session is opened without a source.
	ErrNoSource = errors.New("no source configured")
)

// ExitError describes how a transcoder ended when it did not end cleanly.
type ExitError struct {
	PID    int
	Code   int
	Killed bool
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("transcoder pid %d", e.PID)
	switch {
	case e.Killed:
		msg += " was terminated"
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	default:
		msg += fmt.Sprintf(" exited with status %d", e.Code)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap lets errors.Is match ErrAbnormalTermination.
func (e *ExitError) Unwrap() error {
	return ErrAbnormalTermination
}
