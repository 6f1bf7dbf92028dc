package stream

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by StreamError.
var (
	// ErrIdleTimeout is returned when no frame arrives within the idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")
	// ErrIncomplete is returned when the stream ends before a terminal frame.
	ErrIncomplete = errors.New("stream ended without completion")
	// ErrStale is returned when the committer rejects a state because the
	// turn is no longer current.
	ErrStale = errors.New("stream superseded")
)

// StreamErrorKind classifies how a turn failed.
type StreamErrorKind int

const (
	// StreamErrorAgent indicates the agent sent an error frame.
	StreamErrorAgent StreamErrorKind = iota
	// StreamErrorTransport indicates a read, decode, or premature EOF failure.
	StreamErrorTransport
	// StreamErrorTimeout indicates the idle timeout fired.
	StreamErrorTimeout
	// StreamErrorCanceled indicates context cancellation or a superseded turn.
	StreamErrorCanceled
)

// StreamError is returned by Engine.Run for every non-done ending.
type StreamError struct {
	Kind StreamErrorKind
	// Reason is the user-facing reason ("timeout", the agent's message, ...).
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *StreamError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Reason {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func kindOf(err error) (StreamErrorKind, bool) {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Kind, true
	}
	return 0, false
}

// IsCanceledError returns true if the turn was canceled or superseded.
func IsCanceledError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == StreamErrorCanceled
}

// IsTimeoutError returns true if the turn hit the idle timeout.
func IsTimeoutError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == StreamErrorTimeout
}

// IsAgentError returns true if the agent ended the turn with an error frame.
func IsAgentError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == StreamErrorAgent
}

// IsTransportError returns true for read, decode, or truncation failures.
func IsTransportError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == StreamErrorTransport
}
