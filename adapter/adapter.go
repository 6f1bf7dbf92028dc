// Package adapter defines the notification boundary for finished chat turns.
//
// Adapters publish turn completion events to downstream systems (analytics,
// support tooling). The CLI owns adapter lifecycle; users provide
// configuration only. Publishing is best-effort and never affects the
// conversation itself.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeTurnCompleted is the event_type of every TurnCompletedEvent.
const EventTypeTurnCompleted = "turn_completed"

// TurnCompletedEvent is the payload published when a streamed turn ends.
type TurnCompletedEvent struct {
	EventType      string   `json:"event_type"` // always "turn_completed"
	ClientVersion  string   `json:"client_version"`
	SessionID      string   `json:"session_id"`
	ConversationID string   `json:"conversation_id"`
	MessageID      string   `json:"message_id,omitempty"` // empty when the placeholder was dropped
	Outcome        string   `json:"outcome"`              // done, error, canceled, timeout
	Reason         string   `json:"reason,omitempty"`
	Tools          []string `json:"tools"`
	ArtifactKinds  []string `json:"artifact_kinds"`
	FrameCount     int      `json:"frame_count"`
	ContentLength  int      `json:"content_length"`
	Timestamp      string   `json:"timestamp"` // RFC 3339
	DurationMs     int64    `json:"duration_ms"`
}

// Adapter publishes turn completion events to a downstream system.
type Adapter interface {
	// Publish sends a turn completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TurnCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; each further retry doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry attempt i (i >= 1).
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// Permanent marks an error as non-retriable for Retry.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }

func (e *Permanent) Unwrap() error { return e.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when fn succeeds, when fn returns a *Permanent
// error, or when ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Multi fans an event out to several adapters. Every adapter is tried;
// errors are joined.
type Multi []Adapter

// Publish publishes to every adapter in order.
func (m Multi) Publish(ctx context.Context, event *TurnCompletedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Verify Multi implements Adapter.
var _ Adapter = Multi(nil)
