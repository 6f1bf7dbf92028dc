package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pithecene-io/concierge/log"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// DefaultIdleTimeout is the longest gap allowed between two frames.
const DefaultIdleTimeout = 60 * time.Second

// Committer receives every new turn state, in order. Returning false
// means the turn is no longer current: the engine stops immediately and
// commits nothing further.
type Committer func(TurnState) bool

// Config configures an Engine.
type Config struct {
	// IdleTimeout bounds the wait for each frame. Zero means
	// DefaultIdleTimeout; negative disables the timeout.
	IdleTimeout time.Duration
	Logger      *log.Logger
	Collector   *metrics.Collector
}

// Engine drives Reduce from a frame reader.
//
// Semantics:
//   - Frames are applied in arrival order, one commit per applied frame
//   - First terminal frame wins; the rest of the stream is not read
//   - EOF before a terminal frame fails the turn with ErrIncomplete
//   - Read and decode failures fail the turn (no resync)
//   - No frame within IdleTimeout fails the turn with ErrIdleTimeout
type Engine struct {
	reader    transport.FrameReader
	idle      time.Duration
	logger    *log.Logger
	collector *metrics.Collector
}

// NewEngine creates an engine reading from reader.
func NewEngine(reader transport.FrameReader, cfg Config) *Engine {
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		reader:    reader,
		idle:      idle,
		logger:    logger,
		collector: cfg.Collector,
	}
}

type readResult struct {
	frame *types.Frame
	err   error
}

// Run folds the stream into state and returns the final state.
// Returns:
//   - nil: the agent sent done
//   - *StreamError with Kind=StreamErrorAgent: the agent sent error
//   - *StreamError with Kind=StreamErrorTransport: read/decode failure or EOF
//   - *StreamError with Kind=StreamErrorTimeout: idle timeout
//   - *StreamError with Kind=StreamErrorCanceled: ctx canceled or commit rejected
//
// Every ending except cancellation commits a terminal state, so the
// committer always observes transient flags being cleared.
func (e *Engine) Run(ctx context.Context, state TurnState, commit Committer) (TurnState, error) {
	frames := make(chan readResult)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		for {
			f, err := e.reader.ReadFrame()
			select {
			case frames <- readResult{frame: f, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if e.idle > 0 {
		timer = time.NewTimer(e.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return Fail(state, OutcomeCanceled, ""), &StreamError{
				Kind:   StreamErrorCanceled,
				Reason: "canceled",
				Err:    ctx.Err(),
			}

		case <-idle:
			e.logger.Warn("stream idle timeout", map[string]any{
				"idle_timeout": e.idle.String(),
				"frames":       state.Frames,
			})
			return e.fail(state, commit, &StreamError{
				Kind:   StreamErrorTimeout,
				Reason: string(OutcomeTimeout),
				Err:    ErrIdleTimeout,
			}, OutcomeTimeout)

		case res := <-frames:
			if res.err != nil {
				return e.readFailed(state, commit, res.err)
			}
			if timer != nil {
				timer.Reset(e.idle)
			}

			next := Reduce(state, *res.frame)
			if next.Frames == state.Frames {
				// ignored frame (unknown kind)
				continue
			}
			state = next
			e.collector.IncFrameApplied(string(res.frame.Kind))
			if res.frame.Kind == types.FrameToolCallResult {
				e.collector.IncArtifactAttached()
			}

			if !commit(state) {
				return state, &StreamError{Kind: StreamErrorCanceled, Reason: "canceled", Err: ErrStale}
			}

			switch state.Outcome {
			case OutcomeDone:
				e.logger.Debug("stream done", map[string]any{
					"frames":     state.Frames,
					"message_id": state.Placeholder.ID,
				})
				return state, nil
			case OutcomeError:
				e.logger.Warn("agent error frame", map[string]any{"reason": state.Reason})
				return state, &StreamError{Kind: StreamErrorAgent, Reason: state.Reason}
			}
		}
	}
}

func (e *Engine) readFailed(state TurnState, commit Committer, err error) (TurnState, error) {
	if errors.Is(err, io.EOF) {
		e.logger.Warn("stream ended without terminal frame", map[string]any{"frames": state.Frames})
		return e.fail(state, commit, &StreamError{
			Kind:   StreamErrorTransport,
			Reason: ErrIncomplete.Error(),
			Err:    ErrIncomplete,
		}, OutcomeError)
	}

	reason := "stream interrupted"
	switch {
	case transport.IsDecodeError(err):
		e.collector.IncDecodeErrors()
		reason = "invalid frame"
	case transport.IsFatalFrameError(err):
		reason = "stream corrupted"
	}
	e.logger.Error("frame error", map[string]any{
		"error": err.Error(),
		"fatal": transport.IsFatalFrameError(err),
	})
	return e.fail(state, commit, &StreamError{
		Kind:   StreamErrorTransport,
		Reason: reason,
		Err:    err,
	}, OutcomeError)
}

// fail commits a terminal state for a turn that ended abnormally.
func (e *Engine) fail(state TurnState, commit Committer, err *StreamError, outcome Outcome) (TurnState, error) {
	state = Fail(state, outcome, err.Reason)
	if !commit(state) {
		return state, &StreamError{Kind: StreamErrorCanceled, Reason: "canceled", Err: ErrStale}
	}
	return state, err
}
