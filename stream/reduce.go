// Package stream folds a streamed agent response into turn state.
//
// Reduce is a pure function over (state, frame); the Engine drives it from
// a transport.FrameReader, applies the idle timeout, and hands every new
// state to a Committer. Frames are applied strictly in arrival order and
// the first terminal frame wins: anything after done or error is ignored.
package stream

import (
	"github.com/pithecene-io/concierge/reconcile"
	"github.com/pithecene-io/concierge/types"
)

// Outcome is how a turn ended.
type Outcome string

// Outcomes.
const (
	OutcomePending  Outcome = ""
	OutcomeDone     Outcome = "done"
	OutcomeError    Outcome = "error"
	OutcomeCanceled Outcome = "canceled"
	OutcomeTimeout  Outcome = "timeout"
)

// TurnState is the in-flight state of one streamed assistant turn.
// Values are treated as immutable: Reduce returns a new state and never
// mutates slices reachable from its input.
type TurnState struct {
	// Placeholder is the assistant message being built.
	Placeholder types.Message
	// StreamingStatus is the latest status text, nil when none.
	StreamingStatus *string
	// CurrentToolCall is the human label of the running tool, nil when idle.
	CurrentToolCall *string
	// Outcome is OutcomePending until a terminal frame arrives.
	Outcome Outcome
	// Reason carries the error frame's reason.
	Reason string
	// Tools lists tool names in the order their results arrived.
	Tools []string
	// Frames counts frames applied, terminal included.
	Frames int
}

// NewTurnState starts a turn around an empty placeholder.
func NewTurnState(placeholder types.Message) TurnState {
	return TurnState{Placeholder: placeholder}
}

// Terminal reports whether a terminal frame has been applied.
func (s TurnState) Terminal() bool {
	return s.Outcome != OutcomePending
}

// KeepPlaceholder reports whether the final message should stay in the
// conversation. An assistant message with no content and no artifacts
// is dropped rather than finalized.
func (s TurnState) KeepPlaceholder() bool {
	return !s.Placeholder.IsPlaceholder()
}

// Reduce applies one frame. Frames arriving after a terminal frame, and
// frames of unknown kind, return s unchanged.
func Reduce(s TurnState, f types.Frame) TurnState {
	if s.Terminal() || !f.Kind.IsKnown() {
		return s
	}
	s.Frames++

	switch f.Kind {
	case types.FrameStatus:
		text := f.Text
		s.StreamingStatus = &text

	case types.FrameToolCallStart:
		label := HumanLabel(f.ToolName)
		s.CurrentToolCall = &label

	case types.FrameToolCallResult:
		s.Placeholder = reconcile.AppendArtifact(s.Placeholder, types.Artifact{
			ToolName: f.ToolName,
			Payload:  f.Data,
		})
		tools := make([]string, len(s.Tools), len(s.Tools)+1)
		copy(tools, s.Tools)
		s.Tools = append(tools, f.ToolName)
		s.CurrentToolCall = nil

	case types.FrameTextDelta:
		s.Placeholder = reconcile.AppendDelta(s.Placeholder, f.Text)

	case types.FrameDone:
		if f.MessageID != "" {
			s.Placeholder.ID = f.MessageID
		}
		s = s.finish(OutcomeDone, "")

	case types.FrameError:
		reason := f.Error
		if reason == "" {
			reason = "agent error"
		}
		s = s.finish(OutcomeError, reason)
	}
	return s
}

// Fail ends a turn that stopped without a terminal frame. A state that is
// already terminal is returned unchanged.
func Fail(s TurnState, outcome Outcome, reason string) TurnState {
	if s.Terminal() {
		return s
	}
	return s.finish(outcome, reason)
}

func (s TurnState) finish(outcome Outcome, reason string) TurnState {
	s.Outcome = outcome
	s.Reason = reason
	s.StreamingStatus = nil
	s.CurrentToolCall = nil
	return s
}
