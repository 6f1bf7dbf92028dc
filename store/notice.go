package store

import (
	"errors"
	"time"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/artifact"
	"github.com/pithecene-io/concierge/stream"
	"github.com/pithecene-io/concierge/types"
)

// Op names the store operation a notice or result belongs to.
type Op string

// Store operations.
const (
	OpInitChat        Op = "init_chat"
	OpSend            Op = "send"
	OpSendStreaming   Op = "send_streaming"
	OpNewConversation Op = "new_conversation"
)

// Notice is a recoverable, user-facing failure (a toast).
type Notice struct {
	Op      Op
	Message string
	Err     error
}

// Notifier receives notices. It is called outside the store lock.
type Notifier func(Notice)

// noticeFor converts an operation failure into its user-facing text.
func noticeFor(op Op, err error) Notice {
	n := Notice{Op: op, Err: err}

	var statusErr *agent.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.IsUnauthorized():
		n.Message = "Your session has expired. Please sign in again."
	case stream.IsTimeoutError(err):
		n.Message = "The assistant stopped responding. Please try again."
	case stream.IsAgentError(err):
		n.Message = "The assistant ran into a problem. Please try again."
	case op == OpInitChat:
		n.Message = "Could not load your conversation."
	case op == OpNewConversation:
		n.Message = "Could not start a new conversation."
	default:
		n.Message = "Your message could not be sent."
	}
	return n
}

// TurnResult describes a finished turn. It is passed to
// Config.OnTurnComplete after every send.
type TurnResult struct {
	Op             Op
	ConversationID string
	// MessageID is the final assistant message id, empty when the
	// placeholder was dropped.
	MessageID     string
	Outcome       stream.Outcome
	Reason        string
	Tools         []string
	ArtifactKinds []artifact.Kind
	Frames        int
	ContentLength int
	StartedAt     time.Time
	Duration      time.Duration
	// Conversation is a copy of the conversation after the turn, nil when
	// the turn was superseded by a new conversation or a reset.
	Conversation *types.Conversation
}
