// Package agent is the client boundary to the backend shopping agent.
//
// The store talks to the backend only through Client. HTTPClient speaks
// the agent's REST + streaming endpoints; ReplayClient serves a recorded
// frame file for offline debugging.
package agent

import (
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// Client is the backend agent endpoint.
type Client interface {
	// Bootstrap fetches the caller's active conversation, creating one when
	// none exists.
	Bootstrap(ctx context.Context) (*types.ConversationRecord, error)

	// CreateConversation starts a fresh, empty conversation.
	CreateConversation(ctx context.Context) (*types.ConversationRecord, error)

	// Send posts text and waits for the complete assistant reply.
	Send(ctx context.Context, conversationID, text string) (*types.MessageRecord, error)

	// SendStream posts text and returns the reply as a frame stream.
	// The caller must Close the stream. Canceling ctx aborts the
	// underlying transport.
	SendStream(ctx context.Context, conversationID, text string) (*Stream, error)
}

// Stream is an open streamed reply.
type Stream struct {
	transport.FrameReader
	closer io.Closer
	format transport.Format
}

// NewStream wraps a frame reader and the resource backing it.
func NewStream(r transport.FrameReader, c io.Closer, format transport.Format) *Stream {
	return &Stream{FrameReader: r, closer: c, format: format}
}

// Format returns the wire framing of the stream.
func (s *Stream) Format() transport.Format {
	return s.format
}

// Close releases the underlying transport. Closing unblocks a pending
// ReadFrame.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	// Body is a short excerpt of the response body, if any.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// IsUnauthorized returns true for 401 and 403 responses.
func (e *StatusError) IsUnauthorized() bool {
	return e.Code == 401 || e.Code == 403
}

// sendRequest is the JSON body of both send endpoints.
type sendRequest struct {
	Content string `json:"content"`
}
