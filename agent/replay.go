package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/concierge/iox"
	"github.com/pithecene-io/concierge/reconcile"
	"github.com/pithecene-io/concierge/stream"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// ReplayClient serves a recorded frame file as the agent's reply to every
// message. Conversations are local and start empty.
type ReplayClient struct {
	path   string
	format transport.Format

	mu             sync.Mutex
	conversationID string
}

// NewReplayClient creates a client replaying the frames in path.
// An empty format is inferred from the file extension: .msgpack / .mp
// select msgpack, .sse selects sse, anything else jsonl.
func NewReplayClient(path string, format transport.Format) (*ReplayClient, error) {
	if path == "" {
		return nil, errors.New("replay client requires a frame file")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if format == "" {
		format = FormatFromPath(path)
	}
	return &ReplayClient{path: path, format: format}, nil
}

// FormatFromPath infers a recording format from a file extension.
func FormatFromPath(path string) transport.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return transport.FormatMsgpack
	case ".sse":
		return transport.FormatSSE
	default:
		return transport.FormatJSONL
	}
}

// Bootstrap returns the current local conversation, creating one on first use.
func (c *ReplayClient) Bootstrap(_ context.Context) (*types.ConversationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conversationID == "" {
		c.conversationID = "replay-" + uuid.NewString()
	}
	return &types.ConversationRecord{ID: c.conversationID, Messages: []types.MessageRecord{}}, nil
}

// CreateConversation starts a new local conversation.
func (c *ReplayClient) CreateConversation(_ context.Context) (*types.ConversationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationID = "replay-" + uuid.NewString()
	return &types.ConversationRecord{ID: c.conversationID, Messages: []types.MessageRecord{}}, nil
}

// Send folds the whole recording into a single reply record.
func (c *ReplayClient) Send(ctx context.Context, conversationID, text string) (*types.MessageRecord, error) {
	s, err := c.SendStream(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(s)

	state := stream.NewTurnState(reconcile.New().NewPlaceholder())
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		state = stream.Reduce(state, *f)
	}
	if state.Outcome == stream.OutcomeError {
		return nil, fmt.Errorf("replay: agent error: %s", state.Reason)
	}
	rec := reconcile.ToRecord(state.Placeholder)
	return &rec, nil
}

// SendStream opens the recording as a frame stream.
func (c *ReplayClient) SendStream(_ context.Context, _, _ string) (*Stream, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return NewStream(transport.NewFormatReader(c.format, f), f, c.format), nil
}

// Verify ReplayClient implements Client.
var _ Client = (*ReplayClient)(nil)
