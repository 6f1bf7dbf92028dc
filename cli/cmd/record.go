package cmd

import (
	"context"
	"sync"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// recordingClient copies every streamed frame to a writer, producing a
// file that `concierge replay` can fold back through the store.
type recordingClient struct {
	agent.Client

	mu  sync.Mutex
	w   transport.FrameWriter
	err error // first write failure
}

func newRecordingClient(c agent.Client, w transport.FrameWriter) *recordingClient {
	return &recordingClient{Client: c, w: w}
}

// SendStream wraps the reply so frames are recorded as they are read.
func (c *recordingClient) SendStream(ctx context.Context, conversationID, text string) (*agent.Stream, error) {
	s, err := c.Client.SendStream(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	return agent.NewStream(&teeReader{src: s, rec: c}, s, s.Format()), nil
}

func (c *recordingClient) record(f *types.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = c.w.WriteFrame(f)
}

// Err returns the first recording failure.
func (c *recordingClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

type teeReader struct {
	src transport.FrameReader
	rec *recordingClient
}

func (t *teeReader) ReadFrame() (*types.Frame, error) {
	f, err := t.src.ReadFrame()
	if err == nil && f != nil {
		t.rec.record(f)
	}
	return f, err
}
