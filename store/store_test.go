package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/artifact"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/stream"
	"github.com/pithecene-io/concierge/transport"
	"github.com/pithecene-io/concierge/types"
)

// pipe is a frame stream fed by the test.
type pipe struct {
	frames chan types.Frame
	closed chan struct{}
	once   sync.Once
}

func newPipe(frames ...types.Frame) *pipe {
	p := &pipe{frames: make(chan types.Frame, 32), closed: make(chan struct{})}
	p.send(frames...)
	return p
}

func (p *pipe) send(frames ...types.Frame) {
	for _, f := range frames {
		p.frames <- f
	}
}

// end makes ReadFrame return io.EOF once buffered frames are consumed.
func (p *pipe) end() { close(p.frames) }

func (p *pipe) ReadFrame() (*types.Frame, error) {
	select {
	case f, ok := <-p.frames:
		if !ok {
			return nil, io.EOF
		}
		return &f, nil
	case <-p.closed:
		return nil, io.ErrClosedPipe
	}
}

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipe) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// fakeClient is an agent.Client backed by test hooks.
type fakeClient struct {
	bootstrapCalls atomic.Int32
	streamCalls    atomic.Int32

	bootstrap func(context.Context) (*types.ConversationRecord, error)
	create    func(context.Context) (*types.ConversationRecord, error)
	send      func(context.Context, string, string) (*types.MessageRecord, error)
	stream    func(context.Context, string, string) (*agent.Stream, error)
}

func (c *fakeClient) Bootstrap(ctx context.Context) (*types.ConversationRecord, error) {
	c.bootstrapCalls.Add(1)
	if c.bootstrap == nil {
		return &types.ConversationRecord{ID: "conv-1"}, nil
	}
	return c.bootstrap(ctx)
}

func (c *fakeClient) CreateConversation(ctx context.Context) (*types.ConversationRecord, error) {
	if c.create == nil {
		return &types.ConversationRecord{ID: "conv-new"}, nil
	}
	return c.create(ctx)
}

func (c *fakeClient) Send(ctx context.Context, convID, text string) (*types.MessageRecord, error) {
	return c.send(ctx, convID, text)
}

func (c *fakeClient) SendStream(ctx context.Context, convID, text string) (*agent.Stream, error) {
	c.streamCalls.Add(1)
	return c.stream(ctx, convID, text)
}

var _ agent.Client = (*fakeClient)(nil)

// streamOf serves p, signalling started (if non-nil) on each call.
func streamOf(p *pipe, started chan<- struct{}) func(context.Context, string, string) (*agent.Stream, error) {
	return func(context.Context, string, string) (*agent.Stream, error) {
		if started != nil {
			started <- struct{}{}
		}
		return agent.NewStream(p, p, transport.FormatSSE), nil
	}
}

type harness struct {
	store     *Store
	client    *fakeClient
	collector *metrics.Collector

	mu      sync.Mutex
	notices []Notice
	results []TurnResult
}

func newHarness(t *testing.T, client *fakeClient, idle time.Duration) *harness {
	t.Helper()
	h := &harness{client: client, collector: metrics.NewCollector("sse", "memory", "sess-test")}
	s, err := New(Config{
		Client:      client,
		Collector:   h.collector,
		IdleTimeout: idle,
		Notifier: func(n Notice) {
			h.mu.Lock()
			h.notices = append(h.notices, n)
			h.mu.Unlock()
		},
		OnTurnComplete: func(r TurnResult) {
			h.mu.Lock()
			h.results = append(h.results, r)
			h.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.store = s
	return h
}

func (h *harness) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

func (h *harness) lastResult(t *testing.T) TurnResult {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		t.Fatal("no turn result reported")
	}
	return h.results[len(h.results)-1]
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	if err := h.store.InitChat(t.Context()); err != nil {
		t.Fatalf("InitChat failed: %v", err)
	}
}

// sendAsync runs SendMessageStreaming on its own goroutine.
func (h *harness) sendAsync(ctx context.Context, text string, opts SendOptions) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- h.store.SendMessageStreaming(ctx, text, opts) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send to return")
		return nil
	}
}

func waitFor(t *testing.T, s *Store, cond func(Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond(s.Snapshot()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func assertIdle(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.IsLoading || snap.IsInitializing {
		t.Errorf("loading flags still set: loading=%v initializing=%v", snap.IsLoading, snap.IsInitializing)
	}
	if snap.StreamingStatus != nil || snap.CurrentToolCall != nil {
		t.Errorf("transient flags still set: status=%v tool=%v", snap.StreamingStatus, snap.CurrentToolCall)
	}
	if n := snap.Conversation.Placeholders(); n != 0 {
		t.Errorf("%d dangling placeholders", n)
	}
}

func TestNew_RequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestInitChat_LoadsHistoryOnce(t *testing.T) {
	client := &fakeClient{bootstrap: func(context.Context) (*types.ConversationRecord, error) {
		return &types.ConversationRecord{ID: "conv-1", Messages: []types.MessageRecord{
			{ID: "m1", Role: "user", Content: "hi", CreatedAt: "2026-02-07T12:00:00Z"},
			{ID: "m2", Role: "assistant", Content: "hello", CreatedAt: "2026-02-07T12:00:01.250Z"},
			{ID: "m3", Role: "assistant"}, // blank reply, never displayable
		}}, nil
	}}
	h := newHarness(t, client, 0)

	var sawInitializing atomic.Bool
	unsubscribe := h.store.Subscribe(func(s Snapshot) {
		if s.IsInitializing {
			sawInitializing.Store(true)
		}
	})
	defer unsubscribe()

	h.init(t)
	h.init(t)

	if got := client.bootstrapCalls.Load(); got != 1 {
		t.Errorf("bootstrap called %d times, want 1", got)
	}
	if !sawInitializing.Load() {
		t.Error("expected IsInitializing while loading")
	}
	snap := h.store.Snapshot()
	if snap.Conversation.ID != "conv-1" {
		t.Errorf("conversation id = %q", snap.Conversation.ID)
	}
	if len(snap.Conversation.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(snap.Conversation.Messages))
	}
	assertIdle(t, snap)
}

func TestInitChat_FailureNotifiesAndStaysUsable(t *testing.T) {
	client := &fakeClient{bootstrap: func(context.Context) (*types.ConversationRecord, error) {
		return nil, &agent.StatusError{Code: 503}
	}}
	h := newHarness(t, client, 0)

	if err := h.store.InitChat(t.Context()); err == nil {
		t.Fatal("expected InitChat error")
	}
	if h.noticeCount() != 1 {
		t.Fatalf("got %d notices, want 1", h.noticeCount())
	}
	if h.notices[0].Op != OpInitChat || h.notices[0].Message == "" {
		t.Errorf("unexpected notice: %+v", h.notices[0])
	}

	snap := h.store.Snapshot()
	if snap.Conversation == nil || len(snap.Conversation.Messages) != 0 {
		t.Fatalf("expected empty conversation, got %+v", snap.Conversation)
	}
	assertIdle(t, snap)

	if err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions()); !errors.Is(err, ErrNoConversation) {
		t.Errorf("expected ErrNoConversation, got %v", err)
	}

	// No automatic retry, but a manual one works.
	client.bootstrap = nil
	h.init(t)
	if got := h.store.Snapshot().Conversation.ID; got != "conv-1" {
		t.Errorf("conversation id after retry = %q", got)
	}
}

func TestInitChat_Unauthorized(t *testing.T) {
	client := &fakeClient{bootstrap: func(context.Context) (*types.ConversationRecord, error) {
		return nil, &agent.StatusError{Code: 401}
	}}
	h := newHarness(t, client, 0)
	_ = h.store.InitChat(t.Context())

	if h.noticeCount() != 1 || h.notices[0].Message != "Your session has expired. Please sign in again." {
		t.Errorf("unexpected notices: %+v", h.notices)
	}
}

func cerave() []any {
	return []any{
		map[string]any{"id": float64(1), "name": "Cerave Hydrating Cleanser", "brand": "Cerave", "price": 14.99},
		map[string]any{"id": float64(2), "name": "Cerave Foaming Cleanser", "brand": "Cerave", "price": 15.49},
	}
}

func TestSendMessageStreaming_ProductSearch(t *testing.T) {
	p := newPipe(
		types.StatusFrame("Thinking"),
		types.ToolCallStartFrame("search_products"),
		types.ToolCallResultFrame("search_products", cerave()),
		types.TextDeltaFrame("Here are "),
		types.TextDeltaFrame("two Cerave cleansers."),
		types.DoneFrame("msg-99"),
	)
	client := &fakeClient{stream: streamOf(p, nil)}
	h := newHarness(t, client, 0)
	h.init(t)

	var mu sync.Mutex
	var labels, statuses []string
	unsubscribe := h.store.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.CurrentToolCall != nil {
			labels = append(labels, *s.CurrentToolCall)
		}
		if s.StreamingStatus != nil {
			statuses = append(statuses, *s.StreamingStatus)
		}
	})
	defer unsubscribe()

	if err := h.store.SendMessageStreaming(t.Context(), "Find me a Cerave cleanser", DefaultSendOptions()); err != nil {
		t.Fatalf("SendMessageStreaming failed: %v", err)
	}

	snap := h.store.Snapshot()
	assertIdle(t, snap)
	msgs := snap.Conversation.Messages
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Content != "Find me a Cerave cleanser" {
		t.Errorf("user message = %+v", msgs[0])
	}
	reply := msgs[1]
	if reply.ID != "msg-99" || reply.Content != "Here are two Cerave cleansers." {
		t.Errorf("reply = %q %q", reply.ID, reply.Content)
	}
	products := artifact.ExtractProducts(reply.Artifacts)
	if len(products) != 2 || products[0].Name != "Cerave Hydrating Cleanser" {
		t.Fatalf("products = %+v", products)
	}
	if snap.ActiveTurnID != "msg-99" {
		t.Errorf("ActiveTurnID = %q, want msg-99", snap.ActiveTurnID)
	}
	if !p.isClosed() {
		t.Error("stream should be closed after the turn")
	}

	mu.Lock()
	if len(labels) == 0 || labels[0] != "Searching products" {
		t.Errorf("tool labels = %v", labels)
	}
	if len(statuses) == 0 || statuses[0] != "Thinking" {
		t.Errorf("statuses = %v", statuses)
	}
	mu.Unlock()

	r := h.lastResult(t)
	if r.Outcome != stream.OutcomeDone || r.MessageID != "msg-99" || r.Frames != 6 {
		t.Errorf("result = %+v", r)
	}
	if len(r.ArtifactKinds) != 1 || r.ArtifactKinds[0] != artifact.KindProductCarousel {
		t.Errorf("artifact kinds = %v", r.ArtifactKinds)
	}
	if r.Conversation == nil || len(r.Conversation.Messages) != 2 {
		t.Errorf("result conversation = %+v", r.Conversation)
	}

	m := h.collector.Snapshot()
	if m.TurnsStarted != 1 || m.TurnsCompleted != 1 || m.FramesApplied != 6 || m.ArtifactsAttached != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestSendMessageStreaming_SingleActiveStream(t *testing.T) {
	p := newPipe()
	started := make(chan struct{}, 1)
	client := &fakeClient{stream: streamOf(p, started)}
	h := newHarness(t, client, 0)
	h.init(t)

	errc := h.sendAsync(t.Context(), "first", DefaultSendOptions())
	<-started

	if err := h.store.SendMessageStreaming(t.Context(), "second", DefaultSendOptions()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := h.store.SendMessage(t.Context(), "third"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from SendMessage, got %v", err)
	}

	snap := h.store.Snapshot()
	if len(snap.Conversation.Messages) != 2 || snap.Conversation.Placeholders() != 1 {
		t.Fatalf("want one user message and one placeholder, got %+v", snap.Conversation.Messages)
	}
	if !snap.IsLoading {
		t.Error("expected IsLoading while streaming")
	}
	if got := client.streamCalls.Load(); got != 1 {
		t.Errorf("stream opened %d times, want 1", got)
	}

	p.send(types.TextDeltaFrame("Hel"), types.TextDeltaFrame("lo"), types.DoneFrame(""))
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	snap = h.store.Snapshot()
	assertIdle(t, snap)
	if got := snap.Conversation.Messages[1].Content; got != "Hello" {
		t.Errorf("content = %q, want Hello", got)
	}
}

func TestStartNewConversation_CancelsInFlightStream(t *testing.T) {
	p := newPipe()
	started := make(chan struct{}, 1)
	client := &fakeClient{
		stream: streamOf(p, started),
		create: func(context.Context) (*types.ConversationRecord, error) {
			return &types.ConversationRecord{ID: "conv-2"}, nil
		},
	}
	h := newHarness(t, client, 0)
	h.init(t)

	errc := h.sendAsync(t.Context(), "old question", DefaultSendOptions())
	<-started
	p.send(types.StatusFrame("Working"), types.TextDeltaFrame("partial"))
	waitFor(t, h.store, func(s Snapshot) bool {
		return len(s.Conversation.Messages) == 2 && s.Conversation.Messages[1].Content == "partial"
	})

	if err := h.store.StartNewConversation(t.Context()); err != nil {
		t.Fatalf("StartNewConversation failed: %v", err)
	}
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("canceled send should be silent, got %v", err)
	}

	// Leftover frames of the canceled stream must be no-ops.
	p.send(types.TextDeltaFrame(" late"), types.DoneFrame("old-msg"))
	time.Sleep(20 * time.Millisecond)

	snap := h.store.Snapshot()
	if snap.Conversation.ID != "conv-2" || len(snap.Conversation.Messages) != 0 {
		t.Fatalf("new conversation mutated: %+v", snap.Conversation)
	}
	assertIdle(t, snap)
	if snap.ActiveTurnID != "" {
		t.Errorf("ActiveTurnID = %q, want empty", snap.ActiveTurnID)
	}
	if !p.isClosed() {
		t.Error("canceled stream should be closed")
	}
	if h.noticeCount() != 0 {
		t.Errorf("cancellation must not notify, got %+v", h.notices)
	}

	r := h.lastResult(t)
	if r.Outcome != stream.OutcomeCanceled || r.Conversation != nil {
		t.Errorf("result = %+v", r)
	}
	if got := h.collector.Snapshot().TurnsCanceled; got != 1 {
		t.Errorf("TurnsCanceled = %d, want 1", got)
	}

	// The store is usable again.
	p2 := newPipe(types.TextDeltaFrame("fresh"), types.DoneFrame(""))
	client.stream = streamOf(p2, nil)
	if err := h.store.SendMessageStreaming(t.Context(), "new question", DefaultSendOptions()); err != nil {
		t.Fatalf("send after new conversation failed: %v", err)
	}
	if got := h.store.Snapshot().Conversation.Messages; len(got) != 2 || got[1].Content != "fresh" {
		t.Errorf("messages = %+v", got)
	}
}

func TestSendMessageStreaming_ErrorDropsEmptyPlaceholder(t *testing.T) {
	p := newPipe(types.StatusFrame("Searching"), types.ErrorFrame("tool crashed"))
	h := newHarness(t, &fakeClient{stream: streamOf(p, nil)}, 0)
	h.init(t)

	err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions())
	if !stream.IsAgentError(err) {
		t.Fatalf("expected agent error, got %v", err)
	}

	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 1 || snap.Conversation.Messages[0].Role != types.RoleUser {
		t.Fatalf("want only the user message, got %+v", snap.Conversation.Messages)
	}
	if snap.ActiveTurnID != "" {
		t.Errorf("ActiveTurnID should be cleared for a dropped reply, got %q", snap.ActiveTurnID)
	}
	if h.noticeCount() != 1 || h.notices[0].Message != "The assistant ran into a problem. Please try again." {
		t.Errorf("notices = %+v", h.notices)
	}

	m := h.collector.Snapshot()
	if m.TurnsFailed != 1 || m.PlaceholdersDropped != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if r := h.lastResult(t); r.Outcome != stream.OutcomeError || r.Reason != "tool crashed" || r.MessageID != "" {
		t.Errorf("result = %+v", r)
	}
}

func TestSendMessageStreaming_EOFKeepsPartialReply(t *testing.T) {
	p := newPipe(types.TextDeltaFrame("Partial"))
	p.end()
	h := newHarness(t, &fakeClient{stream: streamOf(p, nil)}, 0)
	h.init(t)

	err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions())
	if !errors.Is(err, stream.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}

	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 2 || snap.Conversation.Messages[1].Content != "Partial" {
		t.Fatalf("partial reply not kept: %+v", snap.Conversation.Messages)
	}
}

func TestSendMessageStreaming_IdleTimeout(t *testing.T) {
	p := newPipe()
	h := newHarness(t, &fakeClient{stream: streamOf(p, nil)}, 20*time.Millisecond)
	h.init(t)

	err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions())
	if !stream.IsTimeoutError(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	assertIdle(t, h.store.Snapshot())
	if got := h.collector.Snapshot().TurnsTimedOut; got != 1 {
		t.Errorf("TurnsTimedOut = %d, want 1", got)
	}
	if h.noticeCount() != 1 {
		t.Errorf("expected one notice, got %d", h.noticeCount())
	}
}

func TestSendMessageStreaming_OpenTimeout(t *testing.T) {
	client := &fakeClient{stream: func(ctx context.Context, _, _ string) (*agent.Stream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, client, 50*time.Millisecond)
	h.init(t)

	err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions())
	if !stream.IsTimeoutError(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 1 {
		t.Errorf("expected only the user message, got %+v", snap.Conversation.Messages)
	}
	if got := h.lastResult(t).Outcome; got != stream.OutcomeTimeout {
		t.Errorf("outcome = %s, want timeout", got)
	}
	if h.noticeCount() != 1 {
		t.Errorf("expected one notice, got %d", h.noticeCount())
	}
}

func TestSendMessageStreaming_BackendNeverSendsHeaders(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/active") {
			_, _ = io.WriteString(w, `{"id":"conv-1","messages":[]}`)
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client, err := agent.NewHTTPClient(agent.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	s, err := New(Config{Client: client, IdleTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.InitChat(t.Context()); err != nil {
		t.Fatalf("InitChat failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions()) }()

	if err := waitErr(t, errc); !stream.IsTimeoutError(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	assertIdle(t, s.Snapshot())
}

func TestSendMessageStreaming_CallerCancelIsSilent(t *testing.T) {
	p := newPipe()
	started := make(chan struct{}, 1)
	h := newHarness(t, &fakeClient{stream: streamOf(p, started)}, 0)
	h.init(t)

	ctx, cancel := context.WithCancel(t.Context())
	errc := h.sendAsync(ctx, "hi", DefaultSendOptions())
	<-started
	cancel()

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("expected silent cancellation, got %v", err)
	}
	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 1 {
		t.Errorf("want only the user message, got %+v", snap.Conversation.Messages)
	}
	if h.noticeCount() != 0 {
		t.Errorf("unexpected notices: %+v", h.notices)
	}
}

func TestSendMessageStreaming_OpenFailureKeepsUserMessage(t *testing.T) {
	client := &fakeClient{stream: func(context.Context, string, string) (*agent.Stream, error) {
		return nil, &agent.StatusError{Code: 502, Body: "bad gateway"}
	}}
	h := newHarness(t, client, 0)
	h.init(t)

	err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions())
	var statusErr *agent.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 502 {
		t.Fatalf("expected StatusError 502, got %v", err)
	}

	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 1 || snap.Conversation.Messages[0].Content != "hi" {
		t.Fatalf("user message not kept: %+v", snap.Conversation.Messages)
	}
	if h.noticeCount() != 1 || h.notices[0].Op != OpSendStreaming {
		t.Errorf("notices = %+v", h.notices)
	}
}

func TestSendMessageStreaming_SuppressedInactiveTurn(t *testing.T) {
	p := newPipe(types.ToolCallResultFrame("create_order", map[string]any{"id": "o1"}), types.DoneFrame(""))
	h := newHarness(t, &fakeClient{stream: streamOf(p, nil)}, 0)
	h.init(t)

	opts := SendOptions{SuppressUserMessage: true}
	if err := h.store.SendMessageStreaming(t.Context(), `{"action":"submit_order"}`, opts); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	snap := h.store.Snapshot()
	if len(snap.Conversation.Messages) != 1 || snap.Conversation.Messages[0].Role != types.RoleAssistant {
		t.Fatalf("want only the assistant reply, got %+v", snap.Conversation.Messages)
	}
	if snap.ActiveTurnID != "" {
		t.Errorf("inactive turn must not set ActiveTurnID, got %q", snap.ActiveTurnID)
	}
}

func TestSendMessageStreaming_RejectsEmptyText(t *testing.T) {
	h := newHarness(t, &fakeClient{}, 0)
	h.init(t)
	if err := h.store.SendMessageStreaming(t.Context(), "  ", DefaultSendOptions()); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(h.store.Snapshot().Conversation.Messages) != 0 {
		t.Error("rejected send must not touch the conversation")
	}
}

func TestSendMessage(t *testing.T) {
	client := &fakeClient{send: func(_ context.Context, convID, text string) (*types.MessageRecord, error) {
		if convID != "conv-1" || text != "hi" {
			t.Errorf("Send(%q, %q)", convID, text)
		}
		return &types.MessageRecord{ID: "a1", Role: "assistant", Content: "hello", CreatedAt: "2026-02-07T12:00:00Z"}, nil
	}}
	h := newHarness(t, client, 0)
	h.init(t)

	if err := h.store.SendMessage(t.Context(), "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 2 || snap.Conversation.Messages[1].ID != "a1" {
		t.Fatalf("messages = %+v", snap.Conversation.Messages)
	}
	if r := h.lastResult(t); r.Op != OpSend || r.Outcome != stream.OutcomeDone {
		t.Errorf("result = %+v", r)
	}
}

func TestSendMessage_FailureKeepsUserMessage(t *testing.T) {
	client := &fakeClient{send: func(context.Context, string, string) (*types.MessageRecord, error) {
		return nil, errors.New("connection reset")
	}}
	h := newHarness(t, client, 0)
	h.init(t)

	if err := h.store.SendMessage(t.Context(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	snap := h.store.Snapshot()
	assertIdle(t, snap)
	if len(snap.Conversation.Messages) != 1 || snap.Conversation.Messages[0].Role != types.RoleUser {
		t.Fatalf("messages = %+v", snap.Conversation.Messages)
	}
	if h.noticeCount() != 1 {
		t.Errorf("expected one notice, got %d", h.noticeCount())
	}
}

func TestReset(t *testing.T) {
	p := newPipe()
	started := make(chan struct{}, 1)
	client := &fakeClient{stream: streamOf(p, started)}
	h := newHarness(t, client, 0)
	h.init(t)

	errc := h.sendAsync(t.Context(), "hi", DefaultSendOptions())
	<-started
	h.store.Reset()

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("send interrupted by reset should be silent, got %v", err)
	}
	snap := h.store.Snapshot()
	if snap.Conversation != nil {
		t.Errorf("conversation not cleared: %+v", snap.Conversation)
	}
	if snap.IsLoading || snap.IsInitializing || snap.StreamingStatus != nil || snap.CurrentToolCall != nil {
		t.Errorf("flags not cleared: %+v", snap)
	}

	h.init(t)
	if got := client.bootstrapCalls.Load(); got != 2 {
		t.Errorf("bootstrap calls = %d, want 2 after reset", got)
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	p := newPipe(types.TextDeltaFrame("hello"), types.StatusFrame("x"), types.DoneFrame(""))
	h := newHarness(t, &fakeClient{stream: streamOf(p, nil)}, 0)
	h.init(t)
	if err := h.store.SendMessageStreaming(t.Context(), "hi", DefaultSendOptions()); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	snap := h.store.Snapshot()
	snap.Conversation.Messages[1].Content = "tampered"
	snap.Conversation.Messages = snap.Conversation.Messages[:0]

	again := h.store.Snapshot()
	if len(again.Conversation.Messages) != 2 || again.Conversation.Messages[1].Content != "hello" {
		t.Errorf("store state changed through a snapshot: %+v", again.Conversation.Messages)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t, &fakeClient{}, 0)
	var calls atomic.Int32
	unsubscribe := h.store.Subscribe(func(Snapshot) { calls.Add(1) })

	h.init(t)
	seen := calls.Load()
	if seen == 0 {
		t.Fatal("subscriber not notified")
	}

	unsubscribe()
	h.store.Reset()
	if calls.Load() != seen {
		t.Error("subscriber notified after unsubscribe")
	}
}
