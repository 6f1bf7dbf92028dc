// Package store is the conversation store: the single authority for chat
// state and the only component a UI calls.
//
// Every operation that talks to the backend runs under a busy flag and a
// generation token. StartNewConversation and Reset cancel the in-flight
// operation's context and bump the generation, so late results of the
// superseded operation are discarded instead of mutating the new state.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/concierge/agent"
	"github.com/pithecene-io/concierge/artifact"
	"github.com/pithecene-io/concierge/iox"
	"github.com/pithecene-io/concierge/log"
	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/reconcile"
	"github.com/pithecene-io/concierge/stream"
	"github.com/pithecene-io/concierge/types"
)

var (
	// ErrBusy is returned when an operation is already in flight.
	ErrBusy = errors.New("store: another operation is in flight")
	// ErrNoConversation is returned by sends before a conversation exists.
	ErrNoConversation = errors.New("store: no active conversation")
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("store: message is empty")
)

// Snapshot is a read-only copy of the store state.
type Snapshot struct {
	Conversation    *types.Conversation
	IsLoading       bool
	IsInitializing  bool
	StreamingStatus *string
	CurrentToolCall *string
	// ActiveTurnID is the assistant message id of the latest turn sent
	// with SendOptions.IsActive.
	ActiveTurnID string
}

// SendOptions tunes SendMessageStreaming.
type SendOptions struct {
	// SuppressUserMessage keeps the prompt out of the conversation, for
	// system-initiated turns.
	SuppressUserMessage bool
	// IsActive marks the turn as the user's latest visible turn.
	IsActive bool
}

// DefaultSendOptions returns the options of an ordinary user turn.
func DefaultSendOptions() SendOptions {
	return SendOptions{IsActive: true}
}

// Config configures a Store.
type Config struct {
	// Client is the backend agent (required).
	Client agent.Client
	// Reconciler maps backend records; defaults to reconcile.New().
	Reconciler *reconcile.Reconciler
	Logger     *log.Logger
	Collector  *metrics.Collector
	// IdleTimeout bounds the gap between stream frames (see stream.Config).
	IdleTimeout time.Duration
	// Notifier receives user-facing failures.
	Notifier Notifier
	// OnTurnComplete is called on the sending goroutine after every send.
	OnTurnComplete func(TurnResult)
}

// Store owns the current conversation.
type Store struct {
	client     agent.Client
	reconciler *reconcile.Reconciler
	logger     *log.Logger
	collector  *metrics.Collector
	idle       time.Duration
	notifier   Notifier
	onTurn     func(TurnResult)

	mu              sync.Mutex // guards everything below
	conv            *types.Conversation
	isLoading       bool
	isInitializing  bool
	streamingStatus *string
	currentToolCall *string
	activeTurnID    string
	busy            bool
	generation      uint64
	cancel          context.CancelFunc

	notifyMu    sync.Mutex // serializes subscriber delivery
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// New creates a store. The conversation is empty until InitChat.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("store: client is required")
	}
	r := cfg.Reconciler
	if r == nil {
		r = reconcile.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		client:      cfg.Client,
		reconciler:  r,
		logger:      logger,
		collector:   cfg.Collector,
		idle:        cfg.IdleTimeout,
		notifier:    cfg.Notifier,
		onTurn:      cfg.OnTurnComplete,
		subscribers: make(map[int]func(Snapshot)),
	}, nil
}

// op is one backend operation holding the busy flag.
type op struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// beginLocked claims the busy flag for a new operation. Caller holds s.mu.
func (s *Store) beginLocked(ctx context.Context) (*op, error) {
	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	s.generation++
	opCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return &op{gen: s.generation, ctx: opCtx, cancel: cancel}, nil
}

// currentLocked reports whether o is still the store's operation.
func (s *Store) currentLocked(o *op) bool {
	return s.generation == o.gen
}

// endLocked releases the busy flag and clears transient flags if o is
// still current. Safe to call more than once.
func (s *Store) endLocked(o *op) {
	o.cancel()
	if !s.currentLocked(o) {
		return
	}
	s.busy = false
	s.cancel = nil
	s.isLoading = false
	s.isInitializing = false
	s.streamingStatus = nil
	s.currentToolCall = nil
}

// abortLocked cancels the in-flight operation, if any, and invalidates
// its generation.
func (s *Store) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.busy = false
	s.isLoading = false
	s.isInitializing = false
	s.streamingStatus = nil
	s.currentToolCall = nil
}

// finish runs the common tail of an operation: release the busy flag,
// publish the new snapshot and surface a failure.
func (s *Store) finish(o *op, name Op, err error) {
	s.mu.Lock()
	stale := !s.currentLocked(o)
	s.endLocked(o)
	s.mu.Unlock()
	s.notify()

	if err != nil && !stale && !isCanceled(err) {
		s.publishNotice(noticeFor(name, err))
	}
}

// InitChat loads the active conversation, creating one when the backend
// has none. It is a no-op when a conversation is already loaded. On
// failure the store keeps an empty conversation and a notice is sent.
func (s *Store) InitChat(ctx context.Context) error {
	s.mu.Lock()
	if s.conv != nil && s.conv.ID != "" {
		s.mu.Unlock()
		return nil
	}
	o, err := s.beginLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.isInitializing = true
	s.mu.Unlock()
	s.notify()

	rec, err := s.client.Bootstrap(o.ctx)
	err = s.install(o, rec, err)
	s.finish(o, OpInitChat, err)
	return silenceCanceled(err, "init chat")
}

// StartNewConversation cancels any in-flight operation, discards the
// current conversation and creates a fresh one. Safe mid-stream.
func (s *Store) StartNewConversation(ctx context.Context) error {
	s.mu.Lock()
	s.abortLocked()
	s.conv = nil
	s.activeTurnID = ""
	o, err := s.beginLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.isInitializing = true
	s.mu.Unlock()
	s.notify()

	rec, err := s.client.CreateConversation(o.ctx)
	err = s.install(o, rec, err)
	s.finish(o, OpNewConversation, err)
	return silenceCanceled(err, "new conversation")
}

// install replaces the conversation with a backend record. On failure the
// conversation is left empty.
func (s *Store) install(o *op, rec *types.ConversationRecord, err error) error {
	if err == nil && (rec == nil || rec.ID == "") {
		err = errors.New("backend returned no conversation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(o) {
		return context.Canceled
	}
	if err != nil {
		s.conv = &types.Conversation{Messages: []types.Message{}}
		s.logger.Error("conversation load failed", map[string]any{"error": err.Error()})
		return err
	}

	conv := s.reconciler.FromConversation(*rec)
	// History never carries a pending placeholder.
	conv.Messages = conv.Displayable()
	s.conv = conv
	s.logger.WithConversation(conv.ID).Info("conversation loaded", map[string]any{
		"messages": len(conv.Messages),
	})
	return nil
}

// Reset tears the store down (logout): cancels any in-flight operation
// and clears the conversation and every flag.
func (s *Store) Reset() {
	s.mu.Lock()
	s.abortLocked()
	s.conv = nil
	s.activeTurnID = ""
	s.mu.Unlock()
	s.notify()
}

// startTurn validates a send and claims the busy flag.
func (s *Store) startTurn(ctx context.Context, text string) (*op, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyMessage
	}
	if s.conv == nil || s.conv.ID == "" {
		return nil, "", ErrNoConversation
	}
	o, err := s.beginLocked(ctx)
	if err != nil {
		return nil, "", err
	}
	s.isLoading = true
	s.collector.IncTurnStarted()
	return o, s.conv.ID, nil
}

// SendMessage sends text without streaming. The user message is appended
// optimistically and kept on failure.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	o, convID, err := s.startTurn(ctx, text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.conv.Messages = append(s.conv.Messages, s.reconciler.NewUserMessage(text))
	s.mu.Unlock()
	s.notify()

	started := time.Now()
	logger := s.logger.WithConversation(convID)
	rec, err := s.client.Send(o.ctx, convID, text)
	if err == nil && rec == nil {
		err = errors.New("backend returned no message")
	}

	result := TurnResult{Op: OpSend, ConversationID: convID, StartedAt: started}
	s.mu.Lock()
	switch {
	case !s.currentLocked(o):
		err = context.Canceled
		result.Outcome = stream.OutcomeCanceled
	case err != nil:
		result.Outcome = stream.OutcomeError
		result.Reason = err.Error()
	default:
		result.Outcome = stream.OutcomeDone
		msg := s.reconciler.FromRecord(*rec)
		if msg.IsPlaceholder() {
			s.collector.IncPlaceholderDropped()
		} else {
			s.conv.Messages = append(s.conv.Messages, msg)
			result.MessageID = msg.ID
			result.ArtifactKinds = artifact.Classify(msg.Artifacts)
			result.ContentLength = len(msg.Content)
			for _, a := range msg.Artifacts {
				result.Tools = append(result.Tools, a.ToolName)
			}
		}
	}
	if s.currentLocked(o) {
		result.Conversation = s.conv.Clone()
	}
	s.mu.Unlock()

	s.recordOutcome(logger, result, err)
	s.finish(o, OpSend, err)
	s.turnComplete(result)
	return silenceCanceled(err, "send message")
}

// SendMessageStreaming sends text and folds the streamed reply into the
// conversation frame by frame. A second call while one is in flight
// returns ErrBusy without touching the conversation. Cancellation,
// including being superseded by StartNewConversation or Reset, is silent.
func (s *Store) SendMessageStreaming(ctx context.Context, text string, opts SendOptions) error {
	s.mu.Lock()
	o, convID, err := s.startTurn(ctx, text)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !opts.SuppressUserMessage {
		s.conv.Messages = append(s.conv.Messages, s.reconciler.NewUserMessage(text))
	}
	placeholder := s.reconciler.NewPlaceholder()
	s.conv.Messages = append(s.conv.Messages, placeholder)
	if opts.IsActive {
		s.activeTurnID = placeholder.ID
	}
	s.mu.Unlock()
	s.notify()

	started := time.Now()
	logger := s.logger.WithConversation(convID)
	t := &turn{store: s, op: o, messageID: placeholder.ID}
	state := stream.NewTurnState(placeholder)

	streamCtx, cancelStream := context.WithCancelCause(o.ctx)
	defer cancelStream(nil)

	reply, err := s.openStream(streamCtx, cancelStream, convID, text)
	if err != nil {
		outcome, reason := stream.OutcomeError, err.Error()
		switch {
		case o.ctx.Err() != nil:
			outcome, reason, err = stream.OutcomeCanceled, "", context.Canceled
		case stream.IsTimeoutError(err):
			logger.Warn("stream open timed out", map[string]any{"idle_timeout": s.idleTimeout().String()})
			outcome, reason = stream.OutcomeTimeout, string(stream.OutcomeTimeout)
		}
		state = stream.Fail(state, outcome, reason)
		t.apply(state)
	} else {
		engine := stream.NewEngine(reply, stream.Config{
			IdleTimeout: s.idle,
			Logger:      logger,
			Collector:   s.collector,
		})
		state, err = engine.Run(o.ctx, state, t.commit)
		iox.DiscardClose(reply)
		if !state.Terminal() {
			state = stream.Fail(state, stream.OutcomeCanceled, "")
		}
		// Canceled turns are never committed by the engine; settle the
		// placeholder so none is left dangling.
		t.apply(state)
		if err != nil && o.ctx.Err() != nil {
			// A read cut short by cancellation is not a stream failure.
			err = context.Canceled
			if state.Outcome == stream.OutcomeError {
				state.Outcome, state.Reason = stream.OutcomeCanceled, ""
			}
		}
	}

	result := TurnResult{
		Op:             OpSendStreaming,
		ConversationID: convID,
		Outcome:        state.Outcome,
		Reason:         state.Reason,
		Tools:          state.Tools,
		ArtifactKinds:  artifact.Classify(state.Placeholder.Artifacts),
		Frames:         state.Frames,
		ContentLength:  len(state.Placeholder.Content),
		StartedAt:      started,
	}
	if state.KeepPlaceholder() {
		result.MessageID = state.Placeholder.ID
	}
	s.mu.Lock()
	if s.currentLocked(o) {
		result.Conversation = s.conv.Clone()
	}
	s.mu.Unlock()

	s.recordOutcome(logger, result, err)
	s.finish(o, OpSendStreaming, err)
	s.turnComplete(result)
	return silenceCanceled(err, "send message")
}

// openStream starts the reply stream. The idle timeout also bounds the
// wait for the response to begin: on expiry ctx is canceled and a timeout
// StreamError is returned. ctx must stay live while the reply is read.
func (s *Store) openStream(ctx context.Context, cancel context.CancelCauseFunc, convID, text string) (*agent.Stream, error) {
	idle := s.idleTimeout()
	if idle <= 0 {
		return s.client.SendStream(ctx, convID, text)
	}

	timer := time.AfterFunc(idle, func() { cancel(stream.ErrIdleTimeout) })
	reply, err := s.client.SendStream(ctx, convID, text)
	if timer.Stop() {
		return reply, err
	}
	if reply != nil {
		iox.DiscardClose(reply)
	}
	return nil, &stream.StreamError{
		Kind:   stream.StreamErrorTimeout,
		Reason: string(stream.OutcomeTimeout),
		Err:    stream.ErrIdleTimeout,
	}
}

// idleTimeout resolves the configured idle timeout the way stream.Engine does.
func (s *Store) idleTimeout() time.Duration {
	if s.idle == 0 {
		return stream.DefaultIdleTimeout
	}
	return s.idle
}

// turn applies streamed states to the conversation on behalf of one op.
type turn struct {
	store *Store
	op    *op
	// messageID is the placeholder's current id; done may replace it.
	messageID string
	settled   bool
}

// commit is the stream.Committer of a turn. It returns false once the
// turn has been superseded.
func (t *turn) commit(state stream.TurnState) bool {
	if !t.apply(state) {
		t.store.collector.IncStaleFrame()
		return false
	}
	return true
}

// apply writes state into the conversation if the turn is still current.
func (t *turn) apply(state stream.TurnState) bool {
	s := t.store
	s.mu.Lock()
	if !s.currentLocked(t.op) {
		s.mu.Unlock()
		return false
	}
	if t.settled {
		s.mu.Unlock()
		return true
	}

	idx := s.conv.IndexOf(t.messageID)
	switch {
	case idx < 0:
	case state.Terminal() && !state.KeepPlaceholder():
		s.conv.Messages = slices.Delete(s.conv.Messages, idx, idx+1)
		s.collector.IncPlaceholderDropped()
		if s.activeTurnID == t.messageID {
			s.activeTurnID = ""
		}
	default:
		s.conv.Messages[idx] = state.Placeholder.Clone()
		if s.activeTurnID == t.messageID {
			s.activeTurnID = state.Placeholder.ID
		}
		t.messageID = state.Placeholder.ID
	}

	s.streamingStatus = state.StreamingStatus
	s.currentToolCall = state.CurrentToolCall
	if state.Terminal() {
		t.settled = true
		s.isLoading = false
	}
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Store) recordOutcome(logger *log.Logger, r TurnResult, err error) {
	r.Duration = time.Since(r.StartedAt)
	fields := map[string]any{
		"op":          string(r.Op),
		"outcome":     string(r.Outcome),
		"frames":      r.Frames,
		"duration_ms": r.Duration.Milliseconds(),
	}
	switch {
	case r.Outcome == stream.OutcomeDone:
		s.collector.IncTurnCompleted()
		logger.Info("turn completed", fields)
	case r.Outcome == stream.OutcomeCanceled || isCanceled(err):
		s.collector.IncTurnCanceled()
		logger.Debug("turn canceled", fields)
	case r.Outcome == stream.OutcomeTimeout:
		s.collector.IncTurnTimedOut()
		fields["reason"] = r.Reason
		logger.Warn("turn timed out", fields)
	default:
		s.collector.IncTurnFailed()
		fields["reason"] = r.Reason
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.Error("turn failed", fields)
	}
}

func (s *Store) turnComplete(r TurnResult) {
	if s.onTurn == nil {
		return
	}
	r.Duration = time.Since(r.StartedAt)
	s.onTurn(r)
}

func (s *Store) publishNotice(n Notice) {
	if s.notifier != nil {
		s.notifier(n)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Conversation:    s.conv.Clone(),
		IsLoading:       s.isLoading,
		IsInitializing:  s.isInitializing,
		StreamingStatus: copyString(s.streamingStatus),
		CurrentToolCall: copyString(s.currentToolCall),
		ActiveTurnID:    s.activeTurnID,
	}
}

// Subscribe registers fn to receive a snapshot after every state change,
// in order. fn must not call store operations other than Snapshot.
// The returned function unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.subscribers, id)
		s.notifyMu.Unlock()
	}
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range s.subscribers {
		fn(snap)
	}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || stream.IsCanceledError(err)
}

// silenceCanceled drops cancellation errors and wraps the rest with op.
func silenceCanceled(err error, op string) error {
	if err == nil || isCanceled(err) {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
