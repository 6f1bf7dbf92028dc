// Package metrics provides per-session counters for the chat client.
//
// The Collector accumulates counters for the lifetime of one client
// session. It is a leaf package with no internal dependencies; frame kinds
// are recorded as plain strings to keep it free of the types package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Turn lifecycle
	TurnsStarted   int64
	TurnsCompleted int64
	TurnsFailed    int64
	TurnsCanceled  int64
	TurnsTimedOut  int64

	// Stream ingestion
	FramesApplied        int64
	FramesByKind         map[string]int64
	StaleFramesDiscarded int64
	DecodeErrors         int64
	PlaceholdersDropped  int64
	ArtifactsAttached    int64

	// Archive / notifications
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64
	NotifySuccess       int64
	NotifyFailure       int64

	// Dimensions (informational, set at construction)
	Transport      string
	ArchiveBackend string
	SessionID      string
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	turnsStarted   int64
	turnsCompleted int64
	turnsFailed    int64
	turnsCanceled  int64
	turnsTimedOut  int64

	framesApplied        int64
	framesByKind         map[string]int64
	staleFramesDiscarded int64
	decodeErrors         int64
	placeholdersDropped  int64
	artifactsAttached    int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	notifySuccess       int64
	notifyFailure       int64

	transport      string
	archiveBackend string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend may be empty when archiving is disabled.
func NewCollector(transport, archiveBackend, sessionID string) *Collector {
	return &Collector{
		framesByKind:   make(map[string]int64),
		transport:      transport,
		archiveBackend: archiveBackend,
		sessionID:      sessionID,
	}
}

func (c *Collector) add(counter *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Turn lifecycle ---

// IncTurnStarted records a streamed turn start.
func (c *Collector) IncTurnStarted() {
	if c == nil {
		return
	}
	c.add(&c.turnsStarted)
}

// IncTurnCompleted records a turn that ended with a done frame.
func (c *Collector) IncTurnCompleted() {
	if c == nil {
		return
	}
	c.add(&c.turnsCompleted)
}

// IncTurnFailed records a turn that ended with an error frame or a
// transport failure.
func (c *Collector) IncTurnFailed() {
	if c == nil {
		return
	}
	c.add(&c.turnsFailed)
}

// IncTurnCanceled records a turn abandoned by StartNewConversation or Reset.
func (c *Collector) IncTurnCanceled() {
	if c == nil {
		return
	}
	c.add(&c.turnsCanceled)
}

// IncTurnTimedOut records a turn that hit the idle timeout.
func (c *Collector) IncTurnTimedOut() {
	if c == nil {
		return
	}
	c.add(&c.turnsTimedOut)
}

// --- Stream ingestion ---

// IncFrameApplied records a frame folded into turn state.
func (c *Collector) IncFrameApplied(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesApplied++
	c.framesByKind[kind]++
	c.mu.Unlock()
}

// IncStaleFrame records a frame discarded because its generation was stale.
func (c *Collector) IncStaleFrame() {
	if c == nil {
		return
	}
	c.add(&c.staleFramesDiscarded)
}

// IncDecodeErrors records a frame that could not be decoded.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors)
}

// IncPlaceholderDropped records an empty placeholder removed at turn end.
func (c *Collector) IncPlaceholderDropped() {
	if c == nil {
		return
	}
	c.add(&c.placeholdersDropped)
}

// IncArtifactAttached records a tool result appended to a message.
func (c *Collector) IncArtifactAttached() {
	if c == nil {
		return
	}
	c.add(&c.artifactsAttached)
}

// --- Archive / notifications ---
// Archive counters are per-call: one transcript write counts once
// regardless of how many messages it carries.

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess)
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure)
}

// IncNotifySuccess records a turn event published by an adapter.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.add(&c.notifySuccess)
}

// IncNotifyFailure records an adapter publish failure.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.add(&c.notifyFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.framesByKind))
	for k, v := range c.framesByKind {
		byKind[k] = v
	}

	return Snapshot{
		TurnsStarted:   c.turnsStarted,
		TurnsCompleted: c.turnsCompleted,
		TurnsFailed:    c.turnsFailed,
		TurnsCanceled:  c.turnsCanceled,
		TurnsTimedOut:  c.turnsTimedOut,

		FramesApplied:        c.framesApplied,
		FramesByKind:         byKind,
		StaleFramesDiscarded: c.staleFramesDiscarded,
		DecodeErrors:         c.decodeErrors,
		PlaceholdersDropped:  c.placeholdersDropped,
		ArtifactsAttached:    c.artifactsAttached,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		NotifySuccess:       c.notifySuccess,
		NotifyFailure:       c.notifyFailure,

		Transport:      c.transport,
		ArchiveBackend: c.archiveBackend,
		SessionID:      c.sessionID,
	}
}
