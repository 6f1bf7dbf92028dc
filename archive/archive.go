// Package archive persists chat transcripts to a Lode dataset.
//
// Every finished turn writes one snapshot holding the full message list of
// its conversation plus a turn record, Hive-partitioned by
// day/conversation_id/record_kind. The latest snapshot of a conversation is
// therefore its complete transcript.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/reconcile"
	"github.com/pithecene-io/concierge/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "concierge"

// Record kinds, also used as the record_kind partition value.
const (
	RecordKindMessage = "message"
	RecordKindTurn    = "turn"
)

// ErrConversationNotFound is returned when no snapshot holds the conversation.
var ErrConversationNotFound = errors.New("conversation not found in archive")

// ErrInvalidConversationID is returned for ids that cannot be a partition value.
var ErrInvalidConversationID = errors.New("invalid conversation id")

// Turn summarizes a finished turn.
type Turn struct {
	MessageID  string
	Outcome    string
	Reason     string
	Tools      []string
	Frames     int
	DurationMs int64
	FinishedAt time.Time
}

// Summary describes one archived conversation.
type Summary struct {
	ID          string    `json:"id" yaml:"id"`
	Day         string    `json:"day" yaml:"day"`
	Messages    int       `json:"messages" yaml:"messages"`
	LastOutcome string    `json:"last_outcome" yaml:"last_outcome"`
	ArchivedAt  time.Time `json:"archived_at" yaml:"archived_at"`
}

// Archive writes and reads transcripts.
type Archive struct {
	dataset   lode.Dataset
	backend   string
	collector *metrics.Collector
}

// New opens the dataset on the given store factory.
// backend names the storage for logs and metrics (fs, s3, memory).
func New(dataset, backend string, factory lode.StoreFactory) (*Archive, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("day", "conversation_id", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return &Archive{dataset: ds, backend: backend}, nil
}

// NewFS opens an archive rooted at a local directory.
func NewFS(dataset, root string) (*Archive, error) {
	return New(dataset, "fs", lode.NewFSFactory(root))
}

// NewMemory opens a process-local archive.
func NewMemory(dataset string) (*Archive, error) {
	return New(dataset, "memory", lode.NewMemoryFactory())
}

// WithCollector attaches a metrics collector. Returns a for chaining.
func (a *Archive) WithCollector(c *metrics.Collector) *Archive {
	a.collector = c
	return a
}

// Backend returns the storage backend name.
func (a *Archive) Backend() string {
	return a.backend
}

// WriteTurn stores the conversation transcript as of the end of turn.
// Pending placeholders are not archived.
func (a *Archive) WriteTurn(ctx context.Context, conv *types.Conversation, turn Turn) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("archive: %w: empty", ErrInvalidConversationID)
	}
	if strings.ContainsAny(conv.ID, "/=") {
		return fmt.Errorf("archive: %w: %q", ErrInvalidConversationID, conv.ID)
	}

	at := turn.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	day := at.Format(time.DateOnly)

	msgs := conv.Displayable()
	records := make([]any, 0, len(msgs)+1)
	for i, rec := range reconcile.ToRecords(msgs) {
		records = append(records, map[string]any{
			"record_kind":     RecordKindMessage,
			"day":             day,
			"conversation_id": conv.ID,
			"seq":             i,
			"message":         rec,
		})
	}
	records = append(records, map[string]any{
		"record_kind":     RecordKindTurn,
		"day":             day,
		"conversation_id": conv.ID,
		"message_id":      turn.MessageID,
		"outcome":         turn.Outcome,
		"reason":          turn.Reason,
		"tools":           nonNil(turn.Tools),
		"frames":          turn.Frames,
		"duration_ms":     turn.DurationMs,
		"message_count":   len(msgs),
		"archived_at":     at.Format(time.RFC3339Nano),
	})

	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, conv.ID)
	}
	a.collector.IncArchiveWriteSuccess()
	return nil
}

// Load returns the latest archived transcript of a conversation.
func (a *Archive) Load(ctx context.Context, id string) (*types.Conversation, error) {
	snap, err := a.latestFor(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := a.dataset.Read(ctx, snap.ID)
	if err != nil {
		return nil, WrapReadError(err, id)
	}

	type indexed struct {
		seq int
		rec types.MessageRecord
	}
	var rows []indexed
	for _, item := range data {
		record, ok := item.(map[string]any)
		if !ok || record["record_kind"] != RecordKindMessage || record["conversation_id"] != id {
			continue
		}
		raw, err := json.Marshal(record["message"])
		if err != nil {
			continue
		}
		rows = append(rows, indexed{seq: toInt(record["seq"]), rec: reconcile.DecodeRecord(raw)})
	}
	slices.SortStableFunc(rows, func(x, y indexed) int { return x.seq - y.seq })

	recs := make([]types.MessageRecord, len(rows))
	for i, r := range rows {
		recs[i] = r.rec
	}
	return reconcile.New().FromConversation(types.ConversationRecord{ID: id, Messages: recs}), nil
}

// List returns one summary per archived conversation, most recent first.
func (a *Archive) List(ctx context.Context) ([]Summary, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	seen := make(map[string]bool)
	var out []Summary
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		id := partitionValue(snap, "conversation_id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		data, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, id)
		}
		out = append(out, summarize(id, partitionValue(snap, "day"), data))
	}
	return out, nil
}

// Close releases archive resources.
func (a *Archive) Close() error {
	return nil
}

// latestFor finds the newest snapshot containing the conversation.
func (a *Archive) latestFor(ctx context.Context, id string) (*lode.DatasetSnapshot, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		if partitionValue(snapshots[i], "conversation_id") == id {
			return snapshots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
}

func summarize(id, day string, data []any) Summary {
	s := Summary{ID: id, Day: day}
	for _, item := range data {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch record["record_kind"] {
		case RecordKindMessage:
			s.Messages++
		case RecordKindTurn:
			s.LastOutcome, _ = record["outcome"].(string)
			if ts, ok := record["archived_at"].(string); ok {
				s.ArchivedAt, _ = time.Parse(time.RFC3339Nano, ts)
			}
		}
	}
	return s
}

// partitionValue returns the value of key from the snapshot's Hive paths.
func partitionValue(snap *lode.DatasetSnapshot, key string) string {
	prefix := key + "="
	for _, f := range snap.Manifest.Files {
		for part := range strings.SplitSeq(f.Path, "/") {
			if v, ok := strings.CutPrefix(part, prefix); ok {
				return v
			}
		}
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
