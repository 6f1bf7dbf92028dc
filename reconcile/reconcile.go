// Package reconcile maps backend message records onto the UI message model.
//
// Every function here is total: a malformed record degrades to neutral
// defaults instead of failing, so one bad record never blocks rendering
// of the rest of a conversation.
package reconcile

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/concierge/types"
)

// Clock returns the current time. Overridable for tests.
type Clock func() time.Time

// Reconciler converts wire records into messages.
type Reconciler struct {
	now   Clock
	newID func() string
}

// New creates a Reconciler using the wall clock and random UUIDs.
func New() *Reconciler {
	return &Reconciler{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock returns a copy of r using clock for timestamp fallbacks.
func (r *Reconciler) WithClock(clock Clock) *Reconciler {
	c := *r
	c.now = clock
	return &c
}

// FromRecord converts one record. Unknown or missing roles become
// assistant, unparseable timestamps fall back to now, a missing id is
// replaced with a fresh UUID, and artifacts default to empty.
func (r *Reconciler) FromRecord(rec types.MessageRecord) types.Message {
	id := rec.ID
	if id == "" {
		id = r.newID()
	}

	artifacts := make([]types.Artifact, 0, len(rec.Artifacts))
	for _, a := range rec.Artifacts {
		var payload any
		if a.DataMCP != nil {
			payload = a.DataMCP.Data
		}
		artifacts = append(artifacts, types.Artifact{
			ToolName: a.ToolName,
			Payload:  payload,
		})
	}

	return types.Message{
		ID:        id,
		Role:      translateRole(rec.Role),
		Content:   rec.Content,
		CreatedAt: r.parseTime(rec.CreatedAt),
		Artifacts: artifacts,
	}
}

// FromRecords converts a whole history, preserving order.
func (r *Reconciler) FromRecords(recs []types.MessageRecord) []types.Message {
	out := make([]types.Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.FromRecord(rec))
	}
	return out
}

// FromConversation converts a bootstrap response into a Conversation.
func (r *Reconciler) FromConversation(rec types.ConversationRecord) *types.Conversation {
	return &types.Conversation{
		ID:       rec.ID,
		Messages: r.FromRecords(rec.Messages),
	}
}

// NewUserMessage builds an optimistic user message for text.
func (r *Reconciler) NewUserMessage(text string) types.Message {
	return types.Message{
		ID:        r.newID(),
		Role:      types.RoleUser,
		Content:   text,
		CreatedAt: r.now(),
		Artifacts: []types.Artifact{},
	}
}

// NewPlaceholder builds a pending assistant placeholder.
func (r *Reconciler) NewPlaceholder() types.Message {
	return types.Message{
		ID:        r.newID(),
		Role:      types.RoleAssistant,
		CreatedAt: r.now(),
		Artifacts: []types.Artifact{},
	}
}

// AppendDelta appends a streamed text chunk to msg. Chunks are only ever
// appended, never reordered.
func AppendDelta(msg types.Message, chunk string) types.Message {
	msg.Content += chunk
	return msg
}

// AppendArtifact appends a tool result to msg, preserving completion order.
// The artifact slice is copied so earlier snapshots stay untouched.
func AppendArtifact(msg types.Message, a types.Artifact) types.Message {
	artifacts := make([]types.Artifact, len(msg.Artifacts), len(msg.Artifacts)+1)
	copy(artifacts, msg.Artifacts)
	msg.Artifacts = append(artifacts, a)
	return msg
}

// ToRecord converts a message back to its wire shape, the inverse of
// FromRecord for well-formed records. Timestamps are written as RFC 3339
// UTC with millisecond precision.
func ToRecord(msg types.Message) types.MessageRecord {
	rec := types.MessageRecord{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC().Format(recordTimeLayout),
	}
	for _, a := range msg.Artifacts {
		rec.Artifacts = append(rec.Artifacts, types.ArtifactRecord{
			ToolName: a.ToolName,
			DataMCP:  &types.MCPEnvelope{Data: a.Payload},
		})
	}
	return rec
}

// ToRecords converts a whole history.
func ToRecords(msgs []types.Message) []types.MessageRecord {
	out := make([]types.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToRecord(m))
	}
	return out
}

const recordTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func translateRole(role string) types.Role {
	if role == string(types.RoleUser) {
		return types.RoleUser
	}
	return types.RoleAssistant
}

// timeLayouts are tried in order; RFC3339 parsing accepts fractional
// seconds, the remaining layouts cover backends that drop the zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (r *Reconciler) parseTime(s string) time.Time {
	if s == "" {
		return r.now()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return r.now()
}

// DecodeRecord decodes a raw wire record leniently. A record whose fields
// carry the wrong JSON types still yields whatever fields are usable.
func DecodeRecord(raw json.RawMessage) types.MessageRecord {
	var rec types.MessageRecord
	if err := json.Unmarshal(raw, &rec); err == nil {
		return rec
	}

	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return types.MessageRecord{}
	}

	rec = types.MessageRecord{
		ID:        stringField(loose, "id"),
		Role:      stringField(loose, "role"),
		Content:   stringField(loose, "content"),
		CreatedAt: stringField(loose, "created_at"),
	}
	if arts, ok := loose["artifacts"].([]any); ok {
		for _, item := range arts {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			ar := types.ArtifactRecord{ToolName: stringField(obj, "tool_name")}
			if env, ok := obj["data_mcp"].(map[string]any); ok {
				ar.DataMCP = &types.MCPEnvelope{Data: env["data"]}
			}
			rec.Artifacts = append(rec.Artifacts, ar)
		}
	}
	return rec
}

// DecodeRecords decodes a list of raw records, never failing.
func DecodeRecords(raws []json.RawMessage) []types.MessageRecord {
	out := make([]types.MessageRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, DecodeRecord(raw))
	}
	return out
}

// stringField reads key as a string; numeric ids are formatted.
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	b, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(b)
}
