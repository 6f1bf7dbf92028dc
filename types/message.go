// Package types defines core domain types for the concierge chat client.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// Role identifies the author of a message.
type Role string

// Role constants. Backends may send other roles; the reconciler folds
// them into RoleAssistant.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Artifact is structured output of a backend tool attached to an
// assistant message. Payload is backend-controlled and only loosely typed;
// use the artifact package to extract typed views.
type Artifact struct {
	// ToolName is the backend tool that produced the payload.
	ToolName string `json:"tool_name" yaml:"tool_name"`
	// Payload is the raw decoded tool output (maps, slices, scalars).
	Payload any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Message is one chat message as the UI sees it.
type Message struct {
	ID        string     `json:"id" yaml:"id"`
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	Artifacts []Artifact `json:"artifacts" yaml:"artifacts"`
}

// IsPlaceholder reports whether m is a pending assistant placeholder:
// an assistant message with no content and no artifacts yet.
// Placeholders drive the typing indicator and are never shown as bubbles.
func (m *Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && m.Content == "" && len(m.Artifacts) == 0
}

// IsDisplayable reports whether m should render as a chat bubble.
func IsDisplayable(m *Message) bool {
	return m != nil && !m.IsPlaceholder()
}

// Clone returns a copy of m that shares no slices with the original.
// Artifact payloads are shared: they are write-once.
func (m *Message) Clone() Message {
	c := *m
	c.Artifacts = make([]Artifact, len(m.Artifacts))
	copy(c.Artifacts, m.Artifacts)
	return c
}

// Conversation is an ordered chat history. Insertion order is
// chronological order.
type Conversation struct {
	ID       string    `json:"id" yaml:"id"`
	Messages []Message `json:"messages" yaml:"messages"`
}

// Clone returns a deep copy of the conversation's message list.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{
		ID:       c.ID,
		Messages: make([]Message, len(c.Messages)),
	}
	for i := range c.Messages {
		out.Messages[i] = c.Messages[i].Clone()
	}
	return out
}

// Displayable returns the messages that should render as bubbles,
// skipping pending placeholders.
func (c *Conversation) Displayable() []Message {
	if c == nil {
		return nil
	}
	out := make([]Message, 0, len(c.Messages))
	for i := range c.Messages {
		if IsDisplayable(&c.Messages[i]) {
			out = append(out, c.Messages[i])
		}
	}
	return out
}

// Placeholders returns the number of pending placeholders in c.
func (c *Conversation) Placeholders() int {
	if c == nil {
		return 0
	}
	n := 0
	for i := range c.Messages {
		if c.Messages[i].IsPlaceholder() {
			n++
		}
	}
	return n
}

// IndexOf returns the index of the message with the given id, or -1.
func (c *Conversation) IndexOf(id string) int {
	if c == nil {
		return -1
	}
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
