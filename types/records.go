package types

// MessageRecord is the backend wire shape of a chat message.
type MessageRecord struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	CreatedAt string           `json:"created_at"`
	Artifacts []ArtifactRecord `json:"artifacts,omitempty"`
}

// ArtifactRecord is the backend wire shape of a tool artifact.
type ArtifactRecord struct {
	ToolName string       `json:"tool_name"`
	DataMCP  *MCPEnvelope `json:"data_mcp,omitempty"`
}

// MCPEnvelope wraps the tool output.
type MCPEnvelope struct {
	Data any `json:"data"`
}

// ConversationRecord is the backend bootstrap response.
type ConversationRecord struct {
	ID       string          `json:"id"`
	Messages []MessageRecord `json:"messages"`
}
