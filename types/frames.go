package types

// FrameKind is the discriminator of a streamed response frame.
type FrameKind string

// Frame kinds emitted by the agent stream endpoint.
const (
	FrameStatus         FrameKind = "status"
	FrameToolCallStart  FrameKind = "tool_call_start"
	FrameToolCallResult FrameKind = "tool_call_result"
	FrameTextDelta      FrameKind = "text_delta"
	FrameDone           FrameKind = "done"
	FrameError          FrameKind = "error"
)

// IsTerminal returns true if this frame kind ends a stream.
func (k FrameKind) IsTerminal() bool {
	return k == FrameDone || k == FrameError
}

// IsKnown returns true for the frame kinds the client understands.
func (k FrameKind) IsKnown() bool {
	switch k {
	case FrameStatus, FrameToolCallStart, FrameToolCallResult,
		FrameTextDelta, FrameDone, FrameError:
		return true
	}
	return false
}

// Frame is one unit of a streamed agent response.
// Kind selects which of the remaining fields are meaningful:
//
//	status            Text
//	tool_call_start   ToolName
//	tool_call_result  ToolName, Data
//	text_delta        Text
//	done              MessageID (optional)
//	error             Error
//
// Tags match the JSON carried by SSE data lines and the msgpack frame
// payloads, so both decoders share this type.
type Frame struct {
	Kind      FrameKind `json:"type" msgpack:"type"`
	Text      string    `json:"text,omitempty" msgpack:"text,omitempty"`
	ToolName  string    `json:"tool_name,omitempty" msgpack:"tool_name,omitempty"`
	Data      any       `json:"data,omitempty" msgpack:"data,omitempty"`
	MessageID string    `json:"message_id,omitempty" msgpack:"message_id,omitempty"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
}

// StatusFrame builds a status frame.
func StatusFrame(text string) Frame { return Frame{Kind: FrameStatus, Text: text} }

// ToolCallStartFrame builds a tool_call_start frame.
func ToolCallStartFrame(name string) Frame {
	return Frame{Kind: FrameToolCallStart, ToolName: name}
}

// ToolCallResultFrame builds a tool_call_result frame.
func ToolCallResultFrame(name string, data any) Frame {
	return Frame{Kind: FrameToolCallResult, ToolName: name, Data: data}
}

// TextDeltaFrame builds a text_delta frame.
func TextDeltaFrame(chunk string) Frame { return Frame{Kind: FrameTextDelta, Text: chunk} }

// DoneFrame builds a done frame. messageID may be empty.
func DoneFrame(messageID string) Frame { return Frame{Kind: FrameDone, MessageID: messageID} }

// ErrorFrame builds an error frame.
func ErrorFrame(reason string) Frame { return Frame{Kind: FrameError, Error: reason} }
