package types //nolint:revive // types is a valid package name

import "testing"

func TestMessage_IsPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"empty assistant", Message{Role: RoleAssistant}, true},
		{"assistant with content", Message{Role: RoleAssistant, Content: "hi"}, false},
		{"assistant with artifact", Message{Role: RoleAssistant, Artifacts: []Artifact{{ToolName: "view_cart"}}}, false},
		{"empty user", Message{Role: RoleUser}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsPlaceholder(); got != tt.want {
				t.Errorf("IsPlaceholder() = %v, want %v", got, tt.want)
			}
			if got := IsDisplayable(&tt.msg); got == tt.want {
				t.Errorf("IsDisplayable() = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestConversation_Displayable(t *testing.T) {
	conv := &Conversation{
		ID: "c1",
		Messages: []Message{
			{ID: "u1", Role: RoleUser, Content: "hello"},
			{ID: "a1", Role: RoleAssistant},
		},
	}

	shown := conv.Displayable()
	if len(shown) != 1 || shown[0].ID != "u1" {
		t.Fatalf("expected only u1 displayable, got %+v", shown)
	}
	if conv.Placeholders() != 1 {
		t.Errorf("expected 1 placeholder, got %d", conv.Placeholders())
	}
	if conv.IndexOf("a1") != 1 {
		t.Errorf("expected a1 at index 1, got %d", conv.IndexOf("a1"))
	}
	if conv.IndexOf("missing") != -1 {
		t.Error("expected -1 for missing id")
	}
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	conv := &Conversation{
		ID: "c1",
		Messages: []Message{
			{ID: "a1", Role: RoleAssistant, Artifacts: []Artifact{{ToolName: "view_cart"}}},
		},
	}

	clone := conv.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Artifacts = append(clone.Messages[0].Artifacts, Artifact{ToolName: "x"})

	if conv.Messages[0].Content != "" {
		t.Error("clone mutated original content")
	}
	if len(conv.Messages[0].Artifacts) != 1 {
		t.Error("clone mutated original artifacts")
	}

	var nilConv *Conversation
	if nilConv.Clone() != nil {
		t.Error("expected nil clone of nil conversation")
	}
}

func TestFrameKind_IsTerminal(t *testing.T) {
	for _, k := range []FrameKind{FrameDone, FrameError} {
		if !k.IsTerminal() {
			t.Errorf("%s should be terminal", k)
		}
	}
	for _, k := range []FrameKind{FrameStatus, FrameToolCallStart, FrameToolCallResult, FrameTextDelta} {
		if k.IsTerminal() {
			t.Errorf("%s should not be terminal", k)
		}
		if !k.IsKnown() {
			t.Errorf("%s should be known", k)
		}
	}
	if FrameKind("ping").IsKnown() {
		t.Error("ping should not be known")
	}
}
