package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("sess-1").WithOutput(&buf).WithConversation("conv-9")

	logger.Info("turn started", map[string]any{"text_len": 12})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["message"] != "turn started" || e["level"] != "info" {
		t.Errorf("unexpected entry: %v", e)
	}
	if e["session_id"] != "sess-1" || e["conversation_id"] != "conv-9" {
		t.Errorf("missing context fields: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["text_len"] != 12.0 {
		t.Errorf("unexpected fields: %v", e["fields"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("s").WithOutput(&buf)
	logger.SetLevel(zapcore.WarnLevel)

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("shown", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "shown" {
		t.Errorf("expected only the warning, got %v", entries)
	}
}

func TestLogger_WithConversationEmpty(t *testing.T) {
	logger := NewLogger("s")
	if logger.WithConversation("") != logger {
		t.Error("expected same logger for empty conversation id")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSugar_With(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("s").WithOutput(&buf).Sugar().With("cmd", "chat").Infof("hello %s", "world")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "hello world" || entries[0]["cmd"] != "chat" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLogger_WithConversationReplaces(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("s").WithOutput(&buf).WithConversation("a").WithConversation("b")
	logger.Info("x", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["conversation_id"] != "b" {
		t.Errorf("expected conversation b, got %v", entries)
	}
	if strings.Count(buf.String(), "conversation_id") != 1 {
		t.Errorf("expected a single conversation_id field, got %s", buf.String())
	}
}
