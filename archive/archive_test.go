package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/concierge/metrics"
	"github.com/pithecene-io/concierge/types"
)

// sharedFactory returns a StoreFactory that always returns the given store,
// so separate archives see the same in-memory state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConversation(id string) *types.Conversation {
	created := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	return &types.Conversation{
		ID: id,
		Messages: []types.Message{
			{ID: "u1", Role: types.RoleUser, Content: "Find me a Cerave cleanser", CreatedAt: created},
			{
				ID:        "a1",
				Role:      types.RoleAssistant,
				Content:   "Here are some options.",
				CreatedAt: created.Add(2 * time.Second),
				Artifacts: []types.Artifact{{
					ToolName: "search_products",
					Payload:  []any{map[string]any{"id": "p1", "name": "Cerave Hydrating Cleanser"}},
				}},
			},
			{ID: "pending", Role: types.RoleAssistant, CreatedAt: created.Add(3 * time.Second)},
		},
	}
}

func testTurn(outcome string, at time.Time) Turn {
	return Turn{
		MessageID:  "a1",
		Outcome:    outcome,
		Tools:      []string{"search_products"},
		Frames:     5,
		DurationMs: 1200,
		FinishedAt: at,
	}
}

func TestArchive_WriteLoadRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	collector := metrics.NewCollector("sse", "memory", "sess-1")

	writer, err := New("chat", "memory", sharedFactory(store))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	writer.WithCollector(collector)

	at := time.Date(2026, 2, 7, 12, 0, 5, 0, time.UTC)
	if err := writer.WriteTurn(t.Context(), testConversation("conv-1"), testTurn("done", at)); err != nil {
		t.Fatalf("WriteTurn failed: %v", err)
	}

	reader, err := New("chat", "memory", sharedFactory(store))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	conv, err := reader.Load(t.Context(), "conv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if conv.ID != "conv-1" {
		t.Errorf("ID = %q, want conv-1", conv.ID)
	}
	// The placeholder is not archived.
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != types.RoleUser || conv.Messages[1].Role != types.RoleAssistant {
		t.Errorf("roles out of order: %s, %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	got := conv.Messages[1]
	if got.ID != "a1" || got.Content != "Here are some options." {
		t.Errorf("assistant message = %+v", got)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].ToolName != "search_products" {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 2, 7, 12, 0, 2, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}

	snap := collector.Snapshot()
	if snap.ArchiveWriteSuccess != 1 || snap.ArchiveWriteFailure != 0 {
		t.Errorf("archive metrics = %d/%d, want 1/0", snap.ArchiveWriteSuccess, snap.ArchiveWriteFailure)
	}
}

func TestArchive_LoadReturnsLatestTranscript(t *testing.T) {
	a, err := NewMemory("")
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	ctx := t.Context()
	at := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

	conv := testConversation("conv-1")
	conv.Messages = conv.Messages[:1]
	if err := a.WriteTurn(ctx, conv, testTurn("error", at)); err != nil {
		t.Fatalf("first WriteTurn failed: %v", err)
	}
	if err := a.WriteTurn(ctx, testConversation("conv-1"), testTurn("done", at.Add(time.Minute))); err != nil {
		t.Fatalf("second WriteTurn failed: %v", err)
	}

	loaded, err := a.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("got %d messages, want latest transcript with 2", len(loaded.Messages))
	}
}

func TestArchive_List(t *testing.T) {
	a, err := NewMemory("chat")
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	ctx := t.Context()
	at := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

	if err := a.WriteTurn(ctx, testConversation("conv-a"), testTurn("error", at)); err != nil {
		t.Fatalf("WriteTurn failed: %v", err)
	}
	if err := a.WriteTurn(ctx, testConversation("conv-b"), testTurn("done", at.Add(time.Hour))); err != nil {
		t.Fatalf("WriteTurn failed: %v", err)
	}
	if err := a.WriteTurn(ctx, testConversation("conv-a"), testTurn("done", at.Add(2*time.Hour))); err != nil {
		t.Fatalf("WriteTurn failed: %v", err)
	}

	summaries, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	first := summaries[0]
	if first.ID != "conv-a" || first.LastOutcome != "done" {
		t.Errorf("first summary = %+v, want latest conv-a/done", first)
	}
	if first.Messages != 2 {
		t.Errorf("Messages = %d, want 2", first.Messages)
	}
	if first.Day != "2026-02-07" {
		t.Errorf("Day = %q, want 2026-02-07", first.Day)
	}
	if !first.ArchivedAt.Equal(at.Add(2 * time.Hour)) {
		t.Errorf("ArchivedAt = %v", first.ArchivedAt)
	}
	if summaries[1].ID != "conv-b" {
		t.Errorf("second summary = %q, want conv-b", summaries[1].ID)
	}
}

func TestArchive_LoadMissing(t *testing.T) {
	a, err := NewMemory("")
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	_, err = a.Load(t.Context(), "nope")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestArchive_RejectsInvalidIDs(t *testing.T) {
	a, err := NewMemory("")
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	for _, conv := range []*types.Conversation{nil, {ID: ""}, {ID: "a/b"}, {ID: "k=v"}} {
		if err := a.WriteTurn(t.Context(), conv, Turn{Outcome: "done"}); !errors.Is(err, ErrInvalidConversationID) {
			t.Errorf("WriteTurn(%v) = %v, want ErrInvalidConversationID", conv, err)
		}
	}
}

func TestArchive_FSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFS("chat", dir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	if a.Backend() != "fs" {
		t.Errorf("Backend = %q, want fs", a.Backend())
	}
	if err := a.WriteTurn(t.Context(), testConversation("conv-fs"), testTurn("done", time.Now())); err != nil {
		t.Fatalf("WriteTurn failed: %v", err)
	}

	reopened, err := NewFS("chat", dir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	conv, err := reopened.Load(t.Context(), "conv-fs")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(conv.Messages))
	}
}

// failingStore is a lode.Store whose writes fail.
type failingStore struct {
	putErr error
}

func (s *failingStore) Put(context.Context, string, io.Reader) error { return s.putErr }

func (s *failingStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not found")
}

func (s *failingStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (s *failingStore) List(context.Context, string) ([]string, error) { return nil, nil }

func (s *failingStore) Delete(context.Context, string) error { return nil }

func (s *failingStore) ReadRange(context.Context, string, int64, int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *failingStore) ReaderAt(context.Context, string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*failingStore)(nil)

func TestArchive_WriteFailureIsClassified(t *testing.T) {
	store := &failingStore{putErr: errors.New("AccessDenied: 403 Forbidden")}
	collector := metrics.NewCollector("sse", "s3", "sess-1")

	a, err := New("chat", "s3", sharedFactory(store))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	a.WithCollector(collector)

	err = a.WriteTurn(t.Context(), testConversation("conv-1"), testTurn("done", time.Now()))
	if err == nil {
		t.Fatal("expected write error")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if storageErr.Op != "write" || !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("got op=%s kind=%v", storageErr.Op, storageErr.Kind)
	}
	if got := collector.Snapshot().ArchiveWriteFailure; got != 1 {
		t.Errorf("ArchiveWriteFailure = %d, want 1", got)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		backend string
		wantErr bool
	}{
		{"memory", Options{Backend: "memory"}, "memory", false},
		{"fs default", Options{Path: t.TempDir()}, "fs", false},
		{"fs without path", Options{Backend: "fs"}, "", true},
		{"s3 without bucket", Options{Backend: "s3"}, "", true},
		{"unknown", Options{Backend: "tape"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(t.Context(), tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if a.Backend() != tt.backend {
				t.Errorf("Backend = %q, want %q", a.Backend(), tt.backend)
			}
		})
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/a/b", "bucket", "a/b"},
		{"", "", ""},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tt.in, b, p)
		}
	}
}
