package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/szaher/agentstate/internal/state"
)

func tempStatePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "agentstate.json")
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := tempStatePath(t)
	ctx := context.Background()

	writer := NewFileBackend(path)
	sess := newTestSession("sess_rt")
	if err := writer.SaveSession(ctx, "sess_rt", sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// A freshly constructed backend at the same path must see the write.
	reader := NewFileBackend(path)
	got, err := reader.LoadSession(ctx, "sess_rt")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID != "sess_rt" {
		t.Errorf("ID = %q, want %q", got.ID, "sess_rt")
	}
	if got.Metadata["client"] != "test" {
		t.Errorf("metadata = %v, want %q", got.Metadata["client"], "test")
	}
	if got.Agents["planner"].AgentName != "planner" {
		t.Errorf("agent name = %q, want %q", got.Agents["planner"].AgentName, "planner")
	}
	if len(got.ConversationHistory) != 1 || got.ConversationHistory[0].Content != "hello" {
		t.Errorf("history = %+v, want one %q message", got.ConversationHistory, "hello")
	}
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	backend := NewFileBackend(tempStatePath(t))
	ctx := context.Background()

	ids, err := backend.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions on absent file: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ListSessions = %v, want empty", ids)
	}

	_, err = backend.LoadSession(ctx, "sess_1")
	if !errors.Is(err, state.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := tempStatePath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	backend := NewFileBackend(path)
	ctx := context.Background()

	if _, err := backend.LoadSession(ctx, "sess_1"); err == nil {
		t.Error("LoadSession on corrupt file returned nil error")
	}
	if err := backend.SaveSession(ctx, "sess_1", newTestSession("sess_1")); err == nil {
		t.Error("SaveSession on corrupt file returned nil error")
	}
}

func TestFileBackendMergePreservesOtherSessions(t *testing.T) {
	path := tempStatePath(t)
	backend := NewFileBackend(path)
	ctx := context.Background()

	if err := backend.SaveSession(ctx, "sess_a", newTestSession("sess_a")); err != nil {
		t.Fatalf("SaveSession(sess_a): %v", err)
	}
	if err := backend.SaveSession(ctx, "sess_b", newTestSession("sess_b")); err != nil {
		t.Fatalf("SaveSession(sess_b): %v", err)
	}

	ids, err := backend.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ListSessions returned %d ids, want 2", len(ids))
	}
}

func TestFileBackendDeleteUnknownIsNoop(t *testing.T) {
	backend := NewFileBackend(tempStatePath(t))
	if err := backend.DeleteSession(context.Background(), "ghost"); err != nil {
		t.Errorf("DeleteSession on unknown id: %v", err)
	}
}

func TestFileBackendDelete(t *testing.T) {
	backend := NewFileBackend(tempStatePath(t))
	ctx := context.Background()

	if err := backend.SaveSession(ctx, "sess_a", newTestSession("sess_a")); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := backend.DeleteSession(ctx, "sess_a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := backend.LoadSession(ctx, "sess_a"); !errors.Is(err, state.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestFileBackendLockTimeout(t *testing.T) {
	backend := NewFileBackend(tempStatePath(t), WithLockTimeout(20*time.Millisecond))

	// Hold the lock so the save cannot acquire it.
	backend.lock <- struct{}{}
	defer func() { <-backend.lock }()

	err := backend.SaveSession(context.Background(), "sess_a", newTestSession("sess_a"))
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("error = %v, want ErrLockTimeout", err)
	}
}

func TestFileBackendContextCancel(t *testing.T) {
	backend := NewFileBackend(tempStatePath(t))

	backend.lock <- struct{}{}
	defer func() { <-backend.lock }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.SaveSession(ctx, "sess_a", newTestSession("sess_a"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
