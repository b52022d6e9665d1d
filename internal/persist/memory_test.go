package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/szaher/agentstate/internal/state"
)

func newTestSession(id string) *state.SessionState {
	sess := state.New(id, map[string]any{"client": "test"})
	sess.Agents["planner"] = state.AgentState{
		AgentName: "planner",
		IsActive:  true,
		LastUsed:  time.Now().UTC(),
		Context:   map[string]any{"step": "outline"},
	}
	sess.ConversationHistory = append(sess.ConversationHistory, state.Message{
		Role:      "user",
		Content:   "hello",
		Timestamp: time.Now().UTC(),
	})
	return sess
}

func TestMemoryBackendSaveLoad(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	sess := newTestSession("sess_1")
	if err := backend.SaveSession(ctx, "sess_1", sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := backend.LoadSession(ctx, "sess_1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.ID != "sess_1" {
		t.Errorf("ID = %q, want %q", got.ID, "sess_1")
	}
	if got.Agents["planner"].Context["step"] != "outline" {
		t.Errorf("agent context = %v, want %q", got.Agents["planner"].Context["step"], "outline")
	}
	if len(got.ConversationHistory) != 1 {
		t.Errorf("history length = %d, want 1", len(got.ConversationHistory))
	}
}

func TestMemoryBackendIsolation(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	sess := newTestSession("sess_1")
	if err := backend.SaveSession(ctx, "sess_1", sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Mutating the saved value must not change the stored copy.
	sess.Metadata["client"] = "mutated"

	got, err := backend.LoadSession(ctx, "sess_1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Metadata["client"] != "test" {
		t.Errorf("stored metadata = %v, caller mutation leaked in", got.Metadata["client"])
	}

	// Mutating a loaded value must not change the stored copy either.
	got.Metadata["client"] = "mutated"
	again, err := backend.LoadSession(ctx, "sess_1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if again.Metadata["client"] != "test" {
		t.Errorf("stored metadata = %v, loaded-value mutation leaked in", again.Metadata["client"])
	}
}

func TestMemoryBackendLoadMissing(t *testing.T) {
	backend := NewMemoryBackend()

	_, err := backend.LoadSession(context.Background(), "nope")
	if !errors.Is(err, state.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryBackendListAndDelete(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	for _, id := range []string{"sess_a", "sess_b"} {
		if err := backend.SaveSession(ctx, id, newTestSession(id)); err != nil {
			t.Fatalf("SaveSession(%q): %v", id, err)
		}
	}

	ids, err := backend.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListSessions returned %d ids, want 2", len(ids))
	}

	if err := backend.DeleteSession(ctx, "sess_a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	// Deleting an unknown id is a no-op.
	if err := backend.DeleteSession(ctx, "sess_a"); err != nil {
		t.Fatalf("repeat DeleteSession: %v", err)
	}

	ids, err = backend.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sess_b" {
		t.Errorf("ListSessions = %v, want [sess_b]", ids)
	}
}
