package state

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	meta := map[string]any{"client": "web", "version": 2}
	sess := New("sess_1", meta)

	if sess.ID != "sess_1" {
		t.Errorf("ID = %q, want %q", sess.ID, "sess_1")
	}
	if sess.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if !sess.LastAccessed.Equal(sess.CreatedAt) {
		t.Errorf("LastAccessed = %v, want %v", sess.LastAccessed, sess.CreatedAt)
	}
	if len(sess.Agents) != 0 {
		t.Errorf("Agents has %d entries, want 0", len(sess.Agents))
	}
	if len(sess.ConversationHistory) != 0 {
		t.Errorf("ConversationHistory has %d entries, want 0", len(sess.ConversationHistory))
	}

	// Metadata must be copied, not aliased.
	meta["client"] = "mutated"
	if sess.Metadata["client"] != "web" {
		t.Errorf("Metadata[\"client\"] = %v, caller mutation leaked in", sess.Metadata["client"])
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	sess := New("sess_1", nil)
	first := sess.LastAccessed

	sess.Touch(first.Add(-time.Hour))
	if !sess.LastAccessed.Equal(first) {
		t.Errorf("LastAccessed moved backwards to %v", sess.LastAccessed)
	}

	later := first.Add(time.Minute)
	sess.Touch(later)
	if !sess.LastAccessed.Equal(later) {
		t.Errorf("LastAccessed = %v, want %v", sess.LastAccessed, later)
	}
}

func TestCloneIsDeep(t *testing.T) {
	sess := New("sess_1", map[string]any{
		"nested": map[string]any{"key": "original"},
		"list":   []any{"a", "b"},
	})
	sess.Agents["planner"] = AgentState{
		AgentName: "planner",
		IsActive:  true,
		Context:   map[string]any{"step": 1},
	}
	sess.ConversationHistory = append(sess.ConversationHistory, Message{
		Role:    "user",
		Content: "hello",
		Meta:    map[string]any{"source": "test"},
	})

	clone := sess.Clone()

	clone.Metadata["nested"].(map[string]any)["key"] = "mutated"
	clone.Metadata["list"].([]any)[0] = "mutated"
	agent := clone.Agents["planner"]
	agent.Context["step"] = 99
	clone.Agents["planner"] = agent
	clone.ConversationHistory[0].Meta["source"] = "mutated"
	clone.ConversationHistory = append(clone.ConversationHistory, Message{Role: "assistant"})

	if sess.Metadata["nested"].(map[string]any)["key"] != "original" {
		t.Error("nested metadata mutation leaked into original")
	}
	if sess.Metadata["list"].([]any)[0] != "a" {
		t.Error("list metadata mutation leaked into original")
	}
	if sess.Agents["planner"].Context["step"] != 1 {
		t.Error("agent context mutation leaked into original")
	}
	if sess.ConversationHistory[0].Meta["source"] != "test" {
		t.Error("message meta mutation leaked into original")
	}
	if len(sess.ConversationHistory) != 1 {
		t.Errorf("history length = %d after clone append, want 1", len(sess.ConversationHistory))
	}
}

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload("metadata", nil); err != nil {
		t.Errorf("nil payload rejected: %v", err)
	}
	if err := ValidatePayload("metadata", map[string]any{"ok": []any{1, "two"}}); err != nil {
		t.Errorf("serializable payload rejected: %v", err)
	}

	err := ValidatePayload("context", map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("channel payload accepted")
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error %v is not ErrInvalidArgument", err)
	}
}

func TestSessionJSONRoundTrip(t *testing.T) {
	sess := New("sess_rt", map[string]any{"client": "web"})
	sess.Agents["writer"] = AgentState{
		AgentName:     "writer",
		IsActive:      true,
		LastUsed:      time.Now().UTC().Truncate(time.Second),
		Context:       map[string]any{"topic": "go"},
		Memory:        map[string]any{"facts": []any{"one"}},
		Configuration: map[string]any{"temperature": 0.2},
	}
	sess.ConversationHistory = append(sess.ConversationHistory, Message{
		Role:      "user",
		Content:   "hi",
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})

	data, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got SessionState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != sess.ID {
		t.Errorf("ID = %q, want %q", got.ID, sess.ID)
	}
	if got.Agents["writer"].AgentName != "writer" {
		t.Errorf("agent name = %q, want %q", got.Agents["writer"].AgentName, "writer")
	}
	if !got.Agents["writer"].IsActive {
		t.Error("IsActive lost in round trip")
	}
	if got.Agents["writer"].Context["topic"] != "go" {
		t.Errorf("context topic = %v, want %q", got.Agents["writer"].Context["topic"], "go")
	}
	if len(got.ConversationHistory) != 1 || got.ConversationHistory[0].Content != "hi" {
		t.Errorf("history = %+v, want one %q message", got.ConversationHistory, "hi")
	}
}
