// Package state defines the session and agent state model shared by the
// session store, the persistence backends, and the state manager.
package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionState is the full state of one conversation. Open-mapping fields
// (Metadata and the AgentState maps) hold JSON-serializable values only;
// they are round-tripped through encoding/json on persistence, so numeric
// values normalize to float64 after a load.
type SessionState struct {
	ID                  string                `json:"id"`
	CreatedAt           time.Time             `json:"created_at"`
	LastAccessed        time.Time             `json:"last_accessed"`
	Metadata            map[string]any        `json:"metadata,omitempty"`
	Agents              map[string]AgentState `json:"agents"`
	ConversationHistory []Message             `json:"conversation_history"`
}

// AgentState is the per-(session, agent) scratch space used by the
// orchestration layer. Context, Memory and Configuration are replaced
// wholesale on update, never merged.
type AgentState struct {
	AgentName     string         `json:"agent_name"`
	IsActive      bool           `json:"is_active"`
	LastUsed      time.Time      `json:"last_used"`
	Context       map[string]any `json:"context,omitempty"`
	Memory        map[string]any `json:"memory,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// Message is one entry of a session's conversation history.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// New constructs an empty session with the given id and metadata.
func New(id string, metadata map[string]any) *SessionState {
	now := time.Now()
	return &SessionState{
		ID:                  id,
		CreatedAt:           now,
		LastAccessed:        now,
		Metadata:            copyMap(metadata),
		Agents:              make(map[string]AgentState),
		ConversationHistory: []Message{},
	}
}

// Touch advances LastAccessed. The timestamp never moves backwards.
func (s *SessionState) Touch(now time.Time) {
	if now.After(s.LastAccessed) {
		s.LastAccessed = now
	}
}

// Clone returns a deep copy safe for independent mutation.
func (s *SessionState) Clone() *SessionState {
	clone := &SessionState{
		ID:                  s.ID,
		CreatedAt:           s.CreatedAt,
		LastAccessed:        s.LastAccessed,
		Metadata:            copyMap(s.Metadata),
		Agents:              make(map[string]AgentState, len(s.Agents)),
		ConversationHistory: make([]Message, len(s.ConversationHistory)),
	}
	for name, agent := range s.Agents {
		clone.Agents[name] = agent.Clone()
	}
	for i, msg := range s.ConversationHistory {
		clone.ConversationHistory[i] = msg.Clone()
	}
	return clone
}

// Clone returns a deep copy of the agent state.
func (a AgentState) Clone() AgentState {
	return AgentState{
		AgentName:     a.AgentName,
		IsActive:      a.IsActive,
		LastUsed:      a.LastUsed,
		Context:       copyMap(a.Context),
		Memory:        copyMap(a.Memory),
		Configuration: copyMap(a.Configuration),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	return Message{
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Meta:      copyMap(m.Meta),
	}
}

// ValidatePayload rejects values that cannot survive a JSON round trip
// (channels, functions, cyclic structures). Called before any mutation so
// a bad payload never reaches the index or a backend.
func ValidatePayload(field string, payload map[string]any) error {
	if payload == nil {
		return nil
	}
	if _, err := json.Marshal(payload); err != nil {
		return fmt.Errorf("%s is not JSON-serializable: %v: %w", field, err, ErrInvalidArgument)
	}
	return nil
}

// copyMap deep-copies an open mapping, descending into nested maps and
// slices so no aliasing survives.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
