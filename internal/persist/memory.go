package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/szaher/agentstate/internal/state"
)

// MemoryBackend keeps session state in a process-local map. Nothing
// survives a restart; it exists for tests and ephemeral deployments.
// Sessions are cloned on the way in and out so callers never share
// memory with the backend.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*state.SessionState
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]*state.SessionState)}
}

// SaveSession stores a clone of sess, replacing any prior value.
func (b *MemoryBackend) SaveSession(_ context.Context, id string, sess *state.SessionState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[id] = sess.Clone()
	return nil
}

// LoadSession returns a clone of the most recently saved value.
func (b *MemoryBackend) LoadSession(_ context.Context, id string) (*state.SessionState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
	}
	return sess.Clone(), nil
}

// ListSessions returns all stored session ids.
func (b *MemoryBackend) ListSessions(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteSession removes a session; deleting an unknown id is a no-op.
func (b *MemoryBackend) DeleteSession(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}
