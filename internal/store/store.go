// Package store owns the canonical in-memory index of active sessions
// and serializes access per session id so no two logical operations on
// the same session interleave in a way that loses an update.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/szaher/agentstate/internal/persist"
	"github.com/szaher/agentstate/internal/state"
)

// Store mediates every read and write of session state. Mutations are
// applied to a clone, persisted, and only committed to the index once
// the durability write succeeds, so a failed write never leaves the
// index ahead of the backend.
type Store struct {
	backend persist.Backend

	mu       sync.RWMutex
	sessions map[string]*state.SessionState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	saveObserver func(time.Duration)
}

// Option configures a Store.
type Option func(*Store)

// WithSaveObserver registers a callback observing the latency of every
// successful durability write.
func WithSaveObserver(fn func(time.Duration)) Option {
	return func(s *Store) { s.saveObserver = fn }
}

// New creates a store over the given persistence backend.
func New(backend persist.Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		sessions: make(map[string]*state.SessionState),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// save persists sess and reports the write latency to the observer.
func (s *Store) save(ctx context.Context, id string, sess *state.SessionState) error {
	start := time.Now()
	if err := s.backend.SaveSession(ctx, id, sess); err != nil {
		return err
	}
	if s.saveObserver != nil {
		s.saveObserver(time.Since(start))
	}
	return nil
}

// sessionLock returns the mutex for id, creating it on first access.
// One lock per session id keeps unrelated sessions from contending.
func (s *Store) sessionLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Create registers a new session under id. It fails with
// state.ErrSessionExists if the id is live in the index or already
// present in the backend; creation on a duplicate id has no side
// effects.
func (s *Store) Create(ctx context.Context, id string, metadata map[string]any) (*state.SessionState, error) {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if s.lookup(id) != nil {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionExists)
	}
	// Cold index: a prior process may have persisted this id.
	hydrated, err := s.hydrate(ctx, id)
	if err != nil {
		return nil, err
	}
	if hydrated != nil {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionExists)
	}

	sess := state.New(id, metadata)
	if err := s.save(ctx, id, sess); err != nil {
		return nil, fmt.Errorf("persist session %q: %w", id, err)
	}
	s.commit(sess)
	return sess.Clone(), nil
}

// Get returns a clone of the session, hydrating a cold index entry from
// the backend before reporting not-found. Reads advance LastAccessed on
// the in-memory record; durability of the new timestamp rides on the
// session's next persisted write.
func (s *Store) Get(ctx context.Context, id string) (*state.SessionState, error) {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		hydrated, err := s.hydrate(ctx, id)
		if err != nil {
			return nil, err
		}
		if hydrated == nil {
			return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
		}
		sess = hydrated
	}

	// Commit a touched clone rather than writing through the live
	// record, which concurrent index readers may be traversing.
	next := sess.Clone()
	next.Touch(time.Now())
	s.commit(next)
	return next.Clone(), nil
}

// Update applies fn to a clone of the session, persists the clone, and
// commits it to the index only when the durability write succeeds. fn
// must not retain references to the clone after returning.
func (s *Store) Update(ctx context.Context, id string, fn func(*state.SessionState) error) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess := s.lookup(id)
	if sess == nil {
		hydrated, err := s.hydrate(ctx, id)
		if err != nil {
			return err
		}
		if hydrated == nil {
			return fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
		}
		sess = hydrated
	}

	next := sess.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Touch(time.Now())

	if err := s.save(ctx, id, next); err != nil {
		return fmt.Errorf("persist session %q: %w", id, err)
	}
	s.commit(next)
	return nil
}

// Remove deletes the session from the backend first, then from the
// index, so a failed backend delete leaves the index unchanged.
// Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.backend.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// RemoveAll deletes every session known to the index or the backend.
func (s *Store) RemoveAll(ctx context.Context) error {
	ids := make(map[string]struct{})

	backendIDs, err := s.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list backend sessions: %w", err)
	}
	for _, id := range backendIDs {
		ids[id] = struct{}{}
	}
	for _, id := range s.List() {
		ids[id] = struct{}{}
	}

	for id := range ids {
		if err := s.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// List returns the ids currently in the in-memory index.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ForEach calls fn for every indexed session while holding the index
// read lock. fn must treat the session as read-only and must not call
// back into the store.
func (s *Store) ForEach(fn func(sess *state.SessionState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		fn(sess)
	}
}

// lookup returns the live index entry, or nil.
func (s *Store) lookup(id string) *state.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// commit installs sess as the canonical copy for its id.
func (s *Store) commit(sess *state.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// hydrate loads id from the backend into the index. It returns
// (nil, nil) when the backend has no such session; any other backend
// failure is surfaced so a flaky backend is never mistaken for an
// absent session. Caller must hold the session lock.
func (s *Store) hydrate(ctx context.Context, id string) (*state.SessionState, error) {
	sess, err := s.backend.LoadSession(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("hydrate session %q: %w", id, err)
	}
	s.commit(sess)
	return sess, nil
}
