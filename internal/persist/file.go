package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/szaher/agentstate/internal/state"
)

const documentVersion = "1.0"

// defaultLockTimeout bounds how long a writer waits for the file lock so
// one stuck write cannot stall every other session's durability path.
const defaultLockTimeout = 5 * time.Second

// FileBackend stores every session in one JSON document on disk. Each
// save is a full read-merge-write cycle finished with a rename, so a
// concurrent reader never observes a truncated document.
type FileBackend struct {
	path        string
	lock        chan struct{}
	lockTimeout time.Duration
}

// FileBackendOption configures a FileBackend.
type FileBackendOption func(*FileBackend)

// WithLockTimeout overrides the bound on waiting for the write lock.
func WithLockTimeout(d time.Duration) FileBackendOption {
	return func(b *FileBackend) { b.lockTimeout = d }
}

// NewFileBackend creates a file backend at path. The file is created on
// first save; an absent file reads as an empty document.
func NewFileBackend(path string, opts ...FileBackendOption) *FileBackend {
	b := &FileBackend{
		path:        path,
		lock:        make(chan struct{}, 1),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// document is the on-disk JSON structure.
type document struct {
	Version  string                         `json:"version"`
	Sessions map[string]*state.SessionState `json:"sessions"`
}

// SaveSession loads the document, replaces the entry for id, and
// atomically rewrites the file.
func (b *FileBackend) SaveSession(ctx context.Context, id string, sess *state.SessionState) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	doc, err := b.read()
	if err != nil {
		return err
	}
	doc.Sessions[id] = sess
	return b.write(doc)
}

// LoadSession reads the whole document and returns the entry for id.
func (b *FileBackend) LoadSession(ctx context.Context, id string) (*state.SessionState, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	sess, ok := doc.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
	}
	return sess, nil
}

// ListSessions returns the ids of every session in the document.
func (b *FileBackend) ListSessions(ctx context.Context) ([]string, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Sessions))
	for id := range doc.Sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteSession removes the entry for id; unknown ids are a no-op.
func (b *FileBackend) DeleteSession(ctx context.Context, id string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	doc, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Sessions[id]; !ok {
		return nil
	}
	delete(doc.Sessions, id)
	return b.write(doc)
}

// acquire takes the file lock, waiting at most lockTimeout.
func (b *FileBackend) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(b.lockTimeout)
	defer timer.Stop()

	select {
	case b.lock <- struct{}{}:
		return func() { <-b.lock }, nil
	case <-timer.C:
		return nil, fmt.Errorf("state file %s: %w", b.path, ErrLockTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// read parses the document. A missing file is an empty document; a
// corrupt file is an error, never silently empty state.
func (b *FileBackend) read() (*document, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &document{Version: documentVersion, Sessions: map[string]*state.SessionState{}}, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", b.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", b.path, err)
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]*state.SessionState{}
	}
	return &doc, nil
}

// write rewrites the document via a temp file in the same directory
// followed by a rename.
func (b *FileBackend) write(doc *document) error {
	doc.Version = documentVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file %s: %w", b.path, err)
	}
	return nil
}
