// Package persist defines the durability contract for session state and
// its pluggable implementations: in-memory, a single JSON file on disk,
// PostgreSQL, and etcd.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/szaher/agentstate/internal/state"
)

// Backend durably stores serialized session state keyed by session id.
// SaveSession replaces the stored value atomically: a concurrent
// LoadSession sees either the prior value or the new one, never a
// partial write. DeleteSession is idempotent.
type Backend interface {
	SaveSession(ctx context.Context, id string, sess *state.SessionState) error
	LoadSession(ctx context.Context, id string) (*state.SessionState, error)
	ListSessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, id string) error
}

// ErrLockTimeout is returned when the file backend cannot acquire its
// write lock within the configured bound.
var ErrLockTimeout = errors.New("timed out waiting for state file lock")

// Kind selects a backend implementation.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindFile     Kind = "file"
	KindPostgres Kind = "postgres"
	KindEtcd     Kind = "etcd"
)

// Options carries the construction-time settings for Open.
type Options struct {
	Kind Kind

	// File backend.
	FilePath string

	// Postgres backend.
	PostgresDSN string

	// Etcd backend.
	EtcdEndpoints   []string
	EtcdNamespace   string
	EtcdDialTimeout time.Duration
}

// Open constructs the configured backend and returns it with a cleanup
// function releasing any held connections.
func Open(ctx context.Context, opts Options) (Backend, func(), error) {
	noop := func() {}

	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryBackend(), noop, nil

	case KindFile:
		if opts.FilePath == "" {
			return nil, nil, fmt.Errorf("file backend: %w: empty path", state.ErrInvalidArgument)
		}
		return NewFileBackend(opts.FilePath), noop, nil

	case KindPostgres:
		pool, err := pgxpool.New(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres backend: %w", err)
		}
		backend := NewPostgresBackend(pool)
		if err := backend.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return backend, pool.Close, nil

	case KindEtcd:
		cli, err := clientv3.New(clientv3.Config{
			Endpoints:   opts.EtcdEndpoints,
			DialTimeout: opts.EtcdDialTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("etcd backend: %w", err)
		}
		return NewEtcdBackend(cli.KV, opts.EtcdNamespace), func() { _ = cli.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q: %w", opts.Kind, state.ErrInvalidArgument)
	}
}
