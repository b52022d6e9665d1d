package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/szaher/agentstate/internal/state"
)

// Querier is the subset of pgx operations the backend needs. It is
// satisfied by *pgxpool.Pool and by a fake in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores each session as one row with the serialized
// state in a jsonb column. Saves are upserts, so a save is atomic from
// the point of view of a concurrent load.
type PostgresBackend struct {
	db Querier
}

// NewPostgresBackend creates a postgres-backed store over db.
func NewPostgresBackend(db Querier) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// EnsureSchema creates the sessions table if it does not exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

// SaveSession upserts the serialized session state.
func (b *PostgresBackend) SaveSession(ctx context.Context, id string, sess *state.SessionState) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", id, err)
	}

	_, err = b.db.Exec(ctx, `
		INSERT INTO sessions (id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			state      = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session %q: %w", id, err)
	}
	return nil
}

// LoadSession returns the most recently saved state for id.
func (b *PostgresBackend) LoadSession(ctx context.Context, id string) (*state.SessionState, error) {
	var data []byte
	err := b.db.QueryRow(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}

	var sess state.SessionState
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %q: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns every stored session id.
func (b *PostgresBackend) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := b.db.Query(ctx, `SELECT id FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// DeleteSession removes the row for id; unknown ids are a no-op.
func (b *PostgresBackend) DeleteSession(ctx context.Context, id string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}
