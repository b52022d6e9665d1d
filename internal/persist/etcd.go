package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/szaher/agentstate/internal/state"
)

const defaultEtcdNamespace = "agentstate/sessions/"

// EtcdBackend stores each session as one key under a namespace prefix,
// with the serialized state as the value. etcd puts are atomic, so a
// concurrent load never sees a partial write.
type EtcdBackend struct {
	kv     clientv3.KV
	prefix string
}

// NewEtcdBackend creates an etcd-backed store over kv. An empty
// namespace falls back to the default prefix.
func NewEtcdBackend(kv clientv3.KV, namespace string) *EtcdBackend {
	if namespace == "" {
		namespace = defaultEtcdNamespace
	}
	if !strings.HasSuffix(namespace, "/") {
		namespace += "/"
	}
	return &EtcdBackend{kv: kv, prefix: namespace}
}

func (b *EtcdBackend) key(id string) string {
	return b.prefix + id
}

// SaveSession puts the serialized session state.
func (b *EtcdBackend) SaveSession(ctx context.Context, id string, sess *state.SessionState) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", id, err)
	}
	if _, err := b.kv.Put(ctx, b.key(id), string(data)); err != nil {
		return fmt.Errorf("save session %q: %w", id, err)
	}
	return nil
}

// LoadSession returns the most recently saved state for id.
func (b *EtcdBackend) LoadSession(ctx context.Context, id string) (*state.SessionState, error) {
	resp, err := b.kv.Get(ctx, b.key(id))
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("session %q: %w", id, state.ErrSessionNotFound)
	}

	var sess state.SessionState
	if err := json.Unmarshal(resp.Kvs[0].Value, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %q: %w", id, err)
	}
	return &sess, nil
}

// ListSessions returns every session id under the namespace.
func (b *EtcdBackend) ListSessions(ctx context.Context) ([]string, error) {
	resp, err := b.kv.Get(ctx, b.prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ids = append(ids, strings.TrimPrefix(string(kv.Key), b.prefix))
	}
	return ids, nil
}

// DeleteSession removes the key for id; unknown ids are a no-op.
func (b *EtcdBackend) DeleteSession(ctx context.Context, id string) error {
	if _, err := b.kv.Delete(ctx, b.key(id)); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}
