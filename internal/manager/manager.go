// Package manager exposes the single process-wide entry point for
// session and agent state: lifecycle, agent-state CRUD, conversation
// history, and aggregate statistics. One Manager instance is constructed
// at process start and injected into every consumer; tests construct
// isolated instances of their own.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/szaher/agentstate/internal/state"
	"github.com/szaher/agentstate/internal/store"
	"github.com/szaher/agentstate/internal/telemetry"
)

// Manager mediates all access to session state.
type Manager struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewManager creates a manager over the given store. A nil logger
// discards output; nil metrics get a private registry.
func NewManager(s *store.Store, logger *slog.Logger, metrics *telemetry.Metrics) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	return &Manager{store: s, logger: logger, metrics: metrics}
}

// Metrics exposes the manager's metric set for serving.
func (m *Manager) Metrics() *telemetry.Metrics { return m.metrics }

// CreateSession registers a new session. An empty id gets a generated
// one. Duplicate ids are rejected with state.ErrSessionExists and leave
// the existing session untouched.
func (m *Manager) CreateSession(ctx context.Context, id string, metadata map[string]any) (sess *state.SessionState, err error) {
	defer func() { m.finish(ctx, "create_session", id, err) }()

	if id == "" {
		id = state.NewID()
	}
	if err = state.ValidatePayload("metadata", metadata); err != nil {
		return nil, err
	}

	sess, err = m.store.Create(ctx, id, metadata)
	if err != nil {
		return nil, err
	}
	telemetry.SessionLogger(m.logger, ctx, id).Info("session created")
	return sess, nil
}

// GetSession returns a copy of the session state.
func (m *Manager) GetSession(ctx context.Context, id string) (sess *state.SessionState, err error) {
	defer func() { m.record("get_session", err) }()

	if id == "" {
		return nil, fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	return m.store.Get(ctx, id)
}

// UpdateMetadata replaces the session's metadata wholesale.
func (m *Manager) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) (err error) {
	defer func() { m.finish(ctx, "update_metadata", id, err) }()

	if id == "" {
		return fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	if err = state.ValidatePayload("metadata", metadata); err != nil {
		return err
	}

	return m.store.Update(ctx, id, func(sess *state.SessionState) error {
		sess.Metadata = metadata
		return nil
	})
}

// SetAgentState inserts or wholesale-replaces the agent state under
// agentName. The stored record's AgentName always matches the map key,
// and LastUsed is stamped on every write.
func (m *Manager) SetAgentState(ctx context.Context, sessionID, agentName string, agent state.AgentState) (err error) {
	defer func() { m.finish(ctx, "set_agent_state", sessionID, err) }()

	if sessionID == "" {
		return fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	if agentName == "" {
		return fmt.Errorf("agent name is empty: %w", state.ErrInvalidArgument)
	}
	for field, payload := range map[string]map[string]any{
		"context":       agent.Context,
		"memory":        agent.Memory,
		"configuration": agent.Configuration,
	} {
		if err = state.ValidatePayload(field, payload); err != nil {
			return err
		}
	}

	return m.store.Update(ctx, sessionID, func(sess *state.SessionState) error {
		next := agent.Clone()
		next.AgentName = agentName
		next.LastUsed = time.Now()
		sess.Agents[agentName] = next
		return nil
	})
}

// GetAgentState returns the agent state for (sessionID, agentName).
func (m *Manager) GetAgentState(ctx context.Context, sessionID, agentName string) (agent state.AgentState, err error) {
	defer func() { m.record("get_agent_state", err) }()

	if sessionID == "" || agentName == "" {
		return state.AgentState{}, fmt.Errorf("session id or agent name is empty: %w", state.ErrInvalidArgument)
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return state.AgentState{}, err
	}
	agent, ok := sess.Agents[agentName]
	if !ok {
		return state.AgentState{}, fmt.Errorf("agent %q in session %q: %w", agentName, sessionID, state.ErrAgentNotFound)
	}
	return agent, nil
}

// AddToConversationHistory appends msg to the session's history. A zero
// timestamp is stamped with the current time.
func (m *Manager) AddToConversationHistory(ctx context.Context, sessionID string, msg state.Message) (err error) {
	defer func() { m.finish(ctx, "add_to_history", sessionID, err) }()

	if sessionID == "" {
		return fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	if msg.Role == "" {
		return fmt.Errorf("message role is empty: %w", state.ErrInvalidArgument)
	}
	if err = state.ValidatePayload("meta", msg.Meta); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	return m.store.Update(ctx, sessionID, func(sess *state.SessionState) error {
		sess.ConversationHistory = append(sess.ConversationHistory, msg.Clone())
		return nil
	})
}

// GetConversationHistory returns the session's messages in append order.
func (m *Manager) GetConversationHistory(ctx context.Context, sessionID string) (msgs []state.Message, err error) {
	defer func() { m.record("get_history", err) }()

	if sessionID == "" {
		return nil, fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ConversationHistory, nil
}

// ClearSession destroys a session. Clearing an unknown id is a no-op.
func (m *Manager) ClearSession(ctx context.Context, id string) (err error) {
	defer func() { m.finish(ctx, "clear_session", id, err) }()

	if id == "" {
		return fmt.Errorf("session id is empty: %w", state.ErrInvalidArgument)
	}
	if err = m.store.Remove(ctx, id); err != nil {
		return err
	}
	telemetry.SessionLogger(m.logger, ctx, id).Info("session cleared")
	return nil
}

// ClearAllSessions destroys every session.
func (m *Manager) ClearAllSessions(ctx context.Context) (err error) {
	defer func() { m.finish(ctx, "clear_all_sessions", "", err) }()

	if err = m.store.RemoveAll(ctx); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "all sessions cleared")
	return nil
}

// ListActiveSessions returns the ids in the in-memory index.
func (m *Manager) ListActiveSessions() []string {
	return m.store.List()
}

// Info is the aggregate view served by diagnostics endpoints.
type Info struct {
	TotalSessions int `json:"total_sessions"`
	TotalAgents   int `json:"total_agents"`
	ActiveAgents  int `json:"active_agents"`
}

// StateInfo computes aggregate statistics by full traversal at call
// time; there are no incremental counters to drift.
func (m *Manager) StateInfo() Info {
	var info Info
	m.store.ForEach(func(sess *state.SessionState) {
		info.TotalSessions++
		info.TotalAgents += len(sess.Agents)
		for _, agent := range sess.Agents {
			if agent.IsActive {
				info.ActiveAgents++
			}
		}
	})
	return info
}

// record counts the operation outcome.
func (m *Manager) record(op string, err error) {
	m.metrics.Operations.WithLabelValues(op, outcome(err)).Inc()
}

// finish counts the outcome, refreshes the session gauge, and logs
// failures for mutating operations.
func (m *Manager) finish(ctx context.Context, op, sessionID string, err error) {
	m.record(op, err)
	m.metrics.ActiveSessions.Set(float64(len(m.store.List())))
	if err != nil && !errors.Is(err, state.ErrSessionNotFound) && !errors.Is(err, state.ErrAgentNotFound) {
		telemetry.SessionLogger(m.logger, ctx, sessionID).Warn(op+" failed", "error", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, state.ErrSessionNotFound), errors.Is(err, state.ErrAgentNotFound):
		return "not_found"
	case errors.Is(err, state.ErrSessionExists):
		return "exists"
	case errors.Is(err, state.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}
