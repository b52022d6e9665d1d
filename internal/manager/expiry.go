package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/szaher/agentstate/internal/state"
	"github.com/szaher/agentstate/internal/telemetry"
)

// ExpiryPolicy configures the optional background sweep removing idle
// sessions. A zero TTL disables expiry entirely; sessions then live
// until an explicit clear.
type ExpiryPolicy struct {
	TTL      time.Duration
	Schedule string // cron spec; defaults to "@every 1m"
}

// StartExpiry runs the sweep on the policy's schedule and returns a
// stop function that blocks until any in-flight sweep finishes.
func (m *Manager) StartExpiry(policy ExpiryPolicy) (func(), error) {
	if policy.TTL <= 0 {
		return func() {}, nil
	}
	schedule := policy.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := m.SweepExpired(context.Background(), policy.TTL); err != nil {
			m.logger.Warn("expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("expiry schedule %q: %w", schedule, err)
	}
	c.Start()
	m.logger.Info("expiry sweep started", "ttl", policy.TTL.String(), "schedule", schedule)

	return func() { <-c.Stop().Done() }, nil
}

// SweepExpired removes every session idle for longer than ttl and
// returns how many were removed. It is the only path besides an
// explicit clear by which a session ceases to exist.
func (m *Manager) SweepExpired(ctx context.Context, ttl time.Duration) (removed int, err error) {
	defer func() { m.finish(ctx, "sweep_expired", "", err) }()

	cutoff := time.Now().Add(-ttl)

	var expired []string
	m.store.ForEach(func(sess *state.SessionState) {
		if sess.LastAccessed.Before(cutoff) {
			expired = append(expired, sess.ID)
		}
	})

	for _, id := range expired {
		if err = m.store.Remove(ctx, id); err != nil {
			return removed, err
		}
		removed++
		telemetry.SessionLogger(m.logger, ctx, id).Info("session expired", "ttl", ttl.String())
	}
	return removed, nil
}
