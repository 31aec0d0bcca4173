// Package retention evicts old debug contexts from the aggregator's
// history on a fixed tick.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
	"go.uber.org/zap"
)

// DefaultInterval is how often Run evicts
const DefaultInterval = time.Minute

// History is the view of session history the manager evicts from
type History interface {
	SessionIDs() []string
	Prune(sessionID string, keep func([]*domain.DebugContext) []*domain.DebugContext) (removed int, sessionRemoved bool)
}

// Report summarizes one eviction pass
type Report struct {
	Removed         int      `json:"removed"`
	SessionsRemoved []string `json:"sessions_removed,omitempty"`
}

// Manager applies a RetentionPolicy to a History
type Manager struct {
	history History
	clock   clock.Clock
	logger  *zap.Logger

	mu     sync.RWMutex
	policy domain.RetentionPolicy
}

// Option configures a Manager
type Option func(*Manager)

// WithClock injects the clock ages are measured against
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager for history using policy
func NewManager(history History, policy domain.RetentionPolicy, opts ...Option) *Manager {
	m := &Manager{
		history: history,
		clock:   clock.New(),
		logger:  zap.NewNop(),
		policy:  policy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPolicy replaces the policy used by later passes
func (m *Manager) SetPolicy(p domain.RetentionPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// Policy returns the active policy
func (m *Manager) Policy() domain.RetentionPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// EvictNow runs one pass with the active policy
func (m *Manager) EvictNow() Report {
	return m.Evict(m.Policy())
}

// Evict drops contexts older than now-MaxAge, then trims every session to
// its newest MaxSize contexts. Sessions left empty are removed. Running it
// twice at the same instant removes nothing the second time.
func (m *Manager) Evict(policy domain.RetentionPolicy) Report {
	keep := Keep(policy, m.clock.Now())

	var report Report
	for _, id := range m.history.SessionIDs() {
		removed, gone := m.history.Prune(id, keep)
		report.Removed += removed
		if gone {
			report.SessionsRemoved = append(report.SessionsRemoved, id)
		}
	}
	if report.Removed > 0 || len(report.SessionsRemoved) > 0 {
		m.logger.Debug("retention pass",
			zap.Int("removed", report.Removed),
			zap.Strings("sessions_removed", report.SessionsRemoved),
			zap.Duration("max_age", policy.MaxAge),
			zap.Int("max_size", policy.MaxSize))
	}
	return report
}

// Keep returns the filter Evict applies to one session's history, which
// is ordered oldest first.
func Keep(policy domain.RetentionPolicy, now time.Time) func([]*domain.DebugContext) []*domain.DebugContext {
	cutoff := now.Add(-policy.MaxAge)
	return func(history []*domain.DebugContext) []*domain.DebugContext {
		kept := history
		if policy.MaxAge > 0 {
			kept = lo.Reject(history, func(dc *domain.DebugContext, _ int) bool {
				return dc.Timestamp.Before(cutoff)
			})
		}
		if policy.MaxSize > 0 && len(kept) > policy.MaxSize {
			kept = kept[len(kept)-policy.MaxSize:]
		}
		if len(kept) == len(history) {
			return history
		}
		return append([]*domain.DebugContext(nil), kept...)
	}
}

// Run evicts on every tick of interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := m.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictNow()
		}
	}
}
