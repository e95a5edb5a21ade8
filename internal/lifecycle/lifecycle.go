// Package lifecycle implements the Lifecycle Manager (C7): registration,
// heartbeat, staleness cleanup, and unregistration on top of
// internal/registry, plus the cron-scheduled cleanup loop. Grounded on
// the teacher/pack's use of a cron-style scheduler (robfig/cron/v3,
// imported for parsing in Will-Luck-Docker-Sentinel's settings API;
// generalized here to its primary purpose, scheduling a recurring job).
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/telemetry"
)

// Config holds the staleness/cleanup tunables from spec.md §4.2 / §6.
type Config struct {
	HeartbeatTimeout time.Duration
	CleanupInterval  time.Duration
	CleanupMinThresh time.Duration
}

// Manager wraps a Registry with the cron-scheduled cleanup job.
type Manager struct {
	reg    *registry.Registry
	cfg    Config
	logger *slog.Logger

	cron *cron.Cron
}

// New constructs a Manager. Call Start to begin the cleanup loop.
func New(reg *registry.Registry, cfg Config, logger *slog.Logger) *Manager {
	if cfg.CleanupInterval < time.Second {
		cfg.CleanupInterval = time.Second
	}
	if cfg.CleanupMinThresh < time.Second {
		cfg.CleanupMinThresh = time.Second
	}
	return &Manager{reg: reg, cfg: cfg, logger: logger}
}

// Register, Heartbeat, UpdateMetrics, Unregister, List, and Get simply
// delegate to the underlying registry; Manager's own value-add is the
// cleanup loop below.
func (m *Manager) Register(ctx context.Context, reg registry.Registration, agentKeyHash string) (registry.Outcome, error) {
	return m.reg.Register(ctx, reg, agentKeyHash)
}

func (m *Manager) Heartbeat(ctx context.Context, agentID string) (*registry.Info, error) {
	return m.reg.Heartbeat(ctx, agentID)
}

func (m *Manager) UpdateMetrics(ctx context.Context, agentID string, partial registry.Metrics) (*registry.Metrics, error) {
	return m.reg.UpdateMetrics(ctx, agentID, partial)
}

func (m *Manager) Unregister(ctx context.Context, agentID string) error {
	return m.reg.Unregister(ctx, agentID)
}

func (m *Manager) List(filter registry.Filter) []*registry.Info {
	return m.reg.List(filter)
}

func (m *Manager) Get(agentID string) (*registry.Info, error) {
	return m.reg.Get(agentID)
}

// AgentTypes returns the distinct set of registered agent_type values.
func (m *Manager) AgentTypes() []string {
	return m.reg.AgentTypes()
}

// HeartbeatTimeout exposes the configured staleness window so callers
// outside this package (the public discovery surface) can compute
// alive/dead status without duplicating the cleanup tunables.
func (m *Manager) HeartbeatTimeout() time.Duration {
	return m.cfg.HeartbeatTimeout
}

// staleThreshold is max(min_threshold, 2*heartbeat_timeout), per spec.md §4.2.
func (cfg Config) staleThreshold() time.Duration {
	twice := 2 * cfg.HeartbeatTimeout
	if cfg.CleanupMinThresh > twice {
		return cfg.CleanupMinThresh
	}
	return twice
}

// runCleanup scans all stored agents and unregisters those whose
// last_seen predates the stale threshold. Entries with a zero/unparsable
// LastSeen are skipped, never deleted; the loop continues past
// per-iteration errors so a single failure cannot wedge the whole pass.
func (m *Manager) runCleanup(ctx context.Context) {
	threshold := m.cfg.staleThreshold()
	now := time.Now()
	removed := 0

	for _, info := range m.reg.List(registry.Filter{}) {
		if info.LastSeen.IsZero() {
			continue
		}
		if now.Sub(info.LastSeen) <= threshold {
			continue
		}
		if err := m.reg.Unregister(ctx, info.AgentID); err != nil {
			if m.logger != nil {
				m.logger.Warn("cleanup: failed to unregister stale agent",
					"agent_id", info.AgentID, "error", err)
			}
			continue
		}
		removed++
	}

	if removed > 0 {
		telemetry.CleanupRemovedTotal.Add(float64(removed))
		if m.logger != nil {
			m.logger.Info("cleanup removed stale agents", "count", removed)
		}
	}
}

// Start schedules the cleanup loop at CleanupInterval and returns. Stop
// must be called to release the cron scheduler's goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithSeconds())
	spec := intervalToCronSpec(m.cfg.CleanupInterval)
	_, err := m.cron.AddFunc(spec, func() { m.runCleanup(ctx) })
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the cleanup loop, waiting for any in-flight run to finish.
func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// intervalToCronSpec builds a "@every" spec from a plain interval so
// callers configure cleanup_interval as a duration, not a cron string.
func intervalToCronSpec(d time.Duration) string {
	return "@every " + d.String()
}
