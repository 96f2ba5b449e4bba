package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/confluence-stream/backend/internal/model"
)

const (
	// DefaultSweepInterval is how often the monitor looks for stale sessions.
	DefaultSweepInterval = 30 * time.Second

	// DefaultStaleThreshold is the idle time after which a session is evicted.
	// Must exceed the sweep interval plus the client ping cadence.
	DefaultStaleThreshold = 60 * time.Second
)

// MonitorConfig holds configuration for the heartbeat monitor.
type MonitorConfig struct {
	Interval       time.Duration
	StaleThreshold time.Duration
}

// Monitor periodically evicts sessions that stopped signaling liveness and
// closes their connections.
type Monitor struct {
	registry *Registry
	config   MonitorConfig
	logger   *slog.Logger

	mu      sync.RWMutex
	onEvict func(model.Session)
}

// NewMonitor creates a heartbeat monitor over registry.
func NewMonitor(registry *Registry, config MonitorConfig, logger *slog.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultStaleThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "heartbeat"),
	}
}

// SetOnEvict sets the callback invoked after a session has been evicted.
func (m *Monitor) SetOnEvict(callback func(model.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = callback
}

// Config returns the monitor configuration after defaults were applied.
func (m *Monitor) Config() MonitorConfig {
	return m.config
}

// Run sweeps on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.logger.Info("Heartbeat monitor started",
		"interval", m.config.Interval,
		"stale_threshold", m.config.StaleThreshold)

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.registry.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Sweep evicts every session that is stale at now and returns how many were
// evicted. The registry entry is removed directly rather than through the
// connection's close path, which then finds nothing to remove.
func (m *Monitor) Sweep(now time.Time) int {
	m.mu.RLock()
	onEvict := m.onEvict
	m.mu.RUnlock()

	evicted := 0
	for id := range m.registry.Stale(m.config.StaleThreshold, now) {
		sess, ok := m.registry.RemoveIfStale(id, m.config.StaleThreshold, now)
		if !ok {
			continue
		}

		m.logger.Info("Session timed out, closing",
			"session_id", id,
			"idle", sess.Idle(now).Round(time.Millisecond))

		if sess.Conn != nil {
			if err := sess.Conn.Close(); err != nil {
				m.logger.Debug("Close after eviction failed", "session_id", id, "error", err)
			}
		}

		if onEvict != nil {
			onEvict(sess)
		}
		evicted++
	}

	if evicted > 0 {
		m.logger.Info("Evicted stale sessions",
			"count", evicted,
			"remaining", m.registry.Count())
	}
	return evicted
}
