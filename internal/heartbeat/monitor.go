package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

// Monitor derives system readiness from the expected agents' liveness
// keys and publishes system_status_update payloads: periodically at
// interval/2, and immediately whenever any agent's online/offline state
// changes (edge-triggered), per §4.3.
type Monitor struct {
	bus      bus.Bus
	agents   []string
	interval time.Duration
	logger   *slog.Logger

	onTransition func(agent string, status Status)

	mu   sync.RWMutex
	last map[string]Status
}

// NewMonitor builds a Monitor over the given set of expected agent names.
func NewMonitor(b bus.Bus, agents []string, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		bus:      b,
		agents:   agents,
		interval: interval,
		logger:   logger,
		last:     make(map[string]Status),
	}
}

// OnTransition registers a callback invoked whenever an agent's derived
// status flips; used to drive metrics (heartbeat_misses, agents_online).
func (m *Monitor) OnTransition(fn func(agent string, status Status)) {
	m.onTransition = fn
}

// Run polls liveness keys at a fine grain to catch edge transitions as
// soon as they're observable, and additionally guarantees a publish at
// least every interval/2 regardless of whether anything changed.
func (m *Monitor) Run(ctx context.Context) error {
	pollEvery := m.interval / 10
	if pollEvery < 500*time.Millisecond {
		pollEvery = 500 * time.Millisecond
	}
	periodicEvery := m.interval / 2

	pollTicker := time.NewTicker(pollEvery)
	defer pollTicker.Stop()
	periodicTicker := time.NewTicker(periodicEvery)
	defer periodicTicker.Stop()

	// Publish an initial view immediately so subscribers never wait a
	// full interval for the first status.
	m.tick(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTicker.C:
			m.tick(ctx, false)
		case <-periodicTicker.C:
			m.tick(ctx, true)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, forcePublish bool) {
	statuses, changed := m.computeStatuses(ctx)
	if !forcePublish && !changed {
		return
	}
	m.publish(ctx, statuses)
}

func (m *Monitor) computeStatuses(ctx context.Context) (map[string]Status, bool) {
	statuses := make(map[string]Status, len(m.agents))
	changed := false

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, agent := range m.agents {
		_, ok, err := m.bus.Get(ctx, Key(agent))
		status := StatusOffline
		if err == nil && ok {
			status = StatusOnline
		}
		statuses[agent] = status

		if prev, seen := m.last[agent]; !seen || prev != status {
			changed = true
			m.last[agent] = status
			if seen && m.onTransition != nil {
				m.onTransition(agent, status)
			}
		}
	}
	return statuses, changed
}

func (m *Monitor) publish(ctx context.Context, statuses map[string]Status) {
	agentStatus := make(map[string]string, len(statuses))
	ready := len(statuses) > 0
	for agent, status := range statuses {
		agentStatus[agent] = string(status)
		if status != StatusOnline {
			ready = false
		}
	}

	update := message.SystemStatusUpdate{
		AgentStatus: agentStatus,
		SystemReady: ready,
		Timestamp:   time.Now().UTC(),
	}
	data, err := message.Encode(update)
	if err != nil {
		m.logger.Error("failed to encode system status update", "error", err)
		return
	}
	if err := m.bus.Publish(ctx, Channel, data); err != nil {
		m.logger.Warn("failed to publish system status update", "error", err)
	}
}
