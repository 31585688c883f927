package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhub/fabric/internal/bus"
)

// Writer refreshes one agent's liveness key every interval, with a TTL of
// 3×interval so the monitor tolerates clock skew and a single missed tick
// without flapping an agent offline.
type Writer struct {
	bus      bus.Bus
	agent    string
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// NewWriter builds a Writer. ttl is normally 3×interval per the contract;
// callers that need a different ratio (e.g. tests) may pass one directly.
func NewWriter(b bus.Bus, agent string, interval, ttl time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{bus: b, agent: agent, interval: interval, ttl: ttl, logger: logger}
}

// Run refreshes the liveness key immediately, then every interval, until
// ctx is canceled. Individual write failures are logged and retried on
// the next tick rather than stopping the loop — a momentary bus hiccup
// should not make an otherwise healthy agent appear dead sooner than its
// TTL actually requires.
func (w *Writer) Run(ctx context.Context) {
	w.beat(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.beat(ctx)
		}
	}
}

func (w *Writer) beat(ctx context.Context) {
	if err := w.bus.SetWithTTL(ctx, Key(w.agent), Alive, w.ttl); err != nil {
		w.logger.Warn("heartbeat write failed", "agent", w.agent, "error", err)
	}
}
