package agentrt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/heartbeat"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/observability"
)

const (
	BroadcastChannel  = "frontend_broadcast"
	DeadLetterChannel = "dead_letter"

	defaultDispatchWorkers   = 4
	defaultDispatchQueueSize = 64
)

// Channel returns the inbound bus channel for an agent name.
func Channel(agentName string) string {
	return fmt.Sprintf("%s_channel", agentName)
}

var (
	ErrMissingAgentName   = errors.New("agentrt: agent name is required")
	ErrNoCapabilities     = errors.New("agentrt: implementation handles no intents")
	ErrAlreadyRunning     = errors.New("agentrt: already running")
)

// Config configures a Runtime.
type Config struct {
	AgentName            string
	HeartbeatInterval     time.Duration
	HeartbeatTTL          time.Duration
	DedupeCacheSize       int
	HistorySize           int
	CallTimeout           time.Duration
	DrainTimeout          time.Duration
	PublishRetries        int

	// DispatchWorkers bounds the dispatch worker pool (§5); inbound
	// payloads are sharded across workers by a hash of task_id so that
	// same-task messages stay strictly ordered while unrelated tasks
	// dispatch in parallel.
	DispatchWorkers   int
	DispatchQueueSize int
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = 3 * c.HeartbeatInterval
	}
	if c.DedupeCacheSize <= 0 {
		c.DedupeCacheSize = 1024
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 32
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.PublishRetries <= 0 {
		c.PublishRetries = 3
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = defaultDispatchWorkers
	}
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = defaultDispatchQueueSize
	}
	return c
}

// Runtime drives one agent's lifecycle: heartbeat, subscription,
// dispatch-by-intent, and graceful shutdown.
type Runtime struct {
	cfg    Config
	bus    bus.Bus
	impl   any
	logger *slog.Logger
	tracer *observability.TraceManager
	metrics *observability.MetricsManager

	dedupe  *dedupeSet
	history *historyStore

	running bool
}

// New builds a Runtime. impl must implement at least one of
// MessageHandler, TaskHandler, TaskResultHandler, ToolResponseHandler.
func New(cfg Config, b bus.Bus, impl any, logger *slog.Logger, tracer *observability.TraceManager, metrics *observability.MetricsManager) (*Runtime, error) {
	if cfg.AgentName == "" {
		return nil, ErrMissingAgentName
	}
	if !implementsAnyCapability(impl) {
		return nil, ErrNoCapabilities
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Runtime{
		cfg:     cfg,
		bus:     b,
		impl:    impl,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
		dedupe:  newDedupeSet(cfg.DedupeCacheSize),
		history: newHistoryStore(cfg.HistorySize),
	}, nil
}

func implementsAnyCapability(impl any) bool {
	if _, ok := impl.(MessageHandler); ok {
		return true
	}
	if _, ok := impl.(TaskHandler); ok {
		return true
	}
	if _, ok := impl.(TaskResultHandler); ok {
		return true
	}
	if _, ok := impl.(ToolResponseHandler); ok {
		return true
	}
	return false
}

// Run connects, announces notes, starts the heartbeat loop, and processes
// inbound payloads until ctx is canceled or SIGINT/SIGTERM arrives. It
// blocks until shutdown completes.
func (r *Runtime) Run(ctx context.Context) error {
	if r.running {
		return ErrAlreadyRunning
	}
	r.running = true
	defer func() { r.running = false }()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if np, ok := r.impl.(NotesProvider); ok {
		notes := np.GetNotes(ctx)
		r.publishNotes(ctx, notes)
	}

	writer := heartbeat.NewWriter(r.bus, r.cfg.AgentName, r.cfg.HeartbeatInterval, r.cfg.HeartbeatTTL, r.logger)
	go writer.Run(ctx)

	sub, err := r.bus.Subscribe(ctx, Channel(r.cfg.AgentName))
	if err != nil {
		return fmt.Errorf("agentrt: subscribe failed: %w", err)
	}
	defer sub.Close()

	r.logger.InfoContext(ctx, "agent started", "agent", r.cfg.AgentName,
		"dispatch_workers", r.cfg.DispatchWorkers)

	queues, wg := r.startDispatchPool(ctx)

	for {
		select {
		case <-ctx.Done():
			r.drainPool(queues, wg)
			r.logger.InfoContext(context.Background(), "agent shutting down", "agent", r.cfg.AgentName)
			return nil
		case msg, ok := <-sub.Receive():
			if !ok {
				r.drainPool(queues, wg)
				return nil
			}
			r.routeToWorker(ctx, queues, msg.Payload)
		}
	}
}

// startDispatchPool launches the bounded dispatch worker pool (§5): each
// worker drains its own queue serially, so work routed to the same worker
// — i.e. the same task_id — is processed strictly in order, while the
// pool as a whole processes up to DispatchWorkers tasks concurrently.
func (r *Runtime) startDispatchPool(ctx context.Context) ([]chan []byte, *sync.WaitGroup) {
	queues := make([]chan []byte, r.cfg.DispatchWorkers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan []byte, r.cfg.DispatchQueueSize)
		wg.Add(1)
		go func(worker int, q <-chan []byte) {
			defer wg.Done()
			for payload := range q {
				r.dispatch(ctx, payload)
			}
		}(i, queues[i])
	}
	return queues, &wg
}

// routeToWorker hashes the payload's task_id with fnv and sends it to the
// corresponding worker's queue. A full queue is treated as backpressure
// and the payload is dropped rather than blocking the receive loop (§7).
func (r *Runtime) routeToWorker(ctx context.Context, queues []chan []byte, payload []byte) {
	idx := partitionFor(payload, len(queues))
	select {
	case queues[idx] <- payload:
	default:
		r.logger.WarnContext(ctx, "dispatch queue full, dropping message",
			"agent", r.cfg.AgentName, "worker", idx)
		if r.metrics != nil {
			r.metrics.IncrementBackpressureDropped(ctx, "dispatch_queue_full")
		}
	}
}

// drainPool closes every worker queue and waits up to DrainTimeout for
// in-flight dispatches to finish. Safe to call once the Run goroutine has
// stopped sending, since it is the sole sender on each queue.
func (r *Runtime) drainPool(queues []chan []byte, wg *sync.WaitGroup) {
	for _, q := range queues {
		close(q)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.cfg.DrainTimeout):
	}
}

// taskIDProbe peeks at a payload's task_id without fully decoding the
// envelope, mirroring the discriminator probe in message.DecodeEnvelope.
type taskIDProbe struct {
	TaskID string `json:"task_id"`
}

// partitionFor returns a stable worker index for payload's task_id, so
// every message for a given task lands on the same worker and dispatches
// in order. Payloads with no parseable task_id fall back to worker 0.
func partitionFor(payload []byte, workers int) int {
	if workers <= 1 {
		return 0
	}
	var probe taskIDProbe
	if err := json.Unmarshal(payload, &probe); err != nil || probe.TaskID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(probe.TaskID))
	return int(h.Sum32() % uint32(workers))
}

func (r *Runtime) publishNotes(ctx context.Context, notes string) {
	msg := message.Message{
		TaskID:    "notes",
		Agent:     r.cfg.AgentName,
		Content:   notes,
		Intent:    message.IntentChat,
		Timestamp: time.Now().UTC(),
	}
	data, err := message.Encode(msg)
	if err != nil {
		r.logger.Error("failed to encode notes payload", "error", err)
		return
	}
	if err := r.publishWithRetry(ctx, Channel(r.cfg.AgentName), data); err != nil {
		r.logger.Warn("failed to publish notes", "error", err)
	}
}

// publishWithRetry tries up to PublishRetries times on any publish error,
// waiting 100ms longer after each failed attempt (100ms, 200ms, ...), then
// emits an error payload to the sender's own channel and gives up.
func (r *Runtime) publishWithRetry(ctx context.Context, channel string, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.PublishRetries; attempt++ {
		if err := r.bus.Publish(ctx, channel, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}

	errPayload := message.ErrorPayload{
		Agent:     r.cfg.AgentName,
		Error:     lastErr.Error(),
		Timestamp: time.Now().UTC(),
	}
	if data, encErr := message.Encode(errPayload); encErr == nil {
		_ = r.bus.Publish(ctx, Channel(r.cfg.AgentName), data)
	}
	return lastErr
}

// contentDigest produces a short fingerprint for the history ring and for
// the orchestrator's near-duplicate detection.
func contentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
