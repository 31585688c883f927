package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/centrifugal/centrifuge"

	"github.com/arbiterhub/fabric/internal/observability"
)

// session is one connected client's state (§4.5): its identity, the set
// of extra channels it asked to subscribe to (beyond the universal
// frontend_broadcast), a bounded outbound queue, and liveness bookkeeping
// for the ping/pong check.
type session struct {
	clientID string
	client   *centrifuge.Client

	mu            sync.Mutex
	subscriptions map[string]bool
	lastActivity  time.Time
	pendingPings  int

	queue    chan []byte
	dropped  int
	logger   *slog.Logger
	metrics  *observability.MetricsManager
}

func newSession(clientID string, client *centrifuge.Client, queueSize int, logger *slog.Logger, metrics *observability.MetricsManager) *session {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &session{
		clientID:      clientID,
		client:        client,
		subscriptions: make(map[string]bool),
		lastActivity:  time.Now().UTC(),
		queue:         make(chan []byte, queueSize),
		logger:        logger,
		metrics:       metrics,
	}
}

// enqueue delivers data to the session's send loop without blocking the
// gateway's shared fan-out loop on one slow client (§4.5's backpressure
// contract). When the queue is full, a non-critical event is itself
// dropped and counted; the events already queued are kept. critical is
// never dropped: it makes room by evicting the oldest queued event,
// whatever that event's kind.
func (s *session) enqueue(ctx context.Context, data []byte, critical bool) {
	select {
	case s.queue <- data:
		return
	default:
	}

	if !critical {
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.IncrementBackpressureDropped(ctx, "gateway_send_queue_full")
		}
		s.logger.WarnContext(ctx, "dropping event for slow client", "client_id", s.clientID, "total_dropped", n)
		return
	}

	// Critical frame (errors, task results): make room by dropping the
	// oldest queued item, then enqueue.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- data:
	default:
	}
}

// runSendLoop drains the session's queue and writes each frame to the
// WebSocket connection until ctx is canceled or the client disconnects.
func (s *session) runSendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.queue:
			if !ok {
				return
			}
			if err := s.client.Send(data); err != nil {
				s.logger.DebugContext(ctx, "send failed, client likely disconnected", "client_id", s.clientID, "error", err)
				return
			}
		}
	}
}

func (s *session) subscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[channel] = true
}

func (s *session) unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, channel)
}

func (s *session) isSubscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[channel]
}

func (s *session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
	s.pendingPings = 0
}

// registry is the gateway's set of live sessions, keyed by client_id.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.clientID] = s
}

func (r *registry) remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

func (r *registry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
