package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/google/uuid"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/hub"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/observability"
)

// Config tunes the gateway's session and liveness behavior (§4.5).
type Config struct {
	SendQueueSize int
	PingInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

// Gateway is the WebSocket fan-in/fan-out layer. It owns no task-protocol
// state: translated frames are published to the bus, and bus events are
// forwarded to whichever sessions are listening.
type Gateway struct {
	cfg     Config
	node    *centrifuge.Node
	bus     bus.Bus
	logger  *slog.Logger
	metrics *observability.MetricsManager

	sessions *registry
}

// New builds a Gateway bound to the given bus.
func New(cfg Config, b bus.Bus, logger *slog.Logger, metrics *observability.MetricsManager) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	node, err := centrifuge.New(centrifuge.Config{
		LogLevel: centrifuge.LogLevelInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to create centrifuge node: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		node:     node,
		bus:      b,
		logger:   logger,
		metrics:  metrics,
		sessions: newRegistry(),
	}
	g.setupHandlers()
	return g, nil
}

// setupHandlers wires the connection lifecycle: every connecting client
// is assigned a client_id (no external auth is in scope here — the tool
// sandbox, provider adapters and UI are out-of-scope collaborators per
// §1), and on connect the gateway registers a session, announces
// connection_established, and starts that session's send loop and
// ping/pong liveness check.
func (g *Gateway) setupHandlers() {
	g.node.OnConnecting(func(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
		clientID := uuid.NewString()
		return centrifuge.ConnectReply{
			Credentials: &centrifuge.Credentials{UserID: clientID},
		}, nil
	})

	g.node.OnConnect(func(client *centrifuge.Client) {
		clientID := client.UserID()
		sess := newSession(clientID, client, g.cfg.SendQueueSize, g.logger, g.metrics)
		g.sessions.add(sess)

		ctx := context.Background()
		sendCtx, cancel := context.WithCancel(ctx)
		go sess.runSendLoop(sendCtx)
		go g.pingLoop(sendCtx, sess)

		established, err := encodeFrame(FrameConnectionEstablished, map[string]string{"client_id": clientID})
		if err == nil {
			sess.enqueue(ctx, established, true)
		}

		client.OnMessage(func(e centrifuge.MessageEvent) {
			sess.touch()
			g.handleInbound(context.Background(), sess, e.Data)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			cancel()
			g.sessions.remove(clientID)
			g.logger.InfoContext(ctx, "client disconnected", "client_id", clientID, "reason", e.Reason)
		})

		g.logger.InfoContext(ctx, "client connected", "client_id", clientID)
	})
}

// pingLoop sends a ping frame every PingInterval and disconnects the
// client if two consecutive pings go unanswered (§4.5).
func (g *Gateway) pingLoop(ctx context.Context, sess *session) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.mu.Lock()
			sess.pendingPings++
			unanswered := sess.pendingPings
			sess.mu.Unlock()

			if unanswered > 2 {
				g.logger.WarnContext(ctx, "closing unresponsive client", "client_id", sess.clientID)
				_ = sess.client.Disconnect(centrifuge.DisconnectForceNoReconnect)
				return
			}
			if ping, err := encodeFrame(FramePing, map[string]any{}); err == nil {
				sess.enqueue(ctx, ping, false)
			}
		}
	}
}

// handleInbound decodes one client frame and acts on it, per §4.5's
// recognized type list.
func (g *Gateway) handleInbound(ctx context.Context, sess *session, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.logger.WarnContext(ctx, "dropping malformed client frame", "client_id", sess.clientID, "error", err)
		return
	}

	switch frame.Type {
	case FrameChatMessage:
		g.publishChatOrTask(ctx, sess, frame.Payload, message.IntentChat, message.Event(""))
	case FrameStartTask:
		g.publishChatOrTask(ctx, sess, frame.Payload, message.IntentStartTask, message.EventPlan)
	case FramePong:
		sess.touch()
	case FramePing:
		if pong, err := encodeFrame(FramePong, map[string]any{}); err == nil {
			sess.enqueue(ctx, pong, false)
		}
	case FrameSubscribe:
		var p subscribePayload
		if json.Unmarshal(frame.Payload, &p) == nil && p.Channel != "" {
			sess.subscribe(p.Channel)
		}
	case FrameUnsubscribe:
		var p subscribePayload
		if json.Unmarshal(frame.Payload, &p) == nil && p.Channel != "" {
			sess.unsubscribe(p.Channel)
		}
	case FrameCancelTask:
		g.publishCancel(ctx, frame.Payload)
	case FrameCommand:
		g.logger.DebugContext(ctx, "received command frame", "client_id", sess.clientID)
	default:
		g.logger.WarnContext(ctx, "unrecognized frame type", "client_id", sess.clientID, "type", frame.Type)
	}
}

func (g *Gateway) publishChatOrTask(ctx context.Context, sess *session, raw json.RawMessage, intent message.Intent, event message.Event) {
	var p chatOrTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.logger.WarnContext(ctx, "malformed chat/task payload", "client_id", sess.clientID, "error", err)
		return
	}
	if p.Content == "" {
		errFrame, _ := encodeFrame(FrameError, message.ErrorPayload{Error: "content must not be empty", Timestamp: time.Now().UTC()})
		sess.enqueue(ctx, errFrame, true)
		return
	}
	if p.TaskID == "" {
		p.TaskID = uuid.NewString()
	}

	var data []byte
	var err error
	if event == "" {
		data, err = message.Encode(message.Message{
			TaskID:    p.TaskID,
			Agent:     sess.clientID,
			Content:   p.Content,
			Intent:    intent,
			Timestamp: time.Now().UTC(),
		})
	} else {
		data, err = message.Encode(message.Task{
			Message: message.Message{
				TaskID:    p.TaskID,
				Agent:     sess.clientID,
				Content:   p.Content,
				Intent:    intent,
				Timestamp: time.Now().UTC(),
			},
			Event: event,
		})
	}
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to encode inbound payload", "error", err)
		return
	}

	if pubErr := g.bus.Publish(ctx, hub.OrchestratorChannel, data); pubErr != nil {
		g.logger.WarnContext(ctx, "failed to publish to orchestrator channel", "error", pubErr)
	}
	if g.metrics != nil {
		g.metrics.IncrementEventsPublished(ctx, string(intent), hub.OrchestratorChannel)
	}
}

func (g *Gateway) publishCancel(ctx context.Context, raw json.RawMessage) {
	var body struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.TaskID == "" {
		return
	}
	data, err := message.Encode(message.Task{
		Message: message.Message{
			TaskID:    body.TaskID,
			Agent:     "gateway",
			Content:   "client requested cancellation",
			Intent:    message.IntentModifyTask,
			Timestamp: time.Now().UTC(),
		},
		Event: message.EventEscalate,
	})
	if err != nil {
		return
	}
	if pubErr := g.bus.Publish(ctx, hub.OrchestratorChannel, data); pubErr != nil {
		g.logger.WarnContext(ctx, "failed to publish cancel_task", "error", pubErr)
	}
}

// Run subscribes to frontend_broadcast and fans every published event out
// to connected sessions (filtered per-task for stream events), and blocks
// until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	sub, err := g.bus.Subscribe(ctx, agentrt.BroadcastChannel)
	if err != nil {
		return fmt.Errorf("gateway: failed to subscribe to broadcast channel: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Receive():
			if !ok {
				return nil
			}
			g.fanOut(ctx, msg.Payload)
		}
	}
}

// taskChannel is the per-session subscription name a client uses to
// receive stream_start/stream_update/stream_end events for one task,
// via a "subscribe" frame (§4.5).
func taskChannel(taskID string) string {
	return "task:" + taskID
}

// fanOut decides which connected sessions should receive a broadcast
// payload. System status updates and task results go to every session —
// ordering per (task_id, agent) is preserved because the bus delivers in
// publish order and each session drains its own queue FIFO. Stream
// events are forwarded only to sessions that subscribed to that task, so
// one busy task's deltas don't compete for every client's queue slot.
func (g *Gateway) fanOut(ctx context.Context, payload []byte) {
	env := message.DecodeEnvelope(payload)

	switch e := env.(type) {
	case message.EnvelopeStreamEvent:
		channel := taskChannel(e.StreamEvent.Data.TaskID)
		for _, sess := range g.sessions.all() {
			if sess.isSubscribed(channel) {
				sess.enqueue(ctx, payload, false)
			}
		}
	case message.EnvelopeTaskResult, message.EnvelopeSystemStatus:
		for _, sess := range g.sessions.all() {
			sess.enqueue(ctx, payload, true)
		}
	default:
		for _, sess := range g.sessions.all() {
			sess.enqueue(ctx, payload, false)
		}
	}
}

// Handler returns the HTTP handler the process should mount the
// WebSocket endpoint on.
func (g *Gateway) Handler() http.Handler {
	return centrifuge.NewWebsocketHandler(g.node, centrifuge.WebsocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	})
}

// SessionCount reports the number of currently connected clients, for
// operator visibility / health checks.
func (g *Gateway) SessionCount() int {
	return g.sessions.count()
}

// Start runs the underlying centrifuge node (required before accepting
// connections).
func (g *Gateway) Start() error {
	return g.node.Run()
}

// Shutdown gracefully stops the centrifuge node.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.node.Shutdown(ctx)
}
