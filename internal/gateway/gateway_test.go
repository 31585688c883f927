package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(queueSize int) *session {
	return &session{
		clientID:      "client-1",
		subscriptions: make(map[string]bool),
		lastActivity:  time.Now().UTC(),
		queue:         make(chan []byte, queueSize),
		logger:        testLogger(),
	}
}

func TestSessionEnqueue_DropsOldestNonCriticalWhenFull(t *testing.T) {
	s := newTestSession(2)
	s.enqueue(context.Background(), []byte("a"), false)
	s.enqueue(context.Background(), []byte("b"), false)

	// queue is full; a third non-critical frame is dropped, not blocked
	s.enqueue(context.Background(), []byte("c"), false)
	require.Len(t, s.queue, 2)
	require.Equal(t, 1, s.dropped)
}

func TestSessionEnqueue_CriticalEvictsOldestToMakeRoom(t *testing.T) {
	s := newTestSession(1)
	s.enqueue(context.Background(), []byte("a"), false)
	require.Len(t, s.queue, 1)

	s.enqueue(context.Background(), []byte("critical"), true)
	require.Len(t, s.queue, 1)
	require.Equal(t, []byte("critical"), <-s.queue)
}

func TestSessionSubscriptions(t *testing.T) {
	s := newTestSession(4)
	require.False(t, s.isSubscribed("task:1"))
	s.subscribe("task:1")
	require.True(t, s.isSubscribed("task:1"))
	s.unsubscribe("task:1")
	require.False(t, s.isSubscribed("task:1"))
}

func TestRegistry_AddRemoveCount(t *testing.T) {
	r := newRegistry()
	require.Equal(t, 0, r.count())

	r.add(newTestSession(4))
	require.Equal(t, 1, r.count())

	r.remove("client-1")
	require.Equal(t, 0, r.count())
}

func TestFanOut_StreamEventOnlyReachesSubscribedSessions(t *testing.T) {
	g := &Gateway{sessions: newRegistry()}

	subscribed := newTestSession(4)
	subscribed.clientID = "subscribed"
	subscribed.subscribe(taskChannel("task-1"))
	g.sessions.add(subscribed)

	unsubscribed := newTestSession(4)
	unsubscribed.clientID = "unsubscribed"
	g.sessions.add(unsubscribed)

	payload, err := message.Encode(message.StreamEvent{
		Kind: message.StreamUpdate,
		Data: message.StreamEventData{TaskID: "task-1", Agent: "moderator", Delta: "partial"},
	})
	require.NoError(t, err)

	g.fanOut(context.Background(), payload)

	require.Len(t, subscribed.queue, 1)
	require.Len(t, unsubscribed.queue, 0)
}

func TestFanOut_TaskResultReachesEverySession(t *testing.T) {
	g := &Gateway{sessions: newRegistry()}

	a := newTestSession(4)
	a.clientID = "a"
	b := newTestSession(4)
	b.clientID = "b"
	g.sessions.add(a)
	g.sessions.add(b)

	tr := message.TaskResult{
		Task: message.Task{
			Message: message.Message{TaskID: "task-1", Intent: message.IntentModifyTask},
			Event:   message.EventComplete,
		},
		Outcome: message.OutcomeCompleted,
	}
	payload, err := message.Encode(tr)
	require.NoError(t, err)

	g.fanOut(context.Background(), payload)

	require.Len(t, a.queue, 1)
	require.Len(t, b.queue, 1)
}

func TestPublishChatOrTask_GeneratesTaskIDAndPublishes(t *testing.T) {
	b := bus.NewMemoryBus()
	g := &Gateway{bus: b, sessions: newRegistry(), logger: nil}
	g.logger = testLogger()

	sub, err := b.Subscribe(context.Background(), "coordinator_channel")
	require.NoError(t, err)
	defer sub.Close()

	sess := newTestSession(4)
	sess.clientID = "client-1"

	raw, err := json.Marshal(chatOrTaskPayload{Content: "hello"})
	require.NoError(t, err)

	g.publishChatOrTask(context.Background(), sess, raw, message.IntentChat, message.Event(""))

	select {
	case msg := <-sub.Receive():
		decoded, err := message.DecodeMessage(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, "hello", decoded.Content)
		require.NotEmpty(t, decoded.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected published message")
	}
}

func TestPublishChatOrTask_EmptyContentEmitsErrorFrame(t *testing.T) {
	b := bus.NewMemoryBus()
	g := &Gateway{bus: b, sessions: newRegistry(), logger: testLogger()}

	sess := newTestSession(4)
	sess.clientID = "client-1"

	raw, err := json.Marshal(chatOrTaskPayload{Content: ""})
	require.NoError(t, err)

	g.publishChatOrTask(context.Background(), sess, raw, message.IntentChat, message.Event(""))

	require.Len(t, sess.queue, 1)
	var frame Frame
	require.NoError(t, json.Unmarshal(<-sess.queue, &frame))
	require.Equal(t, FrameError, frame.Type)
}
