package agentrt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

type echoAgent struct {
	received chan message.Message
}

func (e *echoAgent) OnMessage(ctx context.Context, msg message.Message) (*agentrt.Response, error) {
	e.received <- msg
	return nil, nil
}

func TestRuntime_DispatchesChatToOnMessage(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	impl := &echoAgent{received: make(chan message.Message, 1)}
	rt, err := agentrt.New(agentrt.Config{AgentName: "echo", HeartbeatInterval: 50 * time.Millisecond}, b, impl, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rt.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond) // let Run subscribe

	msg := message.Message{
		TaskID:    "t-1",
		Agent:     "user",
		Content:   "hi",
		Intent:    message.IntentChat,
		Timestamp: time.Now().UTC(),
	}
	data, err := message.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), agentrt.Channel("echo"), data))

	select {
	case got := <-impl.received:
		require.Equal(t, "hi", got.Content)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	cancel()
	<-done
}

func TestRuntime_DropsDuplicateMessages(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	impl := &echoAgent{received: make(chan message.Message, 4)}
	rt, err := agentrt.New(agentrt.Config{AgentName: "echo2", HeartbeatInterval: 50 * time.Millisecond}, b, impl, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rt.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	ts := time.Now().UTC()
	msg := message.Message{TaskID: "t-1", Agent: "user", Content: "hi", Intent: message.IntentChat, Timestamp: ts}
	data, err := message.Encode(msg)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), agentrt.Channel("echo2"), data))
	require.NoError(t, b.Publish(context.Background(), agentrt.Channel("echo2"), data)) // exact duplicate

	select {
	case <-impl.received:
	case <-time.After(time.Second):
		t.Fatal("expected first message to be delivered")
	}

	select {
	case <-impl.received:
		t.Fatal("duplicate message should have been dropped")
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestRuntime_RejectsImplWithNoCapabilities(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	_, err := agentrt.New(agentrt.Config{AgentName: "nope"}, b, struct{}{}, nil, nil, nil)
	require.ErrorIs(t, err, agentrt.ErrNoCapabilities)
}
