package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

func TestToolExecutor_OnToolResponse_PublishesCompletionToRequester(t *testing.T) {
	b := bus.NewMemoryBus()
	te := NewToolExecutor("tool_executor", b, nil, nil)

	sub, err := b.Subscribe(context.Background(), agentrt.Channel("moderator"))
	require.NoError(t, err)
	defer sub.Close()

	msg := message.Message{
		TaskID: "t1", Agent: "moderator", Content: "echo hello world",
		Intent: message.IntentToolExecute, Timestamp: time.Now().UTC(),
	}

	resp, err := te.OnToolResponse(context.Background(), msg)
	require.NoError(t, err)
	require.Nil(t, resp)

	select {
	case out := <-sub.Receive():
		env := message.DecodeEnvelope(out.Payload)
		em, ok := env.(message.EnvelopeMessage)
		require.True(t, ok)
		require.Equal(t, "echo: hello world", em.Message.Content)
		require.Equal(t, message.IntentToolExecute, em.Message.Intent)
	case <-time.After(time.Second):
		t.Fatal("expected tool completion")
	}
}

func TestToolExecutor_NilToolsRegistersEcho(t *testing.T) {
	te := NewToolExecutor("tool_executor", bus.NewMemoryBus(), nil, nil)
	tool, ok := te.tools["echo"]
	require.True(t, ok)
	out, err := tool.Execute(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "echo: hi", out)
}
