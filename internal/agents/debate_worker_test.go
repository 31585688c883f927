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

func TestDebateWorker_OnTask_StreamsAndRepliesToCoordinator(t *testing.T) {
	b := bus.NewMemoryBus()
	w := NewDebateWorker("moderator", "moderator", b, nil, nil)

	sub, err := b.Subscribe(context.Background(), agentrt.BroadcastChannel)
	require.NoError(t, err)
	defer sub.Close()

	task := message.Task{
		Message: message.Message{TaskID: "t1", Agent: "coordinator", Content: "analyze this", Intent: message.IntentModifyTask, Timestamp: time.Now().UTC()},
		Event:   message.EventPlan,
	}

	resp, err := w.OnTask(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, resp.Task)
	require.Equal(t, "coordinator", resp.Task.TargetAgent)
	require.Equal(t, message.EventPlan, resp.Task.Event)
	require.Contains(t, resp.Task.Content, "moderator")

	var kinds []string
	for i := 0; i < 3; i++ {
		select {
		case msg := <-sub.Receive():
			env := message.DecodeEnvelope(msg.Payload)
			se, ok := env.(message.EnvelopeStreamEvent)
			require.True(t, ok)
			kinds = append(kinds, se.StreamEvent.Kind)
		case <-time.After(time.Second):
			t.Fatal("expected stream event")
		}
	}
	require.Equal(t, []string{message.StreamStart, message.StreamUpdate, message.StreamEnd}, kinds)
}

func TestDebateWorker_OnTask_RefineStageCarriesConfidence(t *testing.T) {
	b := bus.NewMemoryBus()
	w := NewDebateWorker("refiner", "refiner", b, nil, nil)

	task := message.Task{
		Message: message.Message{TaskID: "t1", Agent: "coordinator", Content: "refine this", Timestamp: time.Now().UTC()},
		Event:   message.EventRefine,
	}

	resp, err := w.OnTask(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, resp.Task.Confidence)
}

func TestDebateWorker_OnTaskResult_ForgetsHistory(t *testing.T) {
	w := NewDebateWorker("moderator", "moderator", bus.NewMemoryBus(), nil, nil)
	w.appendRound("t1", "hello")
	require.Len(t, w.history["t1"], 1)

	_, err := w.OnTaskResult(context.Background(), message.TaskResult{Task: message.Task{Message: message.Message{TaskID: "t1"}}})
	require.NoError(t, err)
	require.Empty(t, w.history["t1"])
}
