package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/hub"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/orchestrator"
)

func newCoordinator(t *testing.T) (*Coordinator, bus.Bus) {
	t.Helper()
	b := bus.NewMemoryBus()
	appCfg := &config.AppConfig{Estimator: config.DefaultEstimatorConfig(), Router: config.DefaultRouterConfig()}
	candidates := []string{"moderator", "arbitrator", "refiner"}
	orch := orchestrator.New(orchestrator.Config{MaxRounds: 4, TaskTimeout: time.Minute})
	h := hub.New(b, candidates, appCfg, orch, nil, nil)
	c := NewCoordinator("coordinator", b, h, orch, candidates, nil)
	return c, b
}

func TestCoordinator_OnMessage_RoutesToCandidate(t *testing.T) {
	c, _ := newCoordinator(t)

	resp, err := c.OnMessage(context.Background(), message.Message{
		TaskID: "client-task-1", Content: "please help", Intent: message.IntentStartTask, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Task)
	require.Equal(t, "client-task-1", resp.Task.TaskID)
	require.Contains(t, []string{"moderator", "arbitrator", "refiner"}, resp.Task.TargetAgent)
}

func TestCoordinator_OnMessage_CheckStatusPublishesBroadcastNotTask(t *testing.T) {
	c, b := newCoordinator(t)

	sub, err := b.Subscribe(context.Background(), agentrt.BroadcastChannel)
	require.NoError(t, err)
	defer sub.Close()

	resp, err := c.OnMessage(context.Background(), message.Message{
		TaskID: "t1", Content: "status?", Intent: message.IntentCheckStatus, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Nil(t, resp)

	select {
	case msg := <-sub.Receive():
		env := message.DecodeEnvelope(msg.Payload)
		_, ok := env.(message.EnvelopeSystemStatus)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected system status broadcast")
	}
}

func TestCoordinator_OnTask_DrivesProposalToTerminalAndPublishesResult(t *testing.T) {
	c, b := newCoordinator(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, hub.OrchestratorChannel)
	require.NoError(t, err)
	defer sub.Close()

	proposal := message.Task{
		Message: message.Message{TaskID: "t1", Agent: "moderator", Content: "a proposal", Timestamp: time.Now().UTC()},
		Event:   message.EventPlan,
	}
	resp, err := c.OnTask(ctx, proposal)
	require.NoError(t, err)
	require.NotNil(t, resp.Task)
	require.Equal(t, "arbitrator", resp.Task.TargetAgent)

	critique := message.Task{
		Message: message.Message{TaskID: "t1", Agent: "arbitrator", Content: "a critique", Timestamp: time.Now().UTC()},
		Event:   message.EventExecute,
	}
	resp, err = c.OnTask(ctx, critique)
	require.NoError(t, err)
	require.Equal(t, "refiner", resp.Task.TargetAgent)

	conf := 0.99
	refinement := message.Task{
		Message:    message.Message{TaskID: "t1", Agent: "refiner", Content: "final answer", Timestamp: time.Now().UTC()},
		Event:      message.EventRefine,
		Confidence: &conf,
	}
	resp, err = c.OnTask(ctx, refinement)
	require.NoError(t, err)
	require.Nil(t, resp)

	select {
	case msg := <-sub.Receive():
		result, err := message.DecodeTaskResult(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, "t1", result.TaskID)
		require.Equal(t, message.OutcomeCompleted, result.Outcome)
		require.ElementsMatch(t, []string{"moderator", "arbitrator", "refiner"}, result.ContributingAgents)
	case <-time.After(time.Second):
		t.Fatal("expected terminal task result")
	}
}

func TestCoordinator_OnTask_CancellationEscalates(t *testing.T) {
	c, b := newCoordinator(t)
	ctx := context.Background()
	c.orch.Start("t2", time.Now().UTC())

	sub, err := b.Subscribe(ctx, hub.OrchestratorChannel)
	require.NoError(t, err)
	defer sub.Close()

	cancel := message.Task{
		Message: message.Message{TaskID: "t2", Agent: "gateway", Content: "cancel", Timestamp: time.Now().UTC()},
		Event:   message.EventEscalate,
	}
	resp, err := c.OnTask(ctx, cancel)
	require.NoError(t, err)
	require.Nil(t, resp)

	select {
	case msg := <-sub.Receive():
		result, err := message.DecodeTaskResult(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, message.OutcomeEscalated, result.Outcome)
	case <-time.After(time.Second):
		t.Fatal("expected escalated task result")
	}
}
