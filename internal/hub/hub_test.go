package hub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/hub"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/orchestrator"
)

func newHub(t *testing.T) (*hub.Context, bus.Bus) {
	t.Helper()
	b := bus.NewMemoryBus()
	appCfg := &config.AppConfig{
		Estimator: config.DefaultEstimatorConfig(),
		Router:    config.DefaultRouterConfig(),
	}
	orch := orchestrator.New(orchestrator.Config{MaxRounds: 4, TaskTimeout: time.Minute})
	h := hub.New(b, []string{"moderator", "arbitrator", "refiner"}, appCfg, orch, nil, nil)
	return h, b
}

func TestCreateAndRouteTask_ReturnsDiagnosticsAndCandidateTarget(t *testing.T) {
	h, _ := newHub(t)

	routed, err := h.CreateAndRouteTask(context.Background(), "", "Please analyze and compare these two architectures.", message.IntentStartTask, message.EventPlan, nil)
	require.NoError(t, err)
	require.NotEmpty(t, routed.Task.TaskID)
	require.Contains(t, []string{"moderator", "arbitrator", "refiner"}, routed.TargetAgent)
	require.Equal(t, routed.TargetAgent, routed.Task.TargetAgent)
	require.NotZero(t, routed.Diagnostics.WordCount)
}

func TestCreateAndRouteTask_ReusesCallerSuppliedTaskID(t *testing.T) {
	h, _ := newHub(t)

	routed, err := h.CreateAndRouteTask(context.Background(), "client-chosen-id", "hello", message.IntentChat, "", nil)
	require.NoError(t, err)
	require.Equal(t, "client-chosen-id", routed.Task.TaskID)
}

func TestCompleteTask_PublishesTaskResultAndRecordsOutcome(t *testing.T) {
	h, b := newHub(t)
	ctx := context.Background()

	routed, err := h.CreateAndRouteTask(ctx, "", "summarize briefly", message.IntentStartTask, message.EventPlan, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, hub.OrchestratorChannel)
	require.NoError(t, err)
	defer sub.Close()

	result, err := h.CompleteTask(ctx, routed.Task.TaskID, message.OutcomeCompleted, "done", []string{"moderator"})
	require.NoError(t, err)
	require.Equal(t, message.OutcomeCompleted, result.Outcome)

	select {
	case msg := <-sub.Receive():
		decoded, err := message.DecodeTaskResult(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, routed.Task.TaskID, decoded.TaskID)
		require.Equal(t, message.OutcomeCompleted, decoded.Outcome)
	case <-time.After(time.Second):
		t.Fatal("expected task result to be published")
	}

	status := h.GetSystemStatus(ctx)
	require.Equal(t, 0, status.ActiveTasks, "task should be forgotten once terminal")
}

func TestGetSystemStatus_ReportsOfflineWhenNoHeartbeat(t *testing.T) {
	h, _ := newHub(t)
	status := h.GetSystemStatus(context.Background())
	require.Equal(t, "offline", status.Agents["moderator"])
	require.False(t, status.ExplorationRate == 0 && status.ExplorationRate == 1, "epsilon should be a valid rate")
}

func TestApiGetRouterDecisions_ReturnsRecordedDecisions(t *testing.T) {
	h, _ := newHub(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.CreateAndRouteTask(ctx, "", "do the thing", message.IntentStartTask, message.EventPlan, nil)
		require.NoError(t, err)
	}

	decisions := h.ApiGetRouterDecisions(10)
	require.Len(t, decisions, 5)
}

func TestRunClusterRebuild_SwapsModelWithoutPanicking(t *testing.T) {
	h, _ := newHub(t)
	h.RunClusterRebuild()

	status := h.GetSystemStatus(context.Background())
	require.False(t, status.LastClusterRebuildAt.IsZero())
}
