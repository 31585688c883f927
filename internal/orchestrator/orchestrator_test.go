package orchestrator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/orchestrator"
)

func newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		MaxRounds:          4,
		TaskTimeout:        time.Minute,
		PlateauDelta:       0.05,
		ConsensusThreshold: 0.9,
	})
}

func TestOnProposal_AdvancesToExecuteAndBumpsRound(t *testing.T) {
	o := newOrchestrator()
	now := time.Now()

	d := o.OnProposal("t1", "moderator", "a careful proposal", now)
	require.Equal(t, orchestrator.StateExecute, d.NextState)
	require.Equal(t, message.EventExecute, d.NextEvent)
	require.False(t, d.ForceRefinePivot)
	require.Equal(t, 1, o.Get("t1").Round)
}

func TestOnProposal_RepeatedContentTriggersLoopPivot(t *testing.T) {
	o := newOrchestrator()
	now := time.Now()

	o.OnProposal("t1", "moderator", "same answer", now)
	o.OnProposal("t1", "moderator", "Same   Answer", now) // normalizes to the same digest
	d := o.OnProposal("t1", "moderator", "same answer", now)

	require.True(t, d.ForceRefinePivot)
}

func TestOnRefinement_HighConfidenceCompletes(t *testing.T) {
	o := newOrchestrator()
	now := time.Now()
	o.OnProposal("t1", "moderator", "x", now)
	o.OnCritique("t1", now)

	conf := 0.95
	d := o.OnRefinement("t1", &conf, now)

	require.True(t, d.Terminal)
	require.Equal(t, message.OutcomeCompleted, d.Outcome)
}

func TestOnRefinement_PlateauConcludesWithMerged(t *testing.T) {
	o := newOrchestrator()
	now := time.Now()
	o.OnProposal("t1", "moderator", "x", now)
	o.OnCritique("t1", now)

	for _, c := range []float64{0.5, 0.51, 0.52} {
		conf := c
		d := o.OnRefinement("t1", &conf, now)
		if d.Terminal {
			require.Equal(t, message.OutcomeMerged, d.Outcome)
			return
		}
	}
	t.Fatal("expected plateau to terminate the task")
}

func TestOnRefinement_MaxRoundsConcludesWithMerged(t *testing.T) {
	o := newOrchestrator()
	now := time.Now()

	oscillating := []float64{0.1, 0.6, 0.1, 0.6, 0.1, 0.6}
	var d orchestrator.Decision
	for i := 0; i < len(oscillating); i++ {
		o.OnProposal("t1", "moderator", "proposal "+time.Duration(i).String(), now)
		o.OnCritique("t1", now)
		conf := oscillating[i] // wide swing: never converges, never plateaus
		d = o.OnRefinement("t1", &conf, now)
		if d.Terminal {
			break
		}
	}
	require.True(t, d.Terminal)
	require.Equal(t, message.OutcomeMerged, d.Outcome)
}

func TestCheckKillSwitch_TimeoutEscalates(t *testing.T) {
	o := newOrchestrator()
	start := time.Now()
	o.Start("t1", start)

	d, fired := o.CheckKillSwitch("t1", start.Add(2*time.Minute))
	require.True(t, fired)
	require.Equal(t, message.OutcomeEscalated, d.Outcome)
	require.Equal(t, orchestrator.StateEscalate, d.NextState)
}

func TestCheckKillSwitch_NoFireWithinBudget(t *testing.T) {
	o := newOrchestrator()
	start := time.Now()
	o.Start("t1", start)

	_, fired := o.CheckKillSwitch("t1", start.Add(time.Second))
	require.False(t, fired)
}

func TestForget_RemovesTaskState(t *testing.T) {
	o := newOrchestrator()
	o.Start("t1", time.Now())
	require.NotNil(t, o.Get("t1"))

	o.Forget("t1")
	require.Nil(t, o.Get("t1"))
}
