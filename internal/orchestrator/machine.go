package orchestrator

import (
	"time"

	"github.com/arbiterhub/fabric/internal/message"
)

// Decision is what the state machine concluded after observing one
// protocol event; the Intelligence Hub turns it into a publish (or, if
// Terminal, a TaskResult plus outcome recording).
type Decision struct {
	TaskID           string
	NextState        State
	NextEvent        message.Event
	ForceRefinePivot bool // loop detected; instruct the refiner to pivot
	Terminal         bool
	Outcome          message.Outcome
	Reason           string
}

// OnProposal handles a worker's proposal while a task is in plan or
// execute: it advances the task to execute, bumps the round counter, and
// runs loop detection against the sender's prior proposal.
func (o *Orchestrator) OnProposal(taskID, sender, content string, now time.Time) Decision {
	ts := o.Start(taskID, now)

	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()

	dig := digest(content)
	if ts.lastDigest[sender] == dig && dig != "" {
		ts.similarityHits++
	} else {
		ts.similarityHits = 0
	}
	ts.lastDigest[sender] = dig
	ts.Round++

	// A third consecutive near-identical proposal after the forced pivot
	// means the refine instruction didn't break the loop; give up rather
	// than cycle forever (§4.8's loop detection, E2).
	if ts.similarityHits >= 3 {
		ts.State = StateEscalate
		return Decision{TaskID: taskID, NextState: StateEscalate, Terminal: true, Outcome: message.OutcomeEscalated, Reason: "duplicate_proposal_loop"}
	}

	ts.State = StateExecute
	return Decision{
		TaskID:           taskID,
		NextState:        StateExecute,
		NextEvent:        message.EventExecute,
		ForceRefinePivot: ts.similarityHits >= 2,
	}
}

// OnCritique handles a critic/arbitrator response, forwarding the task to
// the refiner.
func (o *Orchestrator) OnCritique(taskID string, now time.Time) Decision {
	ts := o.Start(taskID, now)

	s := o.shardFor(taskID)
	s.mu.Lock()
	ts.State = StateRefine
	s.mu.Unlock()

	return Decision{TaskID: taskID, NextState: StateRefine, NextEvent: message.EventRefine}
}

// OnRefinement handles a refined response. It checks consensus, plateau,
// and round-budget conditions, in that order, and either concludes the
// task or sends it back through another execute/critique round.
func (o *Orchestrator) OnRefinement(taskID string, confidence *float64, now time.Time) Decision {
	ts := o.Start(taskID, now)

	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if confidence != nil {
		ts.confidences = append(ts.confidences, *confidence)
		if len(ts.confidences) > plateauWindow {
			ts.confidences = ts.confidences[len(ts.confidences)-plateauWindow:]
		}
	}

	if confidence != nil && *confidence >= o.cfg.ConsensusThreshold {
		ts.State = StateComplete
		return Decision{TaskID: taskID, NextState: StateComplete, Terminal: true, Outcome: message.OutcomeCompleted, Reason: "consensus_threshold_met"}
	}

	if plateaued(ts.confidences, o.cfg.PlateauDelta) {
		ts.State = StateComplete
		return Decision{TaskID: taskID, NextState: StateComplete, Terminal: true, Outcome: message.OutcomeMerged, Reason: "confidence_plateau"}
	}

	if ts.Round >= o.cfg.MaxRounds {
		ts.State = StateComplete
		return Decision{TaskID: taskID, NextState: StateComplete, Terminal: true, Outcome: message.OutcomeMerged, Reason: "max_rounds_reached"}
	}

	ts.State = StateExecute
	return Decision{TaskID: taskID, NextState: StateExecute, NextEvent: message.EventExecute}
}

// plateaued reports whether the most recent confidences have converged:
// a full window is available and its spread is under delta.
func plateaued(confidences []float64, delta float64) bool {
	if len(confidences) < plateauWindow {
		return false
	}
	min, max := confidences[0], confidences[0]
	for _, c := range confidences {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return max-min < delta
}

// CheckKillSwitch reports whether a tracked task has breached its
// wall-clock timeout or hard round ceiling (2x max_rounds), independent of
// any protocol response. Callers should poll this on a timer for every
// active task.
func (o *Orchestrator) CheckKillSwitch(taskID string, now time.Time) (Decision, bool) {
	ts := o.Get(taskID)
	if ts == nil {
		return Decision{}, false
	}

	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case now.Sub(ts.CreatedAt) > o.cfg.TaskTimeout:
		ts.State = StateEscalate
		return Decision{TaskID: taskID, NextState: StateEscalate, Terminal: true, Outcome: message.OutcomeEscalated, Reason: "task_timeout_exceeded"}, true
	case ts.Round > o.cfg.MaxRounds*2:
		ts.State = StateEscalate
		return Decision{TaskID: taskID, NextState: StateEscalate, Terminal: true, Outcome: message.OutcomeEscalated, Reason: "round_ceiling_exceeded"}, true
	default:
		return Decision{}, false
	}
}

// Escalate forces a task to the escalate state, e.g. in response to an
// explicit escalate event from a privileged sender or an unrecoverable
// worker error.
func (o *Orchestrator) Escalate(taskID, reason string, now time.Time) Decision {
	ts := o.Start(taskID, now)

	s := o.shardFor(taskID)
	s.mu.Lock()
	ts.State = StateEscalate
	s.mu.Unlock()

	return Decision{TaskID: taskID, NextState: StateEscalate, Terminal: true, Outcome: message.OutcomeEscalated, Reason: reason}
}
