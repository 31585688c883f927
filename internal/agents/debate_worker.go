package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/message"
)

// roundHistoryCap bounds how many of a task's past round contents a
// DebateWorker keeps in memory, mirroring the agent runtime's own
// bounded history ring (§4.4).
const roundHistoryCap = 32

// DebateWorker is the shared implementation behind the moderator,
// arbitrator, refiner and workflow_generator CLI variants (§4.4, §4.7):
// mechanically identical runtime capability, differing only in the name
// they register under and the persona handed to their Responder. Which
// of them handles a given task is the router's decision (§4.7), not a
// fixed role assignment.
type DebateWorker struct {
	name    string
	persona string
	bus     bus.Bus
	resp    Responder
	logger  *slog.Logger

	mu      sync.Mutex
	history map[string][]string
}

// NewDebateWorker builds a debate-capable agent implementation. responder
// defaults to a deterministic MockResponder when nil, so the fabric runs
// and its tests pass without a configured model client.
func NewDebateWorker(name, persona string, b bus.Bus, responder Responder, logger *slog.Logger) *DebateWorker {
	if responder == nil {
		responder = NewMockResponder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DebateWorker{
		name:    name,
		persona: persona,
		bus:     b,
		resp:    responder,
		logger:  logger,
		history: make(map[string][]string),
	}
}

// GetNotes implements agentrt.NotesProvider.
func (w *DebateWorker) GetNotes(ctx context.Context) string {
	return fmt.Sprintf("%s (%s persona) ready", w.name, w.persona)
}

// OnTask implements agentrt.TaskHandler: it streams the worker's proposal
// or refinement to any UI watching the task, then replies to the
// coordinator with the same Event it was asked to fill, carrying its
// content and (at the refine stage) a confidence score for
// OnRefinement's consensus/plateau check.
func (w *DebateWorker) OnTask(ctx context.Context, task message.Task) (*agentrt.Response, error) {
	w.publishStreamEvent(ctx, message.StreamStart, task.TaskID, "", "")

	hist := w.appendRound(task.TaskID, task.Content)
	content, confidence, err := w.resp.Respond(ctx, w.persona, task, hist)
	if err != nil {
		w.publishStreamEvent(ctx, message.StreamEnd, task.TaskID, "", "")
		return nil, err
	}

	w.publishStreamEvent(ctx, message.StreamUpdate, task.TaskID, content, "")
	w.publishStreamEvent(ctx, message.StreamEnd, task.TaskID, "", content)

	reply := message.Task{
		Message: message.Message{
			TaskID:    task.TaskID,
			Agent:     w.name,
			Content:   content,
			Intent:    message.IntentModifyTask,
			Timestamp: time.Now().UTC(),
		},
		TargetAgent: "coordinator",
		Event:       task.Event,
		Confidence:  confidence,
	}
	return &agentrt.Response{Task: &reply}, nil
}

// OnTaskResult implements agentrt.TaskResultHandler: a worker that
// contributed to a task is sent its terminal TaskResult by the
// coordinator so it can drop that task's round history rather than
// retain it indefinitely.
func (w *DebateWorker) OnTaskResult(ctx context.Context, result message.TaskResult) (*agentrt.Response, error) {
	w.forgetTask(result.TaskID)
	return nil, nil
}

func (w *DebateWorker) appendRound(taskID, content string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	prior := append([]string(nil), w.history[taskID]...)
	rounds := append(w.history[taskID], content)
	if len(rounds) > roundHistoryCap {
		rounds = rounds[len(rounds)-roundHistoryCap:]
	}
	w.history[taskID] = rounds
	return prior
}

// forgetTask drops a task's round history; called once the coordinator
// reports the task terminal, so memory doesn't grow across the process
// lifetime for long-running deployments.
func (w *DebateWorker) forgetTask(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.history, taskID)
}

func (w *DebateWorker) publishStreamEvent(ctx context.Context, kind, taskID, delta, content string) {
	ev := message.StreamEvent{
		Kind: kind,
		Data: message.StreamEventData{
			TaskID:    taskID,
			Agent:     w.name,
			Timestamp: time.Now().UTC(),
			Delta:     delta,
			Content:   content,
		},
	}
	data, err := message.Encode(ev)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to encode stream event", "agent", w.name, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, agentrt.BroadcastChannel, data); err != nil {
		w.logger.WarnContext(ctx, "failed to publish stream event", "agent", w.name, "error", err)
	}
}
