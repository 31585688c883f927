package agents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/heartbeat"
	"github.com/arbiterhub/fabric/internal/hub"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/orchestrator"
)

// Coordinator is the orchestrator-facing agent variant (§4.4, §4.8): it
// owns the Intelligence Hub and debate-protocol state machine and is the
// single subscriber on hub.OrchestratorChannel, which is both its own
// agent channel and where the Gateway publishes translated client
// frames. Every debate worker's reply is addressed back to it by name.
type Coordinator struct {
	name       string
	bus        bus.Bus
	hub        *hub.Context
	orch       *orchestrator.Orchestrator
	candidates []string
	logger     *slog.Logger

	mu       sync.Mutex
	progress map[string]*taskProgress
}

type taskProgress struct {
	contributors []string
	lastContent  string
}

// NewCoordinator builds a Coordinator. candidates is the debate pipeline
// rotation order used to pick the next worker at each stage — the same
// agent pool the Hub's router recommends from for a task's first stage.
func NewCoordinator(name string, b bus.Bus, h *hub.Context, orch *orchestrator.Orchestrator, candidates []string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		name:       name,
		bus:        b,
		hub:        h,
		orch:       orch,
		candidates: candidates,
		logger:     logger,
		progress:   make(map[string]*taskProgress),
	}
}

func (c *Coordinator) GetNotes(ctx context.Context) string {
	return "coordinator ready"
}

// OnMessage implements agentrt.MessageHandler: it handles check_status
// queries directly, and routes every other chat/start_task message
// through the Hub to become a freshly routed Task.
func (c *Coordinator) OnMessage(ctx context.Context, msg message.Message) (*agentrt.Response, error) {
	if msg.Intent == message.IntentCheckStatus {
		c.publishStatus(ctx)
		return nil, nil
	}

	routed, err := c.hub.CreateAndRouteTask(ctx, msg.TaskID, msg.Content, msg.Intent, "", nil)
	if err != nil {
		return nil, err
	}
	return &agentrt.Response{Task: &routed.Task}, nil
}

// OnTask implements agentrt.TaskHandler: it distinguishes a client
// cancellation (published by the gateway as an escalate-event Task from
// "gateway") from a debate worker's stage reply.
func (c *Coordinator) OnTask(ctx context.Context, task message.Task) (*agentrt.Response, error) {
	if task.Event == message.EventEscalate && task.Agent == "gateway" {
		decision := c.orch.Escalate(task.TaskID, "client_requested_cancellation", time.Now().UTC())
		c.finishTerminal(ctx, task.TaskID, decision)
		return nil, nil
	}
	return c.handleWorkerReply(ctx, task)
}

// handleWorkerReply advances the debate-protocol state machine based on
// the task's CURRENT tracked state (not the event the worker echoed
// back, which only names the stage it was asked to fill), per §4.8's
// state transitions: a first reply (state=plan) is a proposal, a second
// (state=execute) is a critique, a third (state=refine) is a refinement.
func (c *Coordinator) handleWorkerReply(ctx context.Context, task message.Task) (*agentrt.Response, error) {
	now := time.Now().UTC()
	c.recordProgress(task.TaskID, task.Agent, task.Content)

	state := orchestrator.StatePlan
	if ts := c.orch.Get(task.TaskID); ts != nil {
		state = ts.State
	}

	var decision orchestrator.Decision
	switch state {
	case orchestrator.StatePlan:
		decision = c.orch.OnProposal(task.TaskID, task.Agent, task.Content, now)
	case orchestrator.StateExecute:
		decision = c.orch.OnCritique(task.TaskID, now)
	case orchestrator.StateRefine:
		decision = c.orch.OnRefinement(task.TaskID, task.Confidence, now)
	default:
		c.logger.WarnContext(ctx, "coordinator received reply for a terminal task", "task_id", task.TaskID, "state", state)
		return nil, nil
	}

	if decision.Terminal {
		c.finishTerminal(ctx, task.TaskID, decision)
		return nil, nil
	}

	target := c.nextTarget(task.Agent, decision.ForceRefinePivot)
	next := message.Task{
		Message: message.Message{
			TaskID:    task.TaskID,
			Agent:     c.name,
			Content:   task.Content,
			Intent:    message.IntentModifyTask,
			Timestamp: now,
		},
		TargetAgent: target,
		Event:       decision.NextEvent,
	}
	return &agentrt.Response{Task: &next}, nil
}

// nextTarget picks the next debate worker in rotation after lastSender,
// or the refiner specifically when the state machine detected a
// near-identical-proposal loop and a refiner is available to pivot.
func (c *Coordinator) nextTarget(lastSender string, forcePivot bool) string {
	if forcePivot {
		for _, cand := range c.candidates {
			if cand == "refiner" {
				return cand
			}
		}
	}
	if len(c.candidates) == 0 {
		return lastSender
	}
	idx := 0
	for i, cand := range c.candidates {
		if cand == lastSender {
			idx = i
			break
		}
	}
	return c.candidates[(idx+1)%len(c.candidates)]
}

func (c *Coordinator) recordProgress(taskID, agent, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.progress[taskID]
	if !ok {
		p = &taskProgress{}
		c.progress[taskID] = p
	}
	p.lastContent = content
	for _, seen := range p.contributors {
		if seen == agent {
			return
		}
	}
	p.contributors = append(p.contributors, agent)
}

func (c *Coordinator) takeProgress(taskID string) taskProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[taskID]
	delete(c.progress, taskID)
	if !ok {
		return taskProgress{}
	}
	return *p
}

// finishTerminal completes a task via the Hub and notifies every
// contributing worker so it can drop that task's round history.
func (c *Coordinator) finishTerminal(ctx context.Context, taskID string, decision orchestrator.Decision) {
	progress := c.takeProgress(taskID)
	content := progress.lastContent
	if content == "" {
		content = decision.Reason
	}

	result, err := c.hub.CompleteTask(ctx, taskID, decision.Outcome, content, progress.contributors)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to complete task", "task_id", taskID, "error", err)
		return
	}

	data, err := message.Encode(result)
	if err != nil {
		return
	}
	for _, agent := range progress.contributors {
		if pubErr := c.bus.Publish(ctx, agentrt.Channel(agent), data); pubErr != nil {
			c.logger.WarnContext(ctx, "failed to notify contributor of terminal result", "agent", agent, "error", pubErr)
		}
	}
}

func (c *Coordinator) publishStatus(ctx context.Context) {
	status := c.hub.GetSystemStatus(ctx)
	update := message.SystemStatusUpdate{
		AgentStatus: status.Agents,
		SystemReady: allOnline(status.Agents),
		Timestamp:   time.Now().UTC(),
	}
	data, err := message.Encode(update)
	if err != nil {
		return
	}
	if err := c.bus.Publish(ctx, agentrt.BroadcastChannel, data); err != nil {
		c.logger.WarnContext(ctx, "failed to publish status", "error", err)
	}
}

func allOnline(agents map[string]string) bool {
	if len(agents) == 0 {
		return false
	}
	for _, v := range agents {
		if v != string(heartbeat.StatusOnline) {
			return false
		}
	}
	return true
}

// RunKillSwitchLoop polls every active task's wall-clock/round ceiling on
// a timer, finishing any that breach it (§4.8's kill switch), independent
// of any protocol reply arriving.
func (c *Coordinator) RunKillSwitchLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, taskID := range c.orch.ActiveTaskIDs() {
				if decision, killed := c.orch.CheckKillSwitch(taskID, now); killed {
					c.finishTerminal(ctx, taskID, decision)
				}
			}
		}
	}
}
