// Package hub implements the Intelligence Hub (§4.9): the façade that
// composes the reasoning effort estimator (internal/estimator), the task
// clustering router (internal/router) and the orchestrator state machine
// (internal/orchestrator) behind three operations — create_and_route_task,
// complete_task, and status reporting — plus the periodic cluster rebuild
// named in §4.9's background action.
//
// Hub owns the two pieces of shared mutable state the rest of the fabric
// reads: the outcome log (internal/outcome) and the router's ClusterModel
// snapshot, swapped atomically on rebuild per the "global mutable
// configuration" design note.
package hub

import (
	"container/ring"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/estimator"
	"github.com/arbiterhub/fabric/internal/heartbeat"
	"github.com/arbiterhub/fabric/internal/message"
	"github.com/arbiterhub/fabric/internal/observability"
	"github.com/arbiterhub/fabric/internal/orchestrator"
	"github.com/arbiterhub/fabric/internal/outcome"
	"github.com/arbiterhub/fabric/internal/router"
)

// OrchestratorChannel is the bus channel complete_task publishes terminal
// TaskResults to. It is the coordinator agent's own inbound channel
// (§6's "{agent_name}_channel" contract, agent name "coordinator") rather
// than a separate ad hoc name: the coordinator is the orchestrator-role
// agent variant, so its channel is where Gateway-originated chat/task
// messages and worker replies alike land, and where terminal TaskResults
// are mirrored for anyone still watching that task.
var OrchestratorChannel = agentrt.Channel("coordinator")

// Context is the explicit, threaded-through value the design notes (§9)
// call for in place of the original's static factory singletons: it
// carries everything create_and_route_task and complete_task need, with
// a lifetime equal to the process's.
type Context struct {
	cfg       *config.Snapshot[config.EstimatorConfig]
	routerCfg config.RouterConfig
	bus       bus.Bus
	embedder  router.Embedder
	rtr       *router.Router
	orch      *orchestrator.Orchestrator
	outcomes  *outcome.Log
	logger    *slog.Logger
	metrics   *observability.MetricsManager

	model *config.Snapshot[router.ClusterModel]
	std   *router.Standardizer

	candidates []string

	mu              sync.Mutex
	decisionsMade   int
	decisionHistory *ring.Ring
	effortCounts    map[message.ReasoningEffort]int
	lastRebuildAt   time.Time
	categoryOrder   []string
	featureMemos    map[string]featureMemo
}

// New builds a Hub context bound to the given bus, candidate agent pool,
// and configuration. candidates is the set of worker agents the router
// may recommend (moderator/arbitrator/refiner/tool_executor and any
// others the deployment registers).
func New(b bus.Bus, candidates []string, appCfg *config.AppConfig, orch *orchestrator.Orchestrator, logger *slog.Logger, metrics *observability.MetricsManager) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	categoryOrder := make([]string, 0, len(appCfg.Estimator.Categories))
	for name := range appCfg.Estimator.Categories {
		categoryOrder = append(categoryOrder, name)
	}
	sort.Strings(categoryOrder)
	dims := appCfg.Router.EmbeddingDim + 2 + len(categoryOrder) // embedding + complexity/word_count + categories

	return &Context{
		cfg:             config.NewSnapshot(appCfg.Estimator),
		routerCfg:       appCfg.Router,
		bus:             b,
		embedder:        router.NewHashEmbedder(appCfg.Router.EmbeddingDim),
		rtr:             router.NewRouter(appCfg.Router),
		orch:            orch,
		outcomes:        outcome.NewLog(appCfg.Estimator.Autotune.HistoryLimit),
		logger:          logger,
		metrics:         metrics,
		model:           config.NewSnapshot(router.EmptyModel()),
		std:             router.NewStandardizer(dims),
		candidates:      candidates,
		decisionHistory: ring.New(256),
		effortCounts:    make(map[message.ReasoningEffort]int),
		categoryOrder:   categoryOrder,
	}
}

// RoutedTask is what create_and_route_task returns: a constructed Task
// carrying its estimated effort and routing diagnostics, ready for the
// caller to publish to TargetAgent (the Hub itself does not publish it,
// matching §4.9's "returns it for publishing").
type RoutedTask struct {
	Task        message.Task
	Diagnostics estimator.Diagnostics
	TargetAgent string
}

// CreateAndRouteTask estimates reasoning effort for content, routes it to
// one of the candidate agents, and constructs the Task the caller should
// publish. event defaults to "plan" when unset, matching a freshly
// started task. taskID is used verbatim when the caller already has one
// (e.g. one a WebSocket client chose, so it can later subscribe to or
// cancel the same task_id); a fresh one is minted when empty.
func (c *Context) CreateAndRouteTask(ctx context.Context, taskID string, content string, intent message.Intent, event message.Event, confidence *float64) (RoutedTask, error) {
	if event == "" {
		event = message.EventPlan
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	cfg := c.cfg.Load()
	effort, diag := estimator.Estimate(estimator.Input{
		Content:    content,
		Event:      event,
		Intent:     intent,
		Confidence: confidence,
	}, cfg)

	vec, err := c.embedder.Embed(ctx, content)
	if err != nil {
		c.logger.WarnContext(ctx, "embedding failed, routing without content features", "error", err)
		vec = make([]float64, c.routerCfg.EmbeddingDim)
	}
	features := router.Features{
		Embedding:       vec,
		ComplexityScore: diag.ComplexityScore,
		WordCount:       diag.WordCount,
		CategoryHits:    diag.CategoryHits,
	}
	raw := features.Vector(c.categoryOrder)
	c.std.Update(raw)
	standardized := c.std.Standardize(raw)

	model := c.model.Load()

	c.mu.Lock()
	decisionsSoFar := c.decisionsMade
	c.decisionsMade++
	c.mu.Unlock()

	decision := c.rtr.Route(standardized, c.candidates, model, decisionsSoFar)

	c.recordDecision(decision)
	c.recordEffort(effort)
	if c.metrics != nil {
		c.metrics.IncrementEffortEstimate(ctx, string(effort))
		c.metrics.IncrementRouterDecision(ctx, decision.Method)
		c.metrics.RecordExplorationRate(ctx, decision.Epsilon)
	}

	msgDiag := &message.Diagnostics{
		WordCount:       diag.WordCount,
		CategoryHits:    diag.CategoryHits,
		ComplexityScore: diag.ComplexityScore,
		RulesFired:      diag.RulesFired,
	}
	task := message.Task{
		Message: message.Message{
			TaskID:    taskID,
			Agent:     "hub",
			Content:   content,
			Intent:    intent,
			Timestamp: time.Now().UTC(),
		},
		TargetAgent:     decision.Agent,
		Event:           event,
		Confidence:      confidence,
		ReasoningEffort: effort,
		Diagnostics:     msgDiag,
	}

	c.orch.Start(taskID, task.Timestamp)
	c.rememberFeatures(taskID, standardized, decision.ClusterID)

	return RoutedTask{Task: task, Diagnostics: diag, TargetAgent: decision.Agent}, nil
}

// featureMemo remembers the standardized feature vector and cluster id a
// task was routed with, so complete_task can attribute the outcome to the
// same cluster without re-embedding the (by-then-historical) content.
type featureMemo struct {
	features  []float64
	clusterID int
}

func (c *Context) rememberFeatures(taskID string, features []float64, clusterID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.featureMemos == nil {
		c.featureMemos = make(map[string]featureMemo)
	}
	c.featureMemos[taskID] = featureMemo{features: features, clusterID: clusterID}
}

func (c *Context) takeFeatures(taskID string) (featureMemo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	memo, ok := c.featureMemos[taskID]
	delete(c.featureMemos, taskID)
	return memo, ok
}

// CompleteTask builds a terminal TaskResult, records an OutcomeRecord for
// the estimator/router to learn from, and publishes the result to the
// orchestrator channel. It also forgets the task's orchestrator state,
// per §3's TaskState invariant ("deleted on terminal outcome").
func (c *Context) CompleteTask(ctx context.Context, taskID string, outcomeKind message.Outcome, resultContent string, contributingAgents []string) (message.TaskResult, error) {
	ts := c.orch.Get(taskID)

	var duration time.Duration
	if ts != nil {
		duration = time.Since(ts.CreatedAt)
	}

	result := message.TaskResult{
		Task: message.Task{
			Message: message.Message{
				TaskID:    taskID,
				Agent:     "hub",
				Content:   resultContent,
				Intent:    message.IntentModifyTask,
				Timestamp: time.Now().UTC(),
			},
			Event: message.EventComplete,
		},
		Outcome:            outcomeKind,
		ContributingAgents: contributingAgents,
	}
	if outcomeKind == message.OutcomeEscalated {
		result.Event = message.EventEscalate
	}

	success := outcomeKind == message.OutcomeCompleted || outcomeKind == message.OutcomeMerged
	agent := "unknown"
	if len(contributingAgents) > 0 {
		agent = contributingAgents[len(contributingAgents)-1]
	}
	memo, hadFeatures := c.takeFeatures(taskID)
	record := outcome.Record{
		TaskID:         taskID,
		ActualDuration: duration,
		Success:        success,
		Agent:          agent,
		Timestamp:      time.Now().UTC(),
	}
	if hadFeatures {
		record.Features = memo.features
		record.ClusterID = memo.clusterID
	}
	c.outcomes.Append(record)
	if c.metrics != nil {
		c.metrics.IncrementTaskOutcome(ctx, string(outcomeKind))
	}

	c.orch.Forget(taskID)

	data, err := message.Encode(result)
	if err != nil {
		return result, err
	}
	if pubErr := c.bus.Publish(ctx, OrchestratorChannel, data); pubErr != nil {
		c.logger.WarnContext(ctx, "failed to publish task result", "task_id", taskID, "error", pubErr)
	}

	return result, nil
}

// Status is what get_system_status returns.
type Status struct {
	Agents               map[string]string
	ActiveTasks          int
	EffortDistribution   map[string]int
	ExplorationRate      float64
	LastClusterRebuildAt time.Time
}

// GetSystemStatus reports agent liveness (read directly from the bus's
// heartbeat keys), the count of in-flight tasks, the effort distribution
// observed so far, the current exploration rate, and when the cluster
// model was last rebuilt.
func (c *Context) GetSystemStatus(ctx context.Context) Status {
	agents := make(map[string]string, len(c.candidates))
	for _, name := range c.candidates {
		_, ok, err := c.bus.Get(ctx, heartbeat.Key(name))
		if err == nil && ok {
			agents[name] = string(heartbeat.StatusOnline)
		} else {
			agents[name] = string(heartbeat.StatusOffline)
		}
	}

	c.mu.Lock()
	effort := make(map[string]int, len(c.effortCounts))
	for k, v := range c.effortCounts {
		effort[string(k)] = v
	}
	decisionsSoFar := c.decisionsMade
	lastRebuild := c.lastRebuildAt
	c.mu.Unlock()

	return Status{
		Agents:               agents,
		ActiveTasks:          c.orch.ActiveCount(),
		EffortDistribution:   effort,
		ExplorationRate:      c.rtr.CurrentEpsilon(decisionsSoFar),
		LastClusterRebuildAt: lastRebuild,
	}
}

// ApiGetRouterDecisions returns up to limit of the most recently recorded
// routing decisions, newest first.
func (c *Context) ApiGetRouterDecisions(limit int) []router.DecisionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]router.DecisionRecord, 0, limit)
	r := c.decisionHistory.Prev()
	for i, n := 0, r.Len(); i < n && len(out) < limit; i++ {
		if r.Value == nil {
			break
		}
		out = append(out, r.Value.(router.DecisionRecord))
		r = r.Prev()
	}
	return out
}

func (c *Context) recordDecision(d router.DecisionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisionHistory.Value = d
	c.decisionHistory = c.decisionHistory.Next()
}

func (c *Context) recordEffort(e message.ReasoningEffort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.effortCounts[e]++
}

// RunClusterRebuild triggers a single rebuild-and-swap cycle unconditionally,
// used both by the periodic ticker (RunClusterRebuildLoop) and by tests.
func (c *Context) RunClusterRebuild() {
	newModel := router.Rebuild(c.outcomes, c.routerCfg)
	c.model.Store(newModel)
	c.mu.Lock()
	c.lastRebuildAt = time.Now().UTC()
	c.mu.Unlock()
}

// RunClusterRebuildLoop implements §4.9's periodic background action:
// every interval, if the outcome log has grown by at least retrainThreshold
// records since the last rebuild, rebuild and atomically swap the cluster
// model.
func (c *Context) RunClusterRebuildLoop(ctx context.Context, interval time.Duration, retrainThreshold int) {
	if interval <= 0 {
		interval = 600 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.outcomes.SinceLastTune() >= retrainThreshold {
				c.RunClusterRebuild()
				c.outcomes.ResetSinceLastTune()
				c.logger.InfoContext(ctx, "cluster model rebuilt", "records", c.outcomes.Len())
			}
		}
	}
}

// AutoTuneEstimator applies the estimator's auto-tuning pass (§4.6) when
// enough new outcomes have accumulated, atomically swapping the Cfg
// snapshot so concurrent CreateAndRouteTask callers always see a
// consistent version.
func (c *Context) AutoTuneEstimator(ctx context.Context) {
	current := c.cfg.Load()
	if !current.Autotune.Enabled {
		return
	}
	if c.outcomes.SinceLastTune() < current.Autotune.AnalysisAfter {
		return
	}
	next, changed := estimator.AutoTune(current, c.outcomes)
	if changed {
		c.cfg.Store(next)
		c.logger.InfoContext(ctx, "estimator config auto-tuned")
	}
}
