// Package orchestrator implements the debate-protocol state machine (§4.8):
// it tracks each task's position in {plan, execute, refine, complete,
// escalate}, detects stalled debates (repeated near-identical proposals,
// or confidence plateaus), and enforces the kill-switch that guarantees
// every task eventually terminates.
//
// The Orchestrator itself never touches the bus — it is pure decision
// logic over in-memory task state, partitioned by task_id hash the same
// way the agent runtime's dispatch pool is (per the concurrency model),
// so callers handling unrelated tasks never contend on the same lock. The
// Intelligence Hub (internal/hub) owns the bus and turns each Decision
// into a publish.
package orchestrator

import (
	"hash/fnv"
	"sync"
	"time"
)

// State is a task's position in the debate protocol.
type State string

const (
	StatePlan     State = "plan"
	StateExecute  State = "execute"
	StateRefine   State = "refine"
	StateComplete State = "complete"
	StateEscalate State = "escalate"
)

// plateauWindow is K in the plateau-detection rule: track the last K
// confidences per task.
const plateauWindow = 3

// TaskState is one task's live debate-protocol bookkeeping.
type TaskState struct {
	TaskID    string
	State     State
	Round     int
	CreatedAt time.Time

	lastDigest      map[string]string // sender -> last content digest seen
	similarityHits  int
	confidences     []float64 // bounded to plateauWindow, newest last
}

// Config holds the tuning knobs named in §4.8.
type Config struct {
	MaxRounds          int
	TaskTimeout        time.Duration
	PlateauDelta       float64
	ConsensusThreshold float64
	ShardCount         int
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = 8
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 120 * time.Second
	}
	if c.PlateauDelta <= 0 {
		c.PlateauDelta = 0.02
	}
	if c.ConsensusThreshold <= 0 {
		c.ConsensusThreshold = 0.85
	}
	if c.ShardCount <= 0 {
		c.ShardCount = 16
	}
	return c
}

type shard struct {
	mu    sync.Mutex
	tasks map[string]*TaskState
}

// Orchestrator owns partitioned task state for the debate protocol.
type Orchestrator struct {
	cfg    Config
	shards []*shard
}

// New builds an Orchestrator with the given configuration.
func New(cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{tasks: make(map[string]*TaskState)}
	}
	return &Orchestrator{cfg: cfg, shards: shards}
}

func (o *Orchestrator) shardFor(taskID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(taskID))
	return o.shards[h.Sum32()%uint32(len(o.shards))]
}

// Start begins tracking a new task in the plan state. It is idempotent:
// calling it again for a task_id already tracked returns the existing
// state unchanged.
func (o *Orchestrator) Start(taskID string, now time.Time) *TaskState {
	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok := s.tasks[taskID]; ok {
		return ts
	}
	ts := &TaskState{
		TaskID:     taskID,
		State:      StatePlan,
		CreatedAt:  now,
		lastDigest: map[string]string{},
	}
	s.tasks[taskID] = ts
	return ts
}

// Get returns the tracked state for a task, or nil if none is tracked
// (e.g. already forgotten after completion).
func (o *Orchestrator) Get(taskID string) *TaskState {
	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID]
}

// Forget drops a task's state, called once its terminal TaskResult has
// been published, to bound memory growth.
func (o *Orchestrator) Forget(taskID string) {
	s := o.shardFor(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// ActiveCount reports how many tasks are currently tracked, across all
// shards, for get_system_status.
func (o *Orchestrator) ActiveCount() int {
	n := 0
	for _, s := range o.shards {
		s.mu.Lock()
		n += len(s.tasks)
		s.mu.Unlock()
	}
	return n
}

// ActiveTaskIDs returns a snapshot of every currently tracked task_id,
// across all shards, for callers that need to poll CheckKillSwitch for
// each one on a timer.
func (o *Orchestrator) ActiveTaskIDs() []string {
	var ids []string
	for _, s := range o.shards {
		s.mu.Lock()
		for id := range s.tasks {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	return ids
}
