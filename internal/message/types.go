// Package message defines the canonical wire schemas carried over the bus:
// Message, Task, TaskResult, streaming events and the system status
// broadcast, plus a forward-compatible envelope codec.
package message

import "time"

// Intent identifies what a Message asks its recipient to do.
type Intent string

const (
	IntentChat        Intent = "chat"
	IntentStartTask    Intent = "start_task"
	IntentCheckStatus Intent = "check_status"
	IntentModifyTask  Intent = "modify_task"
	IntentToolSuggest Intent = "tool_suggest"
	IntentToolExecute Intent = "tool_execute"
	IntentUnknown     Intent = "unknown"
)

var knownIntents = map[Intent]bool{
	IntentChat:        true,
	IntentStartTask:    true,
	IntentCheckStatus: true,
	IntentModifyTask:  true,
	IntentToolSuggest: true,
	IntentToolExecute: true,
}

func parseIntent(s string) Intent {
	i := Intent(s)
	if knownIntents[i] {
		return i
	}
	return IntentUnknown
}

// Event identifies a Task's position in the debate protocol.
type Event string

const (
	EventPlan     Event = "plan"
	EventExecute  Event = "execute"
	EventRefine   Event = "refine"
	EventComplete Event = "complete"
	EventEscalate Event = "escalate"
	EventUnknown  Event = "unknown"
)

var knownEvents = map[Event]bool{
	EventPlan:     true,
	EventExecute:  true,
	EventRefine:   true,
	EventComplete: true,
	EventEscalate: true,
}

func parseEvent(s string) Event {
	if s == "" {
		return ""
	}
	e := Event(s)
	if knownEvents[e] {
		return e
	}
	return EventUnknown
}

// Outcome identifies a TaskResult's terminal disposition.
type Outcome string

const (
	OutcomeMerged    Outcome = "merged"
	OutcomeCompleted Outcome = "completed"
	OutcomeEscalated Outcome = "escalated"
	OutcomeUnknown   Outcome = "unknown"
)

var knownOutcomes = map[Outcome]bool{
	OutcomeMerged:    true,
	OutcomeCompleted: true,
	OutcomeEscalated: true,
}

func parseOutcome(s string) Outcome {
	if s == "" {
		return ""
	}
	o := Outcome(s)
	if knownOutcomes[o] {
		return o
	}
	return OutcomeUnknown
}

// ReasoningEffort is the estimator's output label (§4.6).
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

// Message is a chat or control utterance — the base shape every other wire
// type extends.
type Message struct {
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent"`
	Content   string    `json:"content"`
	Intent    Intent    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// Diagnostics records the feature vector the estimator computed for a Task,
// and which adjustment rules fired; carried opaquely by the router.
type Diagnostics struct {
	WordCount        int            `json:"word_count"`
	CategoryHits     map[string]int `json:"category_hits,omitempty"`
	ComplexityScore  float64        `json:"complexity_score"`
	RulesFired       []string       `json:"rules_fired,omitempty"`
}

// Task is a Message with target and lifecycle metadata.
type Task struct {
	Message

	TargetAgent     string          `json:"target_agent"`
	Event           Event           `json:"event"`
	Confidence      *float64        `json:"confidence,omitempty"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort,omitempty"`
	Diagnostics     *Diagnostics    `json:"diagnostics,omitempty"`
}

// TaskResult is a Task with a terminal outcome. Its Intent is always
// IntentModifyTask on the wire.
type TaskResult struct {
	Task

	Outcome            Outcome  `json:"outcome"`
	ContributingAgents []string `json:"contributing_agents"`
}

// StreamEvent carries a partial or terminal streaming delta for a task,
// keyed by (task_id, agent). Kind is one of stream_start/stream_update/
// stream_end.
type StreamEvent struct {
	Kind string `json:"event"`
	Data StreamEventData `json:"data"`
}

type StreamEventData struct {
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Delta     string    `json:"delta,omitempty"`
	Content   string    `json:"content,omitempty"`
}

const (
	StreamStart  = "stream_start"
	StreamUpdate = "stream_update"
	StreamEnd    = "stream_end"
)

// ErrorPayload is published to a sender's own channel when a publish
// retries are exhausted, or to the original requester's channel when a
// handler fails, per the agent runtime's failure semantics.
type ErrorPayload struct {
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemStatusUpdate is the Heartbeat Monitor's readiness broadcast.
type SystemStatusUpdate struct {
	AgentStatus map[string]string `json:"agent_status"`
	SystemReady bool              `json:"system_ready"`
	Timestamp   time.Time         `json:"timestamp"`
}
