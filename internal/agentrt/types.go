// Package agentrt implements the shared agent lifecycle (§4.4): connect to
// the bus, emit heartbeats, subscribe to the agent's own channel, dispatch
// inbound payloads by intent/event to whichever capability the concrete
// agent implements, suppress duplicates, and shut down gracefully.
//
// Concrete agents (moderator, arbitrator, refiner, tool executor,
// coordinator, workflow generator) implement one or more of the handler
// interfaces below and hand the value to New; the Runtime does the rest.
package agentrt

import (
	"context"

	"github.com/arbiterhub/fabric/internal/message"
)

// NotesProvider supplies the initial "notes" payload a Runtime publishes
// to the agent's own channel on start.
type NotesProvider interface {
	GetNotes(ctx context.Context) string
}

// MessageHandler handles a plain chat/control Message (intent=chat).
type MessageHandler interface {
	OnMessage(ctx context.Context, msg message.Message) (*Response, error)
}

// TaskHandler handles a new or continued Task (intent=start_task, or
// intent=modify_task carrying a Task-shaped continuation).
type TaskHandler interface {
	OnTask(ctx context.Context, task message.Task) (*Response, error)
}

// TaskResultHandler handles a terminal TaskResult (intent=modify_task
// carrying an outcome).
type TaskResultHandler interface {
	OnTaskResult(ctx context.Context, result message.TaskResult) (*Response, error)
}

// ToolResponseHandler handles a tool_execute completion routed back to
// the requesting agent.
type ToolResponseHandler interface {
	OnToolResponse(ctx context.Context, msg message.Message) (*Response, error)
}

// Response is what a handler returns to be published. Exactly one of Task
// or TaskResult should be set; Broadcast additionally mirrors it to the
// frontend_broadcast channel for UI fan-out.
type Response struct {
	Task       *message.Task
	TaskResult *message.TaskResult
	Broadcast  bool
}
