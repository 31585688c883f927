package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/arbiterhub/fabric/internal/message"
)

// Responder decides what a debate worker says in response to a Task at
// its current stage. A production deployment plugs in a real model
// client here (out of scope per §1's non-goals); MockResponder, with its
// canned default when RespondFunc is nil, gives every agent variant
// deterministic, inspectable behavior for tests and for running the
// fabric without one configured.
type Responder interface {
	Respond(ctx context.Context, persona string, task message.Task, history []string) (content string, confidence *float64, err error)
}

// MockResponder is a Responder whose behavior is overridable per call,
// mirroring the teacher's mock-LLM-client pattern: a RespondFunc hook
// with a sensible canned default when nil.
type MockResponder struct {
	RespondFunc func(ctx context.Context, persona string, task message.Task, history []string) (string, *float64, error)

	CallCount int
}

func NewMockResponder() *MockResponder {
	return &MockResponder{}
}

func (m *MockResponder) Respond(ctx context.Context, persona string, task message.Task, history []string) (string, *float64, error) {
	m.CallCount++
	if m.RespondFunc != nil {
		return m.RespondFunc(ctx, persona, task, history)
	}
	return defaultRespond(persona, task, history)
}

// defaultRespond produces a deterministic, persona-flavored reply so the
// fabric is runnable and testable without a configured model client. It
// never errors: this is the guaranteed fallback every persona's
// responder degrades to.
func defaultRespond(persona string, task message.Task, history []string) (string, *float64, error) {
	switch task.Event {
	case message.EventPlan, message.EventExecute:
		return fmt.Sprintf("[%s] proposal (round %d): %s", persona, len(history)+1, strings.TrimSpace(task.Content)), nil, nil
	case message.EventRefine:
		confidence := refinementConfidence(history)
		return fmt.Sprintf("[%s] refined answer: %s", persona, strings.TrimSpace(task.Content)), &confidence, nil
	default:
		return fmt.Sprintf("[%s] acknowledged: %s", persona, strings.TrimSpace(task.Content)), nil, nil
	}
}

// refinementConfidence climbs toward consensus as more rounds accumulate,
// so the default responder eventually lets OnRefinement terminate a task
// even with no real model scoring the answer.
func refinementConfidence(history []string) float64 {
	c := 0.5 + 0.1*float64(len(history))
	if c > 0.97 {
		c = 0.97
	}
	return c
}
