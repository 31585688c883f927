package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldError describes one invalid field found by Validate.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError aggregates every FieldError found for a value.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	s := e.Errors[0].Error()
	for _, fe := range e.Errors[1:] {
		s += "; " + fe.Error()
	}
	return s
}

// ParseError wraps a decode failure that isn't a validation problem
// (malformed JSON, wrong shape).
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return "parse error: " + e.Cause.Error() }
func (e *ParseError) Unwrap() error { return e.Cause }

// Encode marshals v to its canonical JSON wire form. Optional fields that
// are unset (nil/zero) are omitted via the struct's json tags.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// wireEnvelope mirrors the common envelope in the external interface
// description: every field any wire type might carry, all optional except
// the ones Message always has.
type wireEnvelope struct {
	TaskID             string          `json:"task_id"`
	Agent              string          `json:"agent"`
	Content            string          `json:"content"`
	Intent             string          `json:"intent"`
	Timestamp          string          `json:"timestamp"`
	TargetAgent        string          `json:"target_agent,omitempty"`
	Event              string          `json:"event,omitempty"`
	Confidence         *float64        `json:"confidence,omitempty"`
	Outcome            string          `json:"outcome,omitempty"`
	ContributingAgents []string        `json:"contributing_agents,omitempty"`
	ReasoningEffort    string          `json:"reasoning_effort,omitempty"`
	Diagnostics        *Diagnostics    `json:"diagnostics,omitempty"`
}

// parseTimestamp tolerates both "Z" and explicit "+00:00" UTC offsets, per
// the codec's round-trip contract.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// DecodeMessage decodes a Message, tolerating unknown additional fields.
// An unrecognized intent decodes to IntentUnknown rather than failing.
func DecodeMessage(data []byte) (Message, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &ParseError{Cause: err}
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return Message{}, &ParseError{Cause: err}
	}
	return Message{
		TaskID:    w.TaskID,
		Agent:     w.Agent,
		Content:   w.Content,
		Intent:    parseIntent(w.Intent),
		Timestamp: ts,
	}, nil
}

// DecodeTask decodes a Task, tolerating unknown event/intent literals.
func DecodeTask(data []byte) (Task, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Task{}, &ParseError{Cause: err}
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return Task{}, &ParseError{Cause: err}
	}
	return Task{
		Message: Message{
			TaskID:    w.TaskID,
			Agent:     w.Agent,
			Content:   w.Content,
			Intent:    parseIntent(w.Intent),
			Timestamp: ts,
		},
		TargetAgent:     w.TargetAgent,
		Event:           parseEvent(w.Event),
		Confidence:      w.Confidence,
		ReasoningEffort: ReasoningEffort(w.ReasoningEffort),
		Diagnostics:     w.Diagnostics,
	}, nil
}

// DecodeTaskResult decodes a TaskResult, tolerating unknown outcome literals.
func DecodeTaskResult(data []byte) (TaskResult, error) {
	task, err := DecodeTask(data)
	if err != nil {
		return TaskResult{}, err
	}
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return TaskResult{}, &ParseError{Cause: err}
	}
	return TaskResult{
		Task:               task,
		Outcome:            parseOutcome(w.Outcome),
		ContributingAgents: w.ContributingAgents,
	}, nil
}

// Validate checks required-field presence and range constraints.
func Validate(v any) error {
	var errs []FieldError

	requireNonEmpty := func(field, value string) {
		if value == "" {
			errs = append(errs, FieldError{Field: field, Reason: "required"})
		}
	}

	switch t := v.(type) {
	case Message:
		requireNonEmpty("task_id", t.TaskID)
		requireNonEmpty("agent", t.Agent)
		requireNonEmpty("content", t.Content)
		if t.Intent == "" {
			errs = append(errs, FieldError{Field: "intent", Reason: "required"})
		}
		if t.Timestamp.IsZero() {
			errs = append(errs, FieldError{Field: "timestamp", Reason: "required"})
		}
	case Task:
		if err := Validate(t.Message); err != nil {
			errs = append(errs, err.(*ValidationError).Errors...)
		}
		requireNonEmpty("target_agent", t.TargetAgent)
		if t.Event == "" {
			errs = append(errs, FieldError{Field: "event", Reason: "required"})
		}
		if t.Confidence != nil && (*t.Confidence < 0 || *t.Confidence > 1) {
			errs = append(errs, FieldError{Field: "confidence", Reason: "must be in [0,1]"})
		}
	case TaskResult:
		if err := Validate(t.Task); err != nil {
			errs = append(errs, err.(*ValidationError).Errors...)
		}
		if t.Outcome == "" {
			errs = append(errs, FieldError{Field: "outcome", Reason: "required"})
		}
		if len(t.ContributingAgents) == 0 {
			errs = append(errs, FieldError{Field: "contributing_agents", Reason: "required"})
		}
	default:
		return fmt.Errorf("validate: unsupported type %T", v)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
