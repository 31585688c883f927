package agentrt

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiterhub/fabric/internal/message"
)

// dispatch decodes one inbound payload, drops it if malformed or a
// duplicate, records history, calls the matching handler, and publishes
// any response. A handler panic is recovered and turned into an error
// payload to the original requester, matching the "an agent never
// terminates because of a single bad message" contract.
func (r *Runtime) dispatch(ctx context.Context, payload []byte) {
	env := message.DecodeEnvelope(payload)

	if u, ok := env.(message.EnvelopeUnknown); ok {
		if r.metrics != nil {
			r.metrics.IncrementMalformedMessages(ctx, r.cfg.AgentName)
		}
		r.logger.WarnContext(ctx, "dropping malformed payload", "agent", r.cfg.AgentName, "reason", u.Reason)
		return
	}

	key, taskID, sender, content, ok := dedupeKey(env)
	if ok && r.dedupe.SeenOrAdd(key) {
		return // duplicate, dropped silently per §4.4
	}
	if taskID != "" {
		r.history.Append(taskID, HistoryEntry{Sender: sender, ContentDigest: contentDigest(content), Timestamp: time.Now().UTC()})
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "handler panic recovered", "agent", r.cfg.AgentName, "task_id", taskID, "panic", rec)
			r.emitError(ctx, taskID, sender, fmt.Errorf("handler panic: %v", rec))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	var resp *Response
	var err error

	switch e := env.(type) {
	case message.EnvelopeMessage:
		if e.Message.Intent == message.IntentToolExecute {
			if h, ok := r.impl.(ToolResponseHandler); ok {
				resp, err = h.OnToolResponse(callCtx, e.Message)
			}
		} else if h, ok := r.impl.(MessageHandler); ok {
			resp, err = h.OnMessage(callCtx, e.Message)
		}
	case message.EnvelopeTask:
		if h, ok := r.impl.(TaskHandler); ok {
			resp, err = h.OnTask(callCtx, e.Task)
		}
	case message.EnvelopeTaskResult:
		if h, ok := r.impl.(TaskResultHandler); ok {
			resp, err = h.OnTaskResult(callCtx, e.TaskResult)
		}
		r.history.Forget(e.TaskResult.TaskID)
	default:
		return
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "handler returned error", "agent", r.cfg.AgentName, "task_id", taskID, "error", err)
		r.emitError(ctx, taskID, sender, err)
		return
	}
	if resp != nil {
		r.emit(ctx, resp)
	}
}

// dedupeKey extracts (task_id, intent, sender_timestamp) from an envelope
// for duplicate suppression, plus the sender/content pair used for the
// history ring.
func dedupeKey(env message.Envelope) (key, taskID, sender, content string, ok bool) {
	switch e := env.(type) {
	case message.EnvelopeMessage:
		return dedupeKeyFor(e.Message.TaskID, string(e.Message.Intent), e.Message.Timestamp), e.Message.TaskID, e.Message.Agent, e.Message.Content, true
	case message.EnvelopeTask:
		return dedupeKeyFor(e.Task.TaskID, string(e.Task.Intent), e.Task.Timestamp), e.Task.TaskID, e.Task.Agent, e.Task.Content, true
	case message.EnvelopeTaskResult:
		return dedupeKeyFor(e.TaskResult.TaskID, string(e.TaskResult.Intent), e.TaskResult.Timestamp), e.TaskResult.TaskID, e.TaskResult.Agent, e.TaskResult.Content, true
	default:
		return "", "", "", "", false
	}
}

func dedupeKeyFor(taskID, intent string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", taskID, intent, ts.UnixNano())
}

// emit publishes a handler's Response to its target agent's channel, and
// mirrors it to frontend_broadcast when requested.
func (r *Runtime) emit(ctx context.Context, resp *Response) {
	var target string
	var data []byte
	var err error

	switch {
	case resp.TaskResult != nil:
		target = resp.TaskResult.TargetAgent
		data, err = message.Encode(resp.TaskResult)
	case resp.Task != nil:
		target = resp.Task.TargetAgent
		data, err = message.Encode(resp.Task)
	default:
		return
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode response", "error", err)
		return
	}

	if target != "" {
		if pubErr := r.publishWithRetry(ctx, Channel(target), data); pubErr != nil {
			r.logger.WarnContext(ctx, "failed to publish response", "target", target, "error", pubErr)
		}
	}
	if resp.Broadcast {
		if pubErr := r.publishWithRetry(ctx, BroadcastChannel, data); pubErr != nil {
			r.logger.WarnContext(ctx, "failed to broadcast response", "error", pubErr)
		}
	}
}

// emitError publishes a handler failure to the original requester's
// channel, or to this agent's own channel when the requester is unknown.
func (r *Runtime) emitError(ctx context.Context, taskID, requester string, cause error) {
	payload := message.ErrorPayload{
		TaskID:    taskID,
		Agent:     r.cfg.AgentName,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	data, err := message.Encode(payload)
	if err != nil {
		return
	}
	target := requester
	if target == "" {
		target = r.cfg.AgentName
	}
	_ = r.bus.Publish(ctx, Channel(target), data)
}
