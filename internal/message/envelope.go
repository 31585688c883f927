package message

import "encoding/json"

// EnvelopeKind discriminates which variant an Envelope decoded to.
type EnvelopeKind string

const (
	KindMessage      EnvelopeKind = "message"
	KindTask         EnvelopeKind = "task"
	KindTaskResult   EnvelopeKind = "task_result"
	KindStreamEvent  EnvelopeKind = "stream_event"
	KindSystemStatus EnvelopeKind = "system_status"
	KindUnknown      EnvelopeKind = "unknown"
)

// Envelope is the sum type every value read off the bus decodes into. Bus
// consumers switch on Kind() instead of type-asserting the concrete wire
// shape, so a payload this version of the codec doesn't recognize still
// decodes — as EnvelopeUnknown — rather than failing the whole dispatch.
type Envelope interface {
	Kind() EnvelopeKind
}

type EnvelopeMessage struct{ Message Message }

func (EnvelopeMessage) Kind() EnvelopeKind { return KindMessage }

type EnvelopeTask struct{ Task Task }

func (EnvelopeTask) Kind() EnvelopeKind { return KindTask }

type EnvelopeTaskResult struct{ TaskResult TaskResult }

func (EnvelopeTaskResult) Kind() EnvelopeKind { return KindTaskResult }

type EnvelopeStreamEvent struct{ StreamEvent StreamEvent }

func (EnvelopeStreamEvent) Kind() EnvelopeKind { return KindStreamEvent }

type EnvelopeSystemStatus struct{ Status SystemStatusUpdate }

func (EnvelopeSystemStatus) Kind() EnvelopeKind { return KindSystemStatus }

// EnvelopeUnknown carries the raw bytes of a payload whose shape or enum
// literals this codec version doesn't recognize, so dead-letter handling
// can still inspect and log it.
type EnvelopeUnknown struct {
	Raw    []byte
	Reason string
}

func (EnvelopeUnknown) Kind() EnvelopeKind { return KindUnknown }

// discriminator is the subset of fields used to decide which envelope
// variant a payload belongs to, without committing to its full shape yet.
type discriminator struct {
	Event       string `json:"event"`
	Intent      string `json:"intent"`
	Outcome     string `json:"outcome"`
	SystemReady *bool  `json:"system_ready"`
	AgentStatus map[string]string `json:"agent_status"`
}

// DecodeEnvelope inspects a raw bus payload and decodes it into the
// Envelope variant its shape matches. Stream events are discriminated by
// their "event" field being one of stream_start/stream_update/stream_end;
// system status updates by the presence of "agent_status"/"system_ready";
// TaskResult by a non-empty "outcome" field; Task by a non-empty "event"
// field; everything else decodes as Message.
func DecodeEnvelope(data []byte) Envelope {
	var d discriminator
	if err := json.Unmarshal(data, &d); err != nil {
		return EnvelopeUnknown{Raw: data, Reason: err.Error()}
	}

	switch d.Event {
	case StreamStart, StreamUpdate, StreamEnd:
		var se StreamEvent
		if err := json.Unmarshal(data, &se); err != nil {
			return EnvelopeUnknown{Raw: data, Reason: err.Error()}
		}
		return EnvelopeStreamEvent{StreamEvent: se}
	}

	if d.SystemReady != nil || d.AgentStatus != nil {
		var su SystemStatusUpdate
		if err := json.Unmarshal(data, &su); err != nil {
			return EnvelopeUnknown{Raw: data, Reason: err.Error()}
		}
		return EnvelopeSystemStatus{Status: su}
	}

	if d.Outcome != "" {
		tr, err := DecodeTaskResult(data)
		if err != nil {
			return EnvelopeUnknown{Raw: data, Reason: err.Error()}
		}
		return EnvelopeTaskResult{TaskResult: tr}
	}

	if d.Event != "" {
		t, err := DecodeTask(data)
		if err != nil {
			return EnvelopeUnknown{Raw: data, Reason: err.Error()}
		}
		return EnvelopeTask{Task: t}
	}

	msg, err := DecodeMessage(data)
	if err != nil {
		return EnvelopeUnknown{Raw: data, Reason: err.Error()}
	}
	return EnvelopeMessage{Message: msg}
}
