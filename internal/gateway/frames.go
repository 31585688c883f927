package gateway

import "encoding/json"

// FrameType is the recognized value of an inbound or outbound {type,
// payload} WebSocket frame (§4.5, §6).
type FrameType string

const (
	FrameChatMessage          FrameType = "chat_message"
	FrameStartTask            FrameType = "start_task"
	FramePing                 FrameType = "ping"
	FramePong                 FrameType = "pong"
	FrameSubscribe            FrameType = "subscribe"
	FrameUnsubscribe          FrameType = "unsubscribe"
	FrameCommand              FrameType = "command"
	FrameCancelTask           FrameType = "cancel_task"
	FrameConnectionEstablished FrameType = "connection_established"
	FrameSystemStatusUpdate   FrameType = "system_status_update"
	FrameBackpressureWarning  FrameType = "backpressure_warning"
	FrameError                FrameType = "error"
)

// Frame is the common envelope every client<->gateway message uses.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// chatOrTaskPayload is what a chat_message/start_task frame's payload
// decodes into: free-form content plus an optional client-supplied
// task_id (stamped with a generated one when absent, per §4.5).
type chatOrTaskPayload struct {
	TaskID  string `json:"task_id,omitempty"`
	Content string `json:"content"`
}

// subscribePayload names the channel a subscribe/unsubscribe frame
// targets — typically "task:<task_id>" for per-task stream forwarding.
type subscribePayload struct {
	Channel string `json:"channel"`
}

func encodeFrame(t FrameType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: t, Payload: raw})
}
