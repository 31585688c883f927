package message_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/message"
)

func TestDecodeMessage_RoundTrip(t *testing.T) {
	msg := message.Message{
		TaskID:    "t-1",
		Agent:     "moderator",
		Content:   "hello",
		Intent:    message.IntentChat,
		Timestamp: time.Date(2025, 3, 26, 14, 0, 0, 0, time.UTC),
	}

	data, err := message.Encode(msg)
	require.NoError(t, err)

	decoded, err := message.DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, msg.TaskID, decoded.TaskID)
	require.Equal(t, msg.Agent, decoded.Agent)
	require.Equal(t, msg.Content, decoded.Content)
	require.Equal(t, msg.Intent, decoded.Intent)
	require.True(t, msg.Timestamp.Equal(decoded.Timestamp))
}

func TestDecodeMessage_TimestampFormats(t *testing.T) {
	for _, ts := range []string{"2025-03-26T14:00:00Z", "2025-03-26T14:00:00+00:00"} {
		raw := `{"task_id":"t","agent":"a","content":"c","intent":"chat","timestamp":"` + ts + `"}`
		decoded, err := message.DecodeMessage([]byte(raw))
		require.NoError(t, err, ts)
		require.Equal(t, 2025, decoded.Timestamp.Year())
	}
}

func TestDecodeMessage_UnknownIntent(t *testing.T) {
	raw := `{"task_id":"t","agent":"a","content":"c","intent":"levitate","timestamp":"2025-03-26T14:00:00Z"}`
	decoded, err := message.DecodeMessage([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, message.IntentUnknown, decoded.Intent)
}

func TestDecodeMessage_UnknownFieldsTolerated(t *testing.T) {
	raw := `{"task_id":"t","agent":"a","content":"c","intent":"chat","timestamp":"2025-03-26T14:00:00Z","future_field":"ignored"}`
	_, err := message.DecodeMessage([]byte(raw))
	require.NoError(t, err)
}

func TestValidate_Message_MissingFields(t *testing.T) {
	err := message.Validate(message.Message{})
	require.Error(t, err)
	verr, ok := err.(*message.ValidationError)
	require.True(t, ok)
	require.NotEmpty(t, verr.Errors)
}

func TestValidate_Task_ConfidenceRange(t *testing.T) {
	bad := 1.5
	task := message.Task{
		Message: message.Message{
			TaskID: "t", Agent: "a", Content: "c", Intent: message.IntentStartTask, Timestamp: time.Now(),
		},
		TargetAgent: "moderator",
		Event:       message.EventPlan,
		Confidence:  &bad,
	}
	err := message.Validate(task)
	require.Error(t, err)
}

func TestDecodeEnvelope_Variants(t *testing.T) {
	cases := map[string]message.EnvelopeKind{
		`{"task_id":"t","agent":"a","content":"c","intent":"chat","timestamp":"2025-03-26T14:00:00Z"}`:                                                                                  message.KindMessage,
		`{"task_id":"t","agent":"a","content":"c","intent":"start_task","timestamp":"2025-03-26T14:00:00Z","target_agent":"x","event":"plan"}`:                                            message.KindTask,
		`{"task_id":"t","agent":"a","content":"c","intent":"modify_task","timestamp":"2025-03-26T14:00:00Z","target_agent":"x","event":"complete","outcome":"completed","contributing_agents":["a"]}`: message.KindTaskResult,
		`{"event":"stream_update","data":{"task_id":"t","agent":"a","delta":"chunk"}}`:                                                                                                     message.KindStreamEvent,
		`{"agent_status":{"moderator":"online"},"system_ready":true,"timestamp":"2025-03-26T14:00:00Z"}`:                                                                                   message.KindSystemStatus,
		`not json at all`: message.KindUnknown,
	}

	for raw, want := range cases {
		env := message.DecodeEnvelope([]byte(raw))
		require.Equal(t, want, env.Kind(), raw)
	}
}
