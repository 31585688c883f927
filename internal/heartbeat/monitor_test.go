package heartbeat_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/heartbeat"
	"github.com/arbiterhub/fabric/internal/message"
)

func TestWriter_RefreshesLivenessKey(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	w := heartbeat.NewWriter(b, "moderator", 20*time.Millisecond, 60*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go w.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	val, ok, err := b.Get(context.Background(), heartbeat.Key("moderator"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, heartbeat.Alive, val)
}

func TestMonitor_SystemReadyWhenAllOnline(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.SetWithTTL(ctx, heartbeat.Key("moderator"), heartbeat.Alive, time.Minute))
	require.NoError(t, b.SetWithTTL(ctx, heartbeat.Key("arbitrator"), heartbeat.Alive, time.Minute))

	sub, err := b.Subscribe(ctx, heartbeat.Channel)
	require.NoError(t, err)
	defer sub.Close()

	mon := heartbeat.NewMonitor(b, []string{"moderator", "arbitrator"}, 40*time.Millisecond, nil)
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	go mon.Run(runCtx)

	select {
	case msg := <-sub.Receive():
		var update message.SystemStatusUpdate
		require.NoError(t, decodeInto(msg.Payload, &update))
		require.True(t, update.SystemReady)
		require.Equal(t, "online", update.AgentStatus["moderator"])
		require.Equal(t, "online", update.AgentStatus["arbitrator"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for system status update")
	}
}

func TestMonitor_NotReadyWhenAnyOffline(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.SetWithTTL(ctx, heartbeat.Key("moderator"), heartbeat.Alive, time.Minute))
	// "arbitrator" never writes a liveness key: offline by absence.

	sub, err := b.Subscribe(ctx, heartbeat.Channel)
	require.NoError(t, err)
	defer sub.Close()

	mon := heartbeat.NewMonitor(b, []string{"moderator", "arbitrator"}, 40*time.Millisecond, nil)
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	go mon.Run(runCtx)

	select {
	case msg := <-sub.Receive():
		var update message.SystemStatusUpdate
		require.NoError(t, decodeInto(msg.Payload, &update))
		require.False(t, update.SystemReady)
		require.Equal(t, "offline", update.AgentStatus["arbitrator"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for system status update")
	}
}

func decodeInto(data []byte, v *message.SystemStatusUpdate) error {
	return json.Unmarshal(data, v)
}
