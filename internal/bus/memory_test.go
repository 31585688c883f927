package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/bus"
)

func TestMemoryBus_PublishOrderPerChannel(t *testing.T) {
	m := bus.NewMemoryBus()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "ch")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, m.Publish(ctx, "ch", []byte("1")))
	require.NoError(t, m.Publish(ctx, "ch", []byte("2")))
	require.NoError(t, m.Publish(ctx, "ch", []byte("3")))

	for _, want := range []string{"1", "2", "3"} {
		select {
		case msg := <-sub.Receive():
			require.Equal(t, want, string(msg.Payload))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestMemoryBus_NoCrossChannelDelivery(t *testing.T) {
	m := bus.NewMemoryBus()
	ctx := context.Background()

	subA, err := m.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer subA.Close()

	require.NoError(t, m.Publish(ctx, "b", []byte("nope")))

	select {
	case <-subA.Receive():
		t.Fatal("received a message published to a different channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_TTLExpiry(t *testing.T) {
	m := bus.NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "k", "v", 20*time.Millisecond))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)

	time.Sleep(40 * time.Millisecond)

	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryBus_ScanPrefix(t *testing.T) {
	m := bus.NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "agent_a_heartbeat", "alive", time.Minute))
	require.NoError(t, m.SetWithTTL(ctx, "agent_b_heartbeat", "alive", time.Minute))
	require.NoError(t, m.SetWithTTL(ctx, "other_key", "alive", time.Minute))

	keys, err := m.Scan(ctx, "agent_")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestMemoryBus_PublishAfterCloseIsRetryable(t *testing.T) {
	m := bus.NewMemoryBus()
	require.NoError(t, m.Close())

	err := m.Publish(context.Background(), "ch", []byte("x"))
	require.ErrorIs(t, err, bus.ErrRetryable)
}
