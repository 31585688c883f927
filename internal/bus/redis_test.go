package bus_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhub/fabric/internal/bus"
)

// newTestRedisBus connects to a Redis instance for integration testing. It
// skips the test if none is reachable, matching the pack's pattern for
// tests that need a live external dependency.
func newTestRedisBus(t *testing.T) *bus.RedisBus {
	t.Helper()

	url := os.Getenv("TEST_BUS_URL")
	if url == "" {
		url = "redis://localhost:6379/1"
	}

	b, err := bus.NewRedisBus(bus.Options{URL: url})
	if err != nil {
		t.Skipf("redis not available (%v) — skipping integration test", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	b := newTestRedisBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "fabric_test_channel")
	require.NoError(t, err)
	defer sub.Close()

	time.Sleep(50 * time.Millisecond) // allow SUBSCRIBE to land server-side

	require.NoError(t, b.Publish(ctx, "fabric_test_channel", []byte("hello")))

	select {
	case msg := <-sub.Receive():
		require.Equal(t, "hello", string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisBus_SetWithTTLAndGet(t *testing.T) {
	b := newTestRedisBus(t)
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "fabric_test_key", "alive", 2*time.Second))

	val, ok, err := b.Get(ctx, "fabric_test_key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alive", val)

	time.Sleep(2200 * time.Millisecond)

	_, ok, err = b.Get(ctx, "fabric_test_key")
	require.NoError(t, err)
	require.False(t, ok, "key should have expired")
}

func TestRedisBus_Scan(t *testing.T) {
	b := newTestRedisBus(t)
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "fabric_scan_a", "x", time.Minute))
	require.NoError(t, b.SetWithTTL(ctx, "fabric_scan_b", "x", time.Minute))

	keys, err := b.Scan(ctx, "fabric_scan_")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(keys), 2)
}
