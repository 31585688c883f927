package bus

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus used by unit tests that need pub/sub and
// TTL'd keys without a live Redis instance. Delivery order within a
// channel matches publish order, mirroring the real adapter's contract.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
	kv   map[string]memoryEntry
	closed bool
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*memorySubscription),
		kv:   make(map[string]memoryEntry),
	}
}

func (m *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrRetryable
	}
	for _, sub := range m.subs[channel] {
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (m *MemoryBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{
		bus:     m,
		channel: channel,
		out:     make(chan Message, 256),
	}
	m.subs[channel] = append(m.subs[channel], sub)
	return sub, nil
}

func (m *MemoryBus) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryBus) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.kv[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expires) {
		delete(m.kv, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryBus) Scan(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	now := time.Now()
	for k, entry := range m.kv {
		if now.After(entry.expires) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryBus) Ping(ctx context.Context) error { return nil }

func (m *MemoryBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, subs := range m.subs {
		for _, sub := range subs {
			close(sub.out)
		}
	}
	return nil
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	out     chan Message
}

func (s *memorySubscription) Receive() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subs[s.channel]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}
