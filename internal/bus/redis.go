package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a RedisBus.
type Options struct {
	URL      string // e.g. redis://localhost:6379/0
	Password string
	Logger   *slog.Logger

	// PingInterval controls how often the connection-watch loop checks
	// reachability between reconnect attempts. Defaults to 2s.
	PingInterval time.Duration
}

// RedisBus is the Bus implementation backed by Redis pub/sub and string
// keys with TTL.
type RedisBus struct {
	rdb    *redis.Client
	logger *slog.Logger

	connected atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRedisBus dials Redis and starts the background connection watcher
// responsible for the jittered-backoff reconnect contract (§4.2).
func NewRedisBus(opts Options) (*RedisBus, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid BUS_URL: %w", err)
	}
	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 2 * time.Second
	}

	b := &RedisBus{
		rdb:    redis.NewClient(redisOpts),
		logger: logger,
		done:   make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bus: initial connection failed: %w", err)
	}
	b.connected.Store(true)

	b.wg.Add(1)
	go b.watchConnection(pingInterval)

	return b, nil
}

// watchConnection flips connected to false on ping failure and retries
// with jittered exponential backoff until the connection is restored,
// logging the edge-triggered transition in both directions.
func (b *RedisBus) watchConnection(pingInterval time.Duration) {
	defer b.wg.Done()

	bo := defaultBackoff()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pingInterval)
			err := b.rdb.Ping(ctx).Err()
			cancel()

			wasConnected := b.connected.Load()
			if err == nil {
				if !wasConnected {
					b.logger.Info("bus reconnected")
					bo.reset()
				}
				b.connected.Store(true)
				continue
			}

			if wasConnected {
				b.logger.Warn("bus connection lost", "error", err)
			}
			b.connected.Store(false)

			delay := bo.next()
			select {
			case <-b.done:
				return
			case <-time.After(delay):
			}
		}
	}
}

// Publish fails fast with ErrRetryable while the connection is down,
// instead of blocking behind the client's own retry machinery.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if !b.connected.Load() {
		return fmt.Errorf("publish to %s: %w", channel, ErrRetryable)
	}
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w: %v", channel, ErrRetryable, err)
	}
	return nil
}

func (b *RedisBus) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBus) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (b *RedisBus) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	close(b.done)
	b.wg.Wait()
	return b.rdb.Close()
}

// Subscribe returns a Subscription that transparently reinstalls itself
// after a reconnect: the returned channel keeps delivering messages once
// the underlying PubSub resumes, with no action required by the caller.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &redisSubscription{
		bus:     b,
		channel: channel,
		out:     make(chan Message, 256),
		stop:    make(chan struct{}),
	}
	if err := sub.connect(ctx); err != nil {
		return nil, err
	}
	sub.wg.Add(1)
	go sub.loop()
	return sub, nil
}

type redisSubscription struct {
	bus     *RedisBus
	channel string

	mu  sync.Mutex
	ps  *redis.PubSub
	out chan Message

	stop chan struct{}
	wg   sync.WaitGroup
}

func (s *redisSubscription) connect(ctx context.Context) error {
	ps := s.bus.rdb.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	s.mu.Lock()
	s.ps = ps
	s.mu.Unlock()
	return nil
}

func (s *redisSubscription) loop() {
	defer s.wg.Done()

	bo := defaultBackoff()
	for {
		s.mu.Lock()
		ps := s.ps
		s.mu.Unlock()

		ch := ps.Channel()
		for msg := range ch {
			select {
			case s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			default:
				s.bus.logger.Warn("subscriber channel full, dropping message", "channel", s.channel)
			}
		}

		select {
		case <-s.stop:
			return
		default:
		}

		// The PubSub's internal channel closed — reconnect with backoff,
		// reinstalling the subscription before resuming delivery.
		delay := bo.next()
		s.bus.logger.Warn("resubscribing after disconnect", "channel", s.channel, "delay", delay)
		select {
		case <-s.stop:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			bo.reset()
			continue
		}
		s.bus.logger.Warn("resubscribe attempt failed", "channel", s.channel, "error", err)
	}
}

func (s *redisSubscription) Receive() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	close(s.stop)
	s.mu.Lock()
	ps := s.ps
	s.mu.Unlock()
	var err error
	if ps != nil {
		err = ps.Close()
	}
	s.wg.Wait()
	return err
}
