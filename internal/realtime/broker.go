package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCloseTimeout = 5 * time.Second

// MemoryBroker delivers changes straight into the local hub.
type MemoryBroker struct {
	hub *Hub
}

func NewMemoryBroker(hub *Hub) *MemoryBroker {
	return &MemoryBroker{hub: hub}
}

func (b *MemoryBroker) Publish(ctx context.Context, change Change) error {
	b.hub.Broadcast(change)
	return nil
}

// RedisBroker publishes changes on a Redis channel and relays everything received on it
// into the local hub, so every instance of the server sees every change.
type RedisBroker struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	hub        *Hub
	logger     *slog.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func NewRedisBroker(opts RedisOptions, hub *Hub, logger *slog.Logger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := NewRedisBrokerWithClient(client, opts.Channel, hub, logger)
	b.ownsClient = true
	return b, nil
}

// NewRedisBrokerWithClient leaves ownership of client with the caller.
func NewRedisBrokerWithClient(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBroker {
	if channel == "" {
		channel = "marvellous:changes"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		doneCh:  make(chan struct{}),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, change Change) error {
	data, err := encodeChange(change)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("failed to publish change", "channel", b.channel, "error", err)
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Run blocks relaying channel messages into the hub until ctx is done or Close is called.
func (b *RedisBroker) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Info("subscribed to change feed", "channel", b.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("change feed subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("change feed channel closed")
				return nil
			}
			change, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				b.logger.Error("failed to decode change", "error", err)
				continue
			}
			b.hub.Broadcast(change)
		}
	}
}

func (b *RedisBroker) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("timeout waiting for change feed subscription to stop")
		}
	}

	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

func encodeChange(change Change) ([]byte, error) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	data, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change: %w", err)
	}
	return data, nil
}

func decodeChange(data []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(data, &change); err != nil {
		return Change{}, fmt.Errorf("failed to unmarshal change: %w", err)
	}
	if change.Table == "" || change.EventType == "" {
		return Change{}, fmt.Errorf("change is missing table or event type")
	}
	return change, nil
}
