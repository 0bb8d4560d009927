package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCloseTimeout = 5 * time.Second

// RedisReplicationChannel broadcasts encoded sync events between server
// processes over Redis Pub/Sub. Delivery is at-least-once from the router's
// point of view and unordered across publishers; every subscriber, the
// publisher included, receives each message.
type RedisReplicationChannel struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger

	mu       sync.Mutex
	cancelFn context.CancelFunc
	doneCh   chan struct{}
	closed   bool
}

// ReplicationChannelOption configures a RedisReplicationChannel
type ReplicationChannelOption func(*RedisReplicationChannel)

// WithChannelLogger sets the logger
func WithChannelLogger(logger *zap.Logger) ReplicationChannelOption {
	return func(c *RedisReplicationChannel) {
		c.logger = logger
	}
}

// NewRedisReplicationChannel creates a channel on an existing client. The
// caller retains ownership of the client.
func NewRedisReplicationChannel(client redis.UniversalClient, channel string, opts ...ReplicationChannelOption) *RedisReplicationChannel {
	c := &RedisReplicationChannel{
		client:  client,
		channel: channel,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish sends one encoded message to every subscriber
func (c *RedisReplicationChannel) Publish(ctx context.Context, data []byte) error {
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		c.logger.Error("Failed to publish replication message",
			zap.String("channel", c.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish replication message: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription and then delivers messages to handler
// from a background goroutine until ctx is done or Close is called. Only one
// subscription per channel value is allowed.
func (c *RedisReplicationChannel) Subscribe(ctx context.Context, handler func(ctx context.Context, data []byte)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("replication channel closed")
	}
	if c.cancelFn != nil {
		c.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	subCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	pubsub := c.client.Subscribe(subCtx, c.channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		_ = pubsub.Close()
		cancel()
		c.mu.Lock()
		c.cancelFn = nil
		close(c.doneCh)
		c.mu.Unlock()
		return fmt.Errorf("failed to subscribe to channel %s: %w", c.channel, err)
	}

	c.logger.Info("Subscribed to replication channel", zap.String("channel", c.channel))
	go c.receiveLoop(subCtx, pubsub, handler, c.doneCh)
	return nil
}

func (c *RedisReplicationChannel) receiveLoop(ctx context.Context, pubsub *redis.PubSub, handler func(context.Context, []byte), done chan struct{}) {
	defer close(done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Replication subscription stopped", zap.String("channel", c.channel))
			return
		case msg, ok := <-ch:
			if !ok {
				c.logger.Warn("Replication channel closed by server", zap.String("channel", c.channel))
				return
			}
			c.deliver(ctx, handler, []byte(msg.Payload))
		}
	}
}

func (c *RedisReplicationChannel) deliver(ctx context.Context, handler func(context.Context, []byte), data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic in replication handler", zap.Any("panic", r))
		}
	}()
	handler(ctx, data)
}

// Close stops the subscription. The Redis client is left open.
func (c *RedisReplicationChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancelFn, c.doneCh
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(defaultCloseTimeout):
		c.logger.Warn("Timeout waiting for replication subscription to stop")
	}
	return nil
}
