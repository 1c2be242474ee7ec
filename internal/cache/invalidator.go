package cache

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// DefaultInvalidationChannel is the Redis Pub/Sub channel carrying cache keys
// to invalidate. Every vantage instance subscribed to it drops the key from
// its own store and revalidates the queries that read it.
const DefaultInvalidationChannel = "vantage:cache:invalidate"

// Invalidator fans invalidation signals out between instances over Redis
// Pub/Sub.
type Invalidator struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator on channel. An empty channel uses
// DefaultInvalidationChannel.
func NewInvalidator(client *redis.Client, channel string) *Invalidator {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Invalidator{client: client, channel: channel}
}

// Channel returns the Pub/Sub channel name.
func (i *Invalidator) Channel() string {
	return i.channel
}

// Start subscribes and hands each received key to handler. It blocks until
// the context is cancelled or Close is called.
func (i *Invalidator) Start(ctx context.Context, handler func(key string)) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()
	defer cancel()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so a Publish issued right after
	// Start returns control is not lost.
	if _, err := pubsub.Receive(subCtx); err != nil {
		if subCtx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Payload)
		}
	}
}

// Publish broadcasts an invalidation for key.
func (i *Invalidator) Publish(ctx context.Context, key string) error {
	return i.client.Publish(ctx, i.channel, key).Err()
}

// Close stops the listener.
func (i *Invalidator) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if i.cancel != nil {
		i.cancel()
	}
	return nil
}
