package event

import (
	"context"
	"sync"
)

// ReplicationChannel is a broadcast medium between execution contexts.
// Delivery is at-least-once and unordered; publishers receive their own
// messages back.
type ReplicationChannel interface {
	Publish(ctx context.Context, data []byte) error
	Subscribe(ctx context.Context, handler func(ctx context.Context, data []byte)) error
	Close() error
}

// MemoryHub connects several in-process routers. Each Channel call returns a
// new endpoint; a message published on any endpoint is delivered
// synchronously to every subscribed endpoint, the sender included.
type MemoryHub struct {
	mu        sync.RWMutex
	endpoints []*memoryChannel
}

// NewMemoryHub creates an empty hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// Channel returns a new endpoint on the hub
func (h *MemoryHub) Channel() ReplicationChannel {
	ep := &memoryChannel{hub: h}
	h.mu.Lock()
	h.endpoints = append(h.endpoints, ep)
	h.mu.Unlock()
	return ep
}

func (h *MemoryHub) broadcast(ctx context.Context, data []byte) {
	h.mu.RLock()
	targets := make([]*memoryChannel, len(h.endpoints))
	copy(targets, h.endpoints)
	h.mu.RUnlock()

	for _, ep := range targets {
		if handler := ep.current(); handler != nil {
			msg := make([]byte, len(data))
			copy(msg, data)
			handler(ctx, msg)
		}
	}
}

type memoryChannel struct {
	hub     *MemoryHub
	mu      sync.RWMutex
	handler func(context.Context, []byte)
	closed  bool
}

func (c *memoryChannel) current() func(context.Context, []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.handler
}

func (c *memoryChannel) Publish(ctx context.Context, data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return errChannelClosed
	}
	c.hub.broadcast(ctx, data)
	return nil
}

func (c *memoryChannel) Subscribe(_ context.Context, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	c.handler = handler
	return nil
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.handler = nil
	return nil
}
