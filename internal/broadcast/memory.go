package broadcast

import (
	"context"
	"sync"
)

// Bus is an in-process channel fabric. It is the whole story for a
// single-process deployment and the double for multi-process setups in
// tests, where several components share one bus the way several dashboard
// processes share a native broadcast primitive.
type Bus struct {
	mu       sync.Mutex
	channels map[string]*memoryChannel
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{channels: make(map[string]*memoryChannel)}
}

// Channel returns the named channel, creating it on first use.
func (b *Bus) Channel(name string) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[name]
	if !ok {
		ch = &memoryChannel{handlers: make(map[int]Handler)}
		b.channels[name] = ch
	}
	return ch
}

type memoryChannel struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
}

func (c *memoryChannel) Publish(_ context.Context, payload []byte) error {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, fn := range c.handlers {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		if fn != nil {
			fn(payload)
		}
	}
	return nil
}

func (c *memoryChannel) Subscribe(fn Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}
