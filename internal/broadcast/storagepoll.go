package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"tag-monitor/internal/storage"
)

const defaultPollInterval = time.Second

// PollChannel is the fallback channel used when no native broadcast
// primitive is available. A publish writes the payload plus a sequence
// marker to the snapshot store; subscribers poll the marker and deliver
// the latest payload when it changes. Only the most recent payload is
// observable between polls, which is the weaker guarantee callers accept
// on this path.
type PollChannel struct {
	store    storage.Store
	name     string
	interval time.Duration

	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
	lastSeq  int64
	cancel   context.CancelFunc
	seqFn    func() int64
}

type pollEnvelope struct {
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// PollOption configures a PollChannel.
type PollOption func(*PollChannel)

// WithPollInterval overrides the polling interval.
func WithPollInterval(interval time.Duration) PollOption {
	return func(c *PollChannel) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// NewPollChannel constructs a polling channel over the snapshot store.
func NewPollChannel(store storage.Store, name string, opts ...PollOption) (*PollChannel, error) {
	if store == nil {
		return nil, errors.New("poll channel: nil store")
	}
	if name == "" {
		return nil, errors.New("poll channel: empty name")
	}
	c := &PollChannel{
		store:    store,
		name:     name,
		interval: defaultPollInterval,
		handlers: make(map[int]Handler),
		seqFn:    func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Publish writes the payload under a fresh sequence number. Last write
// wins when publishers race.
func (c *PollChannel) Publish(ctx context.Context, payload []byte) error {
	env := pollEnvelope{Seq: c.seqFn(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lastSeq = env.Seq // own publishes are not redelivered locally
	c.mu.Unlock()
	return c.store.Set(ctx, c.key(), data)
}

// Subscribe registers a handler and starts the poll loop on first use.
func (c *PollChannel) Subscribe(fn Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	start := c.cancel == nil
	var ctx context.Context
	if start {
		ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	if start {
		go c.loop(ctx)
	}
	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// Poll performs a single check, delivering the stored payload if its
// sequence changed since the last observation.
func (c *PollChannel) Poll(ctx context.Context) {
	data, err := c.store.Get(ctx, c.key())
	if err != nil || len(data) == 0 {
		return
	}
	var env pollEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	c.mu.Lock()
	if env.Seq == c.lastSeq {
		c.mu.Unlock()
		return
	}
	c.lastSeq = env.Seq
	handlers := make([]Handler, 0, len(c.handlers))
	for _, fn := range c.handlers {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		if fn != nil {
			fn(env.Payload)
		}
	}
}

// Close stops the poll loop.
func (c *PollChannel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *PollChannel) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *PollChannel) key() string {
	return "bc_" + c.name
}
