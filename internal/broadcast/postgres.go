package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// PGBus delivers channel payloads between processes over Postgres
// LISTEN/NOTIFY. Publishing goes through the shared *sql.DB; listening
// holds one dedicated pgx connection per process, re-established with a
// linearly growing delay when it drops.
type PGBus struct {
	dsn    string
	db     *sql.DB
	names  []string
	logger *log.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler
	cancel   context.CancelFunc
}

// NewPGBus constructs a bus listening on the given channel names and
// starts the listener loop.
func NewPGBus(ctx context.Context, dsn string, db *sql.DB, names []string, logger *log.Logger) (*PGBus, error) {
	if dsn == "" {
		return nil, errors.New("pg bus: empty dsn")
	}
	if db == nil {
		return nil, errors.New("pg bus: nil db")
	}
	if len(names) == 0 {
		return nil, errors.New("pg bus: no channel names")
	}
	if logger == nil {
		logger = log.Default()
	}
	bus := &PGBus{
		dsn:      dsn,
		db:       db,
		names:    names,
		logger:   logger,
		handlers: make(map[string]map[int]Handler),
	}
	runCtx, cancel := context.WithCancel(ctx)
	bus.cancel = cancel
	go bus.listen(runCtx)
	return bus, nil
}

// Channel returns a Channel view of the named Postgres channel.
func (b *PGBus) Channel(name string) Channel {
	return &pgChannel{bus: b, name: name}
}

// Close stops the listener loop.
func (b *PGBus) Close() {
	if b == nil || b.cancel == nil {
		return
	}
	b.cancel()
}

func (b *PGBus) listen(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		err := b.listenOnce(ctx, func() { attempt = 0 })
		if err == nil || ctx.Err() != nil {
			continue
		}
		attempt++
		delay := time.Duration(attempt) * time.Second
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
		b.logger.Printf("pg bus: listener error: %v (retry in %s)", err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (b *PGBus) listenOnce(ctx context.Context, onReady func()) error {
	conn, err := pgx.Connect(ctx, b.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	for _, name := range b.names {
		listen := "LISTEN " + pgx.Identifier{name}.Sanitize()
		if _, err := conn.Exec(ctx, listen); err != nil {
			return err
		}
	}
	onReady()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		b.dispatch(notification.Channel, []byte(notification.Payload))
	}
}

func (b *PGBus) dispatch(name string, payload []byte) {
	b.mu.Lock()
	registered := b.handlers[name]
	handlers := make([]Handler, 0, len(registered))
	for _, fn := range registered {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		if fn != nil {
			fn(payload)
		}
	}
}

func (b *PGBus) subscribe(name string, fn Handler) func() {
	b.mu.Lock()
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[name][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[name], id)
		b.mu.Unlock()
	}
}

type pgChannel struct {
	bus  *PGBus
	name string
}

func (c *pgChannel) Publish(ctx context.Context, payload []byte) error {
	_, err := c.bus.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", c.name, string(payload))
	return err
}

func (c *pgChannel) Subscribe(fn Handler) func() {
	return c.bus.subscribe(c.name, fn)
}
