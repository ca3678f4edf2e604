package ingest

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"tag-monitor/internal/observability/metrics"
)

const (
	reconnectStep    = time.Second
	reconnectMax     = 10 * time.Second
	constructRetry   = 2 * time.Second
	handshakeTimeout = 10 * time.Second
)

// MessageHandler consumes raw frames from the alarm feed.
type MessageHandler func(ctx context.Context, raw []byte)

// Client maintains the single logical connection of this process to the
// streaming alarm feed. Retries are unbounded: the delay grows linearly
// with the failure count, capped at 10 seconds, and resets on a
// successful open. The ingestor never sends application messages.
type Client struct {
	rawURL  string
	handler MessageHandler
	logger  *log.Logger
	dialer  *websocket.Dialer
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithClientLogger overrides the default logger.
func WithClientLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a stream client.
func NewClient(rawURL string, handler MessageHandler, opts ...ClientOption) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("stream client: empty url")
	}
	if handler == nil {
		return nil, errors.New("stream client: nil handler")
	}
	c := &Client{
		rawURL:  rawURL,
		handler: handler,
		logger:  log.Default(),
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run connects and reads until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		if _, err := url.Parse(c.rawURL); err != nil {
			c.logger.Printf("stream: bad url: %v (retry in %s)", err, constructRetry)
			if !sleep(ctx, constructRetry) {
				return
			}
			continue
		}

		conn, _, err := c.dialer.DialContext(ctx, c.rawURL, nil)
		if err != nil {
			attempt++
			metrics.IncIngestReconnect()
			delay := backoff(attempt)
			c.logger.Printf("stream: dial error: %v (retry in %s)", err, delay)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		attempt = 0
		c.logger.Printf("stream: connected to %s", c.rawURL)
		c.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		attempt++
		metrics.IncIngestReconnect()
		delay := backoff(attempt)
		c.logger.Printf("stream: connection closed (retry in %s)", delay)
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Printf("stream: read error: %v", err)
			}
			return
		}
		c.handler(ctx, raw)
	}
}

func backoff(attempt int) time.Duration {
	delay := time.Duration(attempt) * reconnectStep
	if delay > reconnectMax {
		delay = reconnectMax
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
