package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tag-monitor/internal/alarmstore"
	"tag-monitor/internal/observability/metrics"
)

// Sink receives classified alarms. The alarm store satisfies it.
type Sink interface {
	Add(ctx context.Context, kind, id, status string, ts int64, extra alarmstore.Extra)
}

// Clock provides receive-time for messages without a usable timestamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Classifier turns inbound stream messages into device and gateway
// alarms. A single message may yield both. Malformed payloads and
// unrecognized status codes are discarded, never surfaced.
type Classifier struct {
	sink  Sink
	clock Clock
}

// ClassifierOption configures the classifier.
type ClassifierOption func(*Classifier)

// WithClassifierClock overrides the default clock.
func WithClassifierClock(clock Clock) ClassifierOption {
	return func(c *Classifier) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClassifier constructs a classifier feeding the given sink.
func NewClassifier(sink Sink, opts ...ClassifierOption) (*Classifier, error) {
	if sink == nil {
		return nil, errors.New("classifier: nil sink")
	}
	c := &Classifier{sink: sink, clock: systemClock{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type message struct {
	TagAddress     any `json:"tag_address"`
	DeviceID       any `json:"device_id"`
	ID             any `json:"id"`
	ErrorCode      any `json:"error_code"`
	GwAddress      any `json:"gw_address"`
	GwStatus       any `json:"gw_statue"` // field name as sent by the feed
	SendType       any `json:"send_type"`
	Timestamp      any `json:"timestamp"`
	Time           any `json:"time"`
	TS             any `json:"ts"`
	TimestampEpoch any `json:"timestamp_epoch"`
	RawTime        any `json:"raw_time"`
}

// HandleMessage classifies one raw payload.
func (c *Classifier) HandleMessage(ctx context.Context, raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		metrics.IncIngestMessage("malformed")
		return
	}

	extra := alarmstore.Extra{SendType: stringify(msg.SendType)}
	matched := false

	if tagID := firstID(msg.TagAddress, msg.DeviceID, msg.ID); tagID != "" {
		if status := NormalizeStatus(msg.ErrorCode); status != "" {
			c.sink.Add(ctx, alarmstore.KindDevice, tagID, status, c.effectiveTS(msg), extra)
			matched = true
		}
	}

	if gwID := stringify(msg.GwAddress); gwID != "" {
		if status := NormalizeStatus(msg.GwStatus); status != "" {
			c.sink.Add(ctx, alarmstore.KindGateway, gwID, status, c.effectiveTS(msg), extra)
			matched = true
		}
	}

	if matched {
		metrics.IncIngestMessage("alarm")
	} else {
		metrics.IncIngestMessage("ignored")
	}
}

// effectiveTS takes the first present timestamp field; a present but
// non-numeric value falls back to receive-time, later fields are not
// consulted.
func (c *Classifier) effectiveTS(msg message) int64 {
	for _, candidate := range []any{msg.Timestamp, msg.Time, msg.TS, msg.TimestampEpoch, msg.RawTime} {
		if candidate == nil {
			continue
		}
		if n, ok := numeric(candidate); ok {
			return int64(n)
		}
		break
	}
	return c.clock.Now().UnixMilli()
}

func firstID(candidates ...any) string {
	for _, candidate := range candidates {
		if s := stringify(candidate); s != "" {
			return s
		}
	}
	return ""
}
