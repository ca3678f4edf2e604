package alarmstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"tag-monitor/internal/broadcast"
	"tag-monitor/internal/observability/metrics"
	"tag-monitor/internal/storage"
)

// Event types flowing between processes and to local subscribers.
const (
	EventAdd = "add"
	EventAck = "ack"
)

// Event is a change notification. Subscribers must treat it as a hint and
// re-query GetAll/GetCount rather than applying it as a precise diff.
type Event struct {
	Type   string   `json:"type"`
	Origin string   `json:"origin,omitempty"`
	Alarm  *Record  `json:"alarm,omitempty"`
	Keys   []string `json:"keys,omitempty"`
}

// Clock provides time for TTL filtering and bucketing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Store is the shared, deduplicated, TTL-bounded set of unacknowledged
// alarms. Every dashboard process of a profile reads and writes the same
// snapshot store; none owns it. Expiry is lazy: records are filtered on
// read, never swept in the background.
type Store struct {
	snapshots storage.Store
	channel   broadcast.Channel
	clock     Clock
	bucket    time.Duration
	ttl       time.Duration
	logger    *log.Logger
	origin    string

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
	cancelCh    func()
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBucket overrides the deduplication bucket width. Zero disables
// bucketing.
func WithBucket(bucket time.Duration) Option {
	return func(s *Store) {
		if bucket >= 0 {
			s.bucket = bucket
		}
	}
}

// WithTTL overrides the pending record lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs an alarm store. channel may be nil for a process
// that runs without cross-process synchronization.
func NewStore(snapshots storage.Store, channel broadcast.Channel, opts ...Option) (*Store, error) {
	if snapshots == nil {
		return nil, errors.New("alarm store: nil snapshot store")
	}
	s := &Store{
		snapshots:   snapshots,
		channel:     channel,
		clock:       systemClock{},
		bucket:      DefaultBucket,
		ttl:         DefaultTTL,
		logger:      log.Default(),
		origin:      newOriginID(),
		subscribers: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if channel != nil {
		s.cancelCh = channel.Subscribe(s.handleBroadcast)
	}
	return s, nil
}

// Close detaches the store from its broadcast channel.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancelCh
	s.cancelCh = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Add inserts one alarm unless its fingerprint is already pending or
// acknowledged. Timestamps below 10^12 are treated as seconds. Missing
// id, status, or timestamp makes the call a no-op. Storage failures
// degrade to non-persistent operation; they never propagate.
func (s *Store) Add(ctx context.Context, kind, id, status string, ts int64, extra Extra) {
	if s == nil || id == "" || status == "" || ts == 0 {
		return
	}
	if kind != KindGateway {
		kind = KindDevice
	}
	ts = NormalizeMillis(ts)
	key := MakeKey(kind, id, status, ts, s.bucket)

	acked := s.loadAcked(ctx)
	if _, ok := acked[key]; ok {
		metrics.IncAlarmSuppressed("acked")
		return
	}

	pending := s.loadPending(ctx)
	for _, record := range pending {
		if record.Key == key {
			metrics.IncAlarmSuppressed("duplicate")
			return
		}
	}

	record := Record{
		Key:      key,
		ID:       id,
		Kind:     kind,
		Status:   status,
		TS:       ts,
		SendType: extra.SendType,
	}
	pending = append(pending, record)
	s.savePending(ctx, pending)
	metrics.IncAlarmAdded(kind)
	metrics.SetAlarmsPending(len(pending))

	event := Event{Type: EventAdd, Origin: s.origin, Alarm: &record}
	s.publish(ctx, event)
	s.notify(event)
}

// Ack removes keys from the pending set and records them as acknowledged.
// Acknowledgement is permanent for the TTL lifetime of a fingerprint: a
// later Add producing the same key is suppressed.
func (s *Store) Ack(ctx context.Context, keys []string) {
	if s == nil || len(keys) == 0 {
		return
	}
	acked := s.loadAcked(ctx)
	pending := s.loadPending(ctx)

	remaining := pending[:0]
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
		acked[key] = struct{}{}
	}
	for _, record := range pending {
		if _, ok := drop[record.Key]; ok {
			continue
		}
		remaining = append(remaining, record)
	}

	s.savePending(ctx, remaining)
	s.saveAcked(ctx, acked)
	metrics.AddAlarmsAcked(len(keys))
	metrics.SetAlarmsPending(len(remaining))

	event := Event{Type: EventAck, Origin: s.origin, Keys: keys}
	s.publish(ctx, event)
	s.notify(event)
}

// GetAll returns the pending, non-expired, non-acknowledged records,
// re-filtered against the persisted snapshot on every call.
func (s *Store) GetAll(ctx context.Context) []Record {
	if s == nil {
		return nil
	}
	return s.loadPending(ctx)
}

// GetCount returns the size of the same filtered set.
func (s *Store) GetCount(ctx context.Context) int {
	return len(s.GetAll(ctx))
}

// Subscribe registers a callback for change notifications, both from this
// process and, via the broadcast channel, from other processes. Delivery
// is at-least-once.
func (s *Store) Subscribe(fn func(Event)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) handleBroadcast(payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	if event.Origin == s.origin {
		return
	}
	s.notify(event)
}

func (s *Store) publish(ctx context.Context, event Event) {
	if s.channel == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.channel.Publish(ctx, payload); err != nil {
		s.logger.Printf("alarm store: broadcast error: %v", err)
	}
}

func (s *Store) notify(event Event) {
	s.mu.Lock()
	subscribers := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()
	for _, fn := range subscribers {
		fn(event)
	}
}

func (s *Store) loadAcked(ctx context.Context) map[string]struct{} {
	acked := make(map[string]struct{})
	data, err := s.snapshots.Get(ctx, storage.KeyAckedAlarms)
	if err != nil {
		s.logger.Printf("alarm store: read acked error: %v", err)
		return acked
	}
	var keys []string
	if len(data) == 0 || json.Unmarshal(data, &keys) != nil {
		return acked
	}
	for _, key := range keys {
		acked[key] = struct{}{}
	}
	return acked
}

func (s *Store) saveAcked(ctx context.Context, acked map[string]struct{}) {
	keys := make([]string, 0, len(acked))
	for key := range acked {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return
	}
	if err := s.snapshots.Set(ctx, storage.KeyAckedAlarms, data); err != nil {
		metrics.IncStorageError("acked")
		s.logger.Printf("alarm store: persist acked error: %v", err)
	}
}

func (s *Store) loadPending(ctx context.Context) []Record {
	data, err := s.snapshots.Get(ctx, storage.KeyPendingAlarms)
	if err != nil {
		s.logger.Printf("alarm store: read pending error: %v", err)
		return nil
	}
	var raw []Record
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil {
		return nil
	}

	acked := s.loadAcked(ctx)
	now := s.clock.Now().UnixMilli()
	seen := make(map[string]struct{}, len(raw))
	var pending []Record
	for _, record := range raw {
		if record.Key == "" || record.ID == "" || record.Status == "" || record.TS == 0 {
			continue
		}
		if _, ok := acked[record.Key]; ok {
			continue
		}
		if now-record.TS > s.ttl.Milliseconds() {
			continue
		}
		if _, ok := seen[record.Key]; ok {
			continue
		}
		seen[record.Key] = struct{}{}
		if record.Kind != KindGateway {
			record.Kind = KindDevice
		}
		pending = append(pending, record)
	}
	return pending
}

func (s *Store) savePending(ctx context.Context, pending []Record) {
	data, err := json.Marshal(pending)
	if err != nil {
		return
	}
	if err := s.snapshots.Set(ctx, storage.KeyPendingAlarms, data); err != nil {
		metrics.IncStorageError("pending")
		s.logger.Printf("alarm store: persist pending error: %v", err)
	}
}

func newOriginID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
