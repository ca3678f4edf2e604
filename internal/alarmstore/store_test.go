package alarmstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"tag-monitor/internal/broadcast"
	"tag-monitor/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestStore(t *testing.T, channel broadcast.Channel, clock Clock) *Store {
	t.Helper()
	store, err := NewStore(storage.NewMemoryStore(), channel, WithClock(clock))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAddIsIdempotentWithinBucket(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()
	ts := clock.Now().UnixMilli()

	store.Add(ctx, KindDevice, "AABBCCDDEEFF", StatusWarn, ts, Extra{})
	store.Add(ctx, KindDevice, "AABBCCDDEEFF", StatusWarn, ts, Extra{})

	if got := store.GetCount(ctx); got != 1 {
		t.Fatalf("expected 1 pending record after duplicate add, got %d", got)
	}
}

func TestBucketBoundaries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()
	base := clock.Now().UnixMilli() - (clock.Now().UnixMilli() % DefaultBucket.Milliseconds())

	store.Add(ctx, KindDevice, "AA", StatusWarn, base, Extra{})
	store.Add(ctx, KindDevice, "AA", StatusWarn, base+DefaultBucket.Milliseconds()-1, Extra{})
	if got := store.GetCount(ctx); got != 1 {
		t.Fatalf("expected same-bucket adds to collapse, got %d records", got)
	}

	store.Add(ctx, KindDevice, "AA", StatusWarn, base+DefaultBucket.Milliseconds(), Extra{})
	if got := store.GetCount(ctx); got != 2 {
		t.Fatalf("expected next-bucket add to create a new record, got %d", got)
	}
}

func TestSecondsAreScaledToMillis(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()

	store.Add(ctx, KindDevice, "AA", StatusError, clock.Now().Unix(), Extra{})
	records := store.GetAll(ctx)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TS != clock.Now().UnixMilli() {
		t.Fatalf("expected millisecond timestamp %d, got %d", clock.Now().UnixMilli(), records[0].TS)
	}
}

func TestAckSuppressesLaterAdds(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()
	ts := clock.Now().UnixMilli()

	store.Add(ctx, KindDevice, "AABBCCDDEEFF", StatusError, ts, Extra{})
	records := store.GetAll(ctx)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	key := records[0].Key

	store.Ack(ctx, []string{key})
	if got := store.GetCount(ctx); got != 0 {
		t.Fatalf("expected empty pending set after ack, got %d", got)
	}

	store.Add(ctx, KindDevice, "AABBCCDDEEFF", StatusError, ts, Extra{})
	if got := store.GetCount(ctx); got != 0 {
		t.Fatalf("expected acked fingerprint to stay suppressed, got %d", got)
	}
}

func TestTTLExpiryIsLazy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()

	store.Add(ctx, KindGateway, "GW-1", StatusWarn, clock.Now().UnixMilli(), Extra{})
	if got := store.GetCount(ctx); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}

	clock.Add(24*time.Hour + time.Minute)
	if got := store.GetCount(ctx); got != 0 {
		t.Fatalf("expected expired record to be filtered, got %d", got)
	}
}

func TestAddIgnoresIncompleteAlarms(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()

	store.Add(ctx, KindDevice, "", StatusWarn, clock.Now().UnixMilli(), Extra{})
	store.Add(ctx, KindDevice, "AA", "", clock.Now().UnixMilli(), Extra{})
	store.Add(ctx, KindDevice, "AA", StatusWarn, 0, Extra{})

	if got := store.GetCount(ctx); got != 0 {
		t.Fatalf("expected incomplete alarms to be dropped, got %d", got)
	}
}

func TestUnknownKindIsCoercedToDevice(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	store := newTestStore(t, nil, clock)
	ctx := context.Background()

	store.Add(ctx, "sensor", "AA", StatusWarn, clock.Now().UnixMilli(), Extra{})
	records := store.GetAll(ctx)
	if len(records) != 1 || records[0].Kind != KindDevice {
		t.Fatalf("expected unknown kind to store as device, got %+v", records)
	}
}

func TestMalformedSnapshotFailsSoft(t *testing.T) {
	snapshots := storage.NewMemoryStore()
	ctx := context.Background()
	if err := snapshots.Set(ctx, storage.KeyPendingAlarms, []byte("{not json")); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	store, err := NewStore(snapshots, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if got := store.GetCount(ctx); got != 0 {
		t.Fatalf("expected malformed snapshot to read as empty, got %d", got)
	}
}

func TestCrossProcessSubscription(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	bus := broadcast.NewBus()
	channel := bus.Channel(broadcast.ChannelAlarmStore)
	snapshots := storage.NewMemoryStore()

	writer, err := NewStore(snapshots, channel, WithClock(clock))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	reader, err := NewStore(snapshots, channel, WithClock(clock))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	reader.Subscribe(func(event Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	ctx := context.Background()
	writer.Add(ctx, KindDevice, "AABBCCDDEEFF", StatusError, clock.Now().UnixMilli(), Extra{SendType: "auto"})

	mu.Lock()
	got := append([]Event(nil), events...)
	mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event on the other process, got %d", len(got))
	}
	if got[0].Type != EventAdd || got[0].Alarm == nil || got[0].Alarm.ID != "AABBCCDDEEFF" {
		t.Fatalf("unexpected event %+v", got[0])
	}
	if got[0].Alarm.SendType != "auto" {
		t.Fatalf("expected send_type to be carried, got %+v", got[0].Alarm)
	}

	// Both processes see the same pending set through the shared snapshots.
	if got := reader.GetCount(ctx); got != 1 {
		t.Fatalf("expected shared pending set visible to reader, got %d", got)
	}
}

func TestOwnBroadcastsAreNotEchoedLocally(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	bus := broadcast.NewBus()
	store := newTestStore(t, bus.Channel(broadcast.ChannelAlarmStore), clock)

	var (
		mu    sync.Mutex
		count int
	)
	store.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	store.Add(context.Background(), KindDevice, "AA", StatusWarn, clock.Now().UnixMilli(), Extra{})

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one local notification (no broadcast echo), got %d", count)
	}
}
