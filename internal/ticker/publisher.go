package ticker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"tag-monitor/internal/broadcast"
	"tag-monitor/internal/observability/metrics"
	"tag-monitor/internal/storage"
)

const (
	defaultFade     = 700 * time.Millisecond
	defaultCooldown = 2800 * time.Millisecond
	defaultStagger  = 1200 * time.Millisecond
	minDelay        = 300 * time.Millisecond
	lockSlack       = 10 * time.Millisecond
)

// Sink is the local display surface fed one alert at a time. The display
// filter hub satisfies it.
type Sink interface {
	SetAlerts(alerts []Alert)
}

// Clock provides time for the scheduler.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules fn after d. The default wraps time.AfterFunc;
// tests substitute a manual implementation.
type TimerFunc func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// PublishOptions controls one publish call.
type PublishOptions struct {
	Mode      string
	Stagger   time.Duration
	Broadcast bool
}

// DefaultPublishOptions mirrors the defaults callers usually want:
// replace mode, default stagger, broadcast on.
func DefaultPublishOptions() PublishOptions {
	return PublishOptions{Mode: ModeReplace, Broadcast: true}
}

type pushEvent struct {
	Type      string  `json:"type"`
	Origin    string  `json:"origin,omitempty"`
	Payload   []Alert `json:"payload"`
	Mode      string  `json:"mode"`
	StaggerMS int64   `json:"stagger_ms"`
}

// Publisher owns this process's rotation queue and stagger scheduler and
// keeps it loosely synchronized with other processes over the broadcast
// channel. Exactly one scheduler loop runs at a time; it terminates when
// the queue drains and restarts lazily on the next publish.
type Publisher struct {
	sink      Sink
	snapshots storage.Store
	channel   broadcast.Channel
	clock     Clock
	newTimer  TimerFunc
	logger    *log.Logger
	origin    string

	fade     time.Duration
	cooldown time.Duration
	stagger  time.Duration

	mu          sync.Mutex
	queue       []Alert
	running     bool
	timer       Timer
	currentText string
	shownAt     time.Time
	lockUntil   time.Time
	lastSeenTS  int64
	cancelCh    func()
}

// Option configures the publisher.
type Option func(*Publisher)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithTimerFunc overrides the timer factory.
func WithTimerFunc(fn TimerFunc) Option {
	return func(p *Publisher) {
		if fn != nil {
			p.newTimer = fn
		}
	}
}

// WithFade sets the transition lock window.
func WithFade(fade time.Duration) Option {
	return func(p *Publisher) {
		if fade > 0 {
			p.fade = fade
		}
	}
}

// WithCooldown sets the repeat cooldown floor. The effective cooldown is
// never below twice the fade window.
func WithCooldown(cooldown time.Duration) Option {
	return func(p *Publisher) {
		if cooldown > 0 {
			p.cooldown = cooldown
		}
	}
}

// WithStagger sets the default per-item spacing.
func WithStagger(stagger time.Duration) Option {
	return func(p *Publisher) {
		if stagger > 0 {
			p.stagger = stagger
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a publisher. channel may be nil for a process
// running without cross-process synchronization; snapshots may not be nil.
func NewPublisher(sink Sink, snapshots storage.Store, channel broadcast.Channel, opts ...Option) (*Publisher, error) {
	if sink == nil {
		return nil, errors.New("ticker publisher: nil sink")
	}
	if snapshots == nil {
		return nil, errors.New("ticker publisher: nil snapshot store")
	}
	p := &Publisher{
		sink:      sink,
		snapshots: snapshots,
		channel:   channel,
		clock:     systemClock{},
		newTimer:  afterFunc,
		logger:    log.Default(),
		origin:    newOriginID(),
		fade:      defaultFade,
		cooldown:  defaultCooldown,
		stagger:   defaultStagger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish normalizes alerts and feeds the rotation queue.
//
// Empty-list handling is order-sensitive: a genuinely empty alerts slice
// with mode replace is a clear-screen directive; a list that became empty
// only because its sole entry matches what is already showing is a no-op.
func (p *Publisher) Publish(ctx context.Context, alerts []Alert, opts PublishOptions) {
	if p == nil {
		return
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeReplace
	}
	stagger := opts.Stagger
	if stagger <= 0 {
		stagger = p.stagger
	}
	metrics.IncTickerPublished(mode)

	p.mu.Lock()
	defer p.mu.Unlock()

	list := Normalize(alerts, p.currentText)
	if len(list) == 0 {
		if mode == ModeReplace && len(alerts) == 0 {
			p.clearLocked(ctx, true)
			if opts.Broadcast {
				p.broadcast(ctx, pushEvent{
					Type:      "push",
					Origin:    p.origin,
					Payload:   []Alert{},
					Mode:      mode,
					StaggerMS: stagger.Milliseconds(),
				})
			}
		}
		return
	}

	if mode == ModeReplace {
		p.queue = nil
	}
	if len(p.queue) > 0 && p.queue[len(p.queue)-1].Text == list[0].Text {
		list = list[1:]
	}
	p.queue = append(p.queue, list...)
	p.startLoopLocked(stagger)

	if opts.Broadcast {
		p.broadcast(ctx, pushEvent{
			Type:      "push",
			Origin:    p.origin,
			Payload:   list,
			Mode:      mode,
			StaggerMS: stagger.Milliseconds(),
		})
	}
}

// StartSubscription attaches the publisher to its broadcast channel and
// replays the last persisted snapshot so a freshly opened process shows
// the most recent alert immediately.
func (p *Publisher) StartSubscription(ctx context.Context) {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.mu.Lock()
		if p.cancelCh == nil {
			p.cancelCh = p.channel.Subscribe(p.handleBroadcast)
		}
		p.mu.Unlock()
	}
	p.ReplaySnapshot(ctx)
}

// Close detaches from the broadcast channel and stops pending work.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	cancel := p.cancelCh
	p.cancelCh = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.running = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CurrentText returns the text on display, empty when blank.
func (p *Publisher) CurrentText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentText
}

// QueueLen reports the number of alerts awaiting display.
func (p *Publisher) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ReplaySnapshot applies the last persisted item once, or blanks the
// display when the snapshot is empty.
func (p *Publisher) ReplaySnapshot(ctx context.Context) {
	one, ok := p.readSnapshot(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !ok {
		p.sink.SetAlerts(nil)
		return
	}
	p.showLocked(one, false)
}

// PollSnapshot is the durable-storage fallback: when the persisted
// last-shown snapshot changed, apply it. This path only ever surfaces the
// single most recent item, the weaker guarantee accepted when no
// broadcast channel is available.
func (p *Publisher) PollSnapshot(ctx context.Context) {
	ts := p.readSnapshotTS(ctx)
	p.mu.Lock()
	last := p.lastSeenTS
	p.mu.Unlock()
	if ts == 0 || ts == last {
		return
	}

	one, ok := p.readSnapshot(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeenTS = ts
	if !ok {
		p.queue = nil
		p.stopLocked()
		p.sink.SetAlerts(nil)
		p.currentText = ""
		p.shownAt = time.Time{}
		p.lockUntil = time.Time{}
		return
	}
	if p.seenRecentlyLocked(one.Text, p.clock.Now()) {
		return
	}
	p.showLocked(one, false)
}

// RunSnapshotFallback polls the snapshot at the given interval until ctx
// is cancelled. Used when the process has no broadcast channel.
func (p *Publisher) RunSnapshotFallback(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PollSnapshot(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) handleBroadcast(payload []byte) {
	var event pushEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	if event.Type != "push" || event.Origin == p.origin {
		return
	}
	mode := event.Mode
	if mode == "" {
		mode = ModeReplace
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(event.Payload) == 0 && mode == ModeReplace {
		// The sender already persisted the empty snapshot.
		p.clearLocked(context.Background(), false)
		return
	}

	list := Normalize(event.Payload, p.currentText)
	if len(list) == 0 {
		return
	}
	if mode == ModeReplace {
		p.queue = nil
	}
	p.queue = append(p.queue, list...)

	stagger := time.Duration(event.StaggerMS) * time.Millisecond
	if stagger <= 0 {
		stagger = p.stagger
	}
	p.startLoopLocked(stagger)
}

// clearLocked flushes the queue, stops the scheduler, blanks the display
// and resets display state. persist also writes the empty snapshot.
func (p *Publisher) clearLocked(ctx context.Context, persist bool) {
	p.queue = nil
	p.stopLocked()
	p.sink.SetAlerts(nil)
	if persist {
		p.persistSnapshot(ctx, nil)
	}
	p.currentText = ""
	p.shownAt = time.Time{}
	p.lockUntil = time.Time{}
	metrics.IncTickerCleared()
}

func (p *Publisher) stopLocked() {
	p.running = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Publisher) startLoopLocked(stagger time.Duration) {
	if p.running {
		return
	}
	p.running = true
	p.stepLocked(stagger)
}

func (p *Publisher) step(stagger time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.stepLocked(stagger)
}

func (p *Publisher) stepLocked(stagger time.Duration) {
	now := p.clock.Now()
	if now.Before(p.lockUntil) {
		p.scheduleLocked(p.lockUntil.Sub(now)+lockSlack, stagger)
		return
	}
	if len(p.queue) == 0 {
		p.running = false
		p.timer = nil
		return
	}

	next := p.queue[0]
	p.queue = p.queue[1:]

	if p.seenRecentlyLocked(next.Text, now) {
		// Cooldown still running for this text: requeue at the back and
		// retry once the remainder elapses, never drop it.
		p.queue = append(p.queue, next)
		wait := p.effectiveCooldown() - now.Sub(p.shownAt)
		if wait < minDelay {
			wait = minDelay
		}
		metrics.IncTickerRequeued()
		p.scheduleLocked(wait, stagger)
		return
	}

	p.showLocked(next, true)

	delay := stagger
	if delay < minDelay {
		delay = minDelay
	}
	p.scheduleLocked(delay, stagger)
}

func (p *Publisher) scheduleLocked(d, stagger time.Duration) {
	p.timer = p.newTimer(d, func() { p.step(stagger) })
}

// showLocked hands one alert to the local display surface and records the
// display state; persist also writes the last-shown snapshot.
func (p *Publisher) showLocked(alert Alert, persist bool) {
	p.sink.SetAlerts([]Alert{alert})
	if persist {
		p.persistSnapshot(context.Background(), &alert)
	}
	now := p.clock.Now()
	p.currentText = alert.Text
	p.shownAt = now
	p.lockUntil = now.Add(p.fade)
	metrics.IncTickerDisplayed()
}

func (p *Publisher) seenRecentlyLocked(text string, now time.Time) bool {
	if text != p.currentText || p.shownAt.IsZero() {
		return false
	}
	return now.Sub(p.shownAt) < p.effectiveCooldown()
}

func (p *Publisher) effectiveCooldown() time.Duration {
	cooldown := p.cooldown
	if floor := 2 * p.fade; cooldown < floor {
		cooldown = floor
	}
	return cooldown
}

func (p *Publisher) broadcast(ctx context.Context, event pushEvent) {
	if p.channel == nil {
		// Without a channel the snapshot write is the only cross-process
		// signal; the timestamp bump is already done by persistSnapshot.
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.channel.Publish(ctx, payload); err != nil {
		p.logger.Printf("ticker: broadcast error: %v", err)
	}
}

func (p *Publisher) persistSnapshot(ctx context.Context, alert *Alert) {
	snapshot := []Alert{}
	if alert != nil {
		snapshot = append(snapshot, *alert)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := p.snapshots.Set(ctx, storage.KeyTickerLast, data); err != nil {
		metrics.IncStorageError("ticker_last")
		p.logger.Printf("ticker: persist snapshot error: %v", err)
	}
	ts := p.clock.Now().UnixMilli()
	p.lastSeenTS = ts
	tsData, err := json.Marshal(ts)
	if err != nil {
		return
	}
	if err := p.snapshots.Set(ctx, storage.KeyTickerTS, tsData); err != nil {
		metrics.IncStorageError("ticker_ts")
	}
}

func (p *Publisher) readSnapshot(ctx context.Context) (Alert, bool) {
	data, err := p.snapshots.Get(ctx, storage.KeyTickerLast)
	if err != nil || len(data) == 0 {
		return Alert{}, false
	}
	var snapshot []Alert
	if json.Unmarshal(data, &snapshot) != nil || len(snapshot) == 0 {
		return Alert{}, false
	}
	if snapshot[0].Text == "" {
		return Alert{}, false
	}
	return snapshot[0], true
}

func (p *Publisher) readSnapshotTS(ctx context.Context) int64 {
	data, err := p.snapshots.Get(ctx, storage.KeyTickerTS)
	if err != nil || len(data) == 0 {
		return 0
	}
	var ts int64
	if json.Unmarshal(data, &ts) != nil {
		return 0
	}
	return ts
}

func newOriginID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
