// Package rotator cycles a display surface through a list of text items
// at a fixed interval, mounting the next item before retiring the
// previous one so transitions overlap instead of flashing blank.
package rotator

import (
	"errors"
	"strings"
	"sync"
	"time"

	"tag-monitor/internal/ticker"
)

// DefaultInterval is the default time each item stays on display.
const DefaultInterval = 2500 * time.Millisecond

// Item is one mounted display entry.
type Item interface {
	// Exit begins the entry's retire transition.
	Exit()
}

// Display is a visual surface the rotator drives.
type Display interface {
	// Enter mounts text with an enter transition and returns its handle.
	Enter(text string) Item
	// Clear removes everything currently mounted.
	Clear()
}

// Rotator cycles one display through its item list. It satisfies the
// display filter hub's subscriber contract via Update.
type Rotator struct {
	display  Display
	interval time.Duration
	newTimer ticker.TimerFunc

	mu      sync.Mutex
	items   []string
	idx     int
	gen     int
	current Item
	timer   ticker.Timer
}

// Option configures a rotator.
type Option func(*Rotator)

// WithInterval overrides the rotation interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Rotator) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithTimerFunc overrides the timer factory.
func WithTimerFunc(fn ticker.TimerFunc) Option {
	return func(r *Rotator) {
		if fn != nil {
			r.newTimer = fn
		}
	}
}

// New constructs a stopped rotator over display.
func New(display Display, opts ...Option) (*Rotator, error) {
	if display == nil {
		return nil, errors.New("rotator: nil display")
	}
	r := &Rotator{
		display:  display,
		interval: DefaultInterval,
		newTimer: func(d time.Duration, fn func()) ticker.Timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Update replaces the item list. Blank entries are dropped, the cycle
// resets to the first item and restarts; an empty list stops the cycle
// and clears the display.
func (r *Rotator) Update(texts []string) {
	filtered := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			filtered = append(filtered, text)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = filtered
	r.clearLocked()
	if len(r.items) == 0 {
		return
	}
	r.idx = 0
	r.current = r.display.Enter(r.items[0])
	r.scheduleLocked()
}

// Stop halts the cycle and clears the display.
func (r *Rotator) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// Start resumes a stopped rotator that still holds items.
func (r *Rotator) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 || r.timer != nil {
		return
	}
	r.current = r.display.Enter(r.items[r.idx%len(r.items)])
	r.scheduleLocked()
}

func (r *Rotator) clearLocked() {
	// Bumping the generation invalidates a tick that already fired but
	// has not taken the lock yet; Stop alone cannot catch it.
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.current = nil
	r.display.Clear()
}

func (r *Rotator) scheduleLocked() {
	gen := r.gen
	r.timer = r.newTimer(r.interval, func() { r.tick(gen) })
}

func (r *Rotator) tick(gen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	if len(r.items) == 0 {
		r.clearLocked()
		return
	}
	r.idx++
	next := r.display.Enter(r.items[r.idx%len(r.items)])
	if r.current != nil {
		r.current.Exit()
	}
	r.current = next
	r.scheduleLocked()
}
