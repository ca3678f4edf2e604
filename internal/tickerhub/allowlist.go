package tickerhub

import "sync"

// AllowList is the set of device identifiers the current session is
// authorized to see alerts for. It starts unready and fails closed:
// until authorization data loads, nothing is allowed.
type AllowList struct {
	mu    sync.RWMutex
	ready bool
	ids   map[string]struct{}
}

// NewAllowList constructs an unready allow-list.
func NewAllowList() *AllowList {
	return &AllowList{ids: make(map[string]struct{})}
}

// Replace swaps the authorized identifier set and marks the list ready.
// Identifiers are normalized to the 12-hex form; values that do not
// reduce to one are dropped.
func (l *AllowList) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		if id := hex12Strict(raw); id != "" {
			next[id] = struct{}{}
		}
	}
	l.mu.Lock()
	l.ids = next
	l.ready = true
	l.mu.Unlock()
}

// Ready reports whether authorization data has loaded.
func (l *AllowList) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Contains reports whether idHex is authorized. Always false while the
// list is unready.
func (l *AllowList) Contains(idHex string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return false
	}
	_, ok := l.ids[idHex]
	return ok
}
