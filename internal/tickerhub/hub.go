package tickerhub

import (
	"errors"
	"strings"
	"sync"

	"tag-monitor/internal/ticker"
)

// Subscriber is a display surface fed the filtered text list. Rotators
// satisfy it.
type Subscriber interface {
	Update(texts []string)
}

// Hub holds the full unfiltered alert set and recomputes the
// deduplicated, allow-list-filtered text list whenever alerts or the
// authorization state change. Registered subscribers are updated
// synchronously, and only when the resulting list actually differs from
// the previous one.
//
// Hub satisfies the ticker publisher's display sink.
type Hub struct {
	allowList *AllowList

	mu          sync.Mutex
	privileged  bool
	rawItems    []item
	msgs        []string
	lastKey     string
	subscribers map[int]Subscriber
	nextID      int
}

// NewHub constructs a hub over the given allow-list.
func NewHub(allowList *AllowList) (*Hub, error) {
	if allowList == nil {
		return nil, errors.New("tickerhub: nil allow list")
	}
	return &Hub{
		allowList:   allowList,
		subscribers: make(map[int]Subscriber),
	}, nil
}

// SetAlerts replaces the raw alert set and reapplies the filter.
func (h *Hub) SetAlerts(alerts []ticker.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rawItems = normalizeAll(alerts)
	h.rebuildLocked()
}

// PushAlerts appends to the raw alert set and reapplies the filter.
func (h *Hub) PushAlerts(alerts []ticker.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rawItems = append(h.rawItems, normalizeAll(alerts)...)
	h.rebuildLocked()
}

// SetMessages is the legacy plain-string entry point: each string becomes
// an info alert with identity recovered from the text.
func (h *Hub) SetMessages(texts []string) {
	alerts := make([]ticker.Alert, 0, len(texts))
	for _, text := range texts {
		alerts = append(alerts, ticker.Alert{Text: text})
	}
	h.SetAlerts(alerts)
}

// Register attaches a subscriber, seeds it with the current filtered
// list, and returns its detach function.
func (h *Hub) Register(sub Subscriber) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = sub
	msgs := append([]string(nil), h.msgs...)
	h.mu.Unlock()

	sub.Update(msgs)
	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

// Messages returns a copy of the current filtered text list.
func (h *Hub) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.msgs...)
}

// RefreshFilter reapplies the allow-list filter to the held alerts,
// typically after the allow-list was replaced out of band.
func (h *Hub) RefreshFilter() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebuildLocked()
}

// ReplaceAllowList swaps the authorized identifier set, marks it ready
// and reapplies the filter.
func (h *Hub) ReplaceAllowList(ids []string) {
	h.allowList.Replace(ids)
	h.RefreshFilter()
}

// SetPrivileged toggles the privileged-session flag gating gateway
// alerts and reapplies the filter.
func (h *Hub) SetPrivileged(privileged bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.privileged = privileged
	h.rebuildLocked()
}

func (h *Hub) rebuildLocked() {
	var texts []string
	for _, it := range h.rawItems {
		if h.eligibleLocked(it) {
			texts = append(texts, it.text)
		}
	}
	next := dedupTexts(texts)
	key := strings.Join(next, "\n")
	if key == h.lastKey {
		return
	}
	h.lastKey = key
	h.msgs = next
	for _, sub := range h.subscribers {
		sub.Update(append([]string(nil), next...))
	}
}

func (h *Hub) eligibleLocked(it item) bool {
	if !h.allowList.Ready() {
		return false
	}
	switch it.kind {
	case KindDevice:
		return it.idHex != "" && h.allowList.Contains(it.idHex)
	case KindGateway:
		return h.privileged
	default:
		return false
	}
}

func normalizeAll(alerts []ticker.Alert) []item {
	items := make([]item, 0, len(alerts))
	for _, alert := range alerts {
		items = append(items, normalizeAlert(alert))
	}
	return items
}

func dedupTexts(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	var out []string
	for _, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
