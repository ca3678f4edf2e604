package broadcast

import "context"

// Channel names shared by every dashboard process of a profile.
const (
	ChannelAlarmStore = "alarm-store"
	ChannelTicker     = "sjui-ticker"
)

// Handler receives a raw channel payload.
type Handler func(payload []byte)

// Channel is a named cross-process notification channel. Delivery is
// best-effort and at-least-once; subscribers must tolerate duplicates and
// re-query shared state instead of trusting a payload as a precise diff.
type Channel interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(fn Handler) (cancel func())
}
