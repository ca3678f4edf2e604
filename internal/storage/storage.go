package storage

import "context"

// Well-known snapshot keys shared by every dashboard process of a profile.
const (
	KeyPendingAlarms = "pending_alarms_v1"
	KeyAckedAlarms   = "ack_alarms_v1"
	KeyTickerLast    = "sj_ticker_last"
	KeyTickerTS      = "sj_ticker_ts"
)

// Store is a durable key-value snapshot store. Values are JSON-serialized
// arrays; a missing key reads as nil with no error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
