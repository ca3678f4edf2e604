package alarmstore

import (
	"fmt"
	"time"
)

const (
	KindDevice  = "device"
	KindGateway = "gateway"
)

// Display status labels carried on alarm records. The dashboard is Korean;
// the labels are part of the persisted fingerprint and must stay stable.
const (
	StatusError = "에러"
	StatusWarn  = "경고"
)

const (
	// DefaultBucket coalesces rapid repeats of the same alarm into one
	// record. Zero disables bucketing (raw timestamp becomes the bucket).
	DefaultBucket = 10 * time.Second

	// DefaultTTL bounds how long an unacknowledged alarm stays pending.
	DefaultTTL = 24 * time.Hour
)

// Record is one deduplicated alarm held in the pending set.
type Record struct {
	Key      string `json:"key"`
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	TS       int64  `json:"ts"` // milliseconds
	SendType string `json:"send_type,omitempty"`
}

// Extra carries optional fields captured alongside an alarm.
type Extra struct {
	SendType string
}

// MakeKey derives the deduplication fingerprint for an alarm. bucket is
// the coalescing window; when zero the raw millisecond timestamp is used.
func MakeKey(kind, id, status string, tsMillis int64, bucket time.Duration) string {
	component := tsMillis
	if bucket > 0 {
		component = tsMillis / bucket.Milliseconds()
	}
	return fmt.Sprintf("%s:%s:%s:%d", kind, id, status, component)
}

// NormalizeMillis scales second-resolution timestamps to milliseconds.
func NormalizeMillis(ts int64) int64 {
	if ts > 0 && ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}
