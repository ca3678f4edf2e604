package tickerhub

import "time"

// DeviceState is one device row from the live device snapshot.
type DeviceState struct {
	ErrorCode int
	// UpdatedAt is the last state change in unix milliseconds.
	UpdatedAt int64
}

// DefaultActiveWindow bounds how old a device state may be and still
// produce a ticker line.
const DefaultActiveWindow = time.Minute

// Labeler renders a device identifier for display.
type Labeler func(idHex string) string

// BuildTickerTexts turns the device snapshot into ticker lines for the
// requested identifiers. Stale states and clean devices are skipped,
// labels are deduplicated with the higher severity winning, and output
// order follows first appearance in ids.
func BuildTickerTexts(devices map[string]DeviceState, ids []string, now time.Time, activeWindow time.Duration, labeler Labeler) []string {
	if len(devices) == 0 || len(ids) == 0 {
		return nil
	}
	if activeWindow <= 0 {
		activeWindow = DefaultActiveWindow
	}
	if labeler == nil {
		labeler = MacPretty
	}
	nowMillis := now.UnixMilli()

	var order []string
	byLabel := make(map[string]string)
	for _, raw := range ids {
		id := hex12Strict(raw)
		if id == "" {
			continue
		}
		state, ok := devices[id]
		if !ok {
			continue
		}
		if nowMillis-state.UpdatedAt > activeWindow.Milliseconds() {
			continue
		}
		if state.ErrorCode != 1 && state.ErrorCode != 2 {
			continue
		}

		label := labeler(id)
		level := "warn"
		if state.ErrorCode == 2 {
			level = "error"
		}
		prev, seen := byLabel[label]
		if !seen {
			order = append(order, label)
			byLabel[label] = level
		} else if prev == "warn" && level == "error" {
			byLabel[label] = level
		}
	}

	texts := make([]string, 0, len(order))
	for _, label := range order {
		if byLabel[label] == "error" {
			texts = append(texts, label+" 디바이스가 에러 상태입니다.")
		} else {
			texts = append(texts, label+" 디바이스가 경고 상태입니다.")
		}
	}
	return texts
}
