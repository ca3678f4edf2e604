package ingest

import (
	"strconv"
	"strings"

	"tag-monitor/internal/alarmstore"
)

// NormalizeStatus maps an error-code or status value of any wire shape to
// a display status label. String tokens are tried first, then a numeric
// threshold: >=2 is an error, >=1 a warning, anything else no alarm.
func NormalizeStatus(value any) string {
	if s := normalizeByString(value); s != "" {
		return s
	}
	return normalizeByNumber(value)
}

func normalizeByString(value any) string {
	s := strings.ToLower(strings.TrimSpace(stringify(value)))
	switch s {
	case "2", "2.0", "error", "err", "에러", "down", "offline":
		return alarmstore.StatusError
	case "1", "1.0", "warn", "warning", "경고":
		return alarmstore.StatusWarn
	}
	return ""
}

func normalizeByNumber(value any) string {
	n, ok := numeric(value)
	if !ok {
		return ""
	}
	switch {
	case n >= 2:
		return alarmstore.StatusError
	case n >= 1:
		return alarmstore.StatusWarn
	}
	return ""
}

// stringify renders a decoded JSON scalar the way the wire wrote it;
// numbers lose any float formatting artifacts.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
