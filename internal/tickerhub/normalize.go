package tickerhub

import (
	"regexp"
	"strings"

	"tag-monitor/internal/ticker"
)

// Alert kinds recognized by the display filter.
const (
	KindDevice  = "device"
	KindGateway = "gateway"
	KindUnknown = "unknown"
)

const gatewayMarker = "게이트웨이"

var (
	colonMACPattern = regexp.MustCompile(`(?i)([0-9a-f]{2}:){5}[0-9a-f]{2}`)
	bareHexPattern  = regexp.MustCompile(`(?i)[0-9a-f]{12}`)
	nonHexPattern   = regexp.MustCompile(`[^0-9A-F]`)
	idSeparators    = strings.NewReplacer(":", "", "-", "", ".", "")
)

// macHex12 extracts a 12-hex-digit identifier from free text, preferring
// the colon-separated MAC form.
func macHex12(text string) string {
	if m := colonMACPattern.FindString(text); m != "" {
		return strings.ToUpper(strings.ReplaceAll(m, ":", ""))
	}
	if m := bareHexPattern.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

// hex12Strict strips separators from raw and returns the uppercase hex
// identifier, or empty when the remainder is not exactly 12 hex digits.
func hex12Strict(raw string) string {
	s := nonHexPattern.ReplaceAllString(strings.ToUpper(raw), "")
	if len(s) != 12 {
		return ""
	}
	return s
}

// MacPretty renders a 12-hex identifier as a colon-separated MAC address.
// Values that do not reduce to 12 hex digits pass through unchanged.
func MacPretty(raw string) string {
	s := hex12Strict(raw)
	if s == "" {
		return raw
	}
	parts := make([]string, 0, 6)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":")
}

// item is an alert enriched with the identity fields the allow-list
// filter needs.
type item struct {
	text  string
	idHex string
	kind  string
	level string
}

func normalizeAlert(alert ticker.Alert) item {
	text := alert.Text
	idHex := ""
	if alert.ID != "" {
		idHex = strings.ToUpper(idSeparators.Replace(alert.ID))
	} else {
		idHex = macHex12(text)
	}
	kind := alert.Kind
	if kind == "" {
		switch {
		case strings.Contains(text, gatewayMarker):
			kind = KindGateway
		case idHex != "":
			kind = KindDevice
		default:
			kind = KindUnknown
		}
	}
	level := alert.Level
	if level == "" {
		level = ticker.LevelInfo
	}
	return item{text: text, idHex: idHex, kind: kind, level: level}
}
