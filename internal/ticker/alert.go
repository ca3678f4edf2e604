package ticker

import "strings"

// Alert levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Publish modes.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
)

// Alert is one textual display unit awaiting rotation. ID and Kind are
// optional hints for the display filter; when absent they are recovered
// from the text.
type Alert struct {
	Text  string `json:"text"`
	Level string `json:"level"`
	ID    string `json:"id,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Texts wraps plain strings as info-level alerts.
func Texts(texts ...string) []Alert {
	alerts := make([]Alert, 0, len(texts))
	for _, text := range texts {
		alerts = append(alerts, Alert{Text: text})
	}
	return alerts
}

// Normalize coerces alerts into the queue shape: blank texts are dropped,
// missing levels default to info, consecutive identical texts collapse
// into one, and a leading entry equal to currentText is removed so the
// item already on screen is not re-displayed.
func Normalize(alerts []Alert, currentText string) []Alert {
	var out []Alert
	prev := ""
	for _, alert := range alerts {
		if strings.TrimSpace(alert.Text) == "" {
			continue
		}
		if alert.Level == "" {
			alert.Level = LevelInfo
		}
		if len(out) > 0 && alert.Text == prev {
			continue
		}
		out = append(out, alert)
		prev = alert.Text
	}
	if len(out) > 0 && out[0].Text == currentText {
		out = out[1:]
	}
	return out
}
