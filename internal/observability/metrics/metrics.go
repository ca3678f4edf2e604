package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "tagmon_"

var (
	registerOnce sync.Once

	alarmsAdded      *prometheus.CounterVec
	alarmsSuppressed *prometheus.CounterVec
	alarmsAcked      prometheus.Counter
	alarmsPending    prometheus.Gauge

	tickerPublished *prometheus.CounterVec
	tickerDisplayed prometheus.Counter
	tickerRequeued  prometheus.Counter
	tickerCleared   prometheus.Counter

	ingestMessages   *prometheus.CounterVec
	ingestReconnects prometheus.Counter

	storageErrors *prometheus.CounterVec
)

// Init registers dashboard metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		alarmsAdded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_added_total",
				Help: "Total alarms inserted into the pending set by kind",
			},
			[]string{"kind"},
		)
		alarmsSuppressed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_suppressed_total",
				Help: "Total alarm inserts suppressed by reason",
			},
			[]string{"reason"},
		)
		alarmsAcked = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_acked_total",
				Help: "Total acknowledged alarm keys",
			},
		)
		alarmsPending = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alarms_pending",
				Help: "Pending alarm count after the last store write",
			},
		)

		tickerPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticker_published_total",
				Help: "Total ticker publishes by mode",
			},
			[]string{"mode"},
		)
		tickerDisplayed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticker_displayed_total",
				Help: "Total ticker items handed to the display surface",
			},
		)
		tickerRequeued = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticker_requeued_total",
				Help: "Total ticker items requeued by the repeat cooldown",
			},
		)
		tickerCleared = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticker_cleared_total",
				Help: "Total clear-screen directives processed",
			},
		)

		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total stream messages by result",
			},
			[]string{"result"},
		)
		ingestReconnects = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_reconnects_total",
				Help: "Total stream reconnect attempts",
			},
		)

		storageErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "storage_errors_total",
				Help: "Total snapshot persistence errors by key",
			},
			[]string{"key"},
		)

		prometheus.MustRegister(
			alarmsAdded,
			alarmsSuppressed,
			alarmsAcked,
			alarmsPending,
			tickerPublished,
			tickerDisplayed,
			tickerRequeued,
			tickerCleared,
			ingestMessages,
			ingestReconnects,
			storageErrors,
		)
	})
}

// IncAlarmAdded counts a pending set insert.
func IncAlarmAdded(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if alarmsAdded != nil {
		alarmsAdded.WithLabelValues(kind).Inc()
	}
}

// IncAlarmSuppressed counts a suppressed insert.
func IncAlarmSuppressed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if alarmsSuppressed != nil {
		alarmsSuppressed.WithLabelValues(reason).Inc()
	}
}

// AddAlarmsAcked counts acknowledged keys.
func AddAlarmsAcked(count int) {
	if count <= 0 {
		return
	}
	if alarmsAcked != nil {
		alarmsAcked.Add(float64(count))
	}
}

// SetAlarmsPending records the pending set size.
func SetAlarmsPending(count int) {
	if count < 0 {
		count = 0
	}
	if alarmsPending != nil {
		alarmsPending.Set(float64(count))
	}
}

// IncTickerPublished counts a publish call by mode.
func IncTickerPublished(mode string) {
	if mode == "" {
		mode = "unknown"
	}
	if tickerPublished != nil {
		tickerPublished.WithLabelValues(mode).Inc()
	}
}

// IncTickerDisplayed counts an item reaching the display surface.
func IncTickerDisplayed() {
	if tickerDisplayed != nil {
		tickerDisplayed.Inc()
	}
}

// IncTickerRequeued counts a cooldown requeue.
func IncTickerRequeued() {
	if tickerRequeued != nil {
		tickerRequeued.Inc()
	}
}

// IncTickerCleared counts a clear-screen directive.
func IncTickerCleared() {
	if tickerCleared != nil {
		tickerCleared.Inc()
	}
}

// IncIngestMessage counts a stream message by result.
func IncIngestMessage(result string) {
	if result == "" {
		result = "unknown"
	}
	if ingestMessages != nil {
		ingestMessages.WithLabelValues(result).Inc()
	}
}

// IncIngestReconnect counts a reconnect attempt.
func IncIngestReconnect() {
	if ingestReconnects != nil {
		ingestReconnects.Inc()
	}
}

// IncStorageError counts a snapshot persistence failure.
func IncStorageError(key string) {
	if key == "" {
		key = "unknown"
	}
	if storageErrors != nil {
		storageErrors.WithLabelValues(key).Inc()
	}
}
