package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux assembles the HTTP surface.
func NewMux(alarms *Handler, stream *StreamHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/alarms", alarms)
	mux.Handle("/api/v1/alarms/", alarms)
	mux.Handle("/api/v1/ticker/stream", stream)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
