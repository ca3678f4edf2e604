// Package httpapi exposes the dashboard's HTTP surface: the pending
// alarm endpoints, the report downloads and the ticker event stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tag-monitor/internal/alarmstore"
	"tag-monitor/internal/report"
)

// Handler provides the pending alarm endpoints.
type Handler struct {
	store *alarmstore.Store
}

// NewHandler constructs a handler.
func NewHandler(store *alarmstore.Store) (*Handler, error) {
	if store == nil {
		return nil, errors.New("alarms handler: nil store")
	}
	return &Handler{store: store}, nil
}

// ServeHTTP handles /api/v1/alarms and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/alarms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case "/api/v1/alarms/count":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCount(w, r)
	case "/api/v1/alarms/ack":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAck(w, r)
	case "/api/v1/alarms/export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records := h.store.GetAll(r.Context())
	if records == nil {
		records = []alarmstore.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"count": h.store.GetCount(r.Context())})
}

func (h *Handler) handleAck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body.Keys) == 0 {
		http.Error(w, "keys required", http.StatusBadRequest)
		return
	}
	h.store.Ack(r.Context(), body.Keys)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"acked": len(body.Keys)})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	records := h.store.GetAll(r.Context())
	now := time.Now().UTC()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	var (
		data        []byte
		err         error
		contentType string
		filename    string
	)
	switch format {
	case "xlsx":
		data, err = report.BuildAlarmsXLSX(records, now)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "alarms.xlsx"
	case "pdf":
		data, err = report.BuildAlarmsPDF(records, now)
		contentType = "application/pdf"
		filename = "alarms.pdf"
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(data)
}
