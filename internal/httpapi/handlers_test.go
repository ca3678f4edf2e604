package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"tag-monitor/internal/alarmstore"
	"tag-monitor/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *alarmstore.Store) {
	t.Helper()
	store, err := alarmstore.NewStore(storage.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	handler, err := NewHandler(store)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, store
}

func TestAlarmListAckRoundtrip(t *testing.T) {
	handler, store := newTestHandler(t)
	ctx := context.Background()
	store.Add(ctx, alarmstore.KindDevice, "AA:BB:CC:DD:EE:FF", alarmstore.StatusError, 1760000000000, alarmstore.Extra{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var records []alarmstore.Record
	if err := json.Unmarshal(resp.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 1 || records[0].ID != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected records %+v", records)
	}

	body, _ := json.Marshal(map[string][]string{"keys": {records[0].Key}})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/alarms/ack", bytes.NewReader(body))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/count", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	var count map[string]int
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count["count"] != 0 {
		t.Fatalf("expected empty pending set, got %d", count["count"])
	}
}

func TestAlarmListEmptyIsArray(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := strings.TrimSpace(resp.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestAckRejectsBadBody(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alarms/ack", strings.NewReader("{broken"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/alarms/ack", strings.NewReader(`{"keys":[]}`))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty keys, got %d", resp.Code)
	}
}

func TestExportFormats(t *testing.T) {
	handler, store := newTestHandler(t)
	store.Add(context.Background(), alarmstore.KindDevice, "AA:BB:CC:DD:EE:FF", alarmstore.StatusError, 1760000000000, alarmstore.Extra{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms/export?format=xlsx", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 xlsx, got %d", resp.Code)
	}
	if f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes())); err != nil {
		t.Fatalf("reopen xlsx: %v", err)
	} else {
		f.Close()
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/export?format=pdf", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 pdf, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("expected pdf payload")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/export?format=csv", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", resp.Code)
	}
}

func TestMethodGuards(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alarms", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/ack", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/unknown", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
