package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustToken(t *testing.T, secret []byte, admin bool, tags []string) string {
	t.Helper()
	claims := Claims{
		Admin:       admin,
		AllowedTags: tags,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseValidToken(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, true, []string{"AABBCCDDEEFF"})

	claims, err := Parse(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.Admin {
		t.Fatal("expected admin claim")
	}
	if len(claims.AllowedTags) != 1 || claims.AllowedTags[0] != "AABBCCDDEEFF" {
		t.Fatalf("unexpected allowed tags %v", claims.AllowedTags)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := Parse("", secret); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := Parse(mustToken(t, secret, false, nil), nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := Parse(mustToken(t, []byte("other-secret"), false, nil), secret); err == nil {
		t.Fatal("expected error for wrong signature")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := Parse(token, secret); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestMiddlewareNoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareExemptPath(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMiddlewareAdminOnly(t *testing.T) {
	secret := []byte("test-secret")
	policy := NewDefaultPolicy(nil, []string{"/api/v1/alarms/export"})
	mw := NewMiddleware(secret, policy)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms/export", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, false, nil))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for plain session, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/alarms/export", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, true, nil))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin session, got %d", resp.Code)
	}
}

func TestMiddlewareAttachesSession(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var got *Session
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, true, []string{"AABBCCDDEEFF"}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got == nil || !got.Admin || got.Subject != "operator@example.com" {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.AllowedTags) != 1 || got.AllowedTags[0] != "AABBCCDDEEFF" {
		t.Fatalf("unexpected allowed tags %+v", got.AllowedTags)
	}
}
