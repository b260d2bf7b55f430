package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nebulacms/nebula/internal/log"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(log.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error != errInternal {
		t.Errorf("envelope = %+v", env)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	header := rec.Header().Get("X-Request-ID")
	if header == "" || header != seen {
		t.Errorf("header = %q, context = %q", header, seen)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Preflight from an allowed origin.
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	// Disallowed origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for disallowed origin = %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1.0, 2)

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("burst requests rejected")
	}
	if rl.allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	// Separate IPs get separate buckets.
	if !rl.allow("10.0.0.2") {
		t.Error("fresh ip rejected")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.50")

	if got := clientIP(req, false); got != "192.0.2.1" {
		t.Errorf("untrusted = %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Errorf("trusted = %q", got)
	}

	// Garbage headers never become limiter keys.
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.Header.Del("X-Real-IP")
	if got := clientIP(req, true); got != "192.0.2.1" {
		t.Errorf("garbage header = %q", got)
	}
}
