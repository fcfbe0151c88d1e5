package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/logging"
)

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "abc-123" {
		t.Fatalf("expected inbound request id, got %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["request_id"] != "abc-123" || entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := rec.Header().Get(RequestIDHeader)
	if got == "" || len(got) > maxRequestIDLength {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != false || body["message"] != "Internal server error" {
		t.Fatalf("unexpected body %v", body)
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestKeyedLimiterAllowsBurstThenBlocks(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newKeyedLimiter(config.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 2}, clock.Now)

	if !limiter.Allow("login:1.2.3.4") || !limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected burst requests to be allowed")
	}
	if limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("login:5.6.7.8") {
		t.Fatal("expected other clients to be unaffected")
	}

	clock.now = clock.now.Add(time.Minute)
	if !limiter.Allow("login:1.2.3.4") {
		t.Fatal("expected a token to be replenished after the window")
	}
}

func TestKeyedLimiterDropsIdleBuckets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newKeyedLimiter(config.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1}, clock.Now)

	limiter.Allow("a")
	limiter.Allow("b")
	if got := limiter.size(); got != 2 {
		t.Fatalf("expected 2 buckets got %d", got)
	}

	clock.now = clock.now.Add(3 * time.Minute)
	limiter.Allow("c")
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle buckets to be dropped, %d remain", got)
	}
}

func TestNewRateLimiterFromConfig(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Requests: 10, Window: time.Minute, Burst: 1})
	if !limiter.Allow("") {
		t.Fatal("expected first request to be allowed")
	}
	if limiter.Allow("") {
		t.Fatal("expected burst of one to block the second request")
	}
}
