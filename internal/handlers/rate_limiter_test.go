package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.allow("user-1") || !limiter.allow("user-1") {
		t.Fatalf("expected first two hits to pass")
	}
	if limiter.allow("user-1") {
		t.Fatalf("expected third hit to be limited")
	}
	if !limiter.allow("user-2") {
		t.Fatalf("expected other keys to be unaffected")
	}

	now = now.Add(time.Minute)
	if !limiter.allow("user-1") {
		t.Fatalf("expected window reset")
	}
}

func TestWindowLimiterDisabled(t *testing.T) {
	if newWindowLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	var limiter *windowLimiter
	if !limiter.allow("anyone") {
		t.Fatalf("nil limiter must allow")
	}
}

func TestPerUserMiddlewareWritesRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(1, 30*time.Second, func() time.Time { return now })
	handler := limiter.perUser(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, withUser(newRequest(http.MethodPost, "/", ""), "user-1"))
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, withUser(newRequest(http.MethodPost, "/", ""), "user-1"))
	assertErrorCode(t, second, http.StatusTooManyRequests, "rate_limited")
	if got := second.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
}
