package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
)

// windowLimiter allows limit hits per key within a fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]windowBucket
}

type windowBucket struct {
	hits    int
	resetAt time.Time
}

// newWindowLimiter returns nil (no limiting) for a non-positive limit or window.
func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]windowBucket),
	}
}

func (l *windowLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || !now.Before(bucket.resetAt) {
		l.buckets[key] = windowBucket{hits: 1, resetAt: now.Add(l.window)}
		l.pruneLocked(now)
		return true
	}
	if bucket.hits >= l.limit {
		return false
	}
	bucket.hits++
	l.buckets[key] = bucket
	return true
}

func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if !now.Before(bucket.resetAt) {
			delete(l.buckets, key)
		}
	}
}

// perUser throttles by authenticated uid, falling back to the client address. It must run after
// the auth middleware.
func (l *windowLimiter) perUser(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
			key = identity.UID
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests, slow down", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
