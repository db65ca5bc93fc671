// Package idempotency replays the stored response when a client retries a mutating request with
// the same Idempotency-Key, so a flaky network cannot place the same order twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must run the handler.
	StateNew State = iota
	// StateCompleted means a stored response must be replayed.
	StateCompleted
	// StatePending means another request holds the key.
	StatePending
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

// Record is a reservation and, once completed, the response to replay.
type Record struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Response is what the middleware captured from the handler.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func documentID(key string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newPending(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func expired(r Record, now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// storableHeaders drops hop-by-hop headers that must not be replayed.
func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
