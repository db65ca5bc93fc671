package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/platform/requestctx"
)

const (
	defaultHeader = "Idempotency-Key"
	replayHeader  = "X-Idempotent-Replay"
	maxKeyLength  = 255
)

type middlewareConfig struct {
	header   string
	ttl      time.Duration
	required bool
	clock    func() time.Time
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequiredKey rejects requests that omit the header instead of passing them through.
func WithRequiredKey() MiddlewareOption {
	return func(cfg *middlewareConfig) { cfg.required = true }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware deduplicates retried requests. Keys are scoped to the authenticated user, so it must
// run after the auth middleware. Only 2xx responses are stored; any other outcome releases the key
// so the client can retry once the cause is fixed.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{header: defaultHeader, ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				if cfg.required {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+cfg.header+" header", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", "idempotency key too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read request body", http.StatusBadRequest))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := "anonymous"
			if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
				requester = identity.UID
			}
			scoped := requester + "|" + key
			fingerprint := hashHex([]byte(r.Method + "|" + r.URL.Path + "|" + r.URL.RawQuery + "|" + hashHex(body)))

			state, record, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				logger.Error("idempotency: reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				replay(w, record)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
				return
			}

			rec := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.status() >= 200 && rec.status() < 300 {
				resp := Response{Status: rec.status(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, fingerprint, resp, cfg.clock().UTC(), cfg.ttl); err != nil {
					logger.Warn("idempotency: store response failed", zap.Error(err))
					_ = store.Release(ctx, scoped)
				}
			} else if err := store.Release(ctx, scoped); err != nil {
				logger.Warn("idempotency: release failed", zap.Error(err))
			}
			rec.flush(w)
		})
	}
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.Headers {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeader, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

// bufferedWriter holds the handler output until the outcome is stored.
type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.code == 0 {
		b.code = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.status())
	_, _ = w.Write(b.body.Bytes())
}
