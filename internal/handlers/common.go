package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

const (
	defaultBodyLimit  = 64 * 1024
	idempotencyHeader = "Idempotency-Key"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes the request body into dst, writing the error response itself.
// It reports whether the handler should continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

// currentUser returns the authenticated uid or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// writeSuccess writes payload with success:true merged in, matching the envelope clients expect.
func writeSuccess(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	httpx.WriteJSON(w, status, body)
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

// writeStorageError maps repository failures that no service translated.
func writeStorageError(ctx context.Context, w http.ResponseWriter, code, message string, err error) {
	switch {
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "concurrent update, retry the request", http.StatusConflict))
	case repositories.IsUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(code, message, http.StatusInternalServerError))
	}
}

// requireRoles wraps auth; a nil authenticator disables the check so handlers can be tested alone.
func requireRoles(authn *auth.Authenticator, roles ...string) func(http.Handler) http.Handler {
	if authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return authn.RequireAuth(roles...)
}

func passthrough(next http.Handler) http.Handler { return next }
