package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals an expired bearer token.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals a malformed, unsigned or foreign bearer token.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier verifies bearer tokens. Both Firebase ID tokens and console tokens decode into the
// Firebase token shape so the middleware handles them uniformly.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns verified bearer tokens into request identities.
type Authenticator struct {
	verifier     TokenVerifier
	roleClaim    string
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim carrying roles.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds each token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator. Tokens without a role claim get the user role.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		roleClaim:    defaultRoleClaim,
		fallbackRole: RoleUser,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth rejects requests without a valid bearer token (401) or without one of allowedRoles
// (403). With no roles listed any authenticated identity passes.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
			cancel()
			if err != nil {
				writeVerificationError(ctx, w, err)
				return
			}

			identity := a.identityFromToken(token)
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:    token.UID,
		Email:  stringClaim(token.Claims, "email"),
		Name:   stringClaim(token.Claims, "name"),
		Roles:  rolesFromClaim(token.Claims[a.roleClaim]),
		Issuer: token.Issuer,
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity
}

// rolesFromClaim accepts "admin", ["staff","admin"] or {"admin": true}.
func rolesFromClaim(raw any) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	switch v := raw.(type) {
	case string:
		add(v)
	case []string:
		for _, item := range v {
			add(item)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case map[string]any:
		for key, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				add(key)
			}
		}
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "token expired", http.StatusUnauthorized))
	default:
		requestctx.Logger(ctx).Debug("auth: token rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "token verification failed", http.StatusUnauthorized))
	}
}
