package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v4"
)

// AdminTokenVerifier verifies HS256 tokens minted for the back-office console. Every valid token
// carries the admin role regardless of its claims.
type AdminTokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAdminTokenVerifier returns nil when secret is empty so the console route can be disabled by
// configuration.
func NewAdminTokenVerifier(secret, issuer string) *AdminTokenVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &AdminTokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}
}

// VerifyIDToken implements TokenVerifier.
func (v *AdminTokenVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: console tokens disabled", ErrTokenInvalid)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(v.now().Unix(), true) {
		return nil, fmt.Errorf("%w: missing or past exp", ErrTokenExpired)
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	email, _ := claims["email"].(string)
	issuer, _ := claims["iss"].(string)

	return &firebaseauth.Token{
		UID:     subject,
		Issuer:  issuer,
		Subject: subject,
		Claims: map[string]any{
			defaultRoleClaim: RoleAdmin,
			"email":          email,
		},
	}, nil
}

// ChainVerifier tries each verifier in order and returns the first success. When all fail, an
// expiry error wins over a generic rejection so clients know to refresh.
type ChainVerifier []TokenVerifier

// VerifyIDToken implements TokenVerifier.
func (c ChainVerifier) VerifyIDToken(ctx context.Context, raw string) (*firebaseauth.Token, error) {
	var firstErr, expired error
	for _, verifier := range c {
		if verifier == nil {
			continue
		}
		token, err := verifier.VerifyIDToken(ctx, raw)
		if err == nil {
			return token, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if expired == nil && errors.Is(err, ErrTokenExpired) {
			expired = err
		}
	}
	if expired != nil {
		return nil, expired
	}
	if firstErr == nil {
		return nil, fmt.Errorf("%w: no verifier configured", ErrTokenInvalid)
	}
	return nil, firstErr
}
