// Package auth verifies the HMAC-signed bearer tokens accepted by the gRPC and HTTP surfaces.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"agenda/backend/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("token role must be client or staff")
)

// Claims are the JWT claims a caller presents. Role names the actor the caller may act as.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    domain.Actor
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Verifier struct {
	key []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{key: []byte(secret)}
}

// Verify parses raw and returns its principal. Only HMAC signatures are accepted.
func (v *Verifier) Verify(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	role := domain.Actor(strings.ToLower(claims.Role))
	if !role.Valid() {
		return Principal{}, ErrInvalidRole
	}
	return Principal{Subject: claims.Subject, Role: role}, nil
}

// BearerToken extracts the token from an authorization header value, or returns "".
func BearerToken(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len("Bearer ") || !strings.EqualFold(v[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(v[len("Bearer "):])
}
