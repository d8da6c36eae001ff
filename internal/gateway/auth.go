package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthDisabled is returned by JWTAuth methods when no secret was
// configured, matching the teacher's internal/auth/jwt.go sentinel.
var ErrAuthDisabled = errors.New("gateway: jwt auth not configured")

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("gateway: invalid or expired token")

// JWTAuth optionally gates websocket upgrades behind a bearer token,
// grounded on the teacher's internal/auth/jwt.go JWTService: HS256,
// jwt/v5's RegisteredClaims, a single Subject claim identifying the
// bearer. Unlike the teacher's version this carries no email/name claims
// since observers are not users in this system's data model, only
// connections.
type JWTAuth struct {
	secret []byte
	expiry time.Duration
}

// NewJWTAuth builds a JWTAuth. An empty secret disables auth:
// AuthenticateRequest always succeeds and Generate always fails with
// ErrAuthDisabled.
func NewJWTAuth(secret string, expiry time.Duration) *JWTAuth {
	return &JWTAuth{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a secret was configured.
func (a *JWTAuth) Enabled() bool { return a != nil && len(a.secret) > 0 }

type subjectClaims struct {
	jwt.RegisteredClaims
}

// Generate issues a signed token for subject. The gateway's own HTTP
// handler exposes no endpoint that calls it.
func (a *JWTAuth) Generate(subject string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("gateway: subject is required")
	}
	claims := subjectClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	if a.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(a.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses and verifies token, returning the subject it was issued
// for.
func (a *JWTAuth) Validate(token string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &subjectClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*subjectClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// AuthenticateRequest extracts and validates a bearer token from r's
// Authorization header. If auth is disabled (a is nil or has no secret),
// it always succeeds with an empty subject.
func AuthenticateRequest(a *JWTAuth, r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrInvalidToken
	}
	return a.Validate(strings.TrimPrefix(header, prefix))
}
