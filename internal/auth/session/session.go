// Package session validates the host application's HS256 session tokens.
// It is the only JWT-aware code in the service: everything downstream works
// with a resolved user id.
package session

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "chalk/pkg/domain-errors"
)

// Verifier checks session tokens signed by the host application and
// extracts the user id carried in the subject claim.
type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// UserID validates the token and returns the authenticated user id.
func (v *Verifier) UserID(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "empty session token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, dErrors.New(dErrors.CodeUnauthorized, "session token expired")
		}
		return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	if !parsed.Valid {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "session token missing subject")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "session subject is not a user id")
	}
	return userID, nil
}

// Issue signs a session token for a user id. Production tokens come from
// the host application's auth stack; this exists for tests and local
// tooling.
func (v *Verifier) Issue(userID int64, ttl time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.signingKey)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if after, ok := strings.CutPrefix(header, "Bearer "); ok && after != "" {
		return strings.TrimSpace(after), true
	}
	return "", false
}
