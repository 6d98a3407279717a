// Package identity derives the quota identity of a request: an
// authenticated user id when a valid session token is presented, the
// sanitized client address otherwise.
package identity

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"chalk/internal/auth/session"
	"chalk/internal/usage/models"
	dErrors "chalk/pkg/domain-errors"
)

// TokenVerifier validates a session token and returns its user id.
type TokenVerifier interface {
	UserID(token string) (int64, error)
}

// Resolver turns raw request context into a models.Identity.
type Resolver struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil verifier disables session
// resolution entirely: every caller is then tracked by address.
func NewResolver(verifier TokenVerifier, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{verifier: verifier, logger: logger}
}

// FromRequest resolves the identity for a request. A valid session always
// wins over the address: the same person must accumulate a single counter
// no matter how many addresses they arrive from. An invalid or expired
// token downgrades to the address path instead of failing the request.
func (r *Resolver) FromRequest(req *http.Request) (models.Identity, error) {
	if r.verifier != nil {
		if token, ok := session.BearerToken(req.Header.Get("Authorization")); ok {
			userID, err := r.verifier.UserID(token)
			if err == nil {
				return models.NewUserIdentity(userID)
			}
			r.logger.DebugContext(req.Context(), "session token rejected, tracking by address", "error", err)
		}
	}

	raw := req.Header.Get("X-Forwarded-For")
	if raw == "" {
		raw = req.RemoteAddr
	}
	ip := SanitizeIP(raw)
	if ip == "" {
		return models.Identity{}, dErrors.New(dErrors.CodeInvalidIdentity, "request carries no usable identity")
	}
	return models.NewAnonymousIdentity(ip)
}

// SanitizeIP normalizes a raw client address: a comma-separated forwarding
// chain keeps only the first hop, and a host:port value with exactly one
// colon loses its port. Values that still are not valid IPs pass through
// untouched as opaque identity strings; the rest of the pipeline tolerates
// a malformed-but-non-empty identity. Returns "" when nothing usable
// remains.
func SanitizeIP(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if strings.Count(s, ":") == 1 {
		s = strings.TrimSpace(s[:strings.IndexByte(s, ':')])
	}
	return s
}
