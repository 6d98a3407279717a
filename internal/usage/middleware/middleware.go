// Package middleware gates resource endpoints behind the quota engine.
// The host app wraps a generation or download route with RequireQuota and
// the request is counted before the wrapped handler runs: a denied caller
// never reaches it.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"chalk/internal/usage/models"
	"chalk/pkg/platform/httputil"
	"chalk/pkg/requestcontext"
)

// Recorder is the slice of the quota engine the gate needs: the atomic
// count-and-decide call.
type Recorder interface {
	TryRecord(ctx context.Context, identity models.Identity, action models.Action) (*models.Decision, error)
}

// IdentityResolver derives the quota identity of a request.
type IdentityResolver interface {
	FromRequest(r *http.Request) (models.Identity, error)
}

// Context key for storing the quota decision of an allowed request.
type contextKeyDecision struct{}

// ContextKeyDecision is exported for use in handlers and tests.
var ContextKeyDecision = contextKeyDecision{}

// Decision retrieves the quota decision stamped on an allowed request.
// Returns nil outside a RequireQuota-wrapped handler.
func Decision(ctx context.Context) *models.Decision {
	if decision, ok := ctx.Value(ContextKeyDecision).(*models.Decision); ok {
		return decision
	}
	return nil
}

// RequireQuota returns middleware that counts the request against the
// caller's quota for the given action and refuses it once the caller is
// over a cap. The wrapped handler finds the decision in the request
// context. The count happens before the handler runs, so a request that
// later fails inside the handler still consumed quota; resource handlers
// that need refunds must not sit behind this gate.
func RequireQuota(recorder Recorder, identity IdentityResolver, action models.Action, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ident, err := identity.FromRequest(r)
			if err != nil {
				logger.WarnContext(ctx, "request carries no usable identity",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			decision, err := recorder.TryRecord(ctx, ident, action)
			if err != nil {
				logger.ErrorContext(ctx, "failed to record usage",
					"error", err,
					"action", string(action),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			if !decision.Allows(action) {
				httputil.WriteJSON(w, http.StatusForbidden, models.NewLimitReachedResponse(action, decision))
				return
			}

			ctx = context.WithValue(ctx, ContextKeyDecision, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
