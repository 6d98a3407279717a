// Package handler exposes the quota engine over HTTP: the consumer
// endpoints under /api/usage and the token-guarded operator endpoints
// under /admin.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chalk/internal/usage/models"
	"chalk/pkg/platform/httputil"
	"chalk/pkg/requestcontext"
)

// Service is the engine surface the HTTP layer drives.
type Service interface {
	Evaluate(ctx context.Context, identity models.Identity) (*models.Decision, error)
	TryRecord(ctx context.Context, identity models.Identity, action models.Action) (*models.Decision, error)
	Inspect(ctx context.Context, identity models.Identity) (*models.UsageRecord, *models.Decision, error)
	Reset(ctx context.Context, identity models.Identity) error
	List(ctx context.Context, limit int) ([]*models.UsageRecord, error)
	UpdateTier(ctx context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus) (*models.Subscription, error)
}

// IdentityResolver derives the quota identity of a request.
type IdentityResolver interface {
	FromRequest(r *http.Request) (models.Identity, error)
}

type Handler struct {
	service  Service
	identity IdentityResolver
	logger   *slog.Logger
}

func New(service Service, identity IdentityResolver, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		identity: identity,
		logger:   logger,
	}
}

// Register mounts the consumer-facing usage endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/usage", h.HandleGetUsage)
	r.Post("/api/usage/generations", h.HandleRecordGeneration)
	r.Post("/api/usage/downloads", h.HandleRecordDownload)
}

// HandleGetUsage implements GET /api/usage.
// Output: the caller's current decision, e.g.
// { "can_generate": true, "generations_left": 10, ..., "tier": "free",
//   "tracked_by": "ip_address" }
func (h *Handler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.identity.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	decision, err := h.service.Evaluate(ctx, identity)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to evaluate usage",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, decision)
}

// HandleRecordGeneration implements POST /api/usage/generations.
func (h *Handler) HandleRecordGeneration(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, models.ActionGeneration)
}

// HandleRecordDownload implements POST /api/usage/downloads.
func (h *Handler) HandleRecordDownload(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, models.ActionDownload)
}

// record runs one atomic try-record.
// Output: 200 with the post-increment decision, or 403 with
// { "error": "Generation limit reached", "limit_reached": true,
//   "require_upgrade": true, "decision": {...} }
func (h *Handler) record(w http.ResponseWriter, r *http.Request, action models.Action) {
	ctx := r.Context()

	identity, err := h.identity.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	decision, err := h.service.TryRecord(ctx, identity, action)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record usage",
			"error", err,
			"action", action.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	if !decision.Allows(action) {
		httputil.WriteJSON(w, http.StatusForbidden, models.NewLimitReachedResponse(action, decision))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, decision)
}
