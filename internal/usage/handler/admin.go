package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chalk/internal/usage/models"
	dErrors "chalk/pkg/domain-errors"
	"chalk/pkg/platform/httputil"
	"chalk/pkg/platform/validation"
	"chalk/pkg/requestcontext"
)

// RegisterAdmin mounts the operator endpoints. The caller is expected to
// wrap the router in the admin-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/usage", h.HandleListUsage)
	r.Get("/admin/usage/user/{user_id}", h.HandleGetUserUsage)
	r.Get("/admin/usage/ip/{ip}", h.HandleGetIPUsage)
	r.Post("/admin/usage/user/{user_id}/reset", h.HandleResetUserUsage)
	r.Post("/admin/usage/ip/{ip}/reset", h.HandleResetIPUsage)
	r.Put("/admin/users/{user_id}/tier", h.HandleUpdateTier)
}

// HandleListUsage implements GET /admin/usage?limit=N.
// Returns the heaviest consumers this month, raw rows as stored.
func (h *Handler) HandleListUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	records, err := h.service.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list usage",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, records)
}

// HandleGetUserUsage implements GET /admin/usage/user/{user_id}.
// Output: { "record": {...}|null, "decision": {...} }
func (h *Handler) HandleGetUserUsage(w http.ResponseWriter, r *http.Request) {
	identity, err := userIdentityParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.inspect(w, r, identity)
}

// HandleGetIPUsage implements GET /admin/usage/ip/{ip}.
func (h *Handler) HandleGetIPUsage(w http.ResponseWriter, r *http.Request) {
	identity, err := ipIdentityParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.inspect(w, r, identity)
}

func (h *Handler) inspect(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	ctx := r.Context()

	record, decision, err := h.service.Inspect(ctx, identity)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to inspect usage",
			"error", err,
			"identity", identity.Key(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &models.AdminUsageResponse{
		Record:   record,
		Decision: decision,
	})
}

// HandleResetUserUsage implements POST /admin/usage/user/{user_id}/reset.
// Output: { "status": "reset" }
func (h *Handler) HandleResetUserUsage(w http.ResponseWriter, r *http.Request) {
	identity, err := userIdentityParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.reset(w, r, identity)
}

// HandleResetIPUsage implements POST /admin/usage/ip/{ip}/reset.
func (h *Handler) HandleResetIPUsage(w http.ResponseWriter, r *http.Request) {
	identity, err := ipIdentityParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.reset(w, r, identity)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.service.Reset(ctx, identity); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset usage",
			"error", err,
			"identity", identity.Key(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "usage reset",
		"identity", identity.Key(),
		"request_id", requestID,
	)

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleUpdateTier implements PUT /admin/users/{user_id}/tier.
// Input: { "tier": "premium", "status": "active" }
// Output: { "user_id": 42, "tier": "premium", "status": "active" }
func (h *Handler) HandleUpdateTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := userIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxBodySize)

	var req models.UpdateTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode update tier request",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	tier, status := req.Subscription()
	sub, err := h.service.UpdateTier(ctx, userID, tier, status)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update tier",
			"error", err,
			"user_id", userID,
			"tier", tier.String(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "tier updated",
		"user_id", sub.UserID,
		"tier", sub.Tier.String(),
		"status", sub.Status.String(),
		"request_id", requestID,
	)

	httputil.WriteJSON(w, http.StatusOK, &models.TierUpdateResponse{
		UserID: sub.UserID,
		Tier:   sub.Tier.String(),
		Status: sub.Status.String(),
	})
}

func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "user_id")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "user_id must be a positive integer")
	}
	return userID, nil
}

func userIdentityParam(r *http.Request) (models.Identity, error) {
	userID, err := userIDParam(r)
	if err != nil {
		return models.Identity{}, err
	}
	return models.NewUserIdentity(userID)
}

// ipIdentityParam takes the path value verbatim: admin lookups address the
// stored row key, not a forwarding chain.
func ipIdentityParam(r *http.Request) (models.Identity, error) {
	identity, err := models.NewAnonymousIdentity(chi.URLParam(r, "ip"))
	if err != nil {
		return models.Identity{}, dErrors.New(dErrors.CodeBadRequest, "ip is required")
	}
	return identity, nil
}
