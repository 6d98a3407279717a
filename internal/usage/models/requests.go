package models

import (
	"strings"

	dErrors "chalk/pkg/domain-errors"
)

// UpdateTierRequest is the admin body for PUT /admin/users/{user_id}/tier.
type UpdateTierRequest struct {
	Tier   string `json:"tier"`
	Status string `json:"status,omitempty"` // defaults to "active"
}

func (r *UpdateTierRequest) Normalize() {
	if r == nil {
		return
	}
	r.Tier = strings.TrimSpace(strings.ToLower(r.Tier))
	r.Status = strings.TrimSpace(strings.ToLower(r.Status))
}

// Follows validation order: Size -> Required -> Syntax.
func (r *UpdateTierRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if len(r.Tier) > 32 {
		return dErrors.New(dErrors.CodeValidation, "tier must be 32 characters or less")
	}
	if len(r.Status) > 32 {
		return dErrors.New(dErrors.CodeValidation, "status must be 32 characters or less")
	}

	// Phase 2: Required fields
	if r.Tier == "" {
		return dErrors.New(dErrors.CodeValidation, "tier is required")
	}

	// Phase 3: Syntax validation
	if !Tier(r.Tier).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "tier must be 'free' or 'premium'")
	}
	if r.Status != "" && !SubscriptionStatus(r.Status).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be 'active', 'canceled' or 'past_due'")
	}

	return nil
}

// Subscription returns the validated tier and status. Status defaults to
// active, matching the billing schema's column default.
func (r *UpdateTierRequest) Subscription() (Tier, SubscriptionStatus) {
	status := SubscriptionStatus(r.Status)
	if r.Status == "" {
		status = SubscriptionActive
	}
	return Tier(r.Tier), status
}
