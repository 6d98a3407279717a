package models

// LimitReachedResponse is the 403 body consumers act on: limit_reached
// drives the client's upsell flow, decision carries the full verdict
// including which window denied and when it resets.
type LimitReachedResponse struct {
	Error          string    `json:"error"` // "Generation limit reached" or "Download limit reached"
	LimitReached   bool      `json:"limit_reached"`
	RequireUpgrade bool      `json:"require_upgrade"`
	Decision       *Decision `json:"decision"`
}

// NewLimitReachedResponse builds the denial envelope for an action.
func NewLimitReachedResponse(action Action, decision *Decision) *LimitReachedResponse {
	msg := "Generation limit reached"
	if action == ActionDownload {
		msg = "Download limit reached"
	}
	return &LimitReachedResponse{
		Error:          msg,
		LimitReached:   true,
		RequireUpgrade: true,
		Decision:       decision,
	}
}

// AdminUsageResponse pairs the raw stored row with the decision currently
// derived from it. Record is null for identities that were never counted.
type AdminUsageResponse struct {
	Record   *UsageRecord `json:"record"`
	Decision *Decision    `json:"decision"`
}

// TierUpdateResponse confirms an admin tier change.
type TierUpdateResponse struct {
	UserID int64  `json:"user_id"`
	Tier   string `json:"tier"`
	Status string `json:"status"`
}
