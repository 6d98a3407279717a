// Package audit captures quota decisions and admin mutations as an
// append-only event trail.
package audit

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is emitted from the quota engine to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     *int64    `json:"user_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Action     string    `json:"action,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason,omitempty"`
	Device     string    `json:"device,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// IdentityKey returns the partition key for ordered fan-out: events for one
// identity always land on one partition.
func (e Event) IdentityKey() string {
	if e.UserID != nil {
		return "user:" + strconv.FormatInt(*e.UserID, 10)
	}
	if e.IPAddress != "" {
		return "ip:" + e.IPAddress
	}
	return "unknown"
}

type EventType string

const (
	EventUsageRecorded EventType = "usage_recorded"
	EventUsageDenied   EventType = "usage_denied"
	EventUsageReset    EventType = "usage_reset"
	EventTierUpdated   EventType = "tier_updated"
)
