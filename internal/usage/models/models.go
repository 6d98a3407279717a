package models

import (
	"fmt"
	"time"

	dErrors "chalk/pkg/domain-errors"
)

type Action string

const (
	// ActionGeneration: producing new material. Counted against the monthly
	// and the hourly window.
	ActionGeneration Action = "generation"
	// ActionDownload: exporting existing material. Counted against the
	// monthly window only.
	ActionDownload Action = "download"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionGeneration, ActionDownload:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// ParseAction creates an Action from a string, validating it.
// Returns error if the action is empty or not one of the allowed values.
func ParseAction(s string) (Action, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "action cannot be empty")
	}
	a := Action(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid action: must be 'generation' or 'download'")
	}
	return a, nil
}

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPremium
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier creates a Tier from a string, validating it.
// Returns error if the tier is empty or not one of the allowed values.
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tier cannot be empty")
	}
	t := Tier(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid tier: must be 'free' or 'premium'")
	}
	return t, nil
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
)

func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionCanceled, SubscriptionPastDue:
		return true
	}
	return false
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

// ParseSubscriptionStatus creates a SubscriptionStatus from a string,
// validating it. Only used for admin input; statuses read from storage are
// taken as-is, since EffectiveTier treats anything non-active as free.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subscription status cannot be empty")
	}
	st := SubscriptionStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid subscription status: must be 'active', 'canceled' or 'past_due'")
	}
	return st, nil
}

// Subscription is the billing state read from the users table.
type Subscription struct {
	UserID int64              `json:"user_id"`
	Tier   Tier               `json:"tier"`
	Status SubscriptionStatus `json:"status"`
}

// EffectiveTier maps billing state to the limit tier: premium only while
// the subscription is both premium and active, free for every other
// combination.
func (s Subscription) EffectiveTier() Tier {
	if s.Tier == TierPremium && s.Status == SubscriptionActive {
		return TierPremium
	}
	return TierFree
}

// TrackingMethod records which column keys a usage row.
type TrackingMethod string

const (
	TrackedByUser TrackingMethod = "user_id"
	TrackedByIP   TrackingMethod = "ip_address"
)

func (m TrackingMethod) String() string {
	return string(m)
}

// PlaceholderIP is stored in the ip_address column of rows keyed by
// user_id. The column is NOT NULL, and the partial unique index on
// ip_address only covers rows with a NULL user_id, so the placeholder
// never collides.
const PlaceholderIP = "0.0.0.0"

// Identity is who a quota decision is about. Exactly one of UserID
// (authenticated) or IP (anonymous) is set.
type Identity struct {
	UserID *int64 `json:"user_id,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// NewUserIdentity creates an authenticated identity keyed by user id.
func NewUserIdentity(userID int64) (Identity, error) {
	if userID <= 0 {
		return Identity{}, dErrors.New(dErrors.CodeInvalidIdentity, "user id must be positive")
	}
	return Identity{UserID: &userID}, nil
}

// NewAnonymousIdentity creates an identity keyed by client IP. The value
// must already be sanitized; an empty value means no identity could be
// derived from the request and it must be rejected before any quota work.
func NewAnonymousIdentity(ip string) (Identity, error) {
	if ip == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidIdentity, "ip address cannot be empty")
	}
	return Identity{IP: ip}, nil
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != nil
}

// Tracking reports which counter column this identity keys.
func (i Identity) Tracking() TrackingMethod {
	if i.IsAuthenticated() {
		return TrackedByUser
	}
	return TrackedByIP
}

// Key is a stable string form ("user:42", "ip:203.0.113.9") used for
// singleflight grouping and in-memory store keys.
func (i Identity) Key() string {
	if i.IsAuthenticated() {
		return fmt.Sprintf("user:%d", *i.UserID)
	}
	return "ip:" + i.IP
}

// Unlimited disables a cap when used as its value.
const Unlimited = -1

// UnlimitedRemaining is the remaining-count sentinel reported in place of
// a real number when the governing cap is unlimited.
const UnlimitedRemaining = 999999

// LimitSet holds one tier's caps. Unlimited (-1) disables a cap.
type LimitSet struct {
	MonthlyGenerations int `json:"monthly_generations"`
	MonthlyDownloads   int `json:"monthly_downloads"`
	HourlyGenerations  int `json:"hourly_generations"`
}

// MonthlyCap returns the monthly cap governing an action.
func (l LimitSet) MonthlyCap(a Action) int {
	if a == ActionDownload {
		return l.MonthlyDownloads
	}
	return l.MonthlyGenerations
}

// UsageRecord mirrors one usage_counters row. Raw persisted values are
// carried as-is: staleness is applied at read time by the engine and
// never mutates the record.
type UsageRecord struct {
	UserID                 *int64     `json:"user_id,omitempty"`
	IPAddress              string     `json:"ip_address"`
	MonthlyGenerationsUsed int        `json:"monthly_generations_used"`
	MonthlyDownloadsUsed   int        `json:"monthly_downloads_used"`
	HourlyGenerationsUsed  int        `json:"hourly_generations_used"`
	LastMonthlyReset       *time.Time `json:"last_monthly_reset,omitempty"`
	LastHourlyReset        *time.Time `json:"last_hourly_reset,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewUsageRecord creates the zero-usage row shape for an identity:
// authenticated rows carry the placeholder IP, anonymous rows a NULL user.
func NewUsageRecord(identity Identity) *UsageRecord {
	rec := &UsageRecord{IPAddress: PlaceholderIP}
	if identity.IsAuthenticated() {
		uid := *identity.UserID
		rec.UserID = &uid
	} else {
		rec.IPAddress = identity.IP
	}
	return rec
}

// Identity reconstructs the identity that keys this row.
func (r *UsageRecord) Identity() Identity {
	if r.UserID != nil {
		uid := *r.UserID
		return Identity{UserID: &uid}
	}
	return Identity{IP: r.IPAddress}
}

// MonthlyStale reports whether the stored monthly window no longer covers
// now: the recorded (year, month) differs from now's, or was never set.
// Calendar comparison is done in UTC.
func (r *UsageRecord) MonthlyStale(now time.Time) bool {
	if r.LastMonthlyReset == nil {
		return true
	}
	a, b := r.LastMonthlyReset.UTC(), now.UTC()
	return a.Year() != b.Year() || a.Month() != b.Month()
}

// HourlyStale reports whether at least one hour has elapsed since the
// stored hourly window began, or it was never set.
func (r *UsageRecord) HourlyStale(now time.Time) bool {
	if r.LastHourlyReset == nil {
		return true
	}
	return now.Sub(*r.LastHourlyReset) >= time.Hour
}

// Window identifies which cap produced a denial.
type Window string

const (
	WindowMonthly Window = "monthly"
	WindowHourly  Window = "hourly"
)

func (w Window) String() string {
	return string(w)
}

// Denial explains a refused action: the exhausted window, the cap that was
// hit, and when that window next resets.
type Denial struct {
	Window  Window    `json:"window"`
	Cap     int       `json:"cap"`
	ResetAt time.Time `json:"reset_at"`
}

// Decision is the engine's verdict for one identity. Remaining counts are
// clamped at zero; unlimited caps report UnlimitedRemaining.
type Decision struct {
	CanGenerate     bool           `json:"can_generate"`
	CanDownload     bool           `json:"can_download"`
	GenerationsLeft int            `json:"generations_left"`
	DownloadsLeft   int            `json:"downloads_left"`
	HourlyUsed      int            `json:"hourly_used"`
	HourlyLimit     int            `json:"hourly_limit"`
	Tier            Tier           `json:"tier"`
	TrackedBy       TrackingMethod `json:"tracked_by"`

	// Set only when the corresponding action is denied.
	GenerationDenial *Denial `json:"generation_denial,omitempty"`
	DownloadDenial   *Denial `json:"download_denial,omitempty"`
}

// Allows reports the verdict for a single action.
func (d *Decision) Allows(a Action) bool {
	if a == ActionDownload {
		return d.CanDownload
	}
	return d.CanGenerate
}

// DenialFor returns the denial detail for an action, nil when allowed.
func (d *Decision) DenialFor(a Action) *Denial {
	if a == ActionDownload {
		return d.DownloadDenial
	}
	return d.GenerationDenial
}
