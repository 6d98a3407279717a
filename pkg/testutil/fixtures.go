package testutil

import (
	"fmt"
	"time"

	"chalk/internal/usage/models"
)

// TestUserIDs provides convenient pre-chosen user ids for tests.
// Use these for deterministic test data.
var TestUserIDs = struct {
	Free    int64
	Premium int64
	Lapsed  int64
}{
	Free:    101,
	Premium: 202,
	Lapsed:  303,
}

// MustUserIdentity creates an authenticated identity or panics. For tests only.
func MustUserIdentity(userID int64) models.Identity {
	identity, err := models.NewUserIdentity(userID)
	if err != nil {
		panic(fmt.Sprintf("MustUserIdentity: %v", err))
	}
	return identity
}

// MustAnonymousIdentity creates an IP-keyed identity or panics. For tests only.
func MustAnonymousIdentity(ip string) models.Identity {
	identity, err := models.NewAnonymousIdentity(ip)
	if err != nil {
		panic(fmt.Sprintf("MustAnonymousIdentity: %v", err))
	}
	return identity
}

// UsageRecordBuilder provides a fluent interface for building test usage rows.
type UsageRecordBuilder struct {
	record *models.UsageRecord
}

// NewUsageRecordBuilder creates a builder with fresh windows starting at now.
func NewUsageRecordBuilder(now time.Time) *UsageRecordBuilder {
	ts := now
	return &UsageRecordBuilder{
		record: &models.UsageRecord{
			IPAddress:        models.PlaceholderIP,
			LastMonthlyReset: &ts,
			LastHourlyReset:  &ts,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
}

func (b *UsageRecordBuilder) ForUser(userID int64) *UsageRecordBuilder {
	uid := userID
	b.record.UserID = &uid
	b.record.IPAddress = models.PlaceholderIP
	return b
}

func (b *UsageRecordBuilder) ForIP(ip string) *UsageRecordBuilder {
	b.record.UserID = nil
	b.record.IPAddress = ip
	return b
}

func (b *UsageRecordBuilder) WithMonthly(generations, downloads int) *UsageRecordBuilder {
	b.record.MonthlyGenerationsUsed = generations
	b.record.MonthlyDownloadsUsed = downloads
	return b
}

func (b *UsageRecordBuilder) WithHourly(generations int) *UsageRecordBuilder {
	b.record.HourlyGenerationsUsed = generations
	return b
}

// WithMonthlyReset backdates the monthly window, e.g. to build a stale row.
func (b *UsageRecordBuilder) WithMonthlyReset(t time.Time) *UsageRecordBuilder {
	ts := t
	b.record.LastMonthlyReset = &ts
	return b
}

// WithHourlyReset backdates the hourly window.
func (b *UsageRecordBuilder) WithHourlyReset(t time.Time) *UsageRecordBuilder {
	ts := t
	b.record.LastHourlyReset = &ts
	return b
}

func (b *UsageRecordBuilder) Build() *models.UsageRecord {
	return b.record
}

// SubscriptionBuilder provides a fluent interface for building billing rows.
type SubscriptionBuilder struct {
	sub models.Subscription
}

// NewSubscriptionBuilder creates a builder defaulting to an active free plan.
func NewSubscriptionBuilder(userID int64) *SubscriptionBuilder {
	return &SubscriptionBuilder{
		sub: models.Subscription{
			UserID: userID,
			Tier:   models.TierFree,
			Status: models.SubscriptionActive,
		},
	}
}

func (b *SubscriptionBuilder) WithTier(tier models.Tier) *SubscriptionBuilder {
	b.sub.Tier = tier
	return b
}

func (b *SubscriptionBuilder) WithStatus(status models.SubscriptionStatus) *SubscriptionBuilder {
	b.sub.Status = status
	return b
}

func (b *SubscriptionBuilder) Build() models.Subscription {
	return b.sub
}

// Quick helper functions for simple test cases

// NewPremiumSubscription creates an active premium subscription.
func NewPremiumSubscription(userID int64) models.Subscription {
	return NewSubscriptionBuilder(userID).
		WithTier(models.TierPremium).
		Build()
}

// NewLapsedSubscription creates a premium subscription whose status no
// longer grants premium limits.
func NewLapsedSubscription(userID int64) models.Subscription {
	return NewSubscriptionBuilder(userID).
		WithTier(models.TierPremium).
		WithStatus(models.SubscriptionPastDue).
		Build()
}
