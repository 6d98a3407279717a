// Package seeder populates in-memory stores with demo data. The server
// runs it when no database is configured, so a fresh checkout answers
// quota requests with believable mid-month state instead of empty tables.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chalk/internal/audit"
	"chalk/internal/usage/models"
)

// Demo account IDs. Stable values so curl examples keep working across
// restarts.
const (
	DemoFreeUserID    int64 = 101
	DemoPremiumUserID int64 = 202
	DemoLapsedUserID  int64 = 303
)

// Demo anonymous addresses.
const (
	demoHeavyIP = "203.0.113.5"
	demoLightIP = "198.51.100.17"
)

// SubscriptionStore accepts pre-built subscription rows.
type SubscriptionStore interface {
	Seed(sub models.Subscription)
}

// UsageStore applies usage writes through the same path live traffic takes,
// so seeded rows carry real window state.
type UsageStore interface {
	Record(ctx context.Context, identity models.Identity, action models.Action, now time.Time) (*models.UsageRecord, error)
}

// AuditStore accepts historical audit events.
type AuditStore interface {
	Append(ctx context.Context, event audit.Event) error
}

// Seeder populates in-memory stores with demo data.
type Seeder struct {
	subscriptions SubscriptionStore
	usage         UsageStore
	audit         AuditStore
	logger        *slog.Logger
}

// New creates a new seeder.
func New(subscriptions SubscriptionStore, usage UsageStore, auditStore AuditStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		subscriptions: subscriptions,
		usage:         usage,
		audit:         auditStore,
		logger:        logger,
	}
}

// SeedAll populates all stores with demo data.
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.Info("seeding demo data...")

	s.seedSubscriptions()

	usageWrites, err := s.seedUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed usage: %w", err)
	}

	auditEvents, err := s.seedAuditTrail(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed audit trail: %w", err)
	}

	s.logger.Info("demo data seeded successfully",
		"usage_writes", usageWrites,
		"audit_events", auditEvents,
	)

	return nil
}

func (s *Seeder) seedSubscriptions() {
	subs := []models.Subscription{
		{UserID: DemoFreeUserID, Tier: models.TierFree, Status: models.SubscriptionActive},
		{UserID: DemoPremiumUserID, Tier: models.TierPremium, Status: models.SubscriptionActive},
		// Lapsed premium: charged as free until billing recovers.
		{UserID: DemoLapsedUserID, Tier: models.TierPremium, Status: models.SubscriptionPastDue},
	}

	for _, sub := range subs {
		s.subscriptions.Seed(sub)
	}
}

// seedUsage replays a morning of demo traffic. Writes are chronological per
// identity and every burst stays under its hourly cap, so the rows look like
// ones the gate itself would have produced.
func (s *Seeder) seedUsage(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	freeUser, err := models.NewUserIdentity(DemoFreeUserID)
	if err != nil {
		return 0, err
	}
	premiumUser, err := models.NewUserIdentity(DemoPremiumUserID)
	if err != nil {
		return 0, err
	}
	heavyIP, err := models.NewAnonymousIdentity(demoHeavyIP)
	if err != nil {
		return 0, err
	}
	lightIP, err := models.NewAnonymousIdentity(demoLightIP)
	if err != nil {
		return 0, err
	}

	writes := []struct {
		identity models.Identity
		action   models.Action
		offset   time.Duration
	}{
		// Free user: part-way through the month, active this hour.
		{freeUser, models.ActionGeneration, -52 * time.Minute},
		{freeUser, models.ActionDownload, -50 * time.Minute},
		{freeUser, models.ActionGeneration, -35 * time.Minute},
		{freeUser, models.ActionGeneration, -20 * time.Minute},
		{freeUser, models.ActionGeneration, -6 * time.Minute},

		// Premium user: an early burst, then a fresh hourly window.
		{premiumUser, models.ActionGeneration, -190 * time.Minute},
		{premiumUser, models.ActionGeneration, -188 * time.Minute},
		{premiumUser, models.ActionGeneration, -185 * time.Minute},
		{premiumUser, models.ActionGeneration, -181 * time.Minute},
		{premiumUser, models.ActionDownload, -180 * time.Minute},
		{premiumUser, models.ActionGeneration, -25 * time.Minute},
		{premiumUser, models.ActionGeneration, -18 * time.Minute},
		{premiumUser, models.ActionGeneration, -12 * time.Minute},

		// Anonymous heavy hitter: one generation from the monthly cap,
		// with an exhausted hourly window three hours back.
		{heavyIP, models.ActionGeneration, -200 * time.Minute},
		{heavyIP, models.ActionGeneration, -198 * time.Minute},
		{heavyIP, models.ActionGeneration, -196 * time.Minute},
		{heavyIP, models.ActionGeneration, -193 * time.Minute},
		{heavyIP, models.ActionGeneration, -191 * time.Minute},
		{heavyIP, models.ActionGeneration, -28 * time.Minute},
		{heavyIP, models.ActionGeneration, -22 * time.Minute},
		{heavyIP, models.ActionGeneration, -15 * time.Minute},
		{heavyIP, models.ActionGeneration, -9 * time.Minute},

		// Light anonymous browser.
		{lightIP, models.ActionGeneration, -40 * time.Minute},
		{lightIP, models.ActionDownload, -38 * time.Minute},
	}

	for _, w := range writes {
		if _, err := s.usage.Record(ctx, w.identity, w.action, now.Add(w.offset)); err != nil {
			return 0, err
		}
	}

	return len(writes), nil
}

func (s *Seeder) seedAuditTrail(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	premiumID := DemoPremiumUserID
	freeID := DemoFreeUserID

	events := []audit.Event{
		{
			Type:       audit.EventTierUpdated,
			OccurredAt: now.Add(-26 * time.Hour),
			UserID:     &premiumID,
			Tier:       string(models.TierPremium),
			Allowed:    true,
			Reason:     "status active",
		},
		{
			Type:       audit.EventUsageRecorded,
			OccurredAt: now.Add(-200 * time.Minute),
			IPAddress:  demoHeavyIP,
			Action:     string(models.ActionGeneration),
			Tier:       string(models.TierFree),
			Allowed:    true,
			Device:     "Chrome on Linux",
		},
		{
			Type:       audit.EventUsageDenied,
			OccurredAt: now.Add(-189 * time.Minute),
			IPAddress:  demoHeavyIP,
			Action:     string(models.ActionGeneration),
			Tier:       string(models.TierFree),
			Allowed:    false,
			Reason:     "hourly limit reached",
			Device:     "Chrome on Linux",
		},
		{
			Type:       audit.EventUsageRecorded,
			OccurredAt: now.Add(-50 * time.Minute),
			UserID:     &freeID,
			Action:     string(models.ActionDownload),
			Tier:       string(models.TierFree),
			Allowed:    true,
			Device:     "Firefox on macOS",
		},
		{
			Type:       audit.EventUsageRecorded,
			OccurredAt: now.Add(-12 * time.Minute),
			UserID:     &premiumID,
			Action:     string(models.ActionGeneration),
			Tier:       string(models.TierPremium),
			Allowed:    true,
			Device:     "Safari on iPhone",
		},
	}

	for _, event := range events {
		event.ID = uuid.New()
		event.RequestID = uuid.NewString()
		if err := s.audit.Append(ctx, event); err != nil {
			return 0, err
		}
	}

	return len(events), nil
}
