package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chalk/internal/audit"
	"chalk/internal/usage/config"
	"chalk/internal/usage/models"
	subscriberstore "chalk/internal/usage/store/subscriber"
	usagestore "chalk/internal/usage/store/usage"
	"chalk/internal/usage/tier"
	dErrors "chalk/pkg/domain-errors"
	"chalk/pkg/requestcontext"
)

// =============================================================================
// Quota Service Suite
// =============================================================================
// Justification: the service is where window math, tier policy, and store
// atomicity meet. These tests drive it over the in-memory stores with a
// pinned clock, covering monthly exhaustion, stale-window rollover, hourly
// caps under an unlimited monthly cap, and concurrent first writes.

type QuotaServiceSuite struct {
	suite.Suite
	usage       *usagestore.MemoryStore
	subscribers *subscriberstore.MemoryStore
	service     *Service
	now         time.Time
}

func TestQuotaServiceSuite(t *testing.T) {
	suite.Run(t, new(QuotaServiceSuite))
}

func (s *QuotaServiceSuite) SetupTest() {
	s.usage = usagestore.NewMemory()
	s.subscribers = subscriberstore.NewMemory()
	s.now = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)
	s.service = s.newService(config.DefaultConfig())
}

func (s *QuotaServiceSuite) newService(cfg *config.Config, opts ...Option) *Service {
	svc, err := New(s.usage, tier.NewResolver(s.subscribers), s.subscribers,
		append([]Option{WithConfig(cfg)}, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *QuotaServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *QuotaServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *QuotaServiceSuite) seedUser(userID int64, t models.Tier, status models.SubscriptionStatus) models.Identity {
	s.subscribers.Seed(models.Subscription{UserID: userID, Tier: t, Status: status})
	identity, err := models.NewUserIdentity(userID)
	s.Require().NoError(err)
	return identity
}

func (s *QuotaServiceSuite) anonIdentity(ip string) models.Identity {
	identity, err := models.NewAnonymousIdentity(ip)
	s.Require().NoError(err)
	return identity
}

// =============================================================================
// Constructor
// =============================================================================

func (s *QuotaServiceSuite) TestNew() {
	resolver := tier.NewResolver(s.subscribers)

	s.Run("nil usage store returns error", func() {
		_, err := New(nil, resolver, s.subscribers)
		s.ErrorContains(err, "usage store is required")
	})

	s.Run("nil tier resolver returns error", func() {
		_, err := New(s.usage, nil, s.subscribers)
		s.ErrorContains(err, "tier resolver is required")
	})

	s.Run("nil subscription store returns error", func() {
		_, err := New(s.usage, resolver, nil)
		s.ErrorContains(err, "subscription store is required")
	})
}

// =============================================================================
// Monthly exhaustion (free tier)
// =============================================================================

func (s *QuotaServiceSuite) TestMonthlyCapExhaustion() {
	// Unlimited hourly so only the monthly cap is in play.
	svc := s.newService(&config.Config{Limits: map[models.Tier]models.LimitSet{
		models.TierFree:    {MonthlyGenerations: 10, MonthlyDownloads: 10, HourlyGenerations: models.Unlimited},
		models.TierPremium: {MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: models.Unlimited},
	}})
	identity := s.seedUser(1, models.TierFree, models.SubscriptionActive)

	fresh, err := svc.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.True(fresh.CanGenerate)
	s.Equal(10, fresh.GenerationsLeft)

	for i := 0; i < 10; i++ {
		decision, err := svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
		s.Require().NoError(err)
		s.Require().True(decision.Allows(models.ActionGeneration), "write %d should land", i+1)
	}

	denied, err := svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)
	s.False(denied.Allows(models.ActionGeneration))
	s.Require().NotNil(denied.GenerationDenial)
	s.Equal(models.WindowMonthly, denied.GenerationDenial.Window)
	s.Equal(10, denied.GenerationDenial.Cap)
	s.Equal(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), denied.GenerationDenial.ResetAt)
	s.True(denied.CanDownload, "the download budget is untouched")

	after, err := svc.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.False(after.CanGenerate)
	s.Zero(after.GenerationsLeft)
}

// =============================================================================
// Stale month reads as fresh, physical reset happens on write
// =============================================================================

func (s *QuotaServiceSuite) TestStaleMonthReadsFresh() {
	identity := s.anonIdentity("203.0.113.9")
	january := time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.service.Record(s.ctxAt(january), identity, models.ActionGeneration))
	}

	// Two months later the stored raw count no longer governs.
	decision, err := s.service.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.True(decision.CanGenerate)
	s.Equal(10, decision.GenerationsLeft)

	raw, err := s.usage.Get(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(3, raw.MonthlyGenerationsUsed, "reads never rewrite the stored value")

	// The next write performs the physical reset.
	s.Require().NoError(s.service.Record(s.ctx(), identity, models.ActionGeneration))
	raw, err = s.usage.Get(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(1, raw.MonthlyGenerationsUsed)
}

// =============================================================================
// Hourly cap with unlimited monthly (premium)
// =============================================================================

func (s *QuotaServiceSuite) TestHourlyCapOnPremium() {
	identity := s.seedUser(7, models.TierPremium, models.SubscriptionActive)

	for i := 0; i < 15; i++ {
		decision, err := s.service.TryRecord(s.ctx(), identity, models.ActionGeneration)
		s.Require().NoError(err)
		s.Require().True(decision.Allows(models.ActionGeneration), "write %d should land", i+1)
	}

	denied, err := s.service.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)
	s.False(denied.Allows(models.ActionGeneration))
	s.Require().NotNil(denied.GenerationDenial)
	s.Equal(models.WindowHourly, denied.GenerationDenial.Window)
	s.Equal(15, denied.GenerationDenial.Cap)
	s.Equal(s.now.Add(time.Hour), denied.GenerationDenial.ResetAt)
	s.Equal(models.UnlimitedRemaining, denied.GenerationsLeft, "the monthly budget stays open")

	// One hour later the window has rolled over.
	later, err := s.service.Evaluate(s.ctxAt(s.now.Add(61*time.Minute)), identity)
	s.Require().NoError(err)
	s.True(later.CanGenerate)
	s.Zero(later.HourlyUsed)
}

// =============================================================================
// Concurrent first writes collapse onto one record
// =============================================================================

func (s *QuotaServiceSuite) TestConcurrentFirstWrites() {
	identity := s.anonIdentity("198.51.100.4")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.TryRecord(s.ctx(), identity, models.ActionGeneration)
		}(i)
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])

	records, err := s.usage.List(s.ctx(), 10)
	s.Require().NoError(err)
	s.Require().Len(records, 1, "exactly one record per identity")
	s.Equal(2, records[0].MonthlyGenerationsUsed)
}

// =============================================================================
// Evaluate semantics
// =============================================================================

func (s *QuotaServiceSuite) TestEvaluateIsIdempotent() {
	identity := s.anonIdentity("203.0.113.9")
	s.Require().NoError(s.service.Record(s.ctx(), identity, models.ActionGeneration))

	first, err := s.service.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	for i := 0; i < 3; i++ {
		again, err := s.service.Evaluate(s.ctx(), identity)
		s.Require().NoError(err)
		s.Equal(first, again)
	}
}

func (s *QuotaServiceSuite) TestAnonymousIsFreeTier() {
	decision, err := s.service.Evaluate(s.ctx(), s.anonIdentity("203.0.113.9"))
	s.Require().NoError(err)
	s.Equal(models.TierFree, decision.Tier)
	s.Equal(models.TrackedByIP, decision.TrackedBy)
	s.Equal(10, decision.GenerationsLeft)
}

func (s *QuotaServiceSuite) TestPremiumGetsUnlimitedMonthly() {
	identity := s.seedUser(9, models.TierPremium, models.SubscriptionActive)

	decision, err := s.service.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(models.TierPremium, decision.Tier)
	s.Equal(models.UnlimitedRemaining, decision.GenerationsLeft)
	s.Equal(models.UnlimitedRemaining, decision.DownloadsLeft)
	s.Equal(15, decision.HourlyLimit)
}

func (s *QuotaServiceSuite) TestEvaluateRejectsZeroIdentity() {
	_, err := s.service.Evaluate(s.ctx(), models.Identity{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidIdentity))
}

// =============================================================================
// Failure policy
// =============================================================================

func (s *QuotaServiceSuite) TestTierLookupFailureNeverGrantsPremium() {
	failing := &failingSubscriptions{err: errors.New("users table unreachable")}
	svc, err := New(s.usage, tier.NewResolver(failing), failing, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	identity, err := models.NewUserIdentity(7)
	s.Require().NoError(err)

	decision, err := svc.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(models.TierFree, decision.Tier)
	s.Equal(10, decision.GenerationsLeft, "free limits apply, not premium")
	s.True(decision.CanGenerate, "a healthy usage store still serves the free quota")
}

func (s *QuotaServiceSuite) TestRestrictedPostureWhenNothingConfirms() {
	failing := &failingSubscriptions{err: errors.New("users table unreachable")}
	broken := &failingUsage{MemoryStore: s.usage, getErr: errors.New("counters unreachable")}
	svc, err := New(broken, tier.NewResolver(failing), failing, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	identity, err := models.NewUserIdentity(7)
	s.Require().NoError(err)

	decision, err := svc.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(models.TierFree, decision.Tier)
	s.False(decision.CanGenerate)
	s.False(decision.CanDownload)
	s.Zero(decision.GenerationsLeft)
	s.Zero(decision.DownloadsLeft)
	s.Nil(decision.GenerationDenial, "nothing was exhausted, no window to blame")
}

func (s *QuotaServiceSuite) TestConfirmedTierSurvivesUsageReadFailure() {
	identity := s.seedUser(3, models.TierFree, models.SubscriptionActive)
	broken := &failingUsage{MemoryStore: s.usage, getErr: errors.New("counters unreachable")}
	svc, err := New(broken, tier.NewResolver(s.subscribers), s.subscribers, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	decision, err := svc.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.True(decision.CanGenerate, "a confirmed tier keeps serving on a fresh-record assumption")
	s.Equal(10, decision.GenerationsLeft)
}

func (s *QuotaServiceSuite) TestWriteFailuresPropagate() {
	identity := s.anonIdentity("203.0.113.9")
	broken := &failingUsage{
		MemoryStore: s.usage,
		recordErr:   errors.New("write refused"),
		tryErr:      errors.New("write refused"),
	}
	svc, err := New(broken, tier.NewResolver(s.subscribers), s.subscribers, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	err = svc.Record(s.ctx(), identity, models.ActionGeneration)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Download isolation and zero caps
// =============================================================================

func (s *QuotaServiceSuite) TestDownloadCapDeniesIndependently() {
	svc := s.newService(&config.Config{Limits: map[models.Tier]models.LimitSet{
		models.TierFree:    {MonthlyGenerations: 10, MonthlyDownloads: 2, HourlyGenerations: 5},
		models.TierPremium: {MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: 15},
	}})
	identity := s.anonIdentity("203.0.113.9")

	for i := 0; i < 2; i++ {
		decision, err := svc.TryRecord(s.ctx(), identity, models.ActionDownload)
		s.Require().NoError(err)
		s.Require().True(decision.Allows(models.ActionDownload))
	}

	denied, err := svc.TryRecord(s.ctx(), identity, models.ActionDownload)
	s.Require().NoError(err)
	s.False(denied.CanDownload)
	s.Require().NotNil(denied.DownloadDenial)
	s.Equal(models.WindowMonthly, denied.DownloadDenial.Window)
	s.Equal(2, denied.DownloadDenial.Cap)
	s.True(denied.CanGenerate, "generations are not affected by the download cap")
	s.Zero(denied.HourlyUsed, "downloads never touch the hourly window")
}

func (s *QuotaServiceSuite) TestZeroCapDeniesWithoutWriting() {
	svc := s.newService(&config.Config{Limits: map[models.Tier]models.LimitSet{
		models.TierFree:    {MonthlyGenerations: 0, MonthlyDownloads: 0, HourlyGenerations: 5},
		models.TierPremium: {MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: 15},
	}})
	identity := s.anonIdentity("203.0.113.9")

	decision, err := svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)
	s.False(decision.CanGenerate)
	s.Require().NotNil(decision.GenerationDenial)
	s.Zero(decision.GenerationDenial.Cap)

	record, err := s.usage.Get(s.ctx(), identity)
	s.Require().NoError(err)
	s.Nil(record, "a zero cap must not create a row")
}

// =============================================================================
// Inspect
// =============================================================================

func (s *QuotaServiceSuite) TestInspectReturnsRawRowAndDecision() {
	identity := s.anonIdentity("203.0.113.9")
	s.Require().NoError(s.service.Record(s.ctx(), identity, models.ActionGeneration))

	record, decision, err := s.service.Inspect(s.ctx(), identity)
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.Equal(1, record.MonthlyGenerationsUsed)
	s.Equal(9, decision.GenerationsLeft)

	record, decision, err = s.service.Inspect(s.ctx(), s.anonIdentity("198.51.100.77"))
	s.Require().NoError(err)
	s.Nil(record, "never-counted identities have no row")
	s.Equal(10, decision.GenerationsLeft)
}

func (s *QuotaServiceSuite) TestInspectPropagatesReadFailure() {
	broken := &failingUsage{MemoryStore: s.usage, getErr: errors.New("counters unreachable")}
	svc, err := New(broken, tier.NewResolver(s.subscribers), s.subscribers, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	_, _, err = svc.Inspect(s.ctx(), s.anonIdentity("203.0.113.9"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Reset
// =============================================================================

func (s *QuotaServiceSuite) TestResetRestoresQuota() {
	identity := s.anonIdentity("203.0.113.9")
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.service.Record(s.ctx(), identity, models.ActionGeneration))
	}

	s.Require().NoError(s.service.Reset(s.ctx(), identity))

	decision, err := s.service.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(10, decision.GenerationsLeft)

	raw, err := s.usage.Get(s.ctx(), identity)
	s.Require().NoError(err)
	s.Require().NotNil(raw, "reset zeroes the row in place, it does not delete it")
	s.Zero(raw.MonthlyGenerationsUsed)
}

func (s *QuotaServiceSuite) TestResetUnknownIdentityIsNoOp() {
	identity := s.anonIdentity("198.51.100.200")
	s.Require().NoError(s.service.Reset(s.ctx(), identity))

	record, err := s.usage.Get(s.ctx(), identity)
	s.Require().NoError(err)
	s.Nil(record)
}

// =============================================================================
// Tier updates
// =============================================================================

func (s *QuotaServiceSuite) TestUpdateTierTakesEffect() {
	identity := s.seedUser(5, models.TierFree, models.SubscriptionActive)

	sub, err := s.service.UpdateTier(s.ctx(), 5, models.TierPremium, models.SubscriptionActive)
	s.Require().NoError(err)
	s.Equal(models.TierPremium, sub.Tier)

	decision, err := s.service.Evaluate(s.ctx(), identity)
	s.Require().NoError(err)
	s.Equal(models.TierPremium, decision.Tier)
	s.Equal(models.UnlimitedRemaining, decision.GenerationsLeft)
}

func (s *QuotaServiceSuite) TestUpdateTierValidation() {
	s.Run("unknown user", func() {
		_, err := s.service.UpdateTier(s.ctx(), 404, models.TierPremium, models.SubscriptionActive)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non positive user id", func() {
		_, err := s.service.UpdateTier(s.ctx(), 0, models.TierPremium, models.SubscriptionActive)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown tier", func() {
		_, err := s.service.UpdateTier(s.ctx(), 5, models.Tier("gold"), models.SubscriptionActive)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown status", func() {
		_, err := s.service.UpdateTier(s.ctx(), 5, models.TierPremium, models.SubscriptionStatus("trialing"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *QuotaServiceSuite) TestUpdateTierInvalidatesCachedTier() {
	s.subscribers.Seed(models.Subscription{UserID: 5, Tier: models.TierFree, Status: models.SubscriptionActive})
	tiers := &stubTiers{tier: models.TierFree, confirmed: true}
	svc, err := New(s.usage, tiers, s.subscribers, WithConfig(config.DefaultConfig()))
	s.Require().NoError(err)

	_, err = svc.UpdateTier(s.ctx(), 5, models.TierPremium, models.SubscriptionActive)
	s.Require().NoError(err)
	s.Equal([]int64{5}, tiers.invalidated)
}

// =============================================================================
// Audit trail
// =============================================================================

func (s *QuotaServiceSuite) TestAuditTrail() {
	store := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(store)
	svc := s.newService(config.DefaultConfig(), WithAuditPublisher(publisher))
	identity := s.seedUser(5, models.TierFree, models.SubscriptionActive)

	_, err := svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)
	s.Require().NoError(svc.Reset(s.ctx(), identity))
	_, err = svc.UpdateTier(s.ctx(), 5, models.TierPremium, models.SubscriptionActive)
	s.Require().NoError(err)

	events, err := publisher.List(s.ctx(), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3)

	// Newest first.
	s.Equal(audit.EventTierUpdated, events[0].Type)
	s.Equal(audit.EventUsageReset, events[1].Type)
	s.Equal(audit.EventUsageRecorded, events[2].Type)

	recorded := events[2]
	s.Require().NotNil(recorded.UserID)
	s.Equal(int64(5), *recorded.UserID)
	s.Equal("generation", recorded.Action)
	s.Equal("free", recorded.Tier)
	s.True(recorded.Allowed)
	s.Equal(s.now, recorded.OccurredAt)
}

func (s *QuotaServiceSuite) TestDenialAuditCarriesReason() {
	store := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(store)
	svc := s.newService(&config.Config{Limits: map[models.Tier]models.LimitSet{
		models.TierFree:    {MonthlyGenerations: 1, MonthlyDownloads: 1, HourlyGenerations: 5},
		models.TierPremium: {MonthlyGenerations: models.Unlimited, MonthlyDownloads: models.Unlimited, HourlyGenerations: 15},
	}}, WithAuditPublisher(publisher))
	identity := s.anonIdentity("203.0.113.9")

	_, err := svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)
	_, err = svc.TryRecord(s.ctx(), identity, models.ActionGeneration)
	s.Require().NoError(err)

	events, err := publisher.List(s.ctx(), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)

	denial := events[0]
	s.Equal(audit.EventUsageDenied, denial.Type)
	s.False(denial.Allowed)
	s.Equal("monthly limit reached", denial.Reason)
	s.Equal("203.0.113.9", denial.IPAddress)
}

// =============================================================================
// List
// =============================================================================

func (s *QuotaServiceSuite) TestListOrdersHeaviestFirst() {
	light := s.anonIdentity("203.0.113.1")
	heavy := s.anonIdentity("203.0.113.2")

	s.Require().NoError(s.service.Record(s.ctx(), light, models.ActionGeneration))
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.service.Record(s.ctx(), heavy, models.ActionGeneration))
	}

	records, err := s.service.List(s.ctx(), 0)
	s.Require().NoError(err)
	s.Require().Len(records, 2, "a non-positive limit falls back to the default page size")
	s.Equal("203.0.113.2", records[0].IPAddress)
}

// =============================================================================
// Stubs
// =============================================================================

type failingSubscriptions struct {
	err error
}

func (f *failingSubscriptions) GetSubscription(context.Context, int64) (*models.Subscription, error) {
	return nil, f.err
}

func (f *failingSubscriptions) UpdateTier(context.Context, int64, models.Tier, models.SubscriptionStatus) (*models.Subscription, error) {
	return nil, f.err
}

// failingUsage overrides selected operations of the in-memory store with
// errors while delegating the rest.
type failingUsage struct {
	*usagestore.MemoryStore
	getErr    error
	recordErr error
	tryErr    error
}

func (f *failingUsage) Get(ctx context.Context, identity models.Identity) (*models.UsageRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStore.Get(ctx, identity)
}

func (f *failingUsage) Record(ctx context.Context, identity models.Identity, action models.Action, now time.Time) (*models.UsageRecord, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.MemoryStore.Record(ctx, identity, action, now)
}

func (f *failingUsage) TryRecord(ctx context.Context, identity models.Identity, action models.Action, limits models.LimitSet, now time.Time) (*models.UsageRecord, error) {
	if f.tryErr != nil {
		return nil, f.tryErr
	}
	return f.MemoryStore.TryRecord(ctx, identity, action, limits, now)
}

type stubTiers struct {
	tier        models.Tier
	confirmed   bool
	invalidated []int64
}

func (t *stubTiers) Resolve(context.Context, models.Identity) (models.Tier, bool) {
	return t.tier, t.confirmed
}

func (t *stubTiers) Invalidate(_ context.Context, userID int64) {
	t.invalidated = append(t.invalidated, userID)
}
