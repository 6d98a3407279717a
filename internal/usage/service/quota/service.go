// Package quota implements the usage-quota engine: read-only evaluation,
// atomic increments, and the admin surface over usage counters.
//
// Evaluate is pure: stale windows read as an effective count of zero
// without mutating stored rows. Record and TryRecord are the only writers,
// and both delegate the reset-if-stale-then-count step to a single atomic
// store write per identity, so concurrent requests for one identity
// serialize at the row instead of racing in application code.
package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"chalk/internal/audit"
	"chalk/internal/usage/config"
	"chalk/internal/usage/metrics"
	"chalk/internal/usage/models"
	"chalk/internal/usage/tracing"
	dErrors "chalk/pkg/domain-errors"
	"chalk/pkg/requestcontext"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// tryRecordAttempts bounds the retry loop when a refused write races a
	// concurrent window rollover.
	tryRecordAttempts = 3
)

// Store is the usage-counter persistence the engine drives. Implementations
// must fold the reset-if-stale-then-count step into one atomic write per
// identity; TryRecord additionally refuses the write when the identity is
// at cap, returning nil with no error.
type Store interface {
	Get(ctx context.Context, identity models.Identity) (*models.UsageRecord, error)
	Record(ctx context.Context, identity models.Identity, action models.Action, now time.Time) (*models.UsageRecord, error)
	TryRecord(ctx context.Context, identity models.Identity, action models.Action, limits models.LimitSet, now time.Time) (*models.UsageRecord, error)
	Reset(ctx context.Context, identity models.Identity, now time.Time) error
	List(ctx context.Context, limit int) ([]*models.UsageRecord, error)
}

// TierResolver resolves an identity's effective limit tier. The second
// return reports whether the tier was confirmed; false means a lookup
// failed and the tier is the fail-closed free fallback.
type TierResolver interface {
	Resolve(ctx context.Context, identity models.Identity) (models.Tier, bool)
	Invalidate(ctx context.Context, userID int64)
}

// SubscriptionStore flips billing state for the admin tier surface.
type SubscriptionStore interface {
	UpdateTier(ctx context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus) (*models.Subscription, error)
}

// AuditPublisher records quota events on the audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the quota engine. Thread-safe; all state lives in the stores.
type Service struct {
	store          Store
	tiers          TierResolver
	subscriptions  SubscriptionStore
	limits         *config.Config
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         tracing.Tracer
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher sets the audit event publisher.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTracer sets the tracer for engine operation spans.
func WithTracer(t tracing.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithConfig overrides the default limit table.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.limits = cfg
	}
}

// New creates the quota engine over the given stores.
func New(store Store, tiers TierResolver, subscriptions SubscriptionStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("usage store is required")
	}
	if tiers == nil {
		return nil, errors.New("tier resolver is required")
	}
	if subscriptions == nil {
		return nil, errors.New("subscription store is required")
	}

	svc := &Service{
		store:         store,
		tiers:         tiers,
		subscriptions: subscriptions,
		limits:        config.DefaultConfig(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        tracing.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Evaluate reports what the identity may do right now, with no side
// effects: repeated calls with no intervening write return identical
// decisions. A failed usage read degrades instead of erroring, to the
// zero-remaining free posture when the tier is unconfirmed and to a
// fresh-record decision when it is.
func (s *Service) Evaluate(ctx context.Context, identity models.Identity) (*models.Decision, error) {
	if err := validIdentity(identity); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	ctx, span := s.tracer.Start(ctx, tracing.SpanEvaluate,
		tracing.String(tracing.AttrIdentity, tracing.HashIdentity(identity.Key())),
	)
	defer span.End(nil)

	tier, confirmed := s.tiers.Resolve(ctx, identity)
	limits := s.limits.LimitsFor(tier)
	span.SetAttributes(tracing.String(tracing.AttrTier, tier.String()))

	record, err := s.store.Get(ctx, identity)
	if err != nil {
		s.storeError(ctx, "usage_read", err)
		if !confirmed {
			s.logger.WarnContext(ctx, "usage read failed with unconfirmed tier, denying",
				"identity", identity.Key())
			return restrictedDecision(s.limits.LimitsFor(models.TierFree), identity.Tracking()), nil
		}
		s.logger.WarnContext(ctx, "usage read failed, treating record as fresh",
			"identity", identity.Key())
		record = nil
	}

	return decide(record, limits, tier, identity.Tracking(), now), nil
}

// Record unconditionally applies one action: the split form for callers
// that already decided via Evaluate. A store failure propagates so the
// caller never performs a gated action that went uncounted.
func (s *Service) Record(ctx context.Context, identity models.Identity, action models.Action) error {
	if err := validIdentity(identity); err != nil {
		return err
	}
	if !action.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid action")
	}
	now := requestcontext.Now(ctx)

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanRecord,
		tracing.String(tracing.AttrIdentity, tracing.HashIdentity(identity.Key())),
		tracing.String(tracing.AttrAction, action.String()),
	)
	defer func() { span.End(err) }()

	tier, _ := s.tiers.Resolve(ctx, identity)

	if _, err = s.store.Record(ctx, identity, action, now); err != nil {
		s.storeError(ctx, "usage_write", err)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "record usage")
		return err
	}

	s.usageRecorded(ctx, identity, action, tier, now)
	return nil
}

// TryRecord is the atomic check-and-increment: the action lands only while
// the identity is under cap, decided inside the same store write that
// applies it. Returns the post-increment decision when it lands, or a
// denial decision when a cap is exhausted; Allows(action) tells them apart.
func (s *Service) TryRecord(ctx context.Context, identity models.Identity, action models.Action) (*models.Decision, error) {
	if err := validIdentity(identity); err != nil {
		return nil, err
	}
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid action")
	}
	now := requestcontext.Now(ctx)

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanTryRecord,
		tracing.String(tracing.AttrIdentity, tracing.HashIdentity(identity.Key())),
		tracing.String(tracing.AttrAction, action.String()),
	)
	defer func() { span.End(err) }()

	tier, _ := s.tiers.Resolve(ctx, identity)
	limits := s.limits.LimitsFor(tier)
	span.SetAttributes(tracing.String(tracing.AttrTier, tier.String()))
	if s.metrics != nil {
		s.metrics.RecordCheck(action.String(), tier.String())
	}

	// A zero cap never admits anything, and the upsert's insert arm is
	// unconditional: refuse here before touching the store.
	if zeroCapped(limits, action) {
		record, getErr := s.store.Get(ctx, identity)
		if getErr != nil {
			// The denial itself does not depend on the counts.
			s.storeError(ctx, "usage_read", getErr)
			record = nil
		}
		decision := decide(record, limits, tier, identity.Tracking(), now)
		span.SetAttributes(tracing.Bool(tracing.AttrAllowed, false))
		s.usageDenied(ctx, identity, action, tier, decision.DenialFor(action), now)
		return decision, nil
	}

	for attempt := 0; attempt < tryRecordAttempts; attempt++ {
		var record *models.UsageRecord
		record, err = s.store.TryRecord(ctx, identity, action, limits, now)
		if err != nil {
			s.storeError(ctx, "usage_write", err)
			err = dErrors.Wrap(err, dErrors.CodeInternal, "try record usage")
			return nil, err
		}
		if record != nil {
			decision := decide(record, limits, tier, identity.Tracking(), now)
			span.SetAttributes(tracing.Bool(tracing.AttrAllowed, true))
			s.usageRecorded(ctx, identity, action, tier, now)
			return decision, nil
		}

		// Refused at cap. Read the row under the same pinned now to report
		// which window is exhausted.
		var raw *models.UsageRecord
		raw, err = s.store.Get(ctx, identity)
		if err != nil {
			s.storeError(ctx, "usage_read", err)
			err = dErrors.Wrap(err, dErrors.CodeInternal, "read usage after refusal")
			return nil, err
		}
		decision := decide(raw, limits, tier, identity.Tracking(), now)
		if decision.Allows(action) {
			// A concurrent write rolled the window over between the refusal
			// and the read; retry for the freed slot.
			continue
		}
		denial := decision.DenialFor(action)
		span.SetAttributes(
			tracing.Bool(tracing.AttrAllowed, false),
			tracing.String(tracing.AttrWindow, denial.Window.String()),
		)
		s.usageDenied(ctx, identity, action, tier, denial, now)
		return decision, nil
	}

	err = dErrors.New(dErrors.CodeConflict, "usage counters kept moving, retry")
	return nil, err
}

// Inspect returns the raw stored row alongside the current decision: the
// admin view of one identity. The record is nil when the identity has
// never been counted. Unlike Evaluate, a failed read propagates: an
// operator looking at a row needs the truth, not a degraded posture.
func (s *Service) Inspect(ctx context.Context, identity models.Identity) (*models.UsageRecord, *models.Decision, error) {
	if err := validIdentity(identity); err != nil {
		return nil, nil, err
	}
	now := requestcontext.Now(ctx)

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanInspect,
		tracing.String(tracing.AttrIdentity, tracing.HashIdentity(identity.Key())),
	)
	defer func() { span.End(err) }()

	tier, _ := s.tiers.Resolve(ctx, identity)
	limits := s.limits.LimitsFor(tier)

	record, err := s.store.Get(ctx, identity)
	if err != nil {
		s.storeError(ctx, "usage_read", err)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "inspect usage")
		return nil, nil, err
	}
	return record, decide(record, limits, tier, identity.Tracking(), now), nil
}

// Reset zeroes an identity's counters and restarts both windows: the
// support path after a billing dispute. Identities with no usage row stay
// absent.
func (s *Service) Reset(ctx context.Context, identity models.Identity) error {
	if err := validIdentity(identity); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanReset,
		tracing.String(tracing.AttrIdentity, tracing.HashIdentity(identity.Key())),
	)
	defer func() { span.End(err) }()

	if err = s.store.Reset(ctx, identity, now); err != nil {
		s.storeError(ctx, "usage_write", err)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "reset usage")
		return err
	}

	s.usageReset(ctx, identity, now)
	return nil
}

// List returns up to limit rows ordered by total monthly consumption,
// heaviest first. Non-positive limits fall back to the default page size.
func (s *Service) List(ctx context.Context, limit int) ([]*models.UsageRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanList)
	defer func() { span.End(err) }()

	records, err := s.store.List(ctx, limit)
	if err != nil {
		s.storeError(ctx, "usage_read", err)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "list usage")
		return nil, err
	}
	return records, nil
}

// UpdateTier flips a user's subscription tier and status, invalidating any
// cached tier so the next quota check sees the change immediately.
func (s *Service) UpdateTier(ctx context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus) (*models.Subscription, error) {
	if userID <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id must be positive")
	}
	if !tier.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid tier")
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid subscription status")
	}
	now := requestcontext.Now(ctx)

	var err error
	ctx, span := s.tracer.Start(ctx, tracing.SpanUpdateTier,
		tracing.String(tracing.AttrTier, tier.String()),
	)
	defer func() { span.End(err) }()

	sub, err := s.subscriptions.UpdateTier(ctx, userID, tier, status)
	if err != nil {
		s.storeError(ctx, "tier_write", err)
		err = dErrors.Wrap(err, dErrors.CodeInternal, "update subscription tier")
		return nil, err
	}
	if sub == nil {
		err = dErrors.New(dErrors.CodeNotFound, "user not found")
		return nil, err
	}

	s.tiers.Invalidate(ctx, userID)
	s.tierUpdated(ctx, userID, tier, status, now)
	return sub, nil
}

// validIdentity rejects the zero identity before it reaches any store.
// Resolvers never produce one; this guards direct programmatic use.
func validIdentity(identity models.Identity) error {
	if !identity.IsAuthenticated() && identity.IP == "" {
		return dErrors.New(dErrors.CodeInvalidIdentity, "identity carries neither user nor address")
	}
	return nil
}
