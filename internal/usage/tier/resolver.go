// Package tier resolves the subscription tier an identity is charged under.
//
// Resolution fails closed: any lookup ambiguity (store error, missing user,
// lapsed subscription) charges the identity as free. An outage must never
// grant unlimited quota.
package tier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"chalk/internal/usage/metrics"
	"chalk/internal/usage/models"
)

const cacheKeyPrefix = "chalk:tier:"

// SubscriptionStore reads subscription state for authenticated users.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Resolver maps identities to effective tiers, collapsing concurrent lookups
// for the same user and optionally caching confirmed results in Redis.
type Resolver struct {
	store    SubscriptionStore
	cache    *redis.Client
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithCache enables Redis caching of confirmed tiers with the given TTL.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = client
		r.cacheTTL = ttl
	}
}

// WithLogger sets the logger for lookup and cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics enables cache hit/miss and lookup failure metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver constructs a Resolver over the given subscription store.
func NewResolver(store SubscriptionStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tier the identity is charged under and whether that
// tier was confirmed. Anonymous identities are free by definition. A store
// failure returns free unconfirmed; callers use the flag to pick the
// restrictive posture when counters are also unreadable.
func (r *Resolver) Resolve(ctx context.Context, identity models.Identity) (models.Tier, bool) {
	if !identity.IsAuthenticated() {
		return models.TierFree, true
	}
	userID := *identity.UserID

	if tier, ok := r.cached(ctx, userID); ok {
		return tier, true
	}

	v, err, _ := r.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		sub, err := r.store.GetSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}
		// No user row means no subscription: confirmed free.
		effective := models.TierFree
		if sub != nil {
			effective = sub.EffectiveTier()
		}
		r.cacheSet(ctx, userID, effective)
		return effective, nil
	})
	if err != nil {
		r.logger.WarnContext(ctx, "tier lookup failed, charging as free",
			"user_id", userID,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.RecordStoreError("tier_lookup")
		}
		return models.TierFree, false
	}
	return v.(models.Tier), true
}

// Invalidate drops the cached tier for a user. Call after tier updates so
// the next resolution sees the new subscription immediately.
func (r *Resolver) Invalidate(ctx context.Context, userID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(userID)).Err(); err != nil {
		r.logger.WarnContext(ctx, "tier cache invalidation failed",
			"user_id", userID,
			"error", err,
		)
	}
}

// cached reads a previously confirmed tier. Any cache failure is a miss;
// the store stays authoritative.
func (r *Resolver) cached(ctx context.Context, userID int64) (models.Tier, bool) {
	if r.cache == nil {
		return "", false
	}
	value, err := r.cache.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.DebugContext(ctx, "tier cache read failed",
				"user_id", userID,
				"error", err,
			)
		}
		if r.metrics != nil {
			r.metrics.RecordTierCacheMiss()
		}
		return "", false
	}
	tier, err := models.ParseTier(value)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordTierCacheMiss()
		}
		return "", false
	}
	if r.metrics != nil {
		r.metrics.RecordTierCacheHit()
	}
	return tier, true
}

// cacheSet stores a confirmed tier. Failed lookups are never cached: a
// failure cached as free would pin a premium user down for the whole TTL.
func (r *Resolver) cacheSet(ctx context.Context, userID int64, tier models.Tier) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(userID), string(tier), r.cacheTTL).Err(); err != nil {
		r.logger.DebugContext(ctx, "tier cache write failed",
			"user_id", userID,
			"error", err,
		)
	}
}

func cacheKey(userID int64) string {
	return cacheKeyPrefix + strconv.FormatInt(userID, 10)
}
