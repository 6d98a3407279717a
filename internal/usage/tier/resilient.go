package tier

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"chalk/internal/usage/models"
	"chalk/pkg/platform/circuit"
)

// ResilientStore wraps a SubscriptionStore with circuit breaker protection.
// When the circuit opens (after consecutive lookup failures), reads are
// served from the last confirmed subscription per user for a bounded TTL,
// so a billing-store outage does not flap every premium caller down to
// free limits. A user with no fallback entry still surfaces the error and
// gets charged as free by the resolver: degraded lookups never widen quota.
type ResilientStore struct {
	delegate SubscriptionStore
	breaker  *circuit.Breaker
	fallback *subscriptionCache
	logger   *slog.Logger

	breakerOpts []circuit.Option
}

// ResilientOption configures the resilient store.
type ResilientOption func(*ResilientStore)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
func WithFailureThreshold(n int) ResilientOption {
	return func(s *ResilientStore) {
		s.breakerOpts = append(s.breakerOpts, circuit.WithFailureThreshold(n))
	}
}

// WithSuccessThreshold sets the number of consecutive successes to close the circuit.
func WithSuccessThreshold(n int) ResilientOption {
	return func(s *ResilientStore) {
		s.breakerOpts = append(s.breakerOpts, circuit.WithSuccessThreshold(n))
	}
}

// WithFallbackTTL sets how long a confirmed subscription may be served
// after the store becomes unreachable.
func WithFallbackTTL(ttl time.Duration) ResilientOption {
	return func(s *ResilientStore) {
		s.fallback = newSubscriptionCache(ttl)
	}
}

// NewResilientStore creates a circuit-breaker-protected subscription store.
func NewResilientStore(
	delegate SubscriptionStore,
	logger *slog.Logger,
	opts ...ResilientOption,
) *ResilientStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &ResilientStore{
		delegate: delegate,
		fallback: newSubscriptionCache(5 * time.Minute), // default 5 min TTL
		logger:   logger,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.breaker = circuit.New("subscription_store", s.breakerOpts...)

	return s
}

// GetSubscription reads a subscription with circuit breaker protection.
// On success: remembers the result and records success.
// On failure: records failure, returns the last confirmed row if the
// circuit is open.
func (s *ResilientStore) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	// If circuit is open, try the fallback first
	if s.breaker.IsOpen() {
		if sub, ok := s.fallback.Get(userID); ok {
			s.logger.WarnContext(ctx, "circuit open, serving last confirmed subscription",
				"user_id", userID,
				"circuit", s.breaker.Name(),
			)
			return sub, nil
		}
		// No fallback entry and circuit open - still try delegate (half-open behavior)
	}

	sub, err := s.delegate.GetSubscription(ctx, userID)
	if err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.ErrorContext(ctx, "circuit breaker opened",
				"circuit", s.breaker.Name(),
				"error", err,
			)
		}

		if useFallback {
			if cached, ok := s.fallback.Get(userID); ok {
				s.logger.WarnContext(ctx, "serving last confirmed subscription after failure",
					"user_id", userID,
					"circuit", s.breaker.Name(),
				)
				return cached, nil
			}
		}

		return nil, err
	}

	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "circuit breaker closed",
			"circuit", s.breaker.Name(),
		)
	}

	s.fallback.Set(userID, sub)
	return sub, nil
}

// subscriptionCacheEntry holds a confirmed lookup result with expiration.
// A nil subscription is a confirmed "no row": the user resolves to free.
type subscriptionCacheEntry struct {
	sub       *models.Subscription
	expiresAt time.Time
}

// subscriptionCache keeps the last confirmed subscription per user.
// Thread-safe with TTL-based expiration.
type subscriptionCache struct {
	mu      sync.RWMutex
	entries map[int64]*subscriptionCacheEntry
	ttl     time.Duration
}

func newSubscriptionCache(ttl time.Duration) *subscriptionCache {
	return &subscriptionCache{
		entries: make(map[int64]*subscriptionCacheEntry),
		ttl:     ttl,
	}
}

// Get retrieves a confirmed entry if it exists and hasn't expired.
func (c *subscriptionCache) Get(userID int64) (*models.Subscription, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		// Expired - treat as miss (cleanup happens lazily on Set)
		return nil, false
	}

	return entry.sub, true
}

// Set stores a confirmed lookup result.
func (c *subscriptionCache) Set(userID int64, sub *models.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Lazy cleanup: drop expired entries while we hold the write lock
	now := time.Now()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}

	c.entries[userID] = &subscriptionCacheEntry{
		sub:       sub,
		expiresAt: now.Add(c.ttl),
	}
}
