package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chalk/internal/usage/models"
)

// =============================================================================
// Resilient Subscription Store Test Suite
// =============================================================================
// Justification: the circuit breaker decides what premium users see during a
// billing-store outage. Serving anything wider than the last confirmed
// subscription would turn an outage into free unlimited quota.

type ResilientStoreSuite struct {
	suite.Suite
}

func TestResilientStoreSuite(t *testing.T) {
	suite.Run(t, new(ResilientStoreSuite))
}

func (s *ResilientStoreSuite) newStore(delegate SubscriptionStore) *ResilientStore {
	return NewResilientStore(delegate, nil,
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
	)
}

func (s *ResilientStoreSuite) premium(userID int64) models.Subscription {
	return models.Subscription{UserID: userID, Tier: models.TierPremium, Status: models.SubscriptionActive}
}

func (s *ResilientStoreSuite) TestPassThroughWhileHealthy() {
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{42: s.premium(42)}}
	store := s.newStore(stub)

	sub, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	s.Require().NotNil(sub)
	s.Equal(models.TierPremium, sub.Tier)
	s.Equal(int32(1), stub.calls.Load())
}

func (s *ResilientStoreSuite) TestErrorsPropagateWhileClosed() {
	stub := &stubSubscriptions{err: errors.New("connection refused")}
	store := s.newStore(stub)

	_, err := store.GetSubscription(context.Background(), 42)
	s.Error(err, "below the threshold the caller sees the failure and charges free")
}

func (s *ResilientStoreSuite) TestServesFallbackOnceOpen() {
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{42: s.premium(42)}}
	store := s.newStore(stub)

	// Confirm the subscription once, then lose the backend.
	_, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	stub.err = errors.New("connection refused")

	// Failures one and two propagate; the third opens the circuit and the
	// same call already falls back to the confirmed row.
	for i := 0; i < 2; i++ {
		_, err = store.GetSubscription(context.Background(), 42)
		s.Error(err)
	}
	sub, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	s.Require().NotNil(sub)
	s.Equal(models.TierPremium, sub.Tier)

	// Circuit is open now: the fallback answers without touching the store.
	before := stub.calls.Load()
	sub, err = store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	s.Equal(models.TierPremium, sub.Tier)
	s.Equal(before, stub.calls.Load(), "open circuit with a fallback hit must not call the delegate")
}

func (s *ResilientStoreSuite) TestOpenCircuitProbesUnknownUsers() {
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{42: s.premium(42)}}
	store := s.newStore(stub)

	_, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	stub.err = errors.New("connection refused")
	for i := 0; i < 3; i++ {
		_, _ = store.GetSubscription(context.Background(), 42)
	}

	// No confirmed row for user 77: the open circuit still probes the
	// delegate, and the probe's failure reaches the caller.
	before := stub.calls.Load()
	_, err = store.GetSubscription(context.Background(), 77)
	s.Error(err)
	s.Equal(before+1, stub.calls.Load())
}

func (s *ResilientStoreSuite) TestRecoveryClosesCircuit() {
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{42: s.premium(42)}}
	store := s.newStore(stub)

	_, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	stub.err = errors.New("connection refused")
	for i := 0; i < 3; i++ {
		_, _ = store.GetSubscription(context.Background(), 42)
	}

	// Backend recovers. Probes against users without fallback entries count
	// toward the success threshold without shortcutting through the cache.
	stub.err = nil
	for _, userID := range []int64{77, 78} {
		_, err = store.GetSubscription(context.Background(), userID)
		s.Require().NoError(err)
	}

	// Closed again: a single fresh failure propagates instead of serving
	// the stale fallback.
	stub.err = errors.New("connection refused")
	_, err = store.GetSubscription(context.Background(), 42)
	s.Error(err)
}

func (s *ResilientStoreSuite) TestFallbackExpires() {
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{42: s.premium(42)}}
	store := NewResilientStore(stub, nil,
		WithFailureThreshold(2),
		WithFallbackTTL(30*time.Millisecond),
	)

	_, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	stub.err = errors.New("connection refused")
	_, _ = store.GetSubscription(context.Background(), 42)
	_, _ = store.GetSubscription(context.Background(), 42)

	time.Sleep(50 * time.Millisecond)

	_, err = store.GetSubscription(context.Background(), 42)
	s.Error(err, "an expired fallback must not keep serving stale tiers")
}

func (s *ResilientStoreSuite) TestConfirmedAbsenceIsCached() {
	// User 42 has no subscription row; that answer is itself confirmable.
	stub := &stubSubscriptions{subs: map[int64]models.Subscription{}}
	store := s.newStore(stub)

	sub, err := store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	s.Nil(sub)

	stub.err = errors.New("connection refused")
	for i := 0; i < 2; i++ {
		_, _ = store.GetSubscription(context.Background(), 42)
	}

	sub, err = store.GetSubscription(context.Background(), 42)
	s.Require().NoError(err)
	s.Nil(sub, "a confirmed missing row keeps resolving to free, not to an error")
}
