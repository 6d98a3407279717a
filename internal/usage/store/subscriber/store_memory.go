package subscriber

import (
	"context"
	"sync"

	"chalk/internal/usage/models"
)

// MemoryStore is an in-memory subscription store for tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[int64]models.Subscription
}

// NewMemory constructs an empty in-memory subscription store.
func NewMemory() *MemoryStore {
	return &MemoryStore{subs: make(map[int64]models.Subscription)}
}

// Seed installs a subscription directly, bypassing UpdateTier semantics.
func (s *MemoryStore) Seed(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.UserID] = sub
}

func (s *MemoryStore) GetSubscription(_ context.Context, userID int64) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *MemoryStore) UpdateTier(_ context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, nil
	}
	sub.Tier = tier
	sub.Status = status
	s.subs[userID] = sub
	return &sub, nil
}
