package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"chalk/internal/usage/models"
)

// MemoryStore keeps usage counters in memory. It mirrors the observable
// semantics of PostgresStore: one mutex covers each whole
// reset-if-stale-then-count sequence, so concurrent writes for the same
// identity serialize exactly like the SQL upsert does.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.UsageRecord
}

// NewMemory constructs an in-memory usage store.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.UsageRecord)}
}

// Get returns a copy of the raw stored row, nil when none exists.
func (s *MemoryStore) Get(_ context.Context, identity models.Identity) (*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[identity.Key()]
	if !ok {
		return nil, nil
	}
	out := *record
	return &out, nil
}

// Record unconditionally applies one action. Returns the post-write row.
func (s *MemoryStore) Record(_ context.Context, identity models.Identity, action models.Action, now time.Time) (*models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.upsertLocked(identity, action, now)
	out := *record
	return &out, nil
}

// TryRecord applies one action only while the identity is still under cap.
// Returns the post-write row, or nil with no error when at cap. Like the
// SQL form, the first write for an identity is unconditional; callers gate
// zero caps before calling.
func (s *MemoryStore) TryRecord(_ context.Context, identity models.Identity, action models.Action, limits models.LimitSet, now time.Time) (*models.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[identity.Key()]; ok {
		if monthlyCap := limits.MonthlyCap(action); monthlyCap != models.Unlimited {
			used := record.MonthlyGenerationsUsed
			if action == models.ActionDownload {
				used = record.MonthlyDownloadsUsed
			}
			if record.MonthlyStale(now) {
				used = 0
			}
			if used >= monthlyCap {
				return nil, nil
			}
		}
		if action == models.ActionGeneration && limits.HourlyGenerations != models.Unlimited {
			used := record.HourlyGenerationsUsed
			if record.HourlyStale(now) {
				used = 0
			}
			if used >= limits.HourlyGenerations {
				return nil, nil
			}
		}
	}

	record := s.upsertLocked(identity, action, now)
	out := *record
	return &out, nil
}

// Reset zeroes an identity's counters and restarts both windows at now.
// Absent rows stay absent.
func (s *MemoryStore) Reset(_ context.Context, identity models.Identity, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[identity.Key()]
	if !ok {
		return nil
	}
	ts := now
	record.MonthlyGenerationsUsed = 0
	record.MonthlyDownloadsUsed = 0
	record.HourlyGenerationsUsed = 0
	record.LastMonthlyReset = &ts
	record.LastHourlyReset = &ts
	record.UpdatedAt = now
	return nil
}

// List returns up to limit rows ordered by total monthly consumption.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.UsageRecord, 0, len(s.records))
	for _, record := range s.records {
		out := *record
		records = append(records, &out)
	}
	sort.Slice(records, func(i, j int) bool {
		a := records[i].MonthlyGenerationsUsed + records[i].MonthlyDownloadsUsed
		b := records[j].MonthlyGenerationsUsed + records[j].MonthlyDownloadsUsed
		if a != b {
			return a > b
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// upsertLocked creates the row on first write (acted-on counter becomes 1
// through the apply step below, both windows start at now) and applies the
// reset-if-stale-then-count step. Callers must hold the write lock.
func (s *MemoryStore) upsertLocked(identity models.Identity, action models.Action, now time.Time) *models.UsageRecord {
	key := identity.Key()
	record, ok := s.records[key]
	if !ok {
		record = models.NewUsageRecord(identity)
		ts := now
		record.LastMonthlyReset = &ts
		record.LastHourlyReset = &ts
		record.CreatedAt = now
		s.records[key] = record
	}

	switch action {
	case models.ActionDownload:
		if record.MonthlyStale(now) {
			record.MonthlyDownloadsUsed = 1
			record.MonthlyGenerationsUsed = 0
			ts := now
			record.LastMonthlyReset = &ts
		} else {
			record.MonthlyDownloadsUsed++
		}
	default:
		if record.MonthlyStale(now) {
			record.MonthlyGenerationsUsed = 1
			record.MonthlyDownloadsUsed = 0
			ts := now
			record.LastMonthlyReset = &ts
		} else {
			record.MonthlyGenerationsUsed++
		}
		if record.HourlyStale(now) {
			record.HourlyGenerationsUsed = 1
			ts := now
			record.LastHourlyReset = &ts
		} else {
			record.HourlyGenerationsUsed++
		}
	}
	record.UpdatedAt = now
	return record
}
