// Package usage persists per-identity usage counters.
//
// All writes are single-statement upserts: staleness is re-derived by the
// database against the row being written, never decided from a value the
// application read earlier. That is what keeps concurrent writes for the
// same identity from tearing a reset-then-increment sequence.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chalk/internal/usage/models"
)

// PostgresStore persists usage counters in PostgreSQL.
// This store is pure I/O; tier resolution and decision building belong in
// the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed usage store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const usageColumns = `user_id, ip_address, monthly_generations_used, monthly_downloads_used, hourly_generations_used, last_monthly_reset, last_hourly_reset, created_at, updated_at`

// Window staleness, evaluated by the database against the row under
// modification. $2 is the request timestamp. Calendar comparison happens
// in UTC regardless of the session time zone.
const (
	monthlyStale = `(usage_counters.last_monthly_reset IS NULL
		OR date_trunc('month', usage_counters.last_monthly_reset AT TIME ZONE 'UTC')
		<> date_trunc('month', $2::timestamptz AT TIME ZONE 'UTC'))`

	hourlyStale = `(usage_counters.last_hourly_reset IS NULL
		OR $2::timestamptz - usage_counters.last_hourly_reset >= interval '1 hour')`
)

// Conflict targets name the partial unique index predicates: authenticated
// rows are unique per user_id, anonymous rows per ip_address.
const (
	conflictUser = `ON CONFLICT (user_id) WHERE user_id IS NOT NULL`
	conflictIP   = `ON CONFLICT (ip_address) WHERE user_id IS NULL`
)

// A generation write touches both windows. A monthly rollover rewrites
// both monthly counters and the monthly reset timestamp; a non-stale write
// leaves the timestamp alone.
var generationSet = fmt.Sprintf(`
	monthly_generations_used = CASE WHEN %[1]s THEN 1 ELSE usage_counters.monthly_generations_used + 1 END,
	monthly_downloads_used   = CASE WHEN %[1]s THEN 0 ELSE usage_counters.monthly_downloads_used END,
	last_monthly_reset       = CASE WHEN %[1]s THEN $2 ELSE usage_counters.last_monthly_reset END,
	hourly_generations_used  = CASE WHEN %[2]s THEN 1 ELSE usage_counters.hourly_generations_used + 1 END,
	last_hourly_reset        = CASE WHEN %[2]s THEN $2 ELSE usage_counters.last_hourly_reset END,
	updated_at               = $2`, monthlyStale, hourlyStale)

// A download write never touches the hourly columns.
var downloadSet = fmt.Sprintf(`
	monthly_downloads_used   = CASE WHEN %[1]s THEN 1 ELSE usage_counters.monthly_downloads_used + 1 END,
	monthly_generations_used = CASE WHEN %[1]s THEN 0 ELSE usage_counters.monthly_generations_used END,
	last_monthly_reset       = CASE WHEN %[1]s THEN $2 ELSE usage_counters.last_monthly_reset END,
	updated_at               = $2`, monthlyStale)

// Conditional-update guards for TryRecord. Caps compare against effective
// counts: a stale window counts as zero. $3 is the monthly cap, $4 the
// hourly cap; -1 disables a cap.
var (
	generationGuard = fmt.Sprintf(`
	WHERE ($3::int = -1 OR (CASE WHEN %[1]s THEN 0 ELSE usage_counters.monthly_generations_used END) < $3)
	  AND ($4::int = -1 OR (CASE WHEN %[2]s THEN 0 ELSE usage_counters.hourly_generations_used END) < $4)`, monthlyStale, hourlyStale)

	downloadGuard = fmt.Sprintf(`
	WHERE ($3::int = -1 OR (CASE WHEN %[1]s THEN 0 ELSE usage_counters.monthly_downloads_used END) < $3)`, monthlyStale)
)

// upsertQuery assembles the write statement for one identity kind and
// action. First write inserts the acted-on counter at 1, the sibling at 0,
// and both window timestamps at now; later writes go through the SET
// clause above. The conditional form adds the under-cap guard and relies
// on RETURNING producing no row when the guard declines the update.
func upsertQuery(tracked models.TrackingMethod, action models.Action, conditional bool) string {
	values := `($1, '` + models.PlaceholderIP + `', 1, 0, 1, $2, $2, $2, $2)`
	conflict := conflictUser
	if tracked == models.TrackedByIP {
		values = `(NULL, $1, 1, 0, 1, $2, $2, $2, $2)`
		conflict = conflictIP
	}
	set, guard := generationSet, generationGuard
	if action == models.ActionDownload {
		set, guard = downloadSet, downloadGuard
		if tracked == models.TrackedByIP {
			values = `(NULL, $1, 0, 1, 0, $2, $2, $2, $2)`
		} else {
			values = `($1, '` + models.PlaceholderIP + `', 0, 1, 0, $2, $2, $2, $2)`
		}
	}
	if !conditional {
		guard = ""
	}
	return fmt.Sprintf(`
		INSERT INTO usage_counters (%s)
		VALUES %s
		%s DO UPDATE SET %s%s
		RETURNING %s`,
		usageColumns, values, conflict, set, guard, usageColumns)
}

func keyArg(identity models.Identity) any {
	if identity.IsAuthenticated() {
		return *identity.UserID
	}
	return identity.IP
}

// Get returns the raw stored row for an identity, nil when none exists.
// Raw means raw: stale counters come back exactly as persisted.
func (s *PostgresStore) Get(ctx context.Context, identity models.Identity) (*models.UsageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM usage_counters WHERE user_id = $1`, usageColumns)
	if !identity.IsAuthenticated() {
		query = fmt.Sprintf(`SELECT %s FROM usage_counters WHERE ip_address = $1 AND user_id IS NULL`, usageColumns)
	}
	record, err := scanUsageRecord(s.db.QueryRowContext(ctx, query, keyArg(identity)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return record, nil
}

// Record unconditionally applies one action: reset-if-stale then count it.
// Returns the post-write row.
func (s *PostgresStore) Record(ctx context.Context, identity models.Identity, action models.Action, now time.Time) (*models.UsageRecord, error) {
	query := upsertQuery(identity.Tracking(), action, false)
	record, err := scanUsageRecord(s.db.QueryRowContext(ctx, query, keyArg(identity), now))
	if err != nil {
		return nil, fmt.Errorf("record %s usage: %w", action, err)
	}
	return record, nil
}

// TryRecord applies one action only while the identity is still under cap,
// evaluated entirely inside the statement. Returns the post-write row, or
// nil with no error when the guard declined the write. The insert path for
// a brand-new identity is unconditional; callers gate zero caps before
// calling.
func (s *PostgresStore) TryRecord(ctx context.Context, identity models.Identity, action models.Action, limits models.LimitSet, now time.Time) (*models.UsageRecord, error) {
	query := upsertQuery(identity.Tracking(), action, true)
	args := []any{keyArg(identity), now, limits.MonthlyCap(action)}
	if action == models.ActionGeneration {
		args = append(args, limits.HourlyGenerations)
	}
	record, err := scanUsageRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("try record %s usage: %w", action, err)
	}
	return record, nil
}

// Reset zeroes an identity's counters and restarts both windows at now.
// Absent rows are left absent; no row already means full quota.
func (s *PostgresStore) Reset(ctx context.Context, identity models.Identity, now time.Time) error {
	query := `
		UPDATE usage_counters SET
			monthly_generations_used = 0,
			monthly_downloads_used = 0,
			hourly_generations_used = 0,
			last_monthly_reset = $2,
			last_hourly_reset = $2,
			updated_at = $2
		WHERE user_id = $1`
	if !identity.IsAuthenticated() {
		query = `
		UPDATE usage_counters SET
			monthly_generations_used = 0,
			monthly_downloads_used = 0,
			hourly_generations_used = 0,
			last_monthly_reset = $2,
			last_hourly_reset = $2,
			updated_at = $2
		WHERE ip_address = $1 AND user_id IS NULL`
	}
	if _, err := s.db.ExecContext(ctx, query, keyArg(identity), now); err != nil {
		return fmt.Errorf("reset usage record: %w", err)
	}
	return nil
}

// List returns up to limit rows ordered by total monthly consumption.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*models.UsageRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM usage_counters
		ORDER BY monthly_generations_used + monthly_downloads_used DESC, updated_at DESC
		LIMIT $1`, usageColumns)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		record, err := scanUsageRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage records: %w", err)
	}
	return records, nil
}

type usageRow interface {
	Scan(dest ...any) error
}

func scanUsageRecord(row usageRow) (*models.UsageRecord, error) {
	var record models.UsageRecord
	var userID sql.NullInt64
	var lastMonthly, lastHourly sql.NullTime
	if err := row.Scan(
		&userID,
		&record.IPAddress,
		&record.MonthlyGenerationsUsed,
		&record.MonthlyDownloadsUsed,
		&record.HourlyGenerationsUsed,
		&lastMonthly,
		&lastHourly,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		record.UserID = &userID.Int64
	}
	if lastMonthly.Valid {
		record.LastMonthlyReset = &lastMonthly.Time
	}
	if lastHourly.Valid {
		record.LastHourlyReset = &lastHourly.Time
	}
	return &record, nil
}
