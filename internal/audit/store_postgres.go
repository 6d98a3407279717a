package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events in the usage_audit_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO usage_audit_events (
			id, event_type, occurred_at, user_id, ip_address,
			action, tier, allowed, reason, device, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.OccurredAt,
		event.UserID,
		event.IPAddress,
		event.Action,
		event.Tier,
		event.Allowed,
		event.Reason,
		event.Device,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent events.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, event_type, occurred_at, user_id, ip_address,
		       action, tier, allowed, reason, device, request_id
		FROM usage_audit_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event     Event
			eventType string
			userID    sql.NullInt64
			ipAddress sql.NullString
		)
		err := rows.Scan(
			&event.ID,
			&eventType,
			&event.OccurredAt,
			&userID,
			&ipAddress,
			&event.Action,
			&event.Tier,
			&event.Allowed,
			&event.Reason,
			&event.Device,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Type = EventType(eventType)
		if userID.Valid {
			event.UserID = &userID.Int64
		}
		event.IPAddress = ipAddress.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
