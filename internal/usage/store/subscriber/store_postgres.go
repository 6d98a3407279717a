// Package subscriber reads and updates the subscription fields on the users
// table. Account lifecycle belongs to other services; this store only sees
// the two columns tier resolution needs.
package subscriber

import (
	"context"
	"database/sql"
	"fmt"

	"chalk/internal/usage/models"
)

// PostgresStore reads subscriptions from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed subscription store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetSubscription returns the subscription for a user, or nil when no such
// user exists.
func (s *PostgresStore) GetSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	query := `
		SELECT id, subscription_tier, subscription_status
		FROM users
		WHERE id = $1
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// UpdateTier sets the subscription tier and status for a user and returns
// the updated subscription, or nil when no such user exists.
func (s *PostgresStore) UpdateTier(ctx context.Context, userID int64, tier models.Tier, status models.SubscriptionStatus) (*models.Subscription, error) {
	query := `
		UPDATE users
		SET subscription_tier = $2, subscription_status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, subscription_tier, subscription_status
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, userID, string(tier), string(status)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update tier: %w", err)
	}
	return sub, nil
}

type subscriptionRow interface {
	Scan(dest ...any) error
}

func scanSubscription(row subscriptionRow) (*models.Subscription, error) {
	var sub models.Subscription
	var tier, status string
	if err := row.Scan(&sub.UserID, &tier, &status); err != nil {
		return nil, err
	}
	sub.Tier = models.Tier(tier)
	sub.Status = models.SubscriptionStatus(status)
	return &sub, nil
}
