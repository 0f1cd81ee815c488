package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neilnvaidya/owlby-api/internal/service"
)

// SubscriptionRepository reads subscription state and user flags from postgres.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetActiveSubscription returns the most recent subscription row for the user,
// or (nil, nil) when the user has never subscribed.
func (r *SubscriptionRepository) GetActiveSubscription(ctx context.Context, userID string) (*service.Subscription, error) {
	const query = `
		SELECT user_id, is_active, expires_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY expires_at DESC
		LIMIT 1`

	var sub service.Subscription
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&sub.UserID, &sub.IsActive, &sub.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return &sub, nil
}

// GetEarlyAdopterFlag reports whether the user carries the early adopter grant.
// Unknown users are not early adopters.
func (r *SubscriptionRepository) GetEarlyAdopterFlag(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT early_adopter FROM users WHERE user_id = $1`

	var early bool
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&early)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query early adopter flag: %w", err)
	}
	return early, nil
}
