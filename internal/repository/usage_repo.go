package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neilnvaidya/owlby-api/internal/service"
)

// UsageRepository tracks per-user per-day generation counts in postgres.
type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// GetDailyUsage returns the per-route counts for the given UTC date, or
// (nil, nil) when the user has no rows for that date.
func (r *UsageRepository) GetDailyUsage(ctx context.Context, userID, date string) (*service.DailyUsage, error) {
	const query = `
		SELECT route, count
		FROM daily_usage
		WHERE user_id = $1 AND usage_date = $2`

	rows, err := r.db.QueryContext(ctx, query, userID, date)
	if err != nil {
		return nil, fmt.Errorf("query daily usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var route string
		var count int
		if err := rows.Scan(&route, &count); err != nil {
			return nil, fmt.Errorf("scan daily usage row: %w", err)
		}
		counts[route] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily usage rows: %w", err)
	}
	if len(counts) == 0 {
		return nil, nil
	}
	return &service.DailyUsage{Date: date, Counts: counts}, nil
}

// IncrementDailyUsage bumps the counter for (user, date, route) by one in a
// single upsert, so concurrent increments never lose updates.
func (r *UsageRepository) IncrementDailyUsage(ctx context.Context, userID, date, route string) error {
	const query = `
		INSERT INTO daily_usage (user_id, usage_date, route, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, usage_date, route)
		DO UPDATE SET count = daily_usage.count + 1, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, userID, date, route); err != nil {
		return fmt.Errorf("increment daily usage: %w", err)
	}
	return nil
}

// PurgeUsageBefore deletes usage rows older than the given UTC date and
// returns the number of rows removed.
func (r *UsageRepository) PurgeUsageBefore(ctx context.Context, date string) (int64, error) {
	const query = `DELETE FROM daily_usage WHERE usage_date < $1`

	res, err := r.db.ExecContext(ctx, query, date)
	if err != nil {
		return 0, fmt.Errorf("purge daily usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge daily usage rows affected: %w", err)
	}
	return affected, nil
}
