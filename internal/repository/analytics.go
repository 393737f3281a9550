package repository

import (
	"context"
	"fmt"
	"time"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// AnalyticsRepository runs the aggregate queries behind the admin dashboard.
type AnalyticsRepository struct {
	db db.DBTX
}

// NewAnalyticsRepository creates a new AnalyticsRepository instance.
func NewAnalyticsRepository(conn db.DBTX) *AnalyticsRepository {
	return &AnalyticsRepository{db: conn}
}

func (r *AnalyticsRepository) scalar(ctx context.Context, what, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

// TotalUsers counts profiles.
func (r *AnalyticsRepository) TotalUsers(ctx context.Context) (int64, error) {
	return r.scalar(ctx, "users", `SELECT COUNT(*) FROM profiles`)
}

// ActiveOn counts profiles whose last daily login fell on day.
func (r *AnalyticsRepository) ActiveOn(ctx context.Context, day time.Time) (int64, error) {
	return r.scalar(ctx, "active users", `SELECT COUNT(*) FROM profiles WHERE last_login_date = $1::date`, day)
}

// MissionsCompletedSince counts passed attempts since the given instant.
func (r *AnalyticsRepository) MissionsCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.scalar(ctx, "completed missions", `SELECT COUNT(*) FROM mission_attempts WHERE passed AND created_at >= $1`, since)
}

// CreditsInCirculation sums every balance.
func (r *AnalyticsRepository) CreditsInCirculation(ctx context.Context) (int64, error) {
	return r.scalar(ctx, "credits", `SELECT COALESCE(SUM(credits), 0)::bigint FROM profiles`)
}

// SignupsPerDay returns one row per day from since to until, zero-filled.
// Days are bucketed in tz.
func (r *AnalyticsRepository) SignupsPerDay(ctx context.Context, since, until time.Time, tz string) ([]model.DailyCount, error) {
	const query = `
		SELECT d::date, COUNT(p.id)
		FROM generate_series($1::date, $2::date, interval '1 day') AS d
		LEFT JOIN profiles p ON (p.created_at AT TIME ZONE $3)::date = d::date
		GROUP BY d
		ORDER BY d
	`
	rows, err := r.db.Query(ctx, query, since, until, tz)
	if err != nil {
		return nil, fmt.Errorf("failed to get signups: %w", err)
	}
	defer rows.Close()

	series := []model.DailyCount{}
	for rows.Next() {
		var c model.DailyCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan signups: %w", err)
		}
		series = append(series, c)
	}
	return series, rows.Err()
}

// CreditsPerDay returns credits earned and spent per day from since to
// until. Earned sums positive rows of the earning types; spent sums every
// debit.
func (r *AnalyticsRepository) CreditsPerDay(ctx context.Context, since, until time.Time, tz string, earningTypes []string) ([]model.DailyCredits, error) {
	const query = `
		SELECT d::date,
			COALESCE(SUM(t.amount) FILTER (WHERE t.amount > 0 AND t.type = ANY($4)), 0)::bigint,
			COALESCE(-SUM(t.amount) FILTER (WHERE t.amount < 0), 0)::bigint
		FROM generate_series($1::date, $2::date, interval '1 day') AS d
		LEFT JOIN transactions t ON (t.created_at AT TIME ZONE $3)::date = d::date
		GROUP BY d
		ORDER BY d
	`
	rows, err := r.db.Query(ctx, query, since, until, tz, earningTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to get credit flow: %w", err)
	}
	defer rows.Close()

	series := []model.DailyCredits{}
	for rows.Next() {
		var c model.DailyCredits
		if err := rows.Scan(&c.Day, &c.Earned, &c.Spent); err != nil {
			return nil, fmt.Errorf("failed to scan credit flow: %w", err)
		}
		series = append(series, c)
	}
	return series, rows.Err()
}
