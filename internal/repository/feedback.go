package repository

import (
	"context"
	"fmt"
	"time"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// FeedbackRepository handles player feedback.
type FeedbackRepository struct {
	db db.DBTX
}

// NewFeedbackRepository creates a new FeedbackRepository instance.
func NewFeedbackRepository(conn db.DBTX) *FeedbackRepository {
	return &FeedbackRepository{db: conn}
}

// Create stores a feedback entry.
func (r *FeedbackRepository) Create(ctx context.Context, f model.Feedback) (*model.Feedback, error) {
	const query = `
		INSERT INTO feedback (profile_id, category, message, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING id, profile_id, category, message, rating, status, created_at, resolved_at
	`
	var saved model.Feedback
	err := r.db.QueryRow(ctx, query, f.ProfileID, f.Category, f.Message, f.Rating).Scan(
		&saved.ID, &saved.ProfileID, &saved.Category, &saved.Message, &saved.Rating,
		&saved.Status, &saved.CreatedAt, &saved.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}
	return &saved, nil
}

// List returns feedback newest first, optionally filtered by status.
func (r *FeedbackRepository) List(ctx context.Context, status string, limit int) ([]model.Feedback, error) {
	const query = `
		SELECT id, profile_id, category, message, rating, status, created_at, resolved_at
		FROM feedback
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	entries := []model.Feedback{}
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.ProfileID, &f.Category, &f.Message, &f.Rating, &f.Status, &f.CreatedAt, &f.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}
	return entries, nil
}

// Resolve marks a feedback entry resolved.
func (r *FeedbackRepository) Resolve(ctx context.Context, id int64, now time.Time) error {
	const query = `UPDATE feedback SET status = $2, resolved_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, model.FeedbackResolved, now)
	if err != nil {
		return fmt.Errorf("failed to resolve feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}

// Delete removes a feedback entry.
func (r *FeedbackRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedbackNotFound
	}
	return nil
}
