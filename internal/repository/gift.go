package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

const giftColumns = `id, sender_id, recipient_id, gift_type, amount, message, item_id, icon_url, claimed_at, created_at`

// GiftRepository handles pending and claimed gifts.
type GiftRepository struct {
	db db.DBTX
}

// NewGiftRepository creates a new GiftRepository instance.
func NewGiftRepository(conn db.DBTX) *GiftRepository {
	return &GiftRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *GiftRepository) WithTx(tx pgx.Tx) *GiftRepository {
	return &GiftRepository{db: tx}
}

func scanGift(row pgx.Row) (*model.Gift, error) {
	var g model.Gift
	var giftType string
	err := row.Scan(
		&g.ID,
		&g.SenderID,
		&g.RecipientID,
		&giftType,
		&g.Amount,
		&g.Message,
		&g.ItemID,
		&g.IconURL,
		&g.ClaimedAt,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.Type, err = model.ParseRewardType(giftType); err != nil {
		return nil, fmt.Errorf("gift %d: %w", g.ID, err)
	}
	return &g, nil
}

// Create stores a pending gift.
func (r *GiftRepository) Create(ctx context.Context, g model.Gift) (*model.Gift, error) {
	query := `
		INSERT INTO gifts (sender_id, recipient_id, gift_type, amount, message, item_id, icon_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + giftColumns

	saved, err := scanGift(r.db.QueryRow(ctx, query,
		g.SenderID, g.RecipientID, g.Type.String(), g.Amount, g.Message, g.ItemID, g.IconURL,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create gift: %w", err)
	}
	return saved, nil
}

// ListPending returns the unclaimed gifts of a recipient, oldest first.
func (r *GiftRepository) ListPending(ctx context.Context, recipientID string) ([]*model.Gift, error) {
	query := `SELECT ` + giftColumns + ` FROM gifts WHERE recipient_id = $1 AND claimed_at IS NULL ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gifts: %w", err)
	}
	defer rows.Close()

	var gifts []*model.Gift
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gift: %w", err)
		}
		gifts = append(gifts, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gifts: %w", err)
	}
	return gifts, nil
}

// Claim marks a pending gift of recipient claimed and returns it.
// Returns ErrGiftNotFound when the gift is missing, claimed or not theirs.
func (r *GiftRepository) Claim(ctx context.Context, id int64, recipientID string, now time.Time) (*model.Gift, error) {
	query := `
		UPDATE gifts SET claimed_at = $3
		WHERE id = $1 AND recipient_id = $2 AND claimed_at IS NULL
		RETURNING ` + giftColumns

	g, err := scanGift(r.db.QueryRow(ctx, query, id, recipientID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGiftNotFound
		}
		return nil, fmt.Errorf("failed to claim gift: %w", err)
	}
	return g, nil
}
