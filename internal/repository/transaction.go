package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// TransactionRepository handles the credit ledger.
type TransactionRepository struct {
	db db.DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(conn db.DBTX) *TransactionRepository {
	return &TransactionRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create records a ledger row at the current time.
func (r *TransactionRepository) Create(ctx context.Context, profileID string, amount int64, txType string, description *string) (*model.Transaction, error) {
	return r.insert(ctx, profileID, amount, txType, description, nil)
}

// CreateAt records a ledger row dated at. Analytics buckets rows by this
// timestamp, so backfills land on the day they happened.
func (r *TransactionRepository) CreateAt(ctx context.Context, profileID string, amount int64, txType string, description *string, at time.Time) (*model.Transaction, error) {
	return r.insert(ctx, profileID, amount, txType, description, &at)
}

func (r *TransactionRepository) insert(ctx context.Context, profileID string, amount int64, txType string, description *string, at *time.Time) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (profile_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING id, profile_id, amount, type, description, created_at
	`

	var tx model.Transaction
	err := r.db.QueryRow(ctx, query, profileID, amount, txType, description, at).Scan(
		&tx.ID, &tx.ProfileID, &tx.Amount, &tx.Type, &tx.Description, &tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s of %d for %s: %w", txType, amount, profileID, err)
	}
	return &tx, nil
}

// GetByProfileID retrieves a profile's ledger, newest first.
func (r *TransactionRepository) GetByProfileID(ctx context.Context, profileID string, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, profile_id, amount, type, description, created_at
		FROM transactions
		WHERE profile_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.ProfileID,
			&tx.Amount,
			&tx.Type,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// HasTypeSince reports whether a profile has a ledger row of txType created
// at or after since.
func (r *TransactionRepository) HasTypeSince(ctx context.Context, profileID, txType string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE profile_id = $1 AND type = $2 AND created_at >= $3
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, profileID, txType, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transactions: %w", err)
	}
	return exists, nil
}
