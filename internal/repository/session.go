package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/pkg/db"
)

// Session is a refresh-token session. Only the token hash is stored.
type Session struct {
	ID        string
	ProfileID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SessionRepository handles refresh sessions and Telegram link codes.
type SessionRepository struct {
	db db.DBTX
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(conn db.DBTX) *SessionRepository {
	return &SessionRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	return &SessionRepository{db: tx}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, profileID, tokenHash string, expiresAt time.Time) (*Session, error) {
	const query = `
		INSERT INTO sessions (profile_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, profile_id, token_hash, expires_at, created_at
	`
	var s Session
	err := r.db.QueryRow(ctx, query, profileID, tokenHash, expiresAt).Scan(
		&s.ID, &s.ProfileID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

// Consume deletes the unexpired session with tokenHash and returns it, so a
// refresh token can be used once.
func (r *SessionRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*Session, error) {
	const query = `
		DELETE FROM sessions
		WHERE token_hash = $1 AND expires_at > $2
		RETURNING id, profile_id, token_hash, expires_at, created_at
	`
	var s Session
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(
		&s.ID, &s.ProfileID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to consume session: %w", err)
	}
	return &s, nil
}

// Delete removes the session with tokenHash, if any.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes expired sessions and link codes.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	codes, err := r.db.Exec(ctx, `DELETE FROM telegram_link_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired link codes: %w", err)
	}
	return tag.RowsAffected() + codes.RowsAffected(), nil
}

// CreateLinkCode stores a Telegram link code, replacing older codes of the
// same profile.
func (r *SessionRepository) CreateLinkCode(ctx context.Context, profileID, code string, expiresAt time.Time) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM telegram_link_codes WHERE profile_id = $1`, profileID); err != nil {
		return fmt.Errorf("failed to replace link code: %w", err)
	}
	const query = `INSERT INTO telegram_link_codes (code, profile_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, code, profileID, expiresAt); err != nil {
		return fmt.Errorf("failed to create link code: %w", err)
	}
	return nil
}

// ConsumeLinkCode deletes an unexpired link code and returns its profile id.
func (r *SessionRepository) ConsumeLinkCode(ctx context.Context, code string, now time.Time) (string, error) {
	const query = `
		DELETE FROM telegram_link_codes
		WHERE code = $1 AND expires_at > $2
		RETURNING profile_id
	`
	var profileID string
	if err := r.db.QueryRow(ctx, query, code, now).Scan(&profileID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLinkCodeNotFound
		}
		return "", fmt.Errorf("failed to consume link code: %w", err)
	}
	return profileID, nil
}
