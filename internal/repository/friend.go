package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
)

// FriendRepository handles friendships. A row is stored once per pair, keyed
// by who sent the request.
type FriendRepository struct {
	db db.DBTX
}

// NewFriendRepository creates a new FriendRepository instance.
func NewFriendRepository(conn db.DBTX) *FriendRepository {
	return &FriendRepository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *FriendRepository) WithTx(tx pgx.Tx) *FriendRepository {
	return &FriendRepository{db: tx}
}

// Request creates a pending request from requester to addressee.
// Returns ErrFriendExists when the pair already has a row in either direction.
func (r *FriendRepository) Request(ctx context.Context, requesterID, addresseeID string) error {
	const query = `
		INSERT INTO friends (requester_id, addressee_id, status)
		SELECT $1::uuid, $2::uuid, $3::text
		WHERE NOT EXISTS (
			SELECT 1 FROM friends
			WHERE (requester_id = $1 AND addressee_id = $2) OR (requester_id = $2 AND addressee_id = $1)
		)
	`
	tag, err := r.db.Exec(ctx, query, requesterID, addresseeID, model.FriendPending)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return ErrFriendExists
		}
		return fmt.Errorf("failed to create friend request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFriendExists
	}
	return nil
}

// Accept accepts a pending request sent by requester to addressee.
func (r *FriendRepository) Accept(ctx context.Context, requesterID, addresseeID string) error {
	const query = `
		UPDATE friends SET status = $3
		WHERE requester_id = $1 AND addressee_id = $2 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, requesterID, addresseeID, model.FriendAccepted, model.FriendPending)
	if err != nil {
		return fmt.Errorf("failed to accept friend request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFriendNotFound
	}
	return nil
}

// Remove deletes the friendship or request between two profiles.
func (r *FriendRepository) Remove(ctx context.Context, a, b string) error {
	const query = `
		DELETE FROM friends
		WHERE (requester_id = $1 AND addressee_id = $2) OR (requester_id = $2 AND addressee_id = $1)
	`
	tag, err := r.db.Exec(ctx, query, a, b)
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFriendNotFound
	}
	return nil
}

// AreFriends reports whether two profiles have an accepted friendship.
func (r *FriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM friends
			WHERE status = $3
			  AND ((requester_id = $1 AND addressee_id = $2) OR (requester_id = $2 AND addressee_id = $1))
		)
	`
	var ok bool
	if err := r.db.QueryRow(ctx, query, a, b, model.FriendAccepted).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return ok, nil
}

// List returns every friendship and pending request involving a profile.
func (r *FriendRepository) List(ctx context.Context, profileID string) ([]model.Friend, error) {
	const query = `
		SELECT p.id, p.username, p.xp, f.status, f.addressee_id = $1
		FROM friends f
		JOIN profiles p ON p.id = CASE WHEN f.requester_id = $1 THEN f.addressee_id ELSE f.requester_id END
		WHERE f.requester_id = $1 OR f.addressee_id = $1
		ORDER BY f.status, p.xp DESC, p.username
	`
	rows, err := r.db.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := []model.Friend{}
	for rows.Next() {
		var f model.Friend
		if err := rows.Scan(&f.ProfileID, &f.Username, &f.XP, &f.Status, &f.Incoming); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friends: %w", err)
	}
	return friends, nil
}

// AcceptedIDs returns the ids of a profile's accepted friends.
func (r *FriendRepository) AcceptedIDs(ctx context.Context, profileID string) ([]string, error) {
	const query = `
		SELECT CASE WHEN requester_id = $1 THEN addressee_id ELSE requester_id END
		FROM friends
		WHERE status = $2 AND (requester_id = $1 OR addressee_id = $1)
	`
	rows, err := r.db.Query(ctx, query, profileID, model.FriendAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
