// Package repository provides data access layer implementations.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"deepsafe/internal/pkg/result"
)

// Common errors for repository operations.
var (
	ErrProfileNotFound     = result.New(result.KindNotFound, "user not found")
	ErrVersionConflict     = result.New(result.KindConflict, "progress was changed elsewhere, refresh and retry")
	ErrUsernameTaken       = result.New(result.KindConflict, "username already taken")
	ErrEmailTaken          = result.New(result.KindConflict, "email already registered")
	ErrTelegramLinked      = result.New(result.KindConflict, "telegram account already linked")
	ErrInsufficientCredits = result.New(result.KindInsufficient, "insufficient credits")
	ErrInsufficientItems   = result.New(result.KindInsufficient, "not enough items")
	ErrMissionNotFound     = result.New(result.KindNotFound, "mission not found")
	ErrBadgeNotFound       = result.New(result.KindNotFound, "badge not found")
	ErrItemNotFound        = result.New(result.KindNotFound, "item not found")
	ErrOutOfStock          = result.New(result.KindInsufficient, "item is out of stock")
	ErrAvatarNotFound      = result.New(result.KindNotFound, "avatar not found")
	ErrFeedbackNotFound    = result.New(result.KindNotFound, "feedback not found")
	ErrGiftNotFound        = result.New(result.KindNotFound, "gift not found")
	ErrFriendNotFound      = result.New(result.KindNotFound, "friendship not found")
	ErrFriendExists        = result.New(result.KindConflict, "friend request already exists")
	ErrSessionNotFound     = result.New(result.KindUnauthorized, "session expired")
	ErrLinkCodeNotFound    = result.New(result.KindNotFound, "link code invalid or expired")
)

const uniqueViolation = "23505"

// uniqueConstraint returns the violated constraint name for a unique
// violation, or "" for any other error.
func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}
