// Package service provides business logic implementations.
package service

import (
	"time"

	"deepsafe/internal/pkg/result"
)

// Service errors that reach API callers.
var (
	ErrInvalidAmount    = result.New(result.KindValidation, "amount must be positive")
	ErrSelfGift         = result.New(result.KindValidation, "cannot send a gift to yourself")
	ErrSelfFriend       = result.New(result.KindValidation, "cannot befriend yourself")
	ErrNotFriends       = result.New(result.KindForbidden, "gifts can only be sent to friends")
	ErrGiftType         = result.New(result.KindForbidden, "players can only gift credits")
	ErrNoLives          = result.New(result.KindInsufficient, "no lives left")
	ErrAvatarLocked     = result.New(result.KindForbidden, "avatar not unlocked")
	ErrEmptyLoot        = result.New(result.KindValidation, "mystery box has no loot")
	ErrNoQuestions      = result.New(result.KindValidation, "mission has no questions")
	ErrAnswerCount      = result.New(result.KindValidation, "answer count does not match the questions")
	ErrUnknownRegion    = result.New(result.KindValidation, "unknown region")
	ErrUnknownOperation = result.New(result.KindValidation, "unknown credit operation")
)

// lockTimeout bounds how long a request waits behind another balance change
// of the same user before failing with in_flight.
const lockTimeout = 10 * time.Second
