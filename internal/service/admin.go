package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/config"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/repository"
)

// CreditOp is an admin balance operation.
type CreditOp string

const (
	CreditAdd CreditOp = "add"
	CreditSub CreditOp = "sub"
	CreditSet CreditOp = "set"
)

// AdminService handles admin user management.
type AdminService struct {
	conn        db.Beginner
	profileRepo *repository.ProfileRepository
	invRepo     *repository.InventoryRepository
	txRepo      *repository.TransactionRepository
	userLock    *lock.KeyedLock
	cfg         config.ProgressionConfig
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(
	conn db.Beginner,
	profileRepo *repository.ProfileRepository,
	invRepo *repository.InventoryRepository,
	txRepo *repository.TransactionRepository,
	userLock *lock.KeyedLock,
	cfg config.ProgressionConfig,
) *AdminService {
	return &AdminService{
		conn:        conn,
		profileRepo: profileRepo,
		invRepo:     invRepo,
		txRepo:      txRepo,
		userLock:    userLock,
		cfg:         cfg,
	}
}

// Users lists profiles matching search.
func (s *AdminService) Users(ctx context.Context, search string, limit, offset int) ([]*model.Profile, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.profileRepo.List(ctx, search, limit, offset)
}

// UserByUsername finds a profile by username.
func (s *AdminService) UserByUsername(ctx context.Context, username string) (*model.Profile, error) {
	return s.profileRepo.GetByUsername(ctx, username)
}

// Transactions returns a user's latest ledger rows.
func (s *AdminService) Transactions(ctx context.Context, profileID string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.txRepo.GetByProfileID(ctx, profileID, limit)
}

// AdjustCredits adds to, subtracts from or sets a user's balance and writes
// the matching ledger row.
func (s *AdminService) AdjustCredits(ctx context.Context, adminID, targetID string, op CreditOp, amount int64) (model.Progress, error) {
	if amount < 0 || (amount == 0 && op != CreditSet) {
		return model.Progress{}, ErrInvalidAmount
	}

	var saved model.Progress
	err := s.userLock.WithLockContext(ctx, targetID, lockTimeout, func() error {
		return db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
			profiles := s.profileRepo.WithTx(tx)
			txs := s.txRepo.WithTx(tx)

			var (
				delta  int64
				txType string
				err    error
			)
			switch op {
			case CreditAdd:
				delta, txType = amount, model.TxTypeAdminAdd
				saved, err = profiles.AdjustCredits(ctx, targetID, amount)
			case CreditSub:
				delta, txType = -amount, model.TxTypeAdminSub
				saved, err = profiles.AdjustCredits(ctx, targetID, -amount)
			case CreditSet:
				current, getErr := profiles.GetByIDForUpdate(ctx, targetID)
				if getErr != nil {
					return getErr
				}
				delta, txType = amount-current.Progress.Credits, model.TxTypeAdminSet
				saved, err = profiles.SetCredits(ctx, targetID, amount)
			default:
				return ErrUnknownOperation
			}
			if err != nil {
				return err
			}

			desc := fmt.Sprintf("Admin %s by %s", op, adminID)
			_, err = txs.Create(ctx, targetID, delta, txType, &desc)
			return err
		})
	})
	if err != nil {
		return model.Progress{}, err
	}

	log.Info().
		Str("admin_id", adminID).
		Str("target_id", targetID).
		Str("operation", "credits_"+string(op)).
		Int64("amount", amount).
		Int64("balance", saved.Credits).
		Msg("Admin operation executed")
	return saved, nil
}

// SetInventory sets the quantity of one item stack. Zero removes it.
func (s *AdminService) SetInventory(ctx context.Context, adminID, targetID, itemID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidAmount
	}
	if _, err := s.profileRepo.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.invRepo.SetQuantity(ctx, targetID, itemID, quantity); err != nil {
		return err
	}
	log.Info().
		Str("admin_id", adminID).
		Str("target_id", targetID).
		Str("item_id", itemID).
		Str("operation", "set_inventory").
		Int("amount", quantity).
		Msg("Admin operation executed")
	return nil
}

// ResetProgress returns a user's progress to a fresh account's, keeping
// credits and max lives. The version bump makes clients refetch.
func (s *AdminService) ResetProgress(ctx context.Context, adminID, targetID string) (model.Progress, error) {
	var saved model.Progress
	err := db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		profiles := s.profileRepo.WithTx(tx)
		profile, err := profiles.GetByIDForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		saved, err = profiles.WriteProgress(ctx, resetProgress(profile.Progress, s.cfg.StarterProvinces))
		return err
	})
	if err != nil {
		return model.Progress{}, err
	}

	log.Info().
		Str("admin_id", adminID).
		Str("target_id", targetID).
		Str("operation", "reset_progress").
		Msg("Admin operation executed")
	return saved, nil
}

func resetProgress(p model.Progress, starter []string) model.Progress {
	p.XP = 0
	p.Streak = 0
	p.HighestStreak = 0
	p.Lives = p.MaxLives
	p.LastRefillAt = nil
	p.UnlockedProvinces = model.ProvinceSet(slices.Clone(starter))
	p.ProvinceScores = model.ProvinceScores{}
	p.EarnedBadges = model.EarnedBadges{}
	p.LastLoginDate = nil
	return p
}
