package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/lock"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/repository"
)

// GiftInput describes a gift to send.
type GiftInput struct {
	RecipientID string           `json:"target_user_id"`
	Type        model.RewardType `json:"gift_type" validate:"required"`
	Amount      int64            `json:"gift_amount"`
	Message     string           `json:"gift_message" validate:"max=500"`
	ItemID      *string          `json:"gift_item_id,omitempty"`
	IconURL     string           `json:"gift_icon_url"`
}

// ClaimResult is a claimed gift and the recipient's progress afterwards.
type ClaimResult struct {
	Gift     *model.Gift    `json:"gift"`
	Progress model.Progress `json:"progress"`
}

// GiftService handles gifts between users and from admins.
type GiftService struct {
	conn        db.Beginner
	profileRepo *repository.ProfileRepository
	friendRepo  *repository.FriendRepository
	giftRepo    *repository.GiftRepository
	invRepo     *repository.InventoryRepository
	txRepo      *repository.TransactionRepository
	userLock    *lock.KeyedLock
	now         func() time.Time
}

// NewGiftService creates a new GiftService instance.
func NewGiftService(
	conn db.Beginner,
	profileRepo *repository.ProfileRepository,
	friendRepo *repository.FriendRepository,
	giftRepo *repository.GiftRepository,
	invRepo *repository.InventoryRepository,
	txRepo *repository.TransactionRepository,
	userLock *lock.KeyedLock,
) *GiftService {
	return &GiftService{
		conn:        conn,
		profileRepo: profileRepo,
		friendRepo:  friendRepo,
		giftRepo:    giftRepo,
		invRepo:     invRepo,
		txRepo:      txRepo,
		userLock:    userLock,
		now:         time.Now,
	}
}

func validateGift(in GiftInput) error {
	switch in.Type {
	case model.RewardCredits, model.RewardXP, model.RewardHearts:
		if in.Amount <= 0 {
			return ErrInvalidAmount
		}
	case model.RewardItem:
		if in.ItemID == nil || *in.ItemID == "" {
			return result.New(result.KindValidation, "item gifts need an item id")
		}
		if in.Amount < 0 {
			return ErrInvalidAmount
		}
	default:
		return result.New(result.KindValidation, "unknown gift type")
	}
	return nil
}

// Send creates a pending gift. Admins send any reward for free; players may
// only gift credits to accepted friends, paid from their own balance.
func (s *GiftService) Send(ctx context.Context, senderID string, admin bool, in GiftInput) (*model.Gift, error) {
	if err := validateGift(in); err != nil {
		return nil, err
	}
	if senderID == in.RecipientID {
		return nil, ErrSelfGift
	}
	if _, err := s.profileRepo.GetByID(ctx, in.RecipientID); err != nil {
		return nil, err
	}

	gift := model.Gift{
		SenderID:    &senderID,
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Amount:      in.Amount,
		Message:     in.Message,
		ItemID:      in.ItemID,
		IconURL:     in.IconURL,
	}

	if admin {
		saved, err := s.giftRepo.Create(ctx, gift)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("admin_id", senderID).
			Str("target_id", in.RecipientID).
			Str("operation", "gift").
			Str("gift_type", in.Type.String()).
			Int64("amount", in.Amount).
			Msg("Admin operation executed")
		return saved, nil
	}

	if in.Type != model.RewardCredits {
		return nil, ErrGiftType
	}
	friends, err := s.friendRepo.AreFriends(ctx, senderID, in.RecipientID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, ErrNotFriends
	}

	var saved *model.Gift
	err = s.userLock.WithLockContext(ctx, senderID, lockTimeout, func() error {
		return db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
			if _, err := s.profileRepo.WithTx(tx).AdjustCredits(ctx, senderID, -in.Amount); err != nil {
				return err
			}
			desc := fmt.Sprintf("Gift to %s", in.RecipientID)
			if _, err := s.txRepo.WithTx(tx).Create(ctx, senderID, -in.Amount, model.TxTypeGiftSent, &desc); err != nil {
				return err
			}
			var err error
			saved, err = s.giftRepo.WithTx(tx).Create(ctx, gift)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", senderID).
		Str("target_id", in.RecipientID).
		Int64("amount", in.Amount).
		Msg("Gift sent")
	return saved, nil
}

// SendAll sends the same admin gift to every profile and returns how many
// gifts were created.
func (s *GiftService) SendAll(ctx context.Context, adminID string, in GiftInput) (int, error) {
	if err := validateGift(in); err != nil {
		return 0, err
	}
	profiles, err := s.profileRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	err = db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		gifts := s.giftRepo.WithTx(tx)
		for _, p := range profiles {
			_, err := gifts.Create(ctx, model.Gift{
				SenderID:    &adminID,
				RecipientID: p.ID,
				Type:        in.Type,
				Amount:      in.Amount,
				Message:     in.Message,
				ItemID:      in.ItemID,
				IconURL:     in.IconURL,
			})
			if err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("admin_id", adminID).
		Str("operation", "gift_all").
		Int("recipients", sent).
		Int64("amount", in.Amount).
		Msg("Admin operation executed")
	return sent, nil
}

// Pending returns a user's unclaimed gifts.
func (s *GiftService) Pending(ctx context.Context, profileID string) ([]*model.Gift, error) {
	return s.giftRepo.ListPending(ctx, profileID)
}

// Claim marks a gift claimed and applies its reward. A gift is claimed at
// most once.
func (s *GiftService) Claim(ctx context.Context, profileID string, giftID int64) (*ClaimResult, error) {
	res := &ClaimResult{}
	err := s.userLock.WithLockContext(ctx, profileID, lockTimeout, func() error {
		return db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
			profiles := s.profileRepo.WithTx(tx)
			profile, err := profiles.GetByIDForUpdate(ctx, profileID)
			if err != nil {
				return err
			}
			gift, err := s.giftRepo.WithTx(tx).Claim(ctx, giftID, profileID, s.now())
			if err != nil {
				return err
			}
			res.Gift = gift

			reward := model.Reward{Type: gift.Type, Value: gift.Amount, ItemID: gift.ItemID, Description: "Gift"}
			if gift.Message != "" {
				reward.Description = "Gift: " + gift.Message
			}
			r := rewarder{invRepo: s.invRepo.WithTx(tx), txRepo: s.txRepo.WithTx(tx)}
			p, err := r.grant(ctx, profile.Progress, reward, model.TxTypeGiftReceived)
			if err != nil {
				return err
			}
			res.Progress, err = profiles.WriteProgress(ctx, p)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", profileID).Int64("gift_id", giftID).Msg("Gift claimed")
	return res, nil
}
