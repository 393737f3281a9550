package service

import (
	"context"
	"fmt"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
	"deepsafe/internal/repository"
)

// rewarder applies loot and gift rewards to a locked profile inside a
// transaction. Credits and xp change p in memory; the caller writes it.
type rewarder struct {
	invRepo *repository.InventoryRepository
	txRepo  *repository.TransactionRepository
}

func (r rewarder) grant(ctx context.Context, p model.Progress, reward model.Reward, txType string) (model.Progress, error) {
	switch reward.Type {
	case model.RewardCredits:
		if reward.Value <= 0 {
			return p, nil
		}
		p.Credits += reward.Value
		desc := reward.Description
		if _, err := r.txRepo.Create(ctx, p.UserID, reward.Value, txType, &desc); err != nil {
			return p, err
		}
	case model.RewardXP:
		return progression.AddXP(p, reward.Value)
	case model.RewardHearts:
		if reward.Value <= 0 {
			return p, nil
		}
		return progression.AddHearts(p, int(reward.Value))
	case model.RewardItem:
		if reward.ItemID == nil {
			return p, result.New(result.KindValidation, "item reward without item")
		}
		qty := int(max(reward.Value, 1))
		if err := r.invRepo.AddItem(ctx, p.UserID, *reward.ItemID, qty); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("unknown reward type %s", reward.Type)
	}
	return p, nil
}
