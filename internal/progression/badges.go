package progression

import (
	"slices"
	"time"

	"deepsafe/internal/model"
)

// Satisfied reports whether p meets cond. A region with no provinces never
// counts as mastered.
func Satisfied(cond model.BadgeCondition, p model.Progress, geo Geography) bool {
	switch cond.Kind {
	case model.ConditionXPMilestone:
		return p.XP >= cond.Threshold
	case model.ConditionStreakMilestone:
		return int64(p.Streak) >= cond.Threshold
	case model.ConditionFirstMission:
		for _, s := range p.ProvinceScores {
			if s.Score > 0 {
				return true
			}
		}
		return false
	case model.ConditionRegionMaster:
		if geo == nil {
			return false
		}
		provinces := geo.ProvincesOf(cond.Region)
		if len(provinces) == 0 {
			return false
		}
		for _, id := range provinces {
			if !p.ProvinceScores[id].IsCompleted {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AwardBadges evaluates the whole catalog against p as given and appends
// every newly satisfied badge, granting its xp reward. Rewards granted here do
// not unlock further badges until the next evaluation.
func AwardBadges(p model.Progress, catalog []model.Badge, geo Geography, now time.Time) (model.Progress, []model.Badge) {
	var unlocked []model.Badge
	for _, b := range catalog {
		if p.EarnedBadges.Has(b.ID) || slices.ContainsFunc(unlocked, func(u model.Badge) bool { return u.ID == b.ID }) {
			continue
		}
		if Satisfied(b.Condition, p, geo) {
			unlocked = append(unlocked, b)
		}
	}
	if len(unlocked) == 0 {
		return p, nil
	}

	earned := slices.Clone(p.EarnedBadges)
	for _, b := range unlocked {
		earned = append(earned, model.EarnedBadge{BadgeID: b.ID, EarnedAt: now})
		p.XP += b.XPReward
	}
	p.EarnedBadges = earned
	return p, unlocked
}
