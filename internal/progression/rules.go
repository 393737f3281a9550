// Package progression keeps a user's gamified state: the pure rules that
// change it, the badge evaluator, and the Store that applies rules locally
// and confirms them against the backend.
package progression

import (
	"slices"
	"time"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
)

// Rule errors.
var (
	ErrNegativeAmount  = result.New(result.KindValidation, "amount must be positive")
	ErrInvalidScore    = result.New(result.KindValidation, "score must be between 0 and max score")
	ErrUnknownProvince = result.New(result.KindValidation, "unknown province")
)

// AddXP raises xp by amount.
func AddXP(p model.Progress, amount int64) (model.Progress, error) {
	if amount < 0 {
		return p, ErrNegativeAmount
	}
	p.XP += amount
	return p, nil
}

// IncrementStreak extends the streak by one day.
func IncrementStreak(p model.Progress) model.Progress {
	p.Streak++
	p.HighestStreak = max(p.HighestStreak, p.Streak)
	return p
}

// ResetStreak restarts the streak at one day.
func ResetStreak(p model.Progress) model.Progress {
	p.Streak = 1
	p.HighestStreak = max(p.HighestStreak, p.Streak)
	return p
}

// DecrementLives removes one life, flooring at zero. The regen timer starts
// only when lives leave the full state.
func DecrementLives(p model.Progress, now time.Time) model.Progress {
	if p.Lives <= 0 {
		p.Lives = 0
		return p
	}
	if p.Lives >= p.MaxLives {
		t := now
		p.LastRefillAt = &t
	}
	p.Lives--
	return p
}

// AddHearts raises lives by amount up to the maximum. Reaching the maximum
// stops the regen timer.
func AddHearts(p model.Progress, amount int) (model.Progress, error) {
	if amount <= 0 {
		return p, ErrNegativeAmount
	}
	p.Lives = min(p.MaxLives, p.Lives+amount)
	if p.Lives >= p.MaxLives {
		p.LastRefillAt = nil
	}
	return p, nil
}

// RefillLives restores every life and stops the regen timer.
func RefillLives(p model.Progress) model.Progress {
	p.Lives = p.MaxLives
	p.LastRefillAt = nil
	return p
}

// RegenerateLives grants one life per full interval elapsed since the regen
// timer started. Leftover time carries over to the next life.
func RegenerateLives(p model.Progress, now time.Time, interval time.Duration) model.Progress {
	if p.Lives >= p.MaxLives {
		p.LastRefillAt = nil
		return p
	}
	if p.LastRefillAt == nil {
		t := now
		p.LastRefillAt = &t
		return p
	}
	if interval <= 0 {
		return p
	}
	elapsed := now.Sub(*p.LastRefillAt)
	gained := int(elapsed / interval)
	if gained <= 0 {
		return p
	}
	p.Lives = min(p.MaxLives, p.Lives+gained)
	if p.Lives >= p.MaxLives {
		p.LastRefillAt = nil
		return p
	}
	next := p.LastRefillAt.Add(time.Duration(gained) * interval)
	p.LastRefillAt = &next
	return p
}

// UnlockProvince adds id to the unlocked set. Unlocking twice is a no-op.
func UnlockProvince(p model.Progress, id string) model.Progress {
	if p.UnlockedProvinces.Has(id) {
		return p
	}
	p.UnlockedProvinces = append(slices.Clone(p.UnlockedProvinces), id)
	return p
}

// MergeProvinceScore records a result: the best score wins and completion,
// once reached, is never lost.
func MergeProvinceScore(p model.Progress, id string, score, maxScore int, completed bool) (model.Progress, error) {
	if score < 0 || maxScore < 0 || score > maxScore {
		return p, ErrInvalidScore
	}

	next := model.ProvinceScore{Score: score, MaxScore: maxScore, IsCompleted: completed}
	if existing, ok := p.ProvinceScores[id]; ok {
		if existing.Score >= score {
			next.Score = existing.Score
			next.MaxScore = existing.MaxScore
		}
		next.IsCompleted = existing.IsCompleted || completed
		if next == existing {
			return p, nil
		}
	}

	scores := make(model.ProvinceScores, len(p.ProvinceScores)+1)
	for k, v := range p.ProvinceScores {
		scores[k] = v
	}
	scores[id] = next
	p.ProvinceScores = scores
	return p, nil
}
