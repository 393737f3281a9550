// Package model defines the domain types shared by the API server, the
// progression store and the Telegram companion bot.
package model

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// ProvinceScore is the best recorded result for one province.
type ProvinceScore struct {
	Score       int  `json:"score"`
	MaxScore    int  `json:"max_score"`
	IsCompleted bool `json:"is_completed"`
}

// ProvinceScores is the province_scores JSONB column, keyed by province id.
type ProvinceScores map[string]ProvinceScore

// Validate checks the stored shape.
func (s ProvinceScores) Validate() error {
	for id, score := range s {
		if id == "" {
			return fmt.Errorf("province_scores: empty province id")
		}
		if score.Score < 0 || score.MaxScore < 0 {
			return fmt.Errorf("province_scores[%s]: negative score", id)
		}
		if score.Score > score.MaxScore {
			return fmt.Errorf("province_scores[%s]: score %d exceeds max %d", id, score.Score, score.MaxScore)
		}
	}
	return nil
}

// EarnedBadge records when a badge was awarded.
type EarnedBadge struct {
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// EarnedBadges is the earned_badges JSONB column: append-only, unique by id.
type EarnedBadges []EarnedBadge

// Has reports whether badgeID was already earned.
func (b EarnedBadges) Has(badgeID string) bool {
	return slices.ContainsFunc(b, func(e EarnedBadge) bool { return e.BadgeID == badgeID })
}

// IDs returns the earned badge ids in award order.
func (b EarnedBadges) IDs() []string {
	ids := make([]string, len(b))
	for i, e := range b {
		ids[i] = e.BadgeID
	}
	return ids
}

// Validate checks the stored shape.
func (b EarnedBadges) Validate() error {
	seen := make(map[string]struct{}, len(b))
	for _, e := range b {
		if e.BadgeID == "" {
			return fmt.Errorf("earned_badges: empty badge id")
		}
		if _, dup := seen[e.BadgeID]; dup {
			return fmt.Errorf("earned_badges: duplicate badge %s", e.BadgeID)
		}
		seen[e.BadgeID] = struct{}{}
	}
	return nil
}

// ProvinceSet is the unlocked_provinces JSONB column: an ordered set.
type ProvinceSet []string

// Has reports whether id is in the set.
func (s ProvinceSet) Has(id string) bool {
	return slices.Contains(s, id)
}

// Validate checks the stored shape.
func (s ProvinceSet) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, id := range s {
		if id == "" {
			return fmt.Errorf("unlocked_provinces: empty province id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("unlocked_provinces: duplicate province %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Progress is a user's gamified state. Version increases on every write and
// is the optimistic concurrency token for SaveProgress.
type Progress struct {
	UserID            string         `json:"user_id"`
	XP                int64          `json:"xp"`
	Credits           int64          `json:"credits"`
	Streak            int            `json:"streak"`
	HighestStreak     int            `json:"highest_streak"`
	Lives             int            `json:"lives"`
	MaxLives          int            `json:"max_lives"`
	LastRefillAt      *time.Time     `json:"last_refill_at,omitempty"`
	UnlockedProvinces ProvinceSet    `json:"unlocked_provinces"`
	ProvinceScores    ProvinceScores `json:"province_scores"`
	EarnedBadges      EarnedBadges   `json:"earned_badges"`
	LastLoginDate     *time.Time     `json:"last_login_date,omitempty"`
	Version           int64          `json:"version"`
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	c := p
	c.UnlockedProvinces = slices.Clone(p.UnlockedProvinces)
	c.ProvinceScores = maps.Clone(p.ProvinceScores)
	c.EarnedBadges = slices.Clone(p.EarnedBadges)
	if p.LastRefillAt != nil {
		t := *p.LastRefillAt
		c.LastRefillAt = &t
	}
	if p.LastLoginDate != nil {
		t := *p.LastLoginDate
		c.LastLoginDate = &t
	}
	return c
}

// Validate checks the scalar invariants and every JSON column.
func (p Progress) Validate() error {
	if p.XP < 0 {
		return fmt.Errorf("xp must not be negative")
	}
	if p.Credits < 0 {
		return fmt.Errorf("credits must not be negative")
	}
	if p.Streak < 0 {
		return fmt.Errorf("streak must not be negative")
	}
	if p.MaxLives <= 0 {
		return fmt.Errorf("max_lives must be positive")
	}
	if p.Lives < 0 || p.Lives > p.MaxLives {
		return fmt.Errorf("lives %d out of range 0..%d", p.Lives, p.MaxLives)
	}
	if err := p.UnlockedProvinces.Validate(); err != nil {
		return err
	}
	if err := p.ProvinceScores.Validate(); err != nil {
		return err
	}
	return p.EarnedBadges.Validate()
}

// ProgressPatch carries the fields an action changed. Nil fields are left
// untouched. Collections are sent whole.
type ProgressPatch struct {
	XP                *int64         `json:"xp,omitempty"`
	Streak            *int           `json:"streak,omitempty"`
	HighestStreak     *int           `json:"highest_streak,omitempty"`
	Lives             *int           `json:"lives,omitempty"`
	LastRefillAt      *time.Time     `json:"last_refill_at,omitempty"`
	ClearLastRefill   bool           `json:"clear_last_refill,omitempty"`
	UnlockedProvinces ProvinceSet    `json:"unlocked_provinces,omitempty"`
	ProvinceScores    ProvinceScores `json:"province_scores,omitempty"`
	EarnedBadges      EarnedBadges   `json:"earned_badges,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProgressPatch) IsEmpty() bool {
	return p.XP == nil && p.Streak == nil && p.HighestStreak == nil && p.Lives == nil &&
		p.LastRefillAt == nil && !p.ClearLastRefill &&
		p.UnlockedProvinces == nil && p.ProvinceScores == nil && p.EarnedBadges == nil
}

// Diff returns the patch that turns p into next. Credits, max lives and the
// login date are server-owned and never patched.
func (p Progress) Diff(next Progress) ProgressPatch {
	var patch ProgressPatch
	if next.XP != p.XP {
		patch.XP = &next.XP
	}
	if next.Streak != p.Streak {
		patch.Streak = &next.Streak
	}
	if next.HighestStreak != p.HighestStreak {
		patch.HighestStreak = &next.HighestStreak
	}
	if next.Lives != p.Lives {
		patch.Lives = &next.Lives
	}
	switch {
	case next.LastRefillAt == nil && p.LastRefillAt != nil:
		patch.ClearLastRefill = true
	case next.LastRefillAt != nil && (p.LastRefillAt == nil || !next.LastRefillAt.Equal(*p.LastRefillAt)):
		t := *next.LastRefillAt
		patch.LastRefillAt = &t
	}
	if !slices.Equal(next.UnlockedProvinces, p.UnlockedProvinces) {
		patch.UnlockedProvinces = slices.Clone(next.UnlockedProvinces)
		if patch.UnlockedProvinces == nil {
			patch.UnlockedProvinces = ProvinceSet{}
		}
	}
	if !maps.Equal(next.ProvinceScores, p.ProvinceScores) {
		patch.ProvinceScores = maps.Clone(next.ProvinceScores)
		if patch.ProvinceScores == nil {
			patch.ProvinceScores = ProvinceScores{}
		}
	}
	if !slices.EqualFunc(next.EarnedBadges, p.EarnedBadges, func(a, b EarnedBadge) bool {
		return a.BadgeID == b.BadgeID && a.EarnedAt.Equal(b.EarnedAt)
	}) {
		patch.EarnedBadges = slices.Clone(next.EarnedBadges)
		if patch.EarnedBadges == nil {
			patch.EarnedBadges = EarnedBadges{}
		}
	}
	return patch
}

// Apply returns a copy of p with the patch applied. The version is not
// touched; the writer bumps it.
func (p Progress) Apply(patch ProgressPatch) Progress {
	next := p.Clone()
	if patch.XP != nil {
		next.XP = *patch.XP
	}
	if patch.Streak != nil {
		next.Streak = *patch.Streak
	}
	if patch.HighestStreak != nil {
		next.HighestStreak = *patch.HighestStreak
	}
	if patch.Lives != nil {
		next.Lives = *patch.Lives
	}
	if patch.ClearLastRefill {
		next.LastRefillAt = nil
	}
	if patch.LastRefillAt != nil {
		t := *patch.LastRefillAt
		next.LastRefillAt = &t
	}
	if patch.UnlockedProvinces != nil {
		next.UnlockedProvinces = slices.Clone(patch.UnlockedProvinces)
	}
	if patch.ProvinceScores != nil {
		next.ProvinceScores = maps.Clone(patch.ProvinceScores)
	}
	if patch.EarnedBadges != nil {
		next.EarnedBadges = slices.Clone(patch.EarnedBadges)
	}
	return next
}
