package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/config"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
	"deepsafe/internal/repository"
)

// regenBatch caps how many profiles one regeneration pass touches.
const regenBatch = 500

// LoginResult describes a daily login.
type LoginResult struct {
	Progress   model.Progress `json:"progress"`
	Rewarded   bool           `json:"rewarded"`
	Reward     int64          `json:"reward"`
	FreezeUsed bool           `json:"freeze_used"`
	NewBadges  []string       `json:"new_badges"`
}

// ProgressionService applies progression changes on the server.
type ProgressionService struct {
	conn        db.Beginner
	profileRepo *repository.ProfileRepository
	badgeRepo   *repository.BadgeRepository
	invRepo     *repository.InventoryRepository
	txRepo      *repository.TransactionRepository
	geo         progression.Geography
	cfg         config.ProgressionConfig
	loc         *time.Location
	now         func() time.Time
}

// NewProgressionService creates a new ProgressionService instance.
func NewProgressionService(
	conn db.Beginner,
	profileRepo *repository.ProfileRepository,
	badgeRepo *repository.BadgeRepository,
	invRepo *repository.InventoryRepository,
	txRepo *repository.TransactionRepository,
	geo progression.Geography,
	cfg config.ProgressionConfig,
	loc *time.Location,
) *ProgressionService {
	if loc == nil {
		loc = time.UTC
	}
	return &ProgressionService{
		conn:        conn,
		profileRepo: profileRepo,
		badgeRepo:   badgeRepo,
		invRepo:     invRepo,
		txRepo:      txRepo,
		geo:         geo,
		cfg:         cfg,
		loc:         loc,
		now:         time.Now,
	}
}

// Get returns a user's progress.
func (s *ProgressionService) Get(ctx context.Context, profileID string) (model.Progress, error) {
	p, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return model.Progress{}, err
	}
	return p.Progress, nil
}

// BadgeCatalog returns every badge.
func (s *ProgressionService) BadgeCatalog(ctx context.Context) ([]model.Badge, error) {
	return s.badgeRepo.List(ctx)
}

// Patch applies a client patch written against version. A stale version
// fails with a conflict; a patch that breaks an invariant fails validation.
func (s *ProgressionService) Patch(ctx context.Context, profileID string, patch model.ProgressPatch, version int64) (model.Progress, error) {
	catalog, err := s.badgeRepo.List(ctx)
	if err != nil {
		return model.Progress{}, err
	}

	var saved model.Progress
	err = db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		profiles := s.profileRepo.WithTx(tx)
		current, err := profiles.GetByIDForUpdate(ctx, profileID)
		if err != nil {
			return err
		}
		if current.Progress.Version != version {
			return repository.ErrVersionConflict
		}
		next := current.Progress.Apply(patch)
		if err := validateProgress(current.Progress, next, catalog, s.geo, s.cfg.StarterProvinces); err != nil {
			return err
		}
		saved, err = profiles.WriteProgressIfVersion(ctx, next, version)
		return err
	})
	return saved, err
}

// validateProgress checks a patched snapshot against the server rules.
// Fields the client may not patch are already carried over by Apply.
func validateProgress(current, next model.Progress, catalog []model.Badge, geo progression.Geography, starter []string) error {
	if next.XP < 0 {
		return result.New(result.KindValidation, "xp must not be negative")
	}
	if next.Streak < 0 || next.HighestStreak < next.Streak {
		return result.New(result.KindValidation, "streak out of range")
	}
	if next.Lives < 0 || next.Lives > next.MaxLives {
		return result.Errorf(result.KindValidation, "lives must be between 0 and %d", next.MaxLives)
	}

	if err := next.UnlockedProvinces.Validate(); err != nil {
		return result.Wrap(result.KindValidation, "invalid unlocked provinces", err)
	}
	for _, id := range next.UnlockedProvinces {
		if geo != nil && !geo.HasProvince(id) {
			return result.Errorf(result.KindValidation, "unknown province %q", id)
		}
	}
	for _, id := range starter {
		if !next.UnlockedProvinces.Has(id) {
			return result.Errorf(result.KindValidation, "starter province %q cannot be locked", id)
		}
	}

	if err := next.ProvinceScores.Validate(); err != nil {
		return result.Wrap(result.KindValidation, "invalid province scores", err)
	}
	for id := range next.ProvinceScores {
		if geo != nil && !geo.HasProvince(id) {
			return result.Errorf(result.KindValidation, "unknown province %q", id)
		}
	}

	if err := next.EarnedBadges.Validate(); err != nil {
		return result.Wrap(result.KindValidation, "invalid earned badges", err)
	}
	for _, b := range next.EarnedBadges {
		if !slices.ContainsFunc(catalog, func(c model.Badge) bool { return c.ID == b.BadgeID }) {
			return result.Errorf(result.KindValidation, "unknown badge %q", b.BadgeID)
		}
	}
	for _, b := range current.EarnedBadges {
		if !next.EarnedBadges.Has(b.BadgeID) {
			return result.Errorf(result.KindValidation, "earned badge %q cannot be removed", b.BadgeID)
		}
	}
	return nil
}

// DecrementHearts removes one life atomically.
func (s *ProgressionService) DecrementHearts(ctx context.Context, profileID string) (model.Progress, error) {
	return s.profileRepo.DecrementHearts(ctx, profileID, s.now())
}

// loginStep is how a login relates to the previous one.
type loginStep int

const (
	loginFirst loginStep = iota
	loginSameDay
	loginNextDay
	loginGap
)

// localDate returns the calendar date of t in loc, as midnight UTC so it
// compares equal to a scanned DATE column.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func classifyLogin(last *time.Time, today time.Time) loginStep {
	if last == nil {
		return loginFirst
	}
	prev := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	switch days := int(today.Sub(prev).Hours() / 24); {
	case days <= 0:
		return loginSameDay
	case days == 1:
		return loginNextDay
	default:
		return loginGap
	}
}

// DailyLogin records today's login: the streak grows on consecutive days,
// a missed day consumes a streak freeze when one is owned and resets the
// streak otherwise. The first login of a day pays the daily reward.
func (s *ProgressionService) DailyLogin(ctx context.Context, profileID string) (*LoginResult, error) {
	catalog, err := s.badgeRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := localDate(now, s.loc)

	res := &LoginResult{}
	err = db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		profiles := s.profileRepo.WithTx(tx)
		profile, err := profiles.GetByIDForUpdate(ctx, profileID)
		if err != nil {
			return err
		}
		p := profile.Progress

		switch classifyLogin(p.LastLoginDate, today) {
		case loginSameDay:
			res.Progress = p
			return nil
		case loginNextDay:
			p = progression.IncrementStreak(p)
		case loginGap:
			used, err := s.invRepo.WithTx(tx).ConsumeEffect(ctx, profileID, model.EffectStreakFreeze)
			if err != nil {
				return err
			}
			if used {
				p = progression.IncrementStreak(p)
				res.FreezeUsed = true
			} else {
				p = progression.ResetStreak(p)
			}
		case loginFirst:
			p = progression.ResetStreak(p)
		}
		p.LastLoginDate = &today

		if s.cfg.DailyReward > 0 {
			p.Credits += s.cfg.DailyReward
			desc := "Daily login reward"
			if _, err := s.txRepo.WithTx(tx).Create(ctx, profileID, s.cfg.DailyReward, model.TxTypeDaily, &desc); err != nil {
				return err
			}
			res.Reward = s.cfg.DailyReward
		}
		res.Rewarded = true

		var unlocked []model.Badge
		p, unlocked = progression.AwardBadges(p, catalog, s.geo, now)
		res.NewBadges = badgeIDs(unlocked)

		res.Progress, err = profiles.WriteProgress(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Rewarded {
		log.Info().
			Str("user_id", profileID).
			Int("streak", res.Progress.Streak).
			Bool("freeze_used", res.FreezeUsed).
			Int64("amount", res.Reward).
			Msg("Daily login recorded")
	}
	return res, nil
}

// RegenerateAll applies life regeneration to every profile below max lives.
// Profiles changed concurrently are skipped until the next pass.
func (s *ProgressionService) RegenerateAll(ctx context.Context) (int, error) {
	pending, err := s.profileRepo.ListRegenerating(ctx, regenBatch)
	if err != nil {
		return 0, err
	}

	now := s.now()
	updated := 0
	for _, p := range pending {
		next := progression.RegenerateLives(p, now, s.cfg.LifeRegenInterval)
		if p.Diff(next).IsEmpty() {
			continue
		}
		if _, err := s.profileRepo.WriteProgressIfVersion(ctx, next, p.Version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				log.Debug().Str("user_id", p.UserID).Msg("Skipped regeneration of concurrently changed profile")
				continue
			}
			return updated, fmt.Errorf("failed to regenerate lives: %w", err)
		}
		updated++
	}
	return updated, nil
}

func badgeIDs(badges []model.Badge) []string {
	ids := make([]string, len(badges))
	for i, b := range badges {
		ids[i] = b.ID
	}
	return ids
}
