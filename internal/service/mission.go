package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/geo"
	"deepsafe/internal/model"
	"deepsafe/internal/pkg/db"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/progression"
	"deepsafe/internal/repository"
)

// MissionService serves missions and grades quiz submissions.
type MissionService struct {
	conn        db.Beginner
	missionRepo *repository.MissionRepository
	profileRepo *repository.ProfileRepository
	badgeRepo   *repository.BadgeRepository
	txRepo      *repository.TransactionRepository
	geo         *geo.Catalog
	now         func() time.Time
}

// NewMissionService creates a new MissionService instance.
func NewMissionService(
	conn db.Beginner,
	missionRepo *repository.MissionRepository,
	profileRepo *repository.ProfileRepository,
	badgeRepo *repository.BadgeRepository,
	txRepo *repository.TransactionRepository,
	catalog *geo.Catalog,
) *MissionService {
	return &MissionService{
		conn:        conn,
		missionRepo: missionRepo,
		profileRepo: profileRepo,
		badgeRepo:   badgeRepo,
		txRepo:      txRepo,
		geo:         catalog,
		now:         time.Now,
	}
}

// List returns missions matching the filter.
func (s *MissionService) List(ctx context.Context, f repository.MissionFilter) ([]*model.Mission, error) {
	return s.missionRepo.List(ctx, f)
}

// Get returns a mission for play, with answers and explanations hidden.
func (s *MissionService) Get(ctx context.Context, id string) (*model.Mission, error) {
	m, err := s.missionRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, q := range m.Questions {
		m.Questions[i] = q.Public()
	}
	return m, nil
}

// GetFull returns a mission with its answer key.
func (s *MissionService) GetFull(ctx context.Context, id string) (*model.Mission, error) {
	return s.missionRepo.Get(ctx, id)
}

// grade counts the correct answers.
func grade(questions []model.MissionQuestion, answers []int) int {
	score := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectAnswerIndex {
			score++
		}
	}
	return score
}

// passed reports whether score reaches 60% of maxScore.
func passed(score, maxScore int) bool {
	return maxScore > 0 && score*10 >= maxScore*6
}

// Submit grades answers, one per question in order. A failed attempt costs a
// life. The first pass of a mission pays its xp and credit reward and unlocks
// its province; every pass merges the province score.
func (s *MissionService) Submit(ctx context.Context, profileID, missionID string, answers []int) (*model.MissionResult, error) {
	m, err := s.missionRepo.Get(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if len(m.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if len(answers) != len(m.Questions) {
		return nil, ErrAnswerCount
	}
	catalog, err := s.badgeRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &model.MissionResult{
		Score:     grade(m.Questions, answers),
		MaxScore:  len(m.Questions),
		Questions: m.Questions,
	}
	res.Passed = passed(res.Score, res.MaxScore)

	err = db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		profiles := s.profileRepo.WithTx(tx)
		missions := s.missionRepo.WithTx(tx)

		profile, err := profiles.GetByIDForUpdate(ctx, profileID)
		if err != nil {
			return err
		}
		p := profile.Progress
		if p.Lives <= 0 {
			return ErrNoLives
		}

		alreadyPassed, err := missions.HasPassed(ctx, profileID, missionID)
		if err != nil {
			return err
		}
		res.FirstCompleted = res.Passed && !alreadyPassed

		if !res.Passed {
			p = progression.DecrementLives(p, now)
		}
		if m.ProvinceID != nil {
			p, err = progression.MergeProvinceScore(p, *m.ProvinceID, res.Score, res.MaxScore, res.Passed)
			if err != nil {
				return err
			}
			if res.Passed {
				p = progression.UnlockProvince(p, *m.ProvinceID)
			}
		}

		if res.FirstCompleted {
			p.XP += m.XPReward
			res.XPAwarded = m.XPReward
			if m.CreditReward > 0 {
				p.Credits += m.CreditReward
				res.CreditsAwarded = m.CreditReward
				desc := "Mission: " + m.Title
				if _, err := s.txRepo.WithTx(tx).Create(ctx, profileID, m.CreditReward, model.TxTypeMission, &desc); err != nil {
					return err
				}
			}
		}

		var unlocked []model.Badge
		p, unlocked = progression.AwardBadges(p, catalog, s.geo, now)
		res.NewBadges = badgeIDs(unlocked)
		for _, b := range unlocked {
			res.XPAwarded += b.XPReward
		}

		if err := missions.RecordAttempt(ctx, profileID, missionID, res.Score, res.MaxScore, res.Passed); err != nil {
			return err
		}
		res.Progress, err = profiles.WriteProgress(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", profileID).
		Str("mission_id", missionID).
		Int("score", res.Score).
		Int("max_score", res.MaxScore).
		Bool("passed", res.Passed).
		Msg("Mission submitted")
	return res, nil
}

// Upsert creates or updates a mission and replaces its questions in one
// transaction.
func (s *MissionService) Upsert(ctx context.Context, m model.Mission) (*model.Mission, error) {
	if err := s.validate(m); err != nil {
		return nil, err
	}

	var saved *model.Mission
	err := db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		missions := s.missionRepo.WithTx(tx)
		var err error
		saved, err = missions.Upsert(ctx, m)
		if err != nil {
			return err
		}
		saved.Questions, err = missions.ReplaceQuestions(ctx, saved.ID, m.Questions)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *MissionService) validate(m model.Mission) error {
	if m.ProvinceID == nil && m.Region == nil {
		return result.New(result.KindValidation, "mission needs a province or a region")
	}
	if m.ProvinceID != nil && !s.geo.HasProvince(*m.ProvinceID) {
		return progression.ErrUnknownProvince
	}
	if m.Region != nil && !s.geo.HasRegion(*m.Region) {
		return ErrUnknownRegion
	}
	if m.ProvinceID != nil && m.Region != nil {
		if region, _ := s.geo.RegionOf(*m.ProvinceID); region != *m.Region {
			return result.Errorf(result.KindValidation, "province %s is not in region %s", *m.ProvinceID, *m.Region)
		}
	}
	for i, q := range m.Questions {
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
			return result.Errorf(result.KindValidation, "question %d: correct answer index out of range", i+1)
		}
	}
	return nil
}

// Delete removes a mission and its questions.
func (s *MissionService) Delete(ctx context.Context, id string) error {
	if err := s.missionRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete mission %s: %w", id, err)
	}
	return nil
}
