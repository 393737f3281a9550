package service

import (
	"context"

	"deepsafe/internal/model"
	"deepsafe/internal/repository"
)

// RankingService handles ranking and leaderboard operations.
type RankingService struct {
	profileRepo *repository.ProfileRepository
	friendRepo  *repository.FriendRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(profileRepo *repository.ProfileRepository, friendRepo *repository.FriendRepository) *RankingService {
	return &RankingService{profileRepo: profileRepo, friendRepo: friendRepo}
}

// Leaderboard retrieves the top users by xp.
func (s *RankingService) Leaderboard(ctx context.Context, limit int) ([]model.RankEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	profiles, err := s.profileRepo.TopByXP(ctx, limit)
	if err != nil {
		return nil, err
	}
	return rankEntries(profiles), nil
}

// Rank returns a user's 1-based xp position.
func (s *RankingService) Rank(ctx context.Context, profileID string) (int, error) {
	return s.profileRepo.Rank(ctx, profileID)
}

// FriendLeaderboard ranks a user among their accepted friends.
func (s *RankingService) FriendLeaderboard(ctx context.Context, profileID string) ([]model.RankEntry, error) {
	ids, err := s.friendRepo.AcceptedIDs(ctx, profileID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profileRepo.GetByIDs(ctx, append(ids, profileID))
	if err != nil {
		return nil, err
	}
	return rankEntries(profiles), nil
}

// rankEntries assigns competition ranks to profiles sorted by xp descending:
// equal xp shares a rank and the next rank skips accordingly (1, 2, 2, 4).
func rankEntries(profiles []*model.Profile) []model.RankEntry {
	entries := make([]model.RankEntry, len(profiles))
	for i, p := range profiles {
		rank := i + 1
		if i > 0 && p.Progress.XP == profiles[i-1].Progress.XP {
			rank = entries[i-1].Rank
		}
		entries[i] = model.RankEntry{Rank: rank, UserID: p.ID, Username: p.Username, XP: p.Progress.XP}
	}
	return entries
}
