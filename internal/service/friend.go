package service

import (
	"context"

	"deepsafe/internal/model"
	"deepsafe/internal/repository"
)

// FriendService manages friend requests.
type FriendService struct {
	profileRepo *repository.ProfileRepository
	friendRepo  *repository.FriendRepository
}

// NewFriendService creates a new FriendService instance.
func NewFriendService(profileRepo *repository.ProfileRepository, friendRepo *repository.FriendRepository) *FriendService {
	return &FriendService{profileRepo: profileRepo, friendRepo: friendRepo}
}

// Request sends a friend request to another user.
func (s *FriendService) Request(ctx context.Context, profileID, otherID string) error {
	if profileID == otherID {
		return ErrSelfFriend
	}
	if _, err := s.profileRepo.GetByID(ctx, otherID); err != nil {
		return err
	}
	return s.friendRepo.Request(ctx, profileID, otherID)
}

// Accept accepts a pending request sent by requesterID.
func (s *FriendService) Accept(ctx context.Context, profileID, requesterID string) error {
	return s.friendRepo.Accept(ctx, requesterID, profileID)
}

// Remove deletes a friendship or request in either direction.
func (s *FriendService) Remove(ctx context.Context, profileID, otherID string) error {
	return s.friendRepo.Remove(ctx, profileID, otherID)
}

// List returns friends and pending requests.
func (s *FriendService) List(ctx context.Context, profileID string) ([]model.Friend, error) {
	return s.friendRepo.List(ctx, profileID)
}
