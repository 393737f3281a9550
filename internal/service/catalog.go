package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"deepsafe/internal/geo"
	"deepsafe/internal/model"
	"deepsafe/internal/repository"
)

// CatalogService manages the badge and avatar catalogs.
type CatalogService struct {
	badgeRepo  *repository.BadgeRepository
	avatarRepo *repository.AvatarRepository
	geo        *geo.Catalog
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(badgeRepo *repository.BadgeRepository, avatarRepo *repository.AvatarRepository, catalog *geo.Catalog) *CatalogService {
	return &CatalogService{badgeRepo: badgeRepo, avatarRepo: avatarRepo, geo: catalog}
}

// Badges returns every badge.
func (s *CatalogService) Badges(ctx context.Context) ([]model.Badge, error) {
	return s.badgeRepo.List(ctx)
}

// UpsertBadge creates or updates a badge. Region badges must name a known
// region.
func (s *CatalogService) UpsertBadge(ctx context.Context, b model.Badge) error {
	if b.Condition.Kind == model.ConditionRegionMaster && !s.geo.HasRegion(b.Condition.Region) {
		return ErrUnknownRegion
	}
	if err := s.badgeRepo.Upsert(ctx, b); err != nil {
		return err
	}
	log.Info().Str("badge_id", b.ID).Str("condition", b.Condition.Kind.String()).Msg("Badge saved")
	return nil
}

// DeleteBadge removes a badge from the catalog. Badges already earned stay
// on profiles.
func (s *CatalogService) DeleteBadge(ctx context.Context, id string) error {
	return s.badgeRepo.Delete(ctx, id)
}

// Avatars returns every avatar.
func (s *CatalogService) Avatars(ctx context.Context) ([]model.Avatar, error) {
	return s.avatarRepo.List(ctx)
}

// UpsertAvatar creates or updates an avatar.
func (s *CatalogService) UpsertAvatar(ctx context.Context, a model.Avatar) error {
	return s.avatarRepo.Upsert(ctx, a)
}

// DeleteAvatar removes an avatar.
func (s *CatalogService) DeleteAvatar(ctx context.Context, id string) error {
	return s.avatarRepo.Delete(ctx, id)
}
