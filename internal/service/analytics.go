package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"deepsafe/internal/model"
	"deepsafe/internal/repository"
)

// AnalyticsService builds the admin dashboard.
type AnalyticsService struct {
	analyticsRepo *repository.AnalyticsRepository
	loc           *time.Location
	now           func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService instance.
func NewAnalyticsService(analyticsRepo *repository.AnalyticsRepository, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{analyticsRepo: analyticsRepo, loc: loc, now: time.Now}
}

// Overview runs the dashboard queries concurrently. The series cover the
// last days days, today included.
func (s *AnalyticsService) Overview(ctx context.Context, days int) (*model.AnalyticsOverview, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	now := s.now().In(s.loc)
	today := localDate(now, s.loc)
	since := today.AddDate(0, 0, -(days - 1))
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	tz := s.loc.String()

	out := &model.AnalyticsOverview{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalUsers, err = s.analyticsRepo.TotalUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.ActiveToday, err = s.analyticsRepo.ActiveOn(ctx, today)
		return err
	})
	g.Go(func() (err error) {
		out.MissionsCompletedToday, err = s.analyticsRepo.MissionsCompletedSince(ctx, startOfDay)
		return err
	})
	g.Go(func() (err error) {
		out.CreditsInCirculation, err = s.analyticsRepo.CreditsInCirculation(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Signups, err = s.analyticsRepo.SignupsPerDay(ctx, since, today, tz)
		return err
	})
	g.Go(func() (err error) {
		out.Credits, err = s.analyticsRepo.CreditsPerDay(ctx, since, today, tz, model.EarningTxTypes())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
