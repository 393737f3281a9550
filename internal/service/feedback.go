package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"deepsafe/internal/model"
	"deepsafe/internal/pkg/result"
	"deepsafe/internal/repository"
)

// FeedbackInput is a player report.
type FeedbackInput struct {
	Category string `json:"category" validate:"required,max=50"`
	Message  string `json:"message" validate:"required,max=4000"`
	Rating   *int   `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
}

// FeedbackService stores player feedback for admins.
type FeedbackService struct {
	feedbackRepo *repository.FeedbackRepository
	now          func() time.Time
}

// NewFeedbackService creates a new FeedbackService instance.
func NewFeedbackService(feedbackRepo *repository.FeedbackRepository) *FeedbackService {
	return &FeedbackService{feedbackRepo: feedbackRepo, now: time.Now}
}

// Submit stores a report. profileID is nil for anonymous reports.
func (s *FeedbackService) Submit(ctx context.Context, profileID *string, in FeedbackInput) (*model.Feedback, error) {
	in.Category = strings.TrimSpace(in.Category)
	in.Message = strings.TrimSpace(in.Message)
	if in.Category == "" || in.Message == "" {
		return nil, result.New(result.KindValidation, "category and message are required")
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, result.New(result.KindValidation, "rating must be between 1 and 5")
	}

	f, err := s.feedbackRepo.Create(ctx, model.Feedback{
		ProfileID: profileID,
		Category:  in.Category,
		Message:   in.Message,
		Rating:    in.Rating,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("feedback_id", f.ID).Str("category", f.Category).Msg("Feedback received")
	return f, nil
}

// List returns feedback filtered by status; an empty status lists all.
func (s *FeedbackService) List(ctx context.Context, status string, limit int) ([]model.Feedback, error) {
	if status != "" && status != model.FeedbackOpen && status != model.FeedbackResolved {
		return nil, result.Errorf(result.KindValidation, "unknown feedback status %q", status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.feedbackRepo.List(ctx, status, limit)
}

// Resolve marks a report resolved.
func (s *FeedbackService) Resolve(ctx context.Context, id int64) error {
	return s.feedbackRepo.Resolve(ctx, id, s.now())
}

// Delete removes a report.
func (s *FeedbackService) Delete(ctx context.Context, id int64) error {
	return s.feedbackRepo.Delete(ctx, id)
}
