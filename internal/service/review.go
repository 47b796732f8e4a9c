package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/clock"
	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/repo"
)

// ReviewInput is the traveller's feedback on a completed run.
type ReviewInput struct {
	Rating  int
	Comment string
	Tags    []string
}

// ReviewService attaches reviews and tags to persisted runs.
type ReviewService struct {
	runs  repo.RunRepo
	tags  repo.TagRepo
	names *TagService
	clock clock.Clock
}

// NewReviewService constructs a ReviewService.
func NewReviewService(runs repo.RunRepo, tags repo.TagRepo, c clock.Clock) *ReviewService {
	if c == nil {
		c = clock.System{}
	}
	return &ReviewService{runs: runs, tags: tags, names: NewTagService(tags), clock: c}
}

// Review stores rating and comment on the appointment's run and replaces its
// tag set. Reviewing again overwrites the previous review.
func (s *ReviewService) Review(ctx context.Context, appointmentID uuid.UUID, in ReviewInput) (domain.Run, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := (domain.Review{Rating: in.Rating, Comment: in.Comment}).Validate(); err != nil {
		return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
	}

	run, err := s.runs.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
	}

	wanted := make(map[string]bool, len(in.Tags))
	for _, name := range in.Tags {
		tag, err := s.names.UpsertByName(ctx, name)
		if err != nil {
			return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
		}
		if err := s.tags.AddToRun(ctx, run.ID, tag.ID); err != nil {
			return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
		}
		wanted[tag.Slug] = true
	}

	existing, err := s.tags.ListByRun(ctx, run.ID)
	if err != nil {
		return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
	}
	for _, tag := range existing {
		if wanted[tag.Slug] {
			continue
		}
		if err := s.tags.RemoveFromRun(ctx, run.ID, tag.Slug); err != nil {
			return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
		}
	}

	updated, err := s.runs.SetReview(ctx, run.ID, in.Rating, in.Comment, s.clock.Now())
	if err != nil {
		return domain.Run{}, fmt.Errorf("service.ReviewService.Review: %w", err)
	}
	if updated.Review != nil {
		// SetReview reads tags in the same statement; keep the normalised set.
		slugs := make([]string, 0, len(wanted))
		for slug := range wanted {
			slugs = append(slugs, slug)
		}
		slices.Sort(slugs)
		updated.Review.Tags = slugs
	}
	return updated, nil
}
