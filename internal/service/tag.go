package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/pkordes/little-escape/internal/domain"
	"github.com/pkordes/little-escape/internal/repo"
)

// TagService implements business logic for Tag operations.
// Its primary responsibility is slug normalization: all tag identity is
// determined by slug, which is always lowercase and hyphenated.
type TagService struct {
	tags repo.TagRepo
}

// NewTagService constructs a TagService backed by the provided TagRepo.
func NewTagService(tags repo.TagRepo) *TagService {
	return &TagService{tags: tags}
}

// UpsertByName normalises name to a slug and returns the tag that owns it,
// creating it on first use.
func (s *TagService) UpsertByName(ctx context.Context, name string) (domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tag{}, fmt.Errorf("service.TagService.UpsertByName: %w: tag name is required", domain.ErrValidation)
	}
	slug := Slugify(name)
	if slug == "" {
		return domain.Tag{}, fmt.Errorf("service.TagService.UpsertByName: %w: tag %q has no letters or digits", domain.ErrValidation, name)
	}

	tag, err := s.tags.Upsert(ctx, name, slug)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("service.TagService.UpsertByName: %w", err)
	}
	return tag, nil
}

// List returns one page of tags whose slug starts with prefix.
func (s *TagService) List(ctx context.Context, prefix string, p domain.PaginationParams) (domain.Page[domain.Tag], error) {
	items, total, err := s.tags.ListPaged(ctx, strings.ToLower(strings.TrimSpace(prefix)), p)
	if err != nil {
		return domain.Page[domain.Tag]{}, fmt.Errorf("service.TagService.List: %w", err)
	}
	if items == nil {
		items = []domain.Tag{}
	}
	return domain.Page[domain.Tag]{Items: items, Total: total, Params: p}, nil
}

// Slugify lowercases s and collapses every run of characters that are not
// letters or digits into a single hyphen. "Rocky  Mountains!" becomes
// "rocky-mountains".
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
