package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/little-escape/internal/domain"
)

// TagRepo defines the persistence operations for Tags and the run_tags join table.
type TagRepo interface {
	// Upsert inserts a tag by slug, or returns the existing tag if the slug
	// already exists. The name of the first creator is preserved on conflict.
	Upsert(ctx context.Context, name, slug string) (domain.Tag, error)

	// ListPaged returns one page of tags matching the slug prefix and the total count.
	// If prefix is empty, all tags are included in the result set.
	ListPaged(ctx context.Context, prefix string, p domain.PaginationParams) ([]domain.Tag, int64, error)

	// AddToRun links a tag to a run. Idempotent.
	AddToRun(ctx context.Context, runID, tagID uuid.UUID) error

	// RemoveFromRun unlinks a tag from a run by slug.
	// Returns domain.ErrNotFound if the tag is not linked to the run.
	RemoveFromRun(ctx context.Context, runID uuid.UUID, slug string) error

	// ListByRun returns all tags linked to a run, ordered by slug.
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Tag, error)
}

type pgTagRepo struct {
	db db
}

// NewTagRepo constructs a TagRepo backed by the provided db connection.
func NewTagRepo(db db) TagRepo {
	return &pgTagRepo{db: db}
}

// Upsert inserts a tag or returns the existing row on slug conflict.
// DO UPDATE SET makes RETURNING fire on conflict; DO NOTHING would return no row.
func (r *pgTagRepo) Upsert(ctx context.Context, name, slug string) (domain.Tag, error) {
	const q = `
		INSERT INTO tags (name, slug)
		VALUES (@name, @slug)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id, name, slug, created_at`

	result, err := scanTag(r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": name, "slug": slug}))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("repo.TagRepo.Upsert: %w", err)
	}
	return result, nil
}

func (r *pgTagRepo) ListPaged(ctx context.Context, prefix string, p domain.PaginationParams) ([]domain.Tag, int64, error) {
	const countQ = `SELECT count(*) FROM tags WHERE slug LIKE @prefix || '%'`
	const q = `
		SELECT id, name, slug, created_at
		FROM tags
		WHERE slug LIKE @prefix || '%'
		ORDER BY slug
		LIMIT @limit OFFSET @offset`

	var total int64
	if err := r.db.QueryRow(ctx, countQ, pgx.NamedArgs{"prefix": prefix}).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.TagRepo.ListPaged: count: %w", err)
	}

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"prefix": prefix, "limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TagRepo.ListPaged: %w", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TagRepo.ListPaged: %w", err)
	}
	return tags, total, nil
}

func (r *pgTagRepo) AddToRun(ctx context.Context, runID, tagID uuid.UUID) error {
	const q = `
		INSERT INTO run_tags (run_id, tag_id)
		VALUES (@run_id, @tag_id)
		ON CONFLICT (run_id, tag_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"run_id": runID, "tag_id": tagID}); err != nil {
		return fmt.Errorf("repo.TagRepo.AddToRun: %w", err)
	}
	return nil
}

func (r *pgTagRepo) RemoveFromRun(ctx context.Context, runID uuid.UUID, slug string) error {
	const q = `
		DELETE FROM run_tags
		WHERE run_id = @run_id
		  AND tag_id = (SELECT id FROM tags WHERE slug = @slug)`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"run_id": runID, "slug": slug})
	if err != nil {
		return fmt.Errorf("repo.TagRepo.RemoveFromRun: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TagRepo.RemoveFromRun: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgTagRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Tag, error) {
	const q = `
		SELECT t.id, t.name, t.slug, t.created_at
		FROM tags t
		JOIN run_tags rt ON rt.tag_id = t.id
		WHERE rt.run_id = @run_id
		ORDER BY t.slug`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByRun: %w", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByRun: %w", err)
	}
	return tags, nil
}

func collectTags(rows pgx.Rows) ([]domain.Tag, error) {
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return tags, nil
}

func scanTag(s scanner) (domain.Tag, error) {
	var (
		t  domain.Tag
		id pgtype.UUID
	)
	if err := s.Scan(&id, &t.Name, &t.Slug, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tag{}, domain.ErrNotFound
		}
		return domain.Tag{}, err
	}
	t.ID = uuid.UUID(id.Bytes)
	return t, nil
}
