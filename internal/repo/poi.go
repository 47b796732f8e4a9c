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

// PoolRepo is the source of the candidate pool.
type PoolRepo interface {
	// Create inserts a place. New places are active.
	Create(ctx context.Context, poi domain.POI) (domain.POI, error)

	// ListActive returns every active place ordered by id.
	ListActive(ctx context.Context) ([]domain.POI, error)

	// GetByID returns domain.ErrNotFound if no place has that ID.
	GetByID(ctx context.Context, id uuid.UUID) (domain.POI, error)

	// SetActive takes a place in or out of the pool.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type pgPoolRepo struct {
	db db
}

// NewPoolRepo constructs a PoolRepo backed by the provided db connection.
func NewPoolRepo(db db) PoolRepo {
	return &pgPoolRepo{db: db}
}

const poiColumns = `id, name, subtitle, lat, lng, active, created_at`

func (r *pgPoolRepo) Create(ctx context.Context, poi domain.POI) (domain.POI, error) {
	const q = `
		INSERT INTO pois (name, subtitle, lat, lng)
		VALUES (@name, @subtitle, @lat, @lng)
		RETURNING ` + poiColumns

	args := pgx.NamedArgs{
		"name":     poi.Name,
		"subtitle": poi.Subtitle,
		"lat":      poi.Point.Lat,
		"lng":      poi.Point.Lng,
	}
	result, err := scanPOI(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.POI{}, fmt.Errorf("repo.PoolRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgPoolRepo) ListActive(ctx context.Context) ([]domain.POI, error) {
	const q = `SELECT ` + poiColumns + ` FROM pois WHERE active ORDER BY id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.PoolRepo.ListActive: %w", err)
	}
	defer rows.Close()

	pois := []domain.POI{}
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.PoolRepo.ListActive: scan: %w", err)
		}
		pois = append(pois, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.PoolRepo.ListActive: rows: %w", err)
	}
	return pois, nil
}

func (r *pgPoolRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.POI, error) {
	const q = `SELECT ` + poiColumns + ` FROM pois WHERE id = @id`

	result, err := scanPOI(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.POI{}, fmt.Errorf("repo.PoolRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgPoolRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const q = `UPDATE pois SET active = @active WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "active": active})
	if err != nil {
		return fmt.Errorf("repo.PoolRepo.SetActive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.PoolRepo.SetActive: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPOI(s scanner) (domain.POI, error) {
	var (
		p  domain.POI
		id pgtype.UUID
	)
	err := s.Scan(&id, &p.Name, &p.Subtitle, &p.Point.Lat, &p.Point.Lng, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.POI{}, domain.ErrNotFound
		}
		return domain.POI{}, err
	}
	p.ID = uuid.UUID(id.Bytes)
	return p, nil
}
