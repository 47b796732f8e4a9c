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

// PrepRepo persists the itinerary choices of an appointment together with
// the ranked candidates they produced.
type PrepRepo interface {
	// Save writes the prep and its candidates in one batch. Candidate order
	// is kept as rank.
	Save(ctx context.Context, prep domain.Prep, candidates []domain.Candidate) (uuid.UUID, error)

	// Latest returns the most recent prep of an appointment with its candidates
	// in rank order. Returns domain.ErrNotFound if the appointment has none.
	Latest(ctx context.Context, appointmentID uuid.UUID) (domain.Prep, []domain.Candidate, error)
}

type pgPrepRepo struct {
	db db
}

// NewPrepRepo constructs a PrepRepo backed by the provided db connection.
func NewPrepRepo(db db) PrepRepo {
	return &pgPrepRepo{db: db}
}

// Save queues every insert on one pgx.Batch so the prep and its candidates
// land in a single round trip and a single implicit transaction.
func (r *pgPrepRepo) Save(ctx context.Context, prep domain.Prep, candidates []domain.Candidate) (uuid.UUID, error) {
	const insertPrep = `
		INSERT INTO preps (id, appointment_id, travel_mode, origin_lat, origin_lng, prepared_at)
		VALUES (@id, @appointment_id, @travel_mode, @origin_lat, @origin_lng, @prepared_at)`
	const insertCandidate = `
		INSERT INTO candidates (prep_id, position, poi_id, lat, lng, subtitle, total_min, summary, travel_lines, itinerary_lines)
		VALUES (@prep_id, @position, @poi_id, @lat, @lng, @subtitle, @total_min, @summary, @travel_lines, @itinerary_lines)`

	id := uuid.New()
	b := &pgx.Batch{}
	b.Queue(insertPrep, pgx.NamedArgs{
		"id":             id,
		"appointment_id": prep.AppointmentID,
		"travel_mode":    string(prep.TravelMode),
		"origin_lat":     prep.Origin.Lat,
		"origin_lng":     prep.Origin.Lng,
		"prepared_at":    prep.PreparedAt,
	})
	for i, c := range candidates {
		b.Queue(insertCandidate, pgx.NamedArgs{
			"prep_id":         id,
			"position":        i,
			"poi_id":          c.ID,
			"lat":             c.Point.Lat,
			"lng":             c.Point.Lng,
			"subtitle":        c.Subtitle,
			"total_min":       c.Travel.TotalMin,
			"summary":         c.Travel.Summary,
			"travel_lines":    c.Travel.Lines,
			"itinerary_lines": c.ItineraryLines,
		})
	}

	br := r.db.SendBatch(ctx, b)
	for range b.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return uuid.Nil, fmt.Errorf("repo.PrepRepo.Save: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return uuid.Nil, fmt.Errorf("repo.PrepRepo.Save: %w", err)
	}
	return id, nil
}

func (r *pgPrepRepo) Latest(ctx context.Context, appointmentID uuid.UUID) (domain.Prep, []domain.Candidate, error) {
	const prepQ = `
		SELECT id, appointment_id, travel_mode, origin_lat, origin_lng, prepared_at
		FROM preps
		WHERE appointment_id = @appointment_id
		ORDER BY prepared_at DESC
		LIMIT 1`
	const candQ = `
		SELECT poi_id, lat, lng, subtitle, total_min, summary, travel_lines, itinerary_lines
		FROM candidates
		WHERE prep_id = @prep_id
		ORDER BY position`

	var (
		p            domain.Prep
		prepID, appt pgtype.UUID
		mode         string
	)
	err := r.db.QueryRow(ctx, prepQ, pgx.NamedArgs{"appointment_id": appointmentID}).
		Scan(&prepID, &appt, &mode, &p.Origin.Lat, &p.Origin.Lng, &p.PreparedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrNotFound
		}
		return domain.Prep{}, nil, fmt.Errorf("repo.PrepRepo.Latest: %w", err)
	}
	p.AppointmentID = uuid.UUID(appt.Bytes)
	p.TravelMode = domain.TravelMode(mode)

	rows, err := r.db.Query(ctx, candQ, pgx.NamedArgs{"prep_id": uuid.UUID(prepID.Bytes)})
	if err != nil {
		return domain.Prep{}, nil, fmt.Errorf("repo.PrepRepo.Latest: %w", err)
	}
	defer rows.Close()

	candidates := []domain.Candidate{}
	for rows.Next() {
		var (
			c  domain.Candidate
			id pgtype.UUID
		)
		err := rows.Scan(&id, &c.Point.Lat, &c.Point.Lng, &c.Subtitle, &c.Travel.TotalMin, &c.Travel.Summary, &c.Travel.Lines, &c.ItineraryLines)
		if err != nil {
			return domain.Prep{}, nil, fmt.Errorf("repo.PrepRepo.Latest: scan: %w", err)
		}
		c.ID = uuid.UUID(id.Bytes)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Prep{}, nil, fmt.Errorf("repo.PrepRepo.Latest: rows: %w", err)
	}
	return p, candidates, nil
}
