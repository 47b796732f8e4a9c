package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/little-escape/internal/domain"
)

// RunRepo persists completed runs and their reviews.
type RunRepo interface {
	// Create records a completed run. An appointment has at most one run;
	// a second insert returns domain.ErrPrecondition.
	Create(ctx context.Context, run domain.Run) (domain.Run, error)

	// GetByAppointment returns domain.ErrNotFound if the appointment has no run.
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Run, error)

	// SetReview stores rating and comment. Tags are linked through TagRepo.
	SetReview(ctx context.Context, runID uuid.UUID, rating int, comment string, reviewedAt time.Time) (domain.Run, error)

	// ListPaged returns one page of runs, most recently completed first, and
	// the total count.
	ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.Run, int64, error)

	// Export returns every run joined with its appointment, oldest first.
	Export(ctx context.Context) ([]domain.ExportRow, error)
}

type pgRunRepo struct {
	db db
}

// NewRunRepo constructs a RunRepo backed by the provided db connection.
func NewRunRepo(db db) RunRepo {
	return &pgRunRepo{db: db}
}

const runColumns = `
	r.id, r.appointment_id, r.candidate_id, r.travel_mode, r.completion_mode,
	r.origin_lat, r.origin_lng, r.dest_lat, r.dest_lng, r.destination_name, r.mission,
	r.accepted_at, r.arrived_at, r.completed_at, r.total_ms, r.to_arrive_ms,
	r.rating, r.comment, r.reviewed_at, r.created_at,
	COALESCE((
		SELECT array_agg(t.slug ORDER BY t.slug)
		FROM run_tags rt JOIN tags t ON t.id = rt.tag_id
		WHERE rt.run_id = r.id
	), '{}')`

func (r *pgRunRepo) Create(ctx context.Context, run domain.Run) (domain.Run, error) {
	const q = `
		WITH r AS (
			INSERT INTO runs (
				appointment_id, candidate_id, travel_mode, completion_mode,
				origin_lat, origin_lng, dest_lat, dest_lng, destination_name, mission,
				accepted_at, arrived_at, completed_at, total_ms, to_arrive_ms)
			VALUES (
				@appointment_id, @candidate_id, @travel_mode, @completion_mode,
				@origin_lat, @origin_lng, @dest_lat, @dest_lng, @destination_name, @mission,
				@accepted_at, @arrived_at, @completed_at, @total_ms, @to_arrive_ms)
			RETURNING *
		)
		SELECT ` + runColumns + ` FROM r`

	args := pgx.NamedArgs{
		"appointment_id":   run.AppointmentID,
		"candidate_id":     run.CandidateID,
		"travel_mode":      string(run.TravelMode),
		"completion_mode":  string(run.CompletionMode),
		"origin_lat":       run.Origin.Lat,
		"origin_lng":       run.Origin.Lng,
		"dest_lat":         run.Destination.Lat,
		"dest_lng":         run.Destination.Lng,
		"destination_name": run.DestinationName,
		"mission":          run.Mission,
		"accepted_at":      run.Payload.AcceptedAt,
		"arrived_at":       run.Payload.ArrivedAt, // nil becomes NULL
		"completed_at":     run.Payload.CompletedAt,
		"total_ms":         run.Payload.TotalMs,
		"to_arrive_ms":     run.Payload.ToArriveMs,
	}

	result, err := scanRun(r.db.QueryRow(ctx, q, args))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Run{}, fmt.Errorf("repo.RunRepo.Create: %w: run already recorded for appointment %s", domain.ErrPrecondition, run.AppointmentID)
		}
		return domain.Run{}, fmt.Errorf("repo.RunRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM runs r WHERE r.appointment_id = @appointment_id`

	result, err := scanRun(r.db.QueryRow(ctx, q, pgx.NamedArgs{"appointment_id": appointmentID}))
	if err != nil {
		return domain.Run{}, fmt.Errorf("repo.RunRepo.GetByAppointment: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) SetReview(ctx context.Context, runID uuid.UUID, rating int, comment string, reviewedAt time.Time) (domain.Run, error) {
	const q = `
		WITH r AS (
			UPDATE runs
			SET rating = @rating, comment = @comment, reviewed_at = @reviewed_at
			WHERE id = @id
			RETURNING *
		)
		SELECT ` + runColumns + ` FROM r`

	args := pgx.NamedArgs{
		"id":          runID,
		"rating":      rating,
		"comment":     comment,
		"reviewed_at": reviewedAt,
	}
	result, err := scanRun(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Run{}, fmt.Errorf("repo.RunRepo.SetReview: %w", err)
	}
	return result, nil
}

func (r *pgRunRepo) ListPaged(ctx context.Context, p domain.PaginationParams) ([]domain.Run, int64, error) {
	const countQ = `SELECT count(*) FROM runs`
	const q = `
		SELECT ` + runColumns + `
		FROM runs r
		ORDER BY r.completed_at DESC, r.id
		LIMIT @limit OFFSET @offset`

	var total int64
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: count: %w", err)
	}

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"limit": p.Limit, "offset": p.Offset()})
	if err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: scan: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo.RunRepo.ListPaged: rows: %w", err)
	}
	return runs, total, nil
}

func (r *pgRunRepo) Export(ctx context.Context) ([]domain.ExportRow, error) {
	const q = `
		SELECT
			r.id, a.id, a.day, a.time_slot, a.duration_min,
			r.travel_mode, r.destination_name,
			r.accepted_at, r.arrived_at, r.completed_at, r.total_ms, r.to_arrive_ms,
			r.rating, r.comment,
			COALESCE((
				SELECT array_agg(t.slug ORDER BY t.slug)
				FROM run_tags rt JOIN tags t ON t.id = rt.tag_id
				WHERE rt.run_id = r.id
			), '{}')
		FROM runs r
		JOIN appointments a ON a.id = r.appointment_id
		ORDER BY r.completed_at, r.id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.RunRepo.Export: %w", err)
	}
	defer rows.Close()

	out := []domain.ExportRow{}
	for rows.Next() {
		var (
			row          domain.ExportRow
			runID, appID pgtype.UUID
			rating       *int32
		)
		err := rows.Scan(
			&runID, &appID, &row.Day, &row.TimeSlot, &row.DurationMin,
			&row.TravelMode, &row.DestinationName,
			&row.AcceptedAt, &row.ArrivedAt, &row.CompletedAt, &row.TotalMs, &row.ToArriveMs,
			&rating, &row.Comment, &row.Tags,
		)
		if err != nil {
			return nil, fmt.Errorf("repo.RunRepo.Export: scan: %w", err)
		}
		row.RunID = uuid.UUID(runID.Bytes).String()
		row.AppointmentID = uuid.UUID(appID.Bytes).String()
		if rating != nil {
			v := int(*rating)
			row.Rating = &v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.RunRepo.Export: rows: %w", err)
	}
	return out, nil
}

func scanRun(s scanner) (domain.Run, error) {
	var (
		run                    domain.Run
		id, apptID, candID     pgtype.UUID
		travelMode, completion string
		rating                 *int32
		comment                string
		reviewedAt             *time.Time
		tags                   []string
	)
	err := s.Scan(
		&id, &apptID, &candID, &travelMode, &completion,
		&run.Origin.Lat, &run.Origin.Lng, &run.Destination.Lat, &run.Destination.Lng,
		&run.DestinationName, &run.Mission,
		&run.Payload.AcceptedAt, &run.Payload.ArrivedAt, &run.Payload.CompletedAt,
		&run.Payload.TotalMs, &run.Payload.ToArriveMs,
		&rating, &comment, &reviewedAt, &run.CreatedAt, &tags,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Run{}, domain.ErrNotFound
		}
		return domain.Run{}, err
	}

	run.ID = uuid.UUID(id.Bytes)
	run.AppointmentID = uuid.UUID(apptID.Bytes)
	run.CandidateID = uuid.UUID(candID.Bytes)
	run.TravelMode = domain.TravelMode(travelMode)
	run.CompletionMode = domain.CompletionMode(completion)
	if rating != nil {
		rev := domain.Review{Rating: int(*rating), Comment: comment, Tags: tags}
		if reviewedAt != nil {
			rev.ReviewedAt = *reviewedAt
		}
		run.Review = &rev
	}
	return run, nil
}
