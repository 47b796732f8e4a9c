// Package repo contains all database access logic for the Little Escape API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/little-escape/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// AppointmentRepo defines the persistence operations for Appointments.
type AppointmentRepo interface {
	// Create inserts a new appointment and returns it with the DB-generated
	// id and created_at populated.
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// GetByID returns domain.ErrNotFound if no appointment has that ID.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

type pgAppointmentRepo struct {
	db db
}

// NewAppointmentRepo constructs an AppointmentRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewAppointmentRepo(db db) AppointmentRepo {
	return &pgAppointmentRepo{db: db}
}

func (r *pgAppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	const q = `
		INSERT INTO appointments (day, time_slot, duration_min)
		VALUES (@day, @time_slot, @duration_min)
		RETURNING id, day, time_slot, duration_min, created_at`

	args := pgx.NamedArgs{
		"day":          string(appt.Day),
		"time_slot":    string(appt.TimeSlot),
		"duration_min": appt.DurationMin,
	}

	result, err := scanAppointment(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgAppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	const q = `
		SELECT id, day, time_slot, duration_min, created_at
		FROM appointments
		WHERE id = @id`

	result, err := scanAppointment(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("repo.AppointmentRepo.GetByID: %w", err)
	}
	return result, nil
}

func scanAppointment(s scanner) (domain.Appointment, error) {
	var (
		a         domain.Appointment
		id        pgtype.UUID
		day, slot string
	)
	if err := s.Scan(&id, &day, &slot, &a.DurationMin, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Appointment{}, domain.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	a.ID = uuid.UUID(id.Bytes)
	a.Day = domain.Day(day)
	a.TimeSlot = domain.TimeSlot(slot)
	return a, nil
}
