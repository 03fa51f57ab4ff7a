package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE raised by the unique index on
// (clinic_id, appointment_time).
const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var email, service *string

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientName,
		&email,
		&service,
		&a.AppointmentTime,
		&a.Status,
		&a.ConfirmationToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientEmail = email
	a.Service = service
	return &a, nil
}

func scanWaitlistEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry
	var email *string

	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.PatientName,
		&email,
		&e.DesiredTime,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}

	e.PatientEmail = email
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const appointmentColumns = `id, clinic_id, patient_name, patient_email, service, appointment_time, status, confirmation_token, created_at, updated_at`

// Interface methods

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, clinic_id, patient_name, patient_email, service, appointment_time, status, confirmation_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.ClinicID, a.PatientName, a.PatientEmail, a.Service, a.AppointmentTime, a.Status, a.ConfirmationToken)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByToken(ctx context.Context, token string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE confirmation_token = $1
	`, token)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByClinic(ctx context.Context, clinicID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
		ORDER BY appointment_time ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindScheduledInWindow(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND appointment_time > $1
		  AND appointment_time <= $2
		ORDER BY appointment_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) AddWaitlistEntry(ctx context.Context, e WaitlistEntry) (*WaitlistEntry, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist (id, clinic_id, patient_name, patient_email, desired_time, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, clinic_id, patient_name, patient_email, desired_time, created_at
	`, id, e.ClinicID, e.PatientName, e.PatientEmail, e.DesiredTime)

	return scanWaitlistEntry(row)
}

func (r *PgRepository) RemoveWaitlistEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM waitlist
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWaitlistEntryNotFound
	}
	return nil
}

func (r *PgRepository) ListWaitlistByClinic(ctx context.Context, clinicID uuid.UUID) ([]WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, patient_name, patient_email, desired_time, created_at
		FROM waitlist
		WHERE clinic_id = $1
		ORDER BY created_at ASC, id ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWaitlist(rows)
}

func (r *PgRepository) FindWaitlistInWindow(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, patient_name, patient_email, desired_time, created_at
		FROM waitlist
		WHERE clinic_id = $1
		  AND desired_time >= $2
		  AND desired_time < $3
		ORDER BY created_at ASC, id ASC
	`, clinicID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWaitlist(rows)
}

func collectWaitlist(rows pgx.Rows) ([]WaitlistEntry, error) {
	var result []WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
