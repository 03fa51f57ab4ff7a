package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound   = errors.New("appointment not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")

	// ErrSlotTaken is the store's uniqueness violation on
	// (clinic_id, appointment_time).
	ErrSlotTaken = errors.New("this time slot is already booked")
)

// Repository contains all store interactions needed by the engine,
// matcher and coordinator.
type Repository interface {
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByToken(ctx context.Context, token string) (*Appointment, error)
	ListAppointmentsByClinic(ctx context.Context, clinicID uuid.UUID) ([]Appointment, error)

	// FindScheduledInWindow returns scheduled appointments with
	// from < appointment_time <= to across all clinics, for the
	// interval at-risk sweep.
	FindScheduledInWindow(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// UpdateAppointmentStatus is a compare-and-swap: the row is updated only
	// if its status still equals from. A miss surfaces as ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	AddWaitlistEntry(ctx context.Context, e WaitlistEntry) (*WaitlistEntry, error)
	RemoveWaitlistEntry(ctx context.Context, id uuid.UUID) error
	ListWaitlistByClinic(ctx context.Context, clinicID uuid.UUID) ([]WaitlistEntry, error)

	// FindWaitlistInWindow returns entries with from <= desired_time < to,
	// ordered by created_at ascending, then id.
	FindWaitlistInWindow(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]WaitlistEntry, error)

	// Event logging, also used as persisted promotion step markers.
	InsertEvent(ctx context.Context, ev EventLog) error
}
