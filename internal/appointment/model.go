package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusAtRisk    Status = "at_risk"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Action is an operator or patient request against an appointment.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

type Appointment struct {
	ID                uuid.UUID
	ClinicID          uuid.UUID
	PatientName       string
	PatientEmail      *string
	Service           *string
	AppointmentTime   time.Time
	Status            Status
	ConfirmationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type WaitlistEntry struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	PatientName  string
	PatientEmail *string
	DesiredTime  time.Time
	CreatedAt    time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
