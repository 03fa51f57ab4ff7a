package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/jamiecoded/slotsure/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"patient_email,omitempty"`
	Service         string    `json:"service,omitempty"`
	AppointmentTime time.Time `json:"appointment_time"`
}

type AddWaitlistRequest struct {
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email,omitempty"`
	DesiredTime  time.Time `json:"desired_time"`
}

type TokenActionRequest struct {
	Action string `json:"action"`
}

type AppointmentResponse struct {
	ID                uuid.UUID `json:"id"`
	PatientName       string    `json:"patient_name"`
	PatientEmail      *string   `json:"patient_email,omitempty"`
	Service           *string   `json:"service,omitempty"`
	AppointmentTime   time.Time `json:"appointment_time"`
	Status            string    `json:"status"`
	ConfirmationToken string    `json:"confirmation_token"`
}

// ConfirmationResponse is the public token-surface view. It carries no
// internal id, no clinic reference and no token echo.
type ConfirmationResponse struct {
	PatientName     string    `json:"patient_name"`
	AppointmentTime time.Time `json:"appointment_time"`
	Service         *string   `json:"service,omitempty"`
	Status          string    `json:"status"`
}

type WaitlistEntryResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientName  string    `json:"patient_name"`
	PatientEmail *string   `json:"patient_email,omitempty"`
	DesiredTime  time.Time `json:"desired_time"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProposalResponse struct {
	ProposalID uuid.UUID             `json:"proposal_id"`
	SlotTime   time.Time             `json:"slot_time"`
	Candidate  WaitlistEntryResponse `json:"candidate"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		PatientName:       a.PatientName,
		PatientEmail:      a.PatientEmail,
		Service:           a.Service,
		AppointmentTime:   a.AppointmentTime,
		Status:            string(a.Status),
		ConfirmationToken: a.ConfirmationToken,
	}
}

func toConfirmationResponse(a *appointment.Appointment) ConfirmationResponse {
	return ConfirmationResponse{
		PatientName:     a.PatientName,
		AppointmentTime: a.AppointmentTime,
		Service:         a.Service,
		Status:          string(a.Status),
	}
}

func toWaitlistResponse(e *appointment.WaitlistEntry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:           e.ID,
		PatientName:  e.PatientName,
		PatientEmail: e.PatientEmail,
		DesiredTime:  e.DesiredTime,
		CreatedAt:    e.CreatedAt,
	}
}

func toProposalResponse(p *appointment.Proposal) ProposalResponse {
	return ProposalResponse{
		ProposalID: p.ID,
		SlotTime:   p.SlotTime,
		Candidate:  toWaitlistResponse(&p.Candidate),
	}
}
