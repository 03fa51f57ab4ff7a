package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/jamiecoded/slotsure/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

type CreateAppointmentInput struct {
	PatientName     string
	PatientEmail    *string
	Service         *string
	AppointmentTime time.Time
}

type AddWaitlistInput struct {
	PatientName  string
	PatientEmail *string
	DesiredTime  time.Time
}

// Service is the operator surface. Every call takes the clinic id as an
// explicit parameter; nothing here reads ambient session state.
type Service struct {
	repo     Repository
	engine   *StatusEngine
	recovery *RecoveryCoordinator
	locker   redisclient.Locker
	log      zerolog.Logger
}

func NewService(repo Repository, engine *StatusEngine, recovery *RecoveryCoordinator, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		recovery: recovery,
		locker:   locker,
		log:      log,
	}
}

// CreateAppointment books a new scheduled appointment. The per slot lock
// keeps concurrent requests for the same slot from racing; a loser that
// slips through anyway is stopped by the store's uniqueness constraint
// and gets ErrSlotTaken, which it must not blindly retry with the same
// time.
func (s *Service) CreateAppointment(ctx context.Context, clinicID uuid.UUID, in CreateAppointmentInput) (*Appointment, error) {
	if in.PatientName == "" {
		return nil, errors.New("patient name is required")
	}
	if in.AppointmentTime.IsZero() {
		return nil, errors.New("appointment time is required")
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, slotKey(clinicID, in.AppointmentTime), func(lockCtx context.Context) error {
		appt, err := s.repo.InsertAppointment(lockCtx, Appointment{
			ClinicID:          clinicID,
			PatientName:       in.PatientName,
			PatientEmail:      in.PatientEmail,
			Service:           in.Service,
			AppointmentTime:   in.AppointmentTime,
			Status:            StatusScheduled,
			ConfirmationToken: NewConfirmationToken(),
		})
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"appointment_time": appt.AppointmentTime,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	return created, nil
}

// ListAppointments returns the clinic's appointments ordered by time,
// re-evaluating the at-risk rule first so the listing reflects it. An
// escalation persist failure does not hide the listing; the error rides
// along for the caller to surface.
func (s *Service) ListAppointments(ctx context.Context, clinicID uuid.UUID) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	appts, reevalErr := s.engine.ReevaluateAtRisk(ctx, appts)
	return appts, reevalErr
}

// ConfirmAppointment moves a scheduled or at-risk appointment to confirmed.
func (s *Service) ConfirmAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.clinicAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.engine.Apply(ctx, appt, ActionConfirm)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// CancelAppointment cancels any non-terminal appointment and hands the
// vacated slot to the recovery coordinator. The returned proposal is nil
// when the waitlist has no candidate for the slot's hour.
func (s *Service) CancelAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, *Proposal, error) {
	appt, err := s.clinicAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.engine.Apply(ctx, appt, ActionCancel)
	if err != nil {
		return nil, nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"appointment_time": updated.AppointmentTime,
	})

	proposal, err := s.recovery.HandleCancellation(ctx, updated)
	if err != nil {
		// The cancellation itself stands; matching can be re-run from
		// the proposal endpoint.
		s.log.Error().Err(err).
			Str("appointment_id", updated.ID.String()).
			Msg("waitlist match after cancellation failed")
		return updated, nil, nil
	}

	return updated, proposal, nil
}

// CompleteAppointment closes out a confirmed appointment.
func (s *Service) CompleteAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.clinicAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.engine.Apply(ctx, appt, ActionComplete)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})
	return updated, nil
}

func (s *Service) AddWaitlistEntry(ctx context.Context, clinicID uuid.UUID, in AddWaitlistInput) (*WaitlistEntry, error) {
	if in.PatientName == "" {
		return nil, errors.New("patient name is required")
	}
	if in.DesiredTime.IsZero() {
		return nil, errors.New("desired time is required")
	}

	entry, err := s.repo.AddWaitlistEntry(ctx, WaitlistEntry{
		ClinicID:     clinicID,
		PatientName:  in.PatientName,
		PatientEmail: in.PatientEmail,
		DesiredTime:  in.DesiredTime,
	})
	if err != nil {
		return nil, fmt.Errorf("add waitlist entry: %w", err)
	}
	return entry, nil
}

func (s *Service) RemoveWaitlistEntry(ctx context.Context, clinicID, id uuid.UUID) error {
	entries, err := s.repo.ListWaitlistByClinic(ctx, clinicID)
	if err != nil {
		return fmt.Errorf("load waitlist: %w", err)
	}
	for _, e := range entries {
		if e.ID == id {
			return s.repo.RemoveWaitlistEntry(ctx, id)
		}
	}
	return ErrWaitlistEntryNotFound
}

func (s *Service) ListWaitlist(ctx context.Context, clinicID uuid.UUID) ([]WaitlistEntry, error) {
	entries, err := s.repo.ListWaitlistByClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

// RecoveryProposal returns the clinic's pending promotion proposal.
func (s *Service) RecoveryProposal(clinicID uuid.UUID) (*Proposal, bool) {
	return s.recovery.Proposal(clinicID)
}

// ApprovePromotion executes the pending proposal's promotion sequence.
func (s *Service) ApprovePromotion(ctx context.Context, clinicID uuid.UUID) (*Appointment, error) {
	return s.recovery.Promote(ctx, clinicID)
}

// DiscardProposal drops the pending proposal, leaving the slot vacated.
func (s *Service) DiscardProposal(clinicID uuid.UUID) {
	s.recovery.Discard(clinicID)
}

// clinicAppointment loads an appointment and verifies ownership. A record
// belonging to another clinic is indistinguishable from a missing one.
func (s *Service) clinicAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.ClinicID != clinicID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
