package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAtRiskWindow is how close to its time a scheduled appointment
// must be before it is flagged for operator attention.
const DefaultAtRiskWindow = 24 * time.Hour

var ErrInvalidTransition = errors.New("invalid status transition")

// transitions is the full state machine. Statuses absent from the map
// (cancelled, completed) are terminal and accept nothing.
var transitions = map[Status]map[Action]Status{
	StatusScheduled: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
	},
	StatusAtRisk: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		ActionCancel:   StatusCancelled,
		ActionComplete: StatusCompleted,
	},
}

// StatusEngine owns the appointment status state machine and the
// time-based at-risk derivation rule.
type StatusEngine struct {
	repo   Repository
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewStatusEngine(repo Repository, window time.Duration, log zerolog.Logger) *StatusEngine {
	if window <= 0 {
		window = DefaultAtRiskWindow
	}
	return &StatusEngine{
		repo:   repo,
		window: window,
		log:    log,
		now:    time.Now,
	}
}

// Next resolves the target status for an action, without side effects.
func (e *StatusEngine) Next(current Status, action Action) (Status, error) {
	next, ok := transitions[current][action]
	if !ok {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, action)
	}
	return next, nil
}

// Apply validates and persists a manual transition. The persisted record
// is returned; on any error the stored status is unchanged.
func (e *StatusEngine) Apply(ctx context.Context, appt *Appointment, action Action) (*Appointment, error) {
	next, err := e.Next(appt.Status, action)
	if err != nil {
		e.log.Warn().
			Str("appointment_id", appt.ID.String()).
			Str("from", string(appt.Status)).
			Str("action", string(action)).
			Msg("rejected status transition")
		return nil, err
	}

	updated, err := e.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, next)
	if err != nil {
		return nil, fmt.Errorf("persist status %s: %w", next, err)
	}
	return updated, nil
}

// atRisk reports whether a scheduled appointment at t falls inside the
// escalation window relative to now: 0 < t - now <= window.
func (e *StatusEngine) atRisk(t, now time.Time) bool {
	until := t.Sub(now)
	return until > 0 && until <= e.window
}

// ReevaluateAtRisk escalates every scheduled appointment inside the
// window to at_risk and returns the slice with escalations applied. It
// is idempotent and safe to run concurrently from multiple readers: it
// never downgrades at_risk and never touches any other status. A record
// whose escalation fails to persist is left unchanged in the result; the
// first such failure is returned after the full pass.
func (e *StatusEngine) ReevaluateAtRisk(ctx context.Context, appts []Appointment) ([]Appointment, error) {
	now := e.now()

	var firstErr error
	for i := range appts {
		if appts[i].Status != StatusScheduled || !e.atRisk(appts[i].AppointmentTime, now) {
			continue
		}

		updated, err := e.repo.UpdateAppointmentStatus(ctx, appts[i].ID, StatusScheduled, StatusAtRisk)
		if err != nil {
			// A CAS miss means another session already moved the record;
			// the escalation is redundant, not failed.
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			e.log.Error().Err(err).
				Str("appointment_id", appts[i].ID.String()).
				Msg("at-risk escalation failed to persist")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		appts[i] = *updated
	}

	return appts, firstErr
}

// SweepAtRisk is the interval variant of the re-evaluation, run by the
// worker across all clinics. Returns how many records were escalated.
func (e *StatusEngine) SweepAtRisk(ctx context.Context) (int, error) {
	now := e.now()

	appts, err := e.repo.FindScheduledInWindow(ctx, now, now.Add(e.window))
	if err != nil {
		return 0, fmt.Errorf("find scheduled in window: %w", err)
	}

	before := make(map[uuid.UUID]Status, len(appts))
	for _, a := range appts {
		before[a.ID] = a.Status
	}

	appts, reevalErr := e.ReevaluateAtRisk(ctx, appts)

	escalated := 0
	for _, a := range appts {
		if before[a.ID] == StatusScheduled && a.Status == StatusAtRisk {
			escalated++
		}
	}
	return escalated, reevalErr
}

// NewConfirmationToken mints the opaque public lookup key for a record.
// Tokens are generated fresh for every inserted appointment, promotion
// included, and never reused.
func NewConfirmationToken() string {
	return uuid.NewString()
}
