package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrTokenNotFound is the single outcome for every unresolvable
	// token, malformed or merely unknown, so the public surface leaks
	// nothing an enumeration attempt could use.
	ErrTokenNotFound = errors.New("confirmation link is invalid")

	ErrNotPermitted = errors.New("action not permitted for this appointment")
)

// ConfirmationGateway is the restricted public surface. Patients address
// their appointment by confirmation token only; the internal id is never
// accepted or revealed. Only confirm and cancel are reachable here.
type ConfirmationGateway struct {
	repo     Repository
	engine   *StatusEngine
	recovery *RecoveryCoordinator
	log      zerolog.Logger
}

func NewConfirmationGateway(repo Repository, engine *StatusEngine, recovery *RecoveryCoordinator, log zerolog.Logger) *ConfirmationGateway {
	return &ConfirmationGateway{
		repo:     repo,
		engine:   engine,
		recovery: recovery,
		log:      log,
	}
}

// Resolve looks up the appointment behind a token.
func (g *ConfirmationGateway) Resolve(ctx context.Context, token string) (*Appointment, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	appt, err := g.repo.GetAppointmentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return appt, nil
}

// Act applies a patient action to the token's appointment. The action
// set is restricted to confirm and cancel; everything else, and any
// transition the state machine rejects, comes back as ErrNotPermitted.
func (g *ConfirmationGateway) Act(ctx context.Context, token string, action Action) (*Appointment, error) {
	if action != ActionConfirm && action != ActionCancel {
		return nil, ErrNotPermitted
	}

	appt, err := g.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	updated, err := g.engine.Apply(ctx, appt, action)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, ErrNotPermitted
		}
		return nil, err
	}

	if updated.Status == StatusCancelled {
		// A patient cancellation vacates the slot exactly like an
		// operator one; queue the recovery proposal for the clinic.
		if _, err := g.recovery.HandleCancellation(ctx, updated); err != nil {
			g.log.Error().Err(err).
				Str("appointment_id", updated.ID.String()).
				Msg("waitlist match after patient cancellation failed")
		}
	}

	return updated, nil
}
