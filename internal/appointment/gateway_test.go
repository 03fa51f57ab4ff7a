package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/jamiecoded/slotsure/internal/redis"
)

func newTestGateway(repo *MemoryRepository, now time.Time) (*ConfirmationGateway, *RecoveryCoordinator) {
	engine := newTestEngine(repo, now)
	coord := NewRecoveryCoordinator(repo, NewWaitlistMatcher(repo), redisclient.NoopLocker{}, zerolog.Nop())
	return NewConfirmationGateway(repo, engine, coord, zerolog.Nop()), coord
}

func TestGateway_ResolveUnknownTokenIsUniform(t *testing.T) {
	repo := NewMemoryRepository()
	gw, _ := newTestGateway(repo, time.Now())

	for _, token := range []string{"", "not-a-uuid", uuid.NewString()} {
		if _, err := gw.Resolve(context.Background(), token); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("token %q: want ErrTokenNotFound, got %v", token, err)
		}
	}
}

func TestGateway_ResolveReturnsAppointment(t *testing.T) {
	repo := NewMemoryRepository()
	appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), StatusScheduled)
	gw, _ := newTestGateway(repo, time.Now())

	got, err := gw.Resolve(context.Background(), appt.ConfirmationToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != appt.ID {
		t.Fatalf("resolved wrong appointment")
	}
}

func TestGateway_ConfirmFromScheduledAndAtRisk(t *testing.T) {
	for _, from := range []Status{StatusScheduled, StatusAtRisk} {
		repo := NewMemoryRepository()
		appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), from)
		gw, _ := newTestGateway(repo, time.Now())

		updated, err := gw.Act(context.Background(), appt.ConfirmationToken, ActionConfirm)
		if err != nil {
			t.Fatalf("confirm from %s: %v", from, err)
		}
		if updated.Status != StatusConfirmed {
			t.Errorf("confirm from %s: got %s", from, updated.Status)
		}
	}
}

func TestGateway_CancelFromConfirmedPermitted(t *testing.T) {
	repo := NewMemoryRepository()
	appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), StatusConfirmed)
	gw, _ := newTestGateway(repo, time.Now())

	updated, err := gw.Act(context.Background(), appt.ConfirmationToken, ActionCancel)
	if err != nil {
		t.Fatalf("cancel from confirmed: %v", err)
	}
	if updated.Status != StatusCancelled {
		t.Fatalf("want cancelled, got %s", updated.Status)
	}
}

func TestGateway_ConfirmAlreadyConfirmedNotPermitted(t *testing.T) {
	repo := NewMemoryRepository()
	appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), StatusConfirmed)
	gw, _ := newTestGateway(repo, time.Now())

	if _, err := gw.Act(context.Background(), appt.ConfirmationToken, ActionConfirm); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("want ErrNotPermitted, got %v", err)
	}
}

func TestGateway_RestrictedActionSet(t *testing.T) {
	repo := NewMemoryRepository()
	appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), StatusConfirmed)
	gw, _ := newTestGateway(repo, time.Now())

	// Complete is operator-only; made-up actions are equally rejected,
	// before any token lookup happens.
	for _, action := range []Action{ActionComplete, Action("delete"), Action("")} {
		if _, err := gw.Act(context.Background(), appt.ConfirmationToken, action); !errors.Is(err, ErrNotPermitted) {
			t.Errorf("action %q: want ErrNotPermitted, got %v", action, err)
		}
	}
}

func TestGateway_TerminalStatusesNotPermitted(t *testing.T) {
	for _, from := range []Status{StatusCancelled, StatusCompleted} {
		repo := NewMemoryRepository()
		appt := seedAppointment(t, repo, uuid.New(), time.Now().Add(48*time.Hour), from)
		gw, _ := newTestGateway(repo, time.Now())

		for _, action := range []Action{ActionConfirm, ActionCancel} {
			if _, err := gw.Act(context.Background(), appt.ConfirmationToken, action); !errors.Is(err, ErrNotPermitted) {
				t.Errorf("%s from %s: want ErrNotPermitted, got %v", action, from, err)
			}
		}
	}
}

func TestGateway_PatientCancellationQueuesProposal(t *testing.T) {
	slotTime := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	clinicID := uuid.New()
	appt := seedAppointment(t, repo, clinicID, slotTime, StatusScheduled)
	seedWaitlistEntry(t, repo, clinicID, "Waiting Patient", slotTime.Add(15*time.Minute), created)

	gw, coord := newTestGateway(repo, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	updated, err := gw.Act(context.Background(), appt.ConfirmationToken, ActionCancel)
	if err != nil {
		t.Fatalf("patient cancel: %v", err)
	}
	if updated.Status != StatusCancelled {
		t.Fatalf("want cancelled, got %s", updated.Status)
	}

	proposal, ok := coord.Proposal(clinicID)
	if !ok {
		t.Fatal("patient cancellation should queue a recovery proposal for the clinic")
	}
	if proposal.Candidate.PatientName != "Waiting Patient" {
		t.Errorf("unexpected candidate %s", proposal.Candidate.PatientName)
	}
}
