package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestEngine(repo Repository, now time.Time) *StatusEngine {
	e := NewStatusEngine(repo, DefaultAtRiskWindow, zerolog.Nop())
	e.now = func() time.Time { return now }
	return e
}

func seedAppointment(t *testing.T, repo *MemoryRepository, clinicID uuid.UUID, at time.Time, status Status) *Appointment {
	t.Helper()
	appt, err := repo.InsertAppointment(context.Background(), Appointment{
		ClinicID:          clinicID,
		PatientName:       "Test Patient",
		AppointmentTime:   at,
		Status:            status,
		ConfirmationToken: NewConfirmationToken(),
	})
	if err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return appt
}

func TestStatusEngine_TransitionTable(t *testing.T) {
	cases := []struct {
		from    Status
		action  Action
		want    Status
		invalid bool
	}{
		{from: StatusScheduled, action: ActionConfirm, want: StatusConfirmed},
		{from: StatusScheduled, action: ActionCancel, want: StatusCancelled},
		{from: StatusScheduled, action: ActionComplete, invalid: true},
		{from: StatusAtRisk, action: ActionConfirm, want: StatusConfirmed},
		{from: StatusAtRisk, action: ActionCancel, want: StatusCancelled},
		{from: StatusAtRisk, action: ActionComplete, invalid: true},
		{from: StatusConfirmed, action: ActionConfirm, invalid: true},
		{from: StatusConfirmed, action: ActionCancel, want: StatusCancelled},
		{from: StatusConfirmed, action: ActionComplete, want: StatusCompleted},
		{from: StatusCancelled, action: ActionConfirm, invalid: true},
		{from: StatusCancelled, action: ActionCancel, invalid: true},
		{from: StatusCancelled, action: ActionComplete, invalid: true},
		{from: StatusCompleted, action: ActionConfirm, invalid: true},
		{from: StatusCompleted, action: ActionCancel, invalid: true},
		{from: StatusCompleted, action: ActionComplete, invalid: true},
	}

	engine := newTestEngine(NewMemoryRepository(), time.Now())

	for _, tc := range cases {
		got, err := engine.Next(tc.from, tc.action)
		if tc.invalid {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s + %s: want ErrInvalidTransition, got %v", tc.from, tc.action, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s + %s: unexpected error %v", tc.from, tc.action, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s + %s: want %s, got %s", tc.from, tc.action, tc.want, got)
		}
	}
}

func TestStatusEngine_TerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusAtRisk, StatusConfirmed} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatusEngine_ApplyPersists(t *testing.T) {
	repo := NewMemoryRepository()
	clinicID := uuid.New()
	appt := seedAppointment(t, repo, clinicID, time.Now().Add(48*time.Hour), StatusScheduled)

	engine := newTestEngine(repo, time.Now())

	updated, err := engine.Apply(context.Background(), appt, ActionConfirm)
	if err != nil {
		t.Fatalf("apply confirm: %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Fatalf("want confirmed, got %s", updated.Status)
	}

	stored, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != StatusConfirmed {
		t.Fatalf("persisted status = %s, want confirmed", stored.Status)
	}
}

func TestStatusEngine_AtRiskWithin19Hours(t *testing.T) {
	// Appointment at 2024-01-10T15:00Z evaluated at 2024-01-09T20:00Z,
	// a 19 hour lead, must escalate.
	apptTime := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	clinicID := uuid.New()
	appt := seedAppointment(t, repo, clinicID, apptTime, StatusScheduled)

	engine := newTestEngine(repo, now)

	appts, err := engine.ReevaluateAtRisk(context.Background(), []Appointment{*appt})
	if err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	if appts[0].Status != StatusAtRisk {
		t.Fatalf("want at_risk, got %s", appts[0].Status)
	}

	stored, _ := repo.GetAppointmentByID(context.Background(), appt.ID)
	if stored.Status != StatusAtRisk {
		t.Fatalf("persisted status = %s, want at_risk", stored.Status)
	}
}

func TestStatusEngine_AtRiskWindowBoundaries(t *testing.T) {
	now := time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		lead   time.Duration
		status Status
		want   Status
	}{
		{name: "exactly 24h", lead: 24 * time.Hour, status: StatusScheduled, want: StatusAtRisk},
		{name: "just over 24h", lead: 24*time.Hour + time.Minute, status: StatusScheduled, want: StatusScheduled},
		{name: "one minute ahead", lead: time.Minute, status: StatusScheduled, want: StatusAtRisk},
		{name: "already past", lead: -time.Hour, status: StatusScheduled, want: StatusScheduled},
		{name: "exactly now", lead: 0, status: StatusScheduled, want: StatusScheduled},
		{name: "confirmed untouched", lead: time.Hour, status: StatusConfirmed, want: StatusConfirmed},
		{name: "cancelled untouched", lead: time.Hour, status: StatusCancelled, want: StatusCancelled},
		{name: "completed untouched", lead: time.Hour, status: StatusCompleted, want: StatusCompleted},
		{name: "at_risk stays", lead: 30 * time.Hour, status: StatusAtRisk, want: StatusAtRisk},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			appt := seedAppointment(t, repo, uuid.New(), now.Add(tc.lead), tc.status)

			engine := newTestEngine(repo, now)
			appts, err := engine.ReevaluateAtRisk(context.Background(), []Appointment{*appt})
			if err != nil {
				t.Fatalf("reevaluate: %v", err)
			}
			if appts[0].Status != tc.want {
				t.Fatalf("want %s, got %s", tc.want, appts[0].Status)
			}
		})
	}
}

func TestStatusEngine_ReevaluateIsIdempotent(t *testing.T) {
	now := time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	appt := seedAppointment(t, repo, uuid.New(), now.Add(3*time.Hour), StatusScheduled)

	engine := newTestEngine(repo, now)

	for i := 0; i < 3; i++ {
		appts, err := engine.ReevaluateAtRisk(context.Background(), []Appointment{*appt})
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if appts[0].Status != StatusAtRisk {
			t.Fatalf("pass %d: want at_risk, got %s", i, appts[0].Status)
		}
		appt = &appts[0]
	}
}

func TestStatusEngine_SweepAtRisk(t *testing.T) {
	now := time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()

	inWindow := seedAppointment(t, repo, uuid.New(), now.Add(5*time.Hour), StatusScheduled)
	outside := seedAppointment(t, repo, uuid.New(), now.Add(72*time.Hour), StatusScheduled)

	engine := newTestEngine(repo, now)

	escalated, err := engine.SweepAtRisk(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if escalated != 1 {
		t.Fatalf("want 1 escalated, got %d", escalated)
	}

	in, _ := repo.GetAppointmentByID(context.Background(), inWindow.ID)
	if in.Status != StatusAtRisk {
		t.Errorf("in-window appointment: want at_risk, got %s", in.Status)
	}
	out, _ := repo.GetAppointmentByID(context.Background(), outside.ID)
	if out.Status != StatusScheduled {
		t.Errorf("outside appointment: want scheduled, got %s", out.Status)
	}
}
