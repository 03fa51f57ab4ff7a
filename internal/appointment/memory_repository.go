package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository with the same semantics as
// the Postgres one, including the (clinic_id, appointment_time)
// uniqueness constraint. It backs the tests and redis-free local runs.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	waitlist     map[uuid.UUID]WaitlistEntry
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]Appointment),
		waitlist:     make(map[uuid.UUID]WaitlistEntry),
		now:          time.Now,
	}
}

// SetClock overrides the timestamp source, for tests.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appointments {
		if existing.ClinicID == a.ClinicID && existing.AppointmentTime.Equal(a.AppointmentTime) {
			return nil, ErrSlotTaken
		}
	}

	a.ID = uuid.New()
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt
	r.appointments[a.ID] = a

	out := a
	return &out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := a
	return &out, nil
}

func (r *MemoryRepository) GetAppointmentByToken(_ context.Context, token string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.ConfirmationToken == token {
			out := a
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) ListAppointmentsByClinic(_ context.Context, clinicID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.ClinicID == clinicID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppointmentTime.Before(result[j].AppointmentTime)
	})
	return result, nil
}

func (r *MemoryRepository) FindScheduledInWindow(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		if !a.AppointmentTime.After(from) || a.AppointmentTime.After(to) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppointmentTime.Before(result[j].AppointmentTime)
	})
	return result, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a

	out := a
	return &out, nil
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) AddWaitlistEntry(_ context.Context, e WaitlistEntry) (*WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	r.waitlist[e.ID] = e

	out := e
	return &out, nil
}

func (r *MemoryRepository) RemoveWaitlistEntry(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.waitlist[id]; !ok {
		return ErrWaitlistEntryNotFound
	}
	delete(r.waitlist, id)
	return nil
}

func (r *MemoryRepository) ListWaitlistByClinic(_ context.Context, clinicID uuid.UUID) ([]WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []WaitlistEntry
	for _, e := range r.waitlist {
		if e.ClinicID == clinicID {
			result = append(result, e)
		}
	}
	sortWaitlist(result)
	return result, nil
}

func (r *MemoryRepository) FindWaitlistInWindow(_ context.Context, clinicID uuid.UUID, from, to time.Time) ([]WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []WaitlistEntry
	for _, e := range r.waitlist {
		if e.ClinicID != clinicID {
			continue
		}
		if e.DesiredTime.Before(from) || !e.DesiredTime.Before(to) {
			continue
		}
		result = append(result, e)
	}
	sortWaitlist(result)
	return result, nil
}

// sortWaitlist orders by created_at ascending with a stable id tie-break,
// matching the store's ORDER BY created_at, id.
func sortWaitlist(entries []WaitlistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return strings.Compare(entries[i].ID.String(), entries[j].ID.String()) < 0
	})
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log, for tests and audits.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
