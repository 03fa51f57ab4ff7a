package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedWaitlistEntry(t *testing.T, repo *MemoryRepository, clinicID uuid.UUID, name string, desired, createdAt time.Time) *WaitlistEntry {
	t.Helper()
	entry, err := repo.AddWaitlistEntry(context.Background(), WaitlistEntry{
		ClinicID:    clinicID,
		PatientName: name,
		DesiredTime: desired,
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("seed waitlist entry: %v", err)
	}
	return entry
}

func TestWaitlistMatcher_HourBucketFIFO(t *testing.T) {
	// Cancelled slot at 10:00; entries desiring 10:15 (earlier request)
	// and 10:45 must match in FIFO order, the 11:05 entry must not.
	slotTime := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	t1 := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	repo := NewMemoryRepository()
	clinicID := uuid.New()

	seedWaitlistEntry(t, repo, clinicID, "Second In Line", slotTime.Add(45*time.Minute), t2)
	first := seedWaitlistEntry(t, repo, clinicID, "First In Line", slotTime.Add(15*time.Minute), t1)
	seedWaitlistEntry(t, repo, clinicID, "Next Hour", slotTime.Add(65*time.Minute), t1)

	matcher := NewWaitlistMatcher(repo)
	matches, err := matcher.Match(context.Background(), clinicID, slotTime)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("want 2 matches, got %d", len(matches))
	}
	if matches[0].ID != first.ID {
		t.Errorf("top candidate = %s, want the earliest request", matches[0].PatientName)
	}
	if matches[1].PatientName != "Second In Line" {
		t.Errorf("second candidate = %s, want Second In Line", matches[1].PatientName)
	}
}

func TestWaitlistMatcher_BucketBoundaries(t *testing.T) {
	// Bucket for a 10:30 slot is [10:00, 11:00).
	slotTime := time.Date(2024, 1, 10, 10, 30, 0, 0, time.UTC)
	created := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	hour := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	clinicID := uuid.New()

	seedWaitlistEntry(t, repo, clinicID, "At Floor", hour, created)
	seedWaitlistEntry(t, repo, clinicID, "Last Minute", hour.Add(59*time.Minute+59*time.Second), created.Add(time.Minute))
	seedWaitlistEntry(t, repo, clinicID, "At Ceiling", hour.Add(time.Hour), created)
	seedWaitlistEntry(t, repo, clinicID, "Before Floor", hour.Add(-time.Second), created)

	matcher := NewWaitlistMatcher(repo)
	matches, err := matcher.Match(context.Background(), clinicID, slotTime)
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("want 2 matches in [10:00, 11:00), got %d", len(matches))
	}
	for _, m := range matches {
		if m.DesiredTime.Before(hour) || !m.DesiredTime.Before(hour.Add(time.Hour)) {
			t.Errorf("entry %q at %s is outside the bucket", m.PatientName, m.DesiredTime)
		}
	}
}

func TestWaitlistMatcher_EmptyResultIsValid(t *testing.T) {
	repo := NewMemoryRepository()
	matcher := NewWaitlistMatcher(repo)

	matches, err := matcher.Match(context.Background(), uuid.New(), time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("want no matches, got %d", len(matches))
	}
}

func TestWaitlistMatcher_ScopedToClinic(t *testing.T) {
	slotTime := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	mine := uuid.New()
	other := uuid.New()

	seedWaitlistEntry(t, repo, mine, "Mine", slotTime.Add(10*time.Minute), created)
	seedWaitlistEntry(t, repo, other, "Not Mine", slotTime.Add(20*time.Minute), created)

	matcher := NewWaitlistMatcher(repo)
	matches, err := matcher.Match(context.Background(), mine, slotTime)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matches) != 1 || matches[0].PatientName != "Mine" {
		t.Fatalf("matcher crossed clinic boundary: %+v", matches)
	}
}

func TestWaitlistMatcher_IdenticalCreatedAtIsStable(t *testing.T) {
	slotTime := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	repo := NewMemoryRepository()
	clinicID := uuid.New()

	for i := 0; i < 4; i++ {
		seedWaitlistEntry(t, repo, clinicID, "Tied", slotTime.Add(time.Duration(i)*time.Minute), created)
	}

	matcher := NewWaitlistMatcher(repo)

	first, err := matcher.Match(context.Background(), clinicID, slotTime)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := matcher.Match(context.Background(), clinicID, slotTime)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("tie-break order is not stable across calls")
			}
		}
	}
}
