package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WaitlistMatcher finds candidates for a slot vacated by cancellation.
type WaitlistMatcher struct {
	repo Repository
}

func NewWaitlistMatcher(repo Repository) *WaitlistMatcher {
	return &WaitlistMatcher{repo: repo}
}

// Match returns the clinic's waitlist entries whose desired time falls in
// the one-hour bucket containing slotTime, FIFO by created_at. The first
// entry is the best candidate; an empty result means no match.
func (m *WaitlistMatcher) Match(ctx context.Context, clinicID uuid.UUID, slotTime time.Time) ([]WaitlistEntry, error) {
	start := slotTime.UTC().Truncate(time.Hour)
	end := start.Add(time.Hour)

	entries, err := m.repo.FindWaitlistInWindow(ctx, clinicID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query waitlist window: %w", err)
	}
	return entries, nil
}
