package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/jamiecoded/slotsure/internal/redis"
)

const (
	EventPromotionSlotFreed        = "PROMOTION_SLOT_FREED"
	EventPromotionRebooked         = "PROMOTION_REBOOKED"
	EventPromotionWaitlistConsumed = "PROMOTION_WAITLIST_CONSUMED"
)

var (
	ErrNoProposal = errors.New("no recovery proposal pending")

	// ErrPartialPromotion marks a promotion that failed after its first
	// mutation succeeded. The store is inconsistent until a retry
	// completes the remaining steps or an operator reconciles by hand.
	ErrPartialPromotion = errors.New("promotion partially applied")
)

type promotionStep int

const (
	stepFreeSlot promotionStep = iota
	stepRebook
	stepConsumeWaitlist
)

// Proposal is an advisory match between a vacated slot and the best
// waitlist candidate. Nothing is persisted until the operator approves.
type Proposal struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	CancelledID uuid.UUID
	SlotTime    time.Time
	Candidate   WaitlistEntry

	step        promotionStep
	replacement *Appointment
}

// RecoveryCoordinator orchestrates cancellation -> match -> promotion.
// Proposals are session state, held per clinic; promotion runs as an
// explicit three step sequence with step markers so a retry after a mid
// sequence failure resumes from the first unperformed step instead of
// repeating mutations.
type RecoveryCoordinator struct {
	repo    Repository
	matcher *WaitlistMatcher
	locker  redisclient.Locker
	log     zerolog.Logger

	mu        sync.Mutex
	proposals map[uuid.UUID]*Proposal
}

func NewRecoveryCoordinator(repo Repository, matcher *WaitlistMatcher, locker redisclient.Locker, log zerolog.Logger) *RecoveryCoordinator {
	return &RecoveryCoordinator{
		repo:      repo,
		matcher:   matcher,
		locker:    locker,
		log:       log,
		proposals: make(map[uuid.UUID]*Proposal),
	}
}

// HandleCancellation runs the matcher for a slot just vacated by the
// given cancelled appointment. A match replaces the clinic's pending
// proposal; no match clears it. The returned proposal is nil when the
// waitlist holds no candidate for the hour bucket.
//
// A proposal whose promotion has advanced past the first mutation is
// never displaced: losing it would strand the already vacated slot with
// no resumable retry. The new cancellation yields no proposal in that
// case and its candidate, if any, stays on the waitlist.
func (c *RecoveryCoordinator) HandleCancellation(ctx context.Context, cancelled *Appointment) (*Proposal, error) {
	matches, err := c.matcher.Match(ctx, cancelled.ClinicID, cancelled.AppointmentTime)
	if err != nil {
		return nil, fmt.Errorf("match waitlist: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pending, ok := c.proposals[cancelled.ClinicID]; ok && pending.step > stepFreeSlot {
		c.log.Warn().
			Str("proposal_id", pending.ID.String()).
			Str("cancelled_id", cancelled.ID.String()).
			Msg("promotion mid-sequence, keeping pending proposal")
		return nil, nil
	}

	if len(matches) == 0 {
		delete(c.proposals, cancelled.ClinicID)
		return nil, nil
	}

	p := &Proposal{
		ID:          uuid.New(),
		ClinicID:    cancelled.ClinicID,
		CancelledID: cancelled.ID,
		SlotTime:    cancelled.AppointmentTime,
		Candidate:   matches[0],
		step:        stepFreeSlot,
	}
	c.proposals[cancelled.ClinicID] = p

	c.log.Info().
		Str("proposal_id", p.ID.String()).
		Str("candidate_id", p.Candidate.ID.String()).
		Time("slot_time", p.SlotTime).
		Msg("recovery candidate found")

	snapshot := *p
	return &snapshot, nil
}

// Proposal returns a snapshot of the clinic's pending proposal, if any.
func (c *RecoveryCoordinator) Proposal(clinicID uuid.UUID) (*Proposal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.proposals[clinicID]
	if !ok {
		return nil, false
	}
	snapshot := *p
	return &snapshot, true
}

// Discard drops the clinic's pending proposal without touching the store.
func (c *RecoveryCoordinator) Discard(clinicID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.proposals, clinicID)
}

// Promote applies the clinic's pending proposal: delete the cancelled
// appointment, insert a confirmed replacement for the candidate with a
// fresh token, delete the consumed waitlist entry. The three mutations
// are independent remote calls; a failure after the first one returns
// ErrPartialPromotion and leaves the proposal resumable.
func (c *RecoveryCoordinator) Promote(ctx context.Context, clinicID uuid.UUID) (*Appointment, error) {
	c.mu.Lock()
	p, ok := c.proposals[clinicID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrNoProposal
	}

	var promoted *Appointment

	err := c.locker.WithSlotLock(ctx, slotKey(clinicID, p.SlotTime), func(lockCtx context.Context) error {
		var err error
		promoted, err = c.runPromotion(lockCtx, p)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("slot is busy, retry promotion: %w", err)
		}
		return nil, err
	}

	c.mu.Lock()
	delete(c.proposals, clinicID)
	c.mu.Unlock()

	return promoted, nil
}

func (c *RecoveryCoordinator) runPromotion(ctx context.Context, p *Proposal) (*Appointment, error) {
	step, replacement := c.progress(p)

	if step <= stepFreeSlot {
		if err := c.repo.DeleteAppointment(ctx, p.CancelledID); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Another session removed the record; the proposal is
				// stale. Nothing was mutated here, so fail clean.
				c.Discard(p.ClinicID)
				return nil, fmt.Errorf("cancelled appointment no longer exists: %w", err)
			}
			return nil, fmt.Errorf("delete cancelled appointment: %w", err)
		}
		step = stepRebook
		c.advance(p, step, nil)
		c.markStep(ctx, p, EventPromotionSlotFreed, p.CancelledID)
	}

	if step <= stepRebook {
		created, err := c.repo.InsertAppointment(ctx, Appointment{
			ClinicID:          p.ClinicID,
			PatientName:       p.Candidate.PatientName,
			PatientEmail:      p.Candidate.PatientEmail,
			AppointmentTime:   p.SlotTime,
			Status:            StatusConfirmed,
			ConfirmationToken: NewConfirmationToken(),
		})
		if err != nil {
			return nil, c.partial(p, "insert replacement appointment", err)
		}
		replacement = created
		step = stepConsumeWaitlist
		c.advance(p, step, created)
		c.markStep(ctx, p, EventPromotionRebooked, created.ID)
	}

	if err := c.repo.RemoveWaitlistEntry(ctx, p.Candidate.ID); err != nil && !errors.Is(err, ErrWaitlistEntryNotFound) {
		return nil, c.partial(p, "remove consumed waitlist entry", err)
	}
	c.markStep(ctx, p, EventPromotionWaitlistConsumed, replacement.ID)

	return replacement, nil
}

func (c *RecoveryCoordinator) progress(p *Proposal) (promotionStep, *Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.step, p.replacement
}

func (c *RecoveryCoordinator) advance(p *Proposal, step promotionStep, replacement *Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.step = step
	if replacement != nil {
		p.replacement = replacement
	}
}

func (c *RecoveryCoordinator) partial(p *Proposal, step string, err error) error {
	c.log.Error().Err(err).
		Str("proposal_id", p.ID.String()).
		Str("failed_step", step).
		Msg("promotion partially applied, manual reconciliation may be required")
	return fmt.Errorf("%w: %s: %v", ErrPartialPromotion, step, err)
}

// markStep persists a step marker so a post-crash audit can tell how far
// a promotion got. Marker failures are logged, not fatal: the in-memory
// step already advanced and the mutation itself succeeded.
func (c *RecoveryCoordinator) markStep(ctx context.Context, p *Proposal, event string, appointmentID uuid.UUID) {
	payload, err := json.Marshal(map[string]any{
		"proposal_id":       p.ID.String(),
		"waitlist_entry_id": p.Candidate.ID.String(),
		"slot_time":         p.SlotTime,
	})
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("marshal step marker payload")
		payload = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     event,
		AppointmentID: &apptID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	if err := c.repo.InsertEvent(ctx, ev); err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("persist step marker")
	}
}

// slotKey identifies a clinic's slot for locking purposes.
func slotKey(clinicID uuid.UUID, t time.Time) string {
	return fmt.Sprintf("%s:%s", clinicID, t.UTC().Format(time.RFC3339))
}
