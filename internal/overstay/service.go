package overstay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/pricing"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/google/uuid"
)

// Service detects overstayed storage and walks each penalty through review and charge
type Service interface {
	// Sweep opens records for new overstays and advances open ones. Safe to
	// run concurrently and repeatedly.
	Sweep(ctx context.Context) (SweepResult, error)
	Get(ctx context.Context, id uuid.UUID) (*PenaltyRecord, error)
	List(ctx context.Context, query ListQuery) ([]PenaltyRecord, int64, error)
	Events(ctx context.Context, id uuid.UUID) ([]PenaltyEvent, error)
	Approve(ctx context.Context, actor users.Identity, id uuid.UUID, req ApproveRequest) (*PenaltyRecord, error)
	Waive(ctx context.Context, actor users.Identity, id uuid.UUID, reason string) (*PenaltyRecord, error)
	Resolve(ctx context.Context, actor users.Identity, id uuid.UUID, note string) (*PenaltyRecord, error)
}

// PaymentGateway is the part of the payment manager penalties charge through
type PaymentGateway interface {
	Charge(ctx context.Context, cmd payments.ChargeCommand) (*payments.PaymentAuthorization, error)
}

type Deps struct {
	Repo      Repository
	Bookings  bookings.Repository
	Payments  PaymentGateway
	Locker    txn.GroupLocker
	Policies  policies.Resolver
	Publisher notifications.Publisher
	Logger    *logger.Logger
	Clock     func() time.Time
	BatchSize int
}

type service struct {
	repo      Repository
	bookings  bookings.Repository
	payments  PaymentGateway
	locker    txn.GroupLocker
	policies  policies.Resolver
	publisher notifications.Publisher
	log       *logger.Logger
	clock     func() time.Time
	batchSize int
}

func NewService(deps Deps) Service {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 200
	}
	return &service{
		repo:      deps.Repo,
		bookings:  deps.Bookings,
		payments:  deps.Payments,
		locker:    deps.Locker,
		policies:  deps.Policies,
		publisher: deps.Publisher,
		log:       log.WithComponent("overstay"),
		clock:     func() time.Time { return clock().UTC() },
		batchSize: batch,
	}
}

// change is one audited transition
type change struct {
	update Update
	source Source
	actor  *uuid.UUID
	note   string
}

// move applies a transition and appends its audit event. rec is updated in place.
func (s *service) move(ctx context.Context, rec *PenaltyRecord, c change) error {
	from := rec.Status
	if !CanTransition(from, c.update.To) {
		return &apperr.Error{
			Kind:    apperr.KindInvalidTransition,
			Entity:  "overstay_penalty",
			ID:      rec.ID.String(),
			Actual:  from.String(),
			Message: fmt.Sprintf("no transition from %s to %s", from, c.update.To),
		}
	}
	now := s.clock()
	if err := s.repo.Transition(ctx, rec.ID, from, c.update, now); err != nil {
		return err
	}
	if err := s.repo.AppendEvent(ctx, &PenaltyEvent{
		ID:             uuid.New(),
		PenaltyID:      rec.ID,
		PreviousStatus: &from,
		NewStatus:      c.update.To,
		Source:         c.source,
		ActorID:        c.actor,
		Note:           c.note,
		CreatedAt:      now,
	}); err != nil {
		return err
	}
	rec.Status = c.update.To

	s.log.LogPenaltyEvent(ctx, rec.ID.String(), rec.StorageBookingID.String(), from.String(), rec.Status.String(), string(c.source))
	ev := notifications.NewDomainEvent(notifications.EventPenaltyStatusChanged, "overstay_penalty", rec.ID, rec.BookingGroupID, map[string]interface{}{
		"storage_booking_id": rec.StorageBookingID,
		"from":               from,
		"to":                 rec.Status,
		"source":             c.source,
	})
	if c.actor != nil {
		ev = ev.WithActor(*c.actor)
	}
	notifications.Emit(ctx, s.publisher, ev)
	return nil
}

// resolve closes a record and frees its storage booking for future detection
func (s *service) resolve(ctx context.Context, rec *PenaltyRecord, c change) error {
	now := s.clock()
	c.update.To = StatusResolved
	c.update.ResolvedAt = &now
	if err := s.move(ctx, rec, c); err != nil {
		return err
	}
	return s.bookings.SetActivePenalty(ctx, rec.StorageBookingID, &rec.ID, nil)
}

func (s *service) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	now := s.clock()
	var result SweepResult

	candidates, err := s.bookings.ListOverstayCandidates(ctx, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list overstay candidates: %w", err)
	}
	result.Scanned += len(candidates)
	for _, sb := range candidates {
		detected, err := s.detect(ctx, sb.BookingGroupID, sb.ID, now)
		if err != nil {
			result.Failed++
			s.log.ErrorWithContext(ctx, "Overstay detection failed", err, map[string]interface{}{
				"storage_booking_id": sb.ID.String(),
			})
			continue
		}
		if detected {
			result.Detected++
		}
	}

	// separate budgets so reviews waiting on a manager never crowd out grace expiry
	open, err := s.repo.ListInGrace(ctx, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list overstay penalties in grace: %w", err)
	}
	stale, err := s.repo.ListStaleReviews(ctx, now, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list stale overstay reviews: %w", err)
	}
	open = append(open, stale...)
	result.Scanned += len(open)
	for _, rec := range open {
		outcome, err := s.advance(ctx, rec.BookingGroupID, rec.ID, now)
		if err != nil {
			result.Failed++
			s.log.ErrorWithContext(ctx, "Overstay advance failed", err, map[string]interface{}{
				"penalty_id": rec.ID.String(),
			})
			continue
		}
		switch outcome {
		case StatusPendingReview:
			result.Advanced++
		case StatusResolved:
			result.Resolved++
		}
	}

	result.Duration = time.Since(started)
	s.log.LogSweep(ctx, "overstay", result.Scanned, result.Detected+result.Advanced+result.Resolved, result.Failed, result.Duration)
	return result, nil
}

func overstayed(sb *bookings.StorageBooking, now time.Time) bool {
	return sb.Status == bookings.StatusConfirmed &&
		sb.CheckoutStatus == bookings.CheckoutActive &&
		sb.EndDate.Before(now)
}

// detect opens a record for one storage booking. The conditions are
// re-checked under the group lock; the active penalty CAS stops a second
// record when two sweeps race. One end date yields at most one penalty.
func (s *service) detect(ctx context.Context, groupID, storageID uuid.UUID, now time.Time) (bool, error) {
	var detected bool
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		sb, err := s.bookings.GetStorage(ctx, storageID)
		if err != nil {
			return err
		}
		if !overstayed(sb, now) || sb.ActivePenaltyID != nil || sb.PenalizedAtEnd() {
			return nil
		}
		policy, err := s.policies.Resolve(ctx, sb.LocationID)
		if err != nil {
			return fmt.Errorf("failed to resolve location policy: %w", err)
		}

		rec := &PenaltyRecord{
			ID:                uuid.New(),
			StorageBookingID:  sb.ID,
			BookingGroupID:    sb.BookingGroupID,
			LocationID:        sb.LocationID,
			ChefID:            sb.ChefID,
			Status:            StatusDetected,
			DetectedAt:        now,
			EndDate:           sb.EndDate,
			GracePeriodEndsAt: sb.EndDate.Add(policy.GracePeriod()),
			DailyRateCents:    sb.DailyRateCents,
			PenaltyRate:       policy.PenaltyRate,
		}
		if err := s.bookings.SetActivePenalty(ctx, sb.ID, nil, &rec.ID); err != nil {
			if apperr.KindOf(err) == apperr.KindInvalidTransition {
				return nil
			}
			return err
		}
		if err := s.repo.Create(ctx, rec); err != nil {
			return err
		}
		if err := s.repo.AppendEvent(ctx, &PenaltyEvent{
			ID:        uuid.New(),
			PenaltyID: rec.ID,
			NewStatus: StatusDetected,
			Source:    SourceSystem,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		s.log.LogPenaltyEvent(ctx, rec.ID.String(), sb.ID.String(), "", StatusDetected.String(), string(SourceSystem))

		if err := s.move(ctx, rec, change{update: Update{To: StatusGracePeriod}, source: SourceSystem}); err != nil {
			return err
		}
		detected = true
		return nil
	})
	return detected, err
}

// advance moves a grace_period record on, or refreshes the amounts of a
// record awaiting review. It returns the status reached when it changed.
func (s *service) advance(ctx context.Context, groupID, id uuid.UUID, now time.Time) (Status, error) {
	var reached Status
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		rec, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		sb, err := s.bookings.GetStorage(ctx, rec.StorageBookingID)
		if err != nil {
			return err
		}

		switch rec.Status {
		case StatusGracePeriod:
			if !overstayed(sb, now) {
				reached = StatusResolved
				return s.resolve(ctx, rec, change{source: SourceSystem, note: supersededNote(sb)})
			}
			if now.Before(rec.GracePeriodEndsAt) {
				return nil
			}
			quote := pricing.PenaltyAmount(rec.DailyRateCents, rec.PenaltyRate, rec.GracePeriodEndsAt, now)
			reached = StatusPendingReview
			return s.move(ctx, rec, change{
				update: Update{
					To:                     StatusPendingReview,
					DaysOverdue:            &quote.DaysOverdue,
					CalculatedPenaltyCents: &quote.CalculatedPenaltyCents,
				},
				source: SourceSystem,
			})

		case StatusPendingReview:
			if !overstayed(sb, now) {
				// checked out or extended: stop accruing, rotate to the back of the stale queue
				return s.repo.Transition(ctx, rec.ID, StatusPendingReview, Update{To: StatusPendingReview}, now)
			}
			quote := pricing.PenaltyAmount(rec.DailyRateCents, rec.PenaltyRate, rec.GracePeriodEndsAt, now)
			if quote.DaysOverdue == rec.DaysOverdue {
				return nil
			}
			return s.repo.Transition(ctx, rec.ID, StatusPendingReview, Update{
				To:                     StatusPendingReview,
				DaysOverdue:            &quote.DaysOverdue,
				CalculatedPenaltyCents: &quote.CalculatedPenaltyCents,
			}, now)
		}
		return nil
	})
	return reached, err
}

func supersededNote(sb *bookings.StorageBooking) string {
	switch {
	case sb.CheckoutStatus != bookings.CheckoutActive:
		return "checkout " + sb.CheckoutStatus.String() + " before grace period ended"
	case sb.Status != bookings.StatusConfirmed:
		return "storage booking " + sb.Status.String()
	default:
		return "storage booking extended"
	}
}

// locked loads a record and runs fn under its group lock with a fresh copy
func (s *service) locked(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, rec *PenaltyRecord) error) (*PenaltyRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *PenaltyRecord
	err = s.locker.WithGroupLock(ctx, rec.BookingGroupID, func(ctx context.Context) error {
		rec, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, rec); err != nil {
			return err
		}
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireStatus(rec *PenaltyRecord, want Status) error {
	if rec.Status != want {
		return apperr.InvalidTransition("overstay_penalty", rec.ID.String(), want.String(), rec.Status.String())
	}
	return nil
}

// Approve fixes the penalty amount and charges it off-session. A failed
// charge escalates the record and is not an error for the caller.
func (s *service) Approve(ctx context.Context, actor users.Identity, id uuid.UUID, req ApproveRequest) (*PenaltyRecord, error) {
	if !actor.CanReview() {
		return nil, apperr.Forbidden("only managers review penalties")
	}
	return s.locked(ctx, id, func(ctx context.Context, rec *PenaltyRecord) error {
		if err := requireStatus(rec, StatusPendingReview); err != nil {
			return err
		}
		now := s.clock()
		quote := pricing.PenaltyAmount(rec.DailyRateCents, rec.PenaltyRate, rec.GracePeriodEndsAt, now)
		final := quote.CalculatedPenaltyCents
		if req.FinalPenaltyCents != nil {
			final = *req.FinalPenaltyCents
		}
		if final > quote.CalculatedPenaltyCents {
			return apperr.Validation(fmt.Sprintf("final penalty %d exceeds calculated penalty %d", final, quote.CalculatedPenaltyCents))
		}
		if final <= 0 {
			return apperr.Validation("nothing to charge; waive the penalty instead")
		}

		policy, err := s.policies.Resolve(ctx, rec.LocationID)
		if err != nil {
			return fmt.Errorf("failed to resolve location policy: %w", err)
		}
		tax := pricing.TaxCents(final, policy.TaxRatePercent)
		if err := s.move(ctx, rec, change{
			update: Update{
				To:                     StatusPenaltyApproved,
				DaysOverdue:            &quote.DaysOverdue,
				CalculatedPenaltyCents: &quote.CalculatedPenaltyCents,
				FinalPenaltyCents:      &final,
				TaxCents:               &tax,
				ReviewedBy:             &actor.UserID,
				ReviewedAt:             &now,
			},
			source: SourceManager,
			actor:  &actor.UserID,
			note:   req.Note,
		}); err != nil {
			return err
		}
		if err := s.move(ctx, rec, change{update: Update{To: StatusChargePending}, source: SourceSystem}); err != nil {
			return err
		}
		return s.charge(ctx, rec, final, tax, quote.DaysOverdue)
	})
}

func (s *service) charge(ctx context.Context, rec *PenaltyRecord, final, tax int64, days int) error {
	g, err := s.bookings.GetGroup(ctx, rec.BookingGroupID)
	if err != nil {
		return err
	}
	if g.PaymentAuthorizationID == nil {
		return apperr.InvariantBreach("booking_group", g.ID.String(), "no payment authorization")
	}

	charged, err := s.payments.Charge(ctx, payments.ChargeCommand{
		GroupID:               g.ID,
		SourceAuthorizationID: *g.PaymentAuthorizationID,
		AmountCents:           final + tax,
		Description:           fmt.Sprintf("Storage overstay penalty, %d days", days),
		IdempotencyKey:        "penalty:" + rec.ID.String(),
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindPaymentFailure {
			return err
		}
		s.log.ErrorWithContext(ctx, "Overstay penalty charge failed", err, map[string]interface{}{
			"penalty_id":   rec.ID.String(),
			"amount_cents": final + tax,
		})
		reason := err.Error()
		if err := s.move(ctx, rec, change{
			update: Update{To: StatusChargeFailed, ChargeFailureReason: reason},
			source: SourceProcessor,
		}); err != nil {
			return err
		}
		return s.move(ctx, rec, change{update: Update{To: StatusEscalated}, source: SourceSystem, note: "charge failed; needs manual follow-up"})
	}

	if err := s.move(ctx, rec, change{
		update: Update{To: StatusChargeSucceeded, ChargeAuthorizationID: &charged.ID, ProcessorRef: charged.ProcessorRef},
		source: SourceProcessor,
	}); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Overstay penalty charged",
		slog.String("penalty_id", rec.ID.String()),
		slog.Int64("amount_cents", final+tax),
		slog.String("charge_id", charged.ID.String()),
	)
	return s.resolve(ctx, rec, change{source: SourceSystem})
}

func (s *service) Waive(ctx context.Context, actor users.Identity, id uuid.UUID, reason string) (*PenaltyRecord, error) {
	if !actor.CanReview() {
		return nil, apperr.Forbidden("only managers review penalties")
	}
	return s.locked(ctx, id, func(ctx context.Context, rec *PenaltyRecord) error {
		if err := requireStatus(rec, StatusPendingReview); err != nil {
			return err
		}
		now := s.clock()
		waived := true
		if err := s.move(ctx, rec, change{
			update: Update{
				To:          StatusPenaltyWaived,
				Waived:      &waived,
				WaiveReason: reason,
				ReviewedBy:  &actor.UserID,
				ReviewedAt:  &now,
			},
			source: SourceManager,
			actor:  &actor.UserID,
			note:   reason,
		}); err != nil {
			return err
		}
		return s.resolve(ctx, rec, change{source: SourceSystem})
	})
}

// Resolve closes an escalated record, e.g. after collecting off-platform
func (s *service) Resolve(ctx context.Context, actor users.Identity, id uuid.UUID, note string) (*PenaltyRecord, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins resolve escalated penalties")
	}
	return s.locked(ctx, id, func(ctx context.Context, rec *PenaltyRecord) error {
		if err := requireStatus(rec, StatusEscalated); err != nil {
			return err
		}
		return s.resolve(ctx, rec, change{
			update: Update{ResolutionNote: note},
			source: SourceAdmin,
			actor:  &actor.UserID,
			note:   note,
		})
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PenaltyRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, query ListQuery) ([]PenaltyRecord, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *service) Events(ctx context.Context, id uuid.UUID) ([]PenaltyEvent, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}
