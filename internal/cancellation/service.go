package cancellation

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

// Service interface defines the contract for cancellation business logic
type Service interface {
	Evaluate(ctx context.Context, groupID uuid.UUID, storageID *uuid.UUID) (*Evaluation, error)
	CancelGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID, reason string) (*Result, error)
	CancelStorage(ctx context.Context, actor users.Identity, storageID uuid.UUID, reason string) (*Result, error)
	Resolve(ctx context.Context, actor users.Identity, requestID uuid.UUID, req ResolveRequest) (*Result, error)
	Get(ctx context.Context, id uuid.UUID) (*CancellationRequest, error)
	List(ctx context.Context, query ListQuery) ([]CancellationRequest, int64, error)
}

// PaymentGateway is the part of the payment manager cancellations drive
type PaymentGateway interface {
	Get(ctx context.Context, id uuid.UUID) (*payments.PaymentAuthorization, error)
	Void(ctx context.Context, id uuid.UUID) (*payments.PaymentAuthorization, error)
	Refund(ctx context.Context, cmd payments.RefundCommand) (*payments.PaymentAuthorization, error)
}

// Deps wires the cancellation service
type Deps struct {
	Repo      Repository
	Bookings  bookings.Repository
	Payments  PaymentGateway
	Locker    txn.GroupLocker
	Policies  policies.Resolver
	Publisher notifications.Publisher
	Logger    *logger.Logger
	Clock     func() time.Time
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
}

// NewService creates a new cancellation service instance
func NewService(deps Deps) Service {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{
		repo:      deps.Repo,
		bookings:  deps.Bookings,
		payments:  deps.Payments,
		locker:    deps.Locker,
		policies:  deps.Policies,
		publisher: deps.Publisher,
		log:       log.WithComponent("cancellation"),
		clock:     func() time.Time { return clock().UTC() },
	}
}

// target is the loaded state a cancellation decision is made on
type target struct {
	group   *bookings.BookingGroup
	storage *bookings.StorageBooking
	hold    *payments.PaymentAuthorization
	policy  policies.LocationPolicy
}

func (t *target) input(now time.Time) Input {
	in := Input{
		Entity:           "booking_group",
		ID:               t.group.ID.String(),
		Status:           t.group.Status,
		PaymentStatus:    t.hold.Status,
		StartsAt:         t.group.StartTime,
		Now:              now,
		WindowHours:      t.policy.CancellationPolicyHours,
		AllowLateRequest: t.policy.AllowLateRequestCancellation,
	}
	if t.storage != nil {
		in.Entity = "storage_booking"
		in.ID = t.storage.ID.String()
		in.Status = t.storage.Status
		in.StartsAt = t.storage.StartDate
	}
	return in
}

// refundCents is what a captured cancellation gives back. A storage add-on
// returns its own price plus the tax charged on it.
func (t *target) refundCents() int64 {
	if !t.hold.Status.IsCaptured() {
		return 0
	}
	if t.storage == nil {
		return t.hold.RefundableCents()
	}
	component := t.storage.TotalPriceCents + pricing.TaxCents(t.storage.TotalPriceCents, t.group.TaxRatePercent)
	return min(component, t.hold.RefundableCents())
}

func (s *service) load(ctx context.Context, groupID uuid.UUID, storageID *uuid.UUID) (*target, error) {
	g, err := s.bookings.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	t := &target{group: g}
	if storageID != nil {
		sb, ok := g.Storage(*storageID)
		if !ok {
			return nil, apperr.NotFound("storage_booking", storageID.String())
		}
		t.storage = sb
	}
	if g.PaymentAuthorizationID == nil {
		return nil, apperr.InvariantBreach("booking_group", g.ID.String(), "no payment authorization")
	}
	if t.hold, err = s.payments.Get(ctx, *g.PaymentAuthorizationID); err != nil {
		return nil, err
	}
	if t.policy, err = s.policies.Resolve(ctx, g.LocationID); err != nil {
		return nil, fmt.Errorf("failed to resolve location policy: %w", err)
	}
	return t, nil
}

func (s *service) Evaluate(ctx context.Context, groupID uuid.UUID, storageID *uuid.UUID) (*Evaluation, error) {
	t, err := s.load(ctx, groupID, storageID)
	if err != nil {
		return nil, err
	}
	ev, err := Evaluate(t.input(s.clock()))
	if err != nil {
		return nil, err
	}
	ev.RefundCents = t.refundCents()
	return &ev, nil
}

func (s *service) CancelGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID, reason string) (*Result, error) {
	return s.cancel(ctx, actor, groupID, nil, reason)
}

func (s *service) CancelStorage(ctx context.Context, actor users.Identity, storageID uuid.UUID, reason string) (*Result, error) {
	sb, err := s.bookings.GetStorage(ctx, storageID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, actor, sb.BookingGroupID, &storageID, reason)
}

func (s *service) cancel(ctx context.Context, actor users.Identity, groupID uuid.UUID, storageID *uuid.UUID, reason string) (*Result, error) {
	var result *Result
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		t, err := s.load(ctx, groupID, storageID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !t.group.OwnedBy(actor.UserID) {
			return apperr.Forbidden("booking belongs to another chef")
		}

		now := s.clock()
		ev, err := Evaluate(t.input(now))
		if err != nil {
			return err
		}
		if ev.Tier == TierRequest {
			result, err = s.openRequest(ctx, actor, t, reason, now)
		} else {
			result, err = s.cancelNow(ctx, t, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancelNow runs the immediate tier: the ledger moves to cancelled and an
// uncaptured hold is voided, or captured money refunded.
func (s *service) cancelNow(ctx context.Context, t *target, now time.Time) (*Result, error) {
	result := &Result{Tier: TierImmediate}
	refund := t.refundCents()

	switch {
	case refund > 0:
		key := "cancellation:group:" + t.group.ID.String()
		if t.storage != nil {
			key = "cancellation:storage:" + t.storage.ID.String()
		}
		a, err := s.payments.Refund(ctx, payments.RefundCommand{
			AuthorizationID: t.hold.ID,
			AmountCents:     refund,
			Reason:          "cancelled",
			IdempotencyKey:  key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to refund cancellation: %w", err)
		}
		result.Payment = a
	case t.storage == nil && t.hold.Status == payments.StatusAuthorizedHold:
		a, err := s.payments.Void(ctx, t.hold.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to void booking hold: %w", err)
		}
		result.Payment = a
	}

	change := bookings.GroupChange{To: bookings.StatusCancelled, At: now}
	if t.storage != nil {
		change.From = t.storage.Status
		if err := s.bookings.UpdateStorageStatus(ctx, t.storage.ID, change); err != nil {
			return nil, err
		}
		// The hold still covers the cancelled add-on; what approval captures shrinks
		if !t.hold.Status.IsCaptured() {
			if err := s.reprice(ctx, t); err != nil {
				return nil, err
			}
		}
		s.log.LogTransition(ctx, "storage_booking", t.storage.ID.String(), change.From.String(), change.To.String())
	} else {
		change.From = t.group.Status
		if err := s.bookings.UpdateGroupStatus(ctx, t.group.ID, change); err != nil {
			return nil, err
		}
		s.log.LogTransition(ctx, "booking_group", t.group.ID.String(), change.From.String(), change.To.String())
	}
	s.emitStatus(ctx, t, change)

	if err := s.reload(ctx, t, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) reprice(ctx context.Context, t *target) error {
	g, err := s.bookings.GetGroup(ctx, t.group.ID)
	if err != nil {
		return err
	}
	total := g.ActiveTotal()
	return s.bookings.SetGroupPricing(ctx, g.ID, bookings.Pricing{
		SubtotalCents:   total.SubtotalCents,
		TaxCents:        total.TaxCents,
		TotalPriceCents: total.GrandTotalCents,
		ServiceFeeCents: pricing.PlatformFee(total.SubtotalCents, t.policy.PlatformFeePercent, t.policy.PlatformFlatFeeCents).FeeCents,
	})
}

func (s *service) openRequest(ctx context.Context, actor users.Identity, t *target, reason string, now time.Time) (*Result, error) {
	change := bookings.GroupChange{From: bookings.StatusConfirmed, To: bookings.StatusCancellationRequested, At: now}
	req := &CancellationRequest{
		ID:             uuid.New(),
		BookingGroupID: t.group.ID,
		LocationID:     t.group.LocationID,
		RequestedBy:    actor.UserID,
		Reason:         reason,
		RefundCents:    t.refundCents(),
		RequestedAt:    now,
	}

	if t.storage != nil {
		req.StorageBookingID = &t.storage.ID
		if err := s.bookings.UpdateStorageStatus(ctx, t.storage.ID, change); err != nil {
			return nil, err
		}
	} else {
		// the group cascade would move an add-on out from under its own request
		for _, sb := range t.group.StorageBookings {
			if sb.Status == bookings.StatusCancellationRequested {
				return nil, apperr.PolicyViolation(apperr.CodeCancellationOpen,
					fmt.Sprintf("storage booking %s has an open cancellation request", sb.ID))
			}
		}
		if err := s.bookings.UpdateGroupStatus(ctx, t.group.ID, change); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Cancellation requested",
		slog.String("request_id", req.ID.String()),
		slog.String("group_id", t.group.ID.String()),
		slog.Int64("refund_cents", req.RefundCents),
	)
	s.emitStatus(ctx, t, change)
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventCancellationRequested, "cancellation_request", req.ID, t.group.ID, map[string]interface{}{
		"storage_booking_id": req.StorageBookingID,
		"refund_cents":       req.RefundCents,
	}).WithActor(actor.UserID))

	result := &Result{Tier: TierRequest, Request: req}
	if err := s.reload(ctx, t, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Resolve(ctx context.Context, actor users.Identity, requestID uuid.UUID, body ResolveRequest) (*Result, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.locker.WithGroupLock(ctx, req.BookingGroupID, func(ctx context.Context) error {
		req, err := s.repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.IsOpen() {
			return apperr.InvalidTransition("cancellation_request", req.ID.String(), "open", string(*req.Outcome))
		}
		t, err := s.load(ctx, req.BookingGroupID, req.StorageBookingID)
		if err != nil {
			return err
		}

		event := bookings.EventDeclineCancellation
		if body.Outcome == OutcomeAccepted {
			event = bookings.EventAcceptCancellation
		}
		from := t.group.Status
		if t.storage != nil {
			from = t.storage.Status
		}
		to, ok := bookings.Next(from, event)
		if !ok {
			return apperr.InvalidTransition("booking", t.input(s.clock()).ID, bookings.StatusCancellationRequested.String(), from.String())
		}

		result = &Result{Tier: TierRequest}
		if body.Outcome == OutcomeAccepted {
			if refund := t.refundCents(); refund > 0 {
				a, err := s.payments.Refund(ctx, payments.RefundCommand{
					AuthorizationID: t.hold.ID,
					AmountCents:     refund,
					Reason:          "cancellation accepted",
					IdempotencyKey:  "cancellation:" + req.ID.String(),
				})
				if err != nil {
					return fmt.Errorf("failed to refund cancellation: %w", err)
				}
				result.Payment = a
			}
		}

		now := s.clock()
		change := bookings.GroupChange{From: from, To: to, At: now}
		if t.storage != nil {
			err = s.bookings.UpdateStorageStatus(ctx, t.storage.ID, change)
		} else {
			err = s.bookings.UpdateGroupStatus(ctx, t.group.ID, change)
		}
		if err != nil {
			return err
		}
		if err := s.repo.Resolve(ctx, req.ID, body.Outcome, actor.UserID, body.Note, now); err != nil {
			return err
		}

		s.emitStatus(ctx, t, change)
		notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventCancellationResolved, "cancellation_request", req.ID, t.group.ID, map[string]interface{}{
			"outcome": body.Outcome,
		}).WithActor(actor.UserID))

		if result.Request, err = s.repo.GetByID(ctx, req.ID); err != nil {
			return err
		}
		return s.reload(ctx, t, result)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Cancellation request resolved",
		slog.String("request_id", requestID.String()),
		slog.String("outcome", string(body.Outcome)),
		slog.String("manager_id", actor.UserID.String()),
	)
	return result, nil
}

func (s *service) emitStatus(ctx context.Context, t *target, change bookings.GroupChange) {
	aggregate, id := "booking_group", t.group.ID
	if t.storage != nil {
		aggregate, id = "storage_booking", t.storage.ID
	}
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventBookingStatusChanged, aggregate, id, t.group.ID, map[string]interface{}{
		"from": change.From,
		"to":   change.To,
	}))
}

func (s *service) reload(ctx context.Context, t *target, result *Result) error {
	g, err := s.bookings.GetGroup(ctx, t.group.ID)
	if err != nil {
		return err
	}
	result.Group = g
	if t.storage != nil {
		result.Storage, _ = g.Storage(t.storage.ID)
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, query ListQuery) ([]CancellationRequest, int64, error) {
	return s.repo.List(ctx, query)
}
