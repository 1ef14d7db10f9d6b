package extensions

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

type Service interface {
	Request(ctx context.Context, actor users.Identity, storageID uuid.UUID, req CreateRequest) (*ExtensionRequest, error)
	Pay(ctx context.Context, actor users.Identity, id uuid.UUID) (*ExtensionRequest, error)
	Approve(ctx context.Context, actor users.Identity, id uuid.UUID) (*ExtensionRequest, error)
	Reject(ctx context.Context, actor users.Identity, id uuid.UUID, reason string) (*ExtensionRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error)
	ListByStorage(ctx context.Context, storageID uuid.UUID) ([]ExtensionRequest, error)
}

// PaymentGateway is the part of the payment manager extensions use
type PaymentGateway interface {
	Charge(ctx context.Context, cmd payments.ChargeCommand) (*payments.PaymentAuthorization, error)
	Refund(ctx context.Context, cmd payments.RefundCommand) (*payments.PaymentAuthorization, error)
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
		log:       log.WithComponent("extensions"),
		clock:     func() time.Time { return clock().UTC() },
	}
}

func (s *service) move(ctx context.Context, ext *ExtensionRequest, u Update, actor *uuid.UUID) error {
	from := ext.Status
	if !CanTransition(from, u.To) {
		return &apperr.Error{
			Kind:    apperr.KindInvalidTransition,
			Entity:  "storage_extension",
			ID:      ext.ID.String(),
			Actual:  from.String(),
			Message: fmt.Sprintf("no transition from %s to %s", from, u.To),
		}
	}
	if err := s.repo.Transition(ctx, ext.ID, from, u, s.clock()); err != nil {
		return err
	}
	ext.Status = u.To

	s.log.LogTransition(ctx, "storage_extension", ext.ID.String(), from.String(), u.To.String())
	ev := notifications.NewDomainEvent(notifications.EventExtensionStatusChanged, "storage_extension", ext.ID, ext.BookingGroupID, map[string]interface{}{
		"storage_booking_id": ext.StorageBookingID,
		"from":               from,
		"to":                 u.To,
		"new_end_date":       ext.NewEndDate,
		"total_price_cents":  ext.TotalPriceCents,
	})
	if actor != nil {
		ev = ev.WithActor(*actor)
	}
	notifications.Emit(ctx, s.publisher, ev)
	return nil
}

func (s *service) Request(ctx context.Context, actor users.Identity, storageID uuid.UUID, req CreateRequest) (*ExtensionRequest, error) {
	sb, err := s.bookings.GetStorage(ctx, storageID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && sb.ChefID != actor.UserID {
		return nil, apperr.Forbidden("storage booking belongs to another chef")
	}

	var ext *ExtensionRequest
	err = s.locker.WithGroupLock(ctx, sb.BookingGroupID, func(ctx context.Context) error {
		sb, err := s.bookings.GetStorage(ctx, storageID)
		if err != nil {
			return err
		}
		if err := extendable(sb); err != nil {
			return err
		}
		existing, err := s.repo.ListByStorage(ctx, sb.ID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status.IsOpen() {
				return apperr.PolicyViolation(apperr.CodeExtensionOpen, "another extension for this storage booking is still open")
			}
		}

		policy, err := s.policies.Resolve(ctx, sb.LocationID)
		if err != nil {
			return fmt.Errorf("failed to resolve location policy: %w", err)
		}
		quote, err := pricing.ExtensionPrice(sb.DailyRateCents, sb.EndDate, req.NewEndDate.UTC(), policy.MinimumExtensionDays, policy.TaxRatePercent)
		if err != nil {
			return err
		}

		ext = &ExtensionRequest{
			ID:               uuid.New(),
			StorageBookingID: sb.ID,
			BookingGroupID:   sb.BookingGroupID,
			ChefID:           sb.ChefID,
			LocationID:       sb.LocationID,
			CurrentEndDate:   sb.EndDate,
			NewEndDate:       req.NewEndDate.UTC(),
			ExtensionDays:    quote.Days,
			DailyRateCents:   sb.DailyRateCents,
			BasePriceCents:   quote.BasePriceCents,
			TaxCents:         quote.TaxCents,
			TotalPriceCents:  quote.TotalPriceCents,
			Status:           StatusPending,
		}
		return s.repo.Create(ctx, ext)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Storage extension requested",
		slog.String("extension_id", ext.ID.String()),
		slog.String("storage_booking_id", ext.StorageBookingID.String()),
		slog.Int("days", ext.ExtensionDays),
		slog.Int64("total_price_cents", ext.TotalPriceCents),
	)
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventExtensionStatusChanged, "storage_extension", ext.ID, ext.BookingGroupID, map[string]interface{}{
		"storage_booking_id": ext.StorageBookingID,
		"to":                 StatusPending,
		"new_end_date":       ext.NewEndDate,
		"total_price_cents":  ext.TotalPriceCents,
	}).WithActor(actor.UserID))
	return ext, nil
}

// locked loads an extension and runs fn under its group lock with a fresh copy
func (s *service) locked(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, ext *ExtensionRequest) error) (*ExtensionRequest, error) {
	ext, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *ExtensionRequest
	err = s.locker.WithGroupLock(ctx, ext.BookingGroupID, func(ctx context.Context) error {
		ext, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, ext); err != nil {
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

func requireStatus(ext *ExtensionRequest, want Status) error {
	if ext.Status != want {
		return apperr.InvalidTransition("storage_extension", ext.ID.String(), want.String(), ext.Status.String())
	}
	return nil
}

// Pay charges the extension total off-session against the group's payment method
func (s *service) Pay(ctx context.Context, actor users.Identity, id uuid.UUID) (*ExtensionRequest, error) {
	return s.locked(ctx, id, func(ctx context.Context, ext *ExtensionRequest) error {
		if !actor.IsAdmin() && ext.ChefID != actor.UserID {
			return apperr.Forbidden("extension belongs to another chef")
		}
		if err := requireStatus(ext, StatusPending); err != nil {
			return err
		}
		g, err := s.bookings.GetGroup(ctx, ext.BookingGroupID)
		if err != nil {
			return err
		}
		if g.PaymentAuthorizationID == nil {
			return apperr.InvariantBreach("booking_group", g.ID.String(), "no payment authorization")
		}

		charged, err := s.payments.Charge(ctx, payments.ChargeCommand{
			GroupID:               g.ID,
			SourceAuthorizationID: *g.PaymentAuthorizationID,
			AmountCents:           ext.TotalPriceCents,
			Description:           fmt.Sprintf("Storage extension, %d days", ext.ExtensionDays),
			IdempotencyKey:        "extension:" + ext.ID.String() + ":charge",
		})
		if err != nil {
			return err
		}
		now := s.clock()
		return s.move(ctx, ext, Update{To: StatusPaid, PaymentAuthorizationID: &charged.ID, PaidAt: &now}, &actor.UserID)
	})
}

// extendable requires a confirmed storage booking still in use
func extendable(sb *bookings.StorageBooking) error {
	if sb.Status != bookings.StatusConfirmed {
		return apperr.InvalidTransition("storage_booking", sb.ID.String(), bookings.StatusConfirmed.String(), sb.Status.String())
	}
	if sb.CheckoutStatus != bookings.CheckoutActive {
		return apperr.InvalidTransition("storage_booking", sb.ID.String(), bookings.CheckoutActive.String(), sb.CheckoutStatus.String())
	}
	return nil
}

// Approve moves the storage end date, then completes the extension. The end
// date swap expects the end date the extension was priced against.
func (s *service) Approve(ctx context.Context, actor users.Identity, id uuid.UUID) (*ExtensionRequest, error) {
	if !actor.CanReview() {
		return nil, apperr.Forbidden("only managers review extensions")
	}
	return s.locked(ctx, id, func(ctx context.Context, ext *ExtensionRequest) error {
		if err := requireStatus(ext, StatusPaid); err != nil {
			return err
		}
		// checked out or cancelled since payment: the manager rejects and the charge is refunded
		sb, err := s.bookings.GetStorage(ctx, ext.StorageBookingID)
		if err != nil {
			return err
		}
		if err := extendable(sb); err != nil {
			return err
		}
		if err := s.bookings.ExtendStorage(ctx, ext.StorageBookingID, ext.CurrentEndDate, ext.NewEndDate, ext.BasePriceCents); err != nil {
			return err
		}
		now := s.clock()
		if err := s.move(ctx, ext, Update{To: StatusApproved, ReviewedBy: &actor.UserID, ReviewedAt: &now}, &actor.UserID); err != nil {
			return err
		}
		return s.move(ctx, ext, Update{To: StatusCompleted, CompletedAt: &now}, nil)
	})
}

// Reject turns an extension down. A paid extension is refunded in full.
func (s *service) Reject(ctx context.Context, actor users.Identity, id uuid.UUID, reason string) (*ExtensionRequest, error) {
	if !actor.CanReview() {
		return nil, apperr.Forbidden("only managers review extensions")
	}
	return s.locked(ctx, id, func(ctx context.Context, ext *ExtensionRequest) error {
		if !ext.Status.IsOpen() {
			return apperr.InvalidTransition("storage_extension", ext.ID.String(), StatusPaid.String(), ext.Status.String())
		}
		paid := ext.Status == StatusPaid
		if paid {
			if ext.PaymentAuthorizationID == nil {
				return apperr.InvariantBreach("storage_extension", ext.ID.String(), "paid without a charge")
			}
			if _, err := s.payments.Refund(ctx, payments.RefundCommand{
				AuthorizationID: *ext.PaymentAuthorizationID,
				AmountCents:     ext.TotalPriceCents,
				Reason:          "extension rejected",
				IdempotencyKey:  "extension:" + ext.ID.String(),
			}); err != nil {
				return err
			}
		}

		now := s.clock()
		if err := s.move(ctx, ext, Update{To: StatusRejected, RejectionReason: reason, ReviewedBy: &actor.UserID, ReviewedAt: &now}, &actor.UserID); err != nil {
			return err
		}
		if !paid {
			return nil
		}
		return s.move(ctx, ext, Update{To: StatusRefunded}, nil)
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByStorage(ctx context.Context, storageID uuid.UUID) ([]ExtensionRequest, error) {
	if _, err := s.bookings.GetStorage(ctx, storageID); err != nil {
		return nil, err
	}
	return s.repo.ListByStorage(ctx, storageID)
}
