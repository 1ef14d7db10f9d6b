package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/google/uuid"
)

// Service runs the storage checkout verification workflow
type Service interface {
	Request(ctx context.Context, actor users.Identity, storageID uuid.UUID, req CheckoutRequest) (*bookings.StorageBooking, error)
	Approve(ctx context.Context, actor users.Identity, storageID uuid.UUID) (*bookings.StorageBooking, error)
	Reject(ctx context.Context, actor users.Identity, storageID uuid.UUID, reason string) (*bookings.StorageBooking, error)
	FileClaim(ctx context.Context, actor users.Identity, storageID uuid.UUID, notes string) (*bookings.StorageBooking, error)
	// SweepReviewDeadlines auto-clears checkouts whose stored review deadline has passed
	SweepReviewDeadlines(ctx context.Context) (SweepResult, error)
}

type Deps struct {
	Bookings  bookings.Repository
	Locker    txn.GroupLocker
	Policies  policies.Resolver
	Publisher notifications.Publisher
	Logger    *logger.Logger
	Clock     func() time.Time
	BatchSize int
}

type service struct {
	bookings  bookings.Repository
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
		bookings:  deps.Bookings,
		locker:    deps.Locker,
		policies:  deps.Policies,
		publisher: deps.Publisher,
		log:       log.WithComponent("checkout"),
		clock:     func() time.Time { return clock().UTC() },
		batchSize: batch,
	}
}

// step is one checkout transition. prepare fills in the change and may veto it.
type step struct {
	event   bookings.CheckoutEvent
	source  string
	prepare func(ctx context.Context, sb *bookings.StorageBooking, change *bookings.CheckoutChange, now time.Time) error
}

func (s *service) advance(ctx context.Context, storageID uuid.UUID, st step) (*bookings.StorageBooking, error) {
	sb, err := s.bookings.GetStorage(ctx, storageID)
	if err != nil {
		return nil, err
	}

	var out *bookings.StorageBooking
	err = s.locker.WithGroupLock(ctx, sb.BookingGroupID, func(ctx context.Context) error {
		sb, err := s.bookings.GetStorage(ctx, storageID)
		if err != nil {
			return err
		}
		to, ok := bookings.NextCheckout(sb.CheckoutStatus, st.event)
		if !ok {
			return &apperr.Error{
				Kind:    apperr.KindInvalidTransition,
				Entity:  "storage_checkout",
				ID:      sb.ID.String(),
				Actual:  sb.CheckoutStatus.String(),
				Message: fmt.Sprintf("checkout cannot %s from %s", st.event, sb.CheckoutStatus),
			}
		}

		now := s.clock()
		change := bookings.CheckoutChange{From: sb.CheckoutStatus, To: to}
		if st.prepare != nil {
			if err := st.prepare(ctx, sb, &change, now); err != nil {
				return err
			}
		}
		if err := s.bookings.UpdateCheckout(ctx, sb.ID, change, now); err != nil {
			return err
		}
		if to == bookings.CheckoutApproved {
			if err := s.complete(ctx, sb, now); err != nil {
				return err
			}
		}

		s.log.LogTransition(ctx, "storage_checkout", sb.ID.String(), change.From.String(), to.String())
		notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventCheckoutStatusChanged, "storage_booking", sb.ID, sb.BookingGroupID, map[string]interface{}{
			"from":   change.From,
			"to":     to,
			"source": st.source,
		}))

		out, err = s.bookings.GetStorage(ctx, sb.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// complete finishes the storage booking once its checkout clears
func (s *service) complete(ctx context.Context, sb *bookings.StorageBooking, now time.Time) error {
	change := bookings.GroupChange{From: sb.Status, To: bookings.StatusCompleted, At: now}
	if err := s.bookings.UpdateStorageStatus(ctx, sb.ID, change); err != nil {
		return err
	}
	s.log.LogTransition(ctx, "storage_booking", sb.ID.String(), change.From.String(), change.To.String())
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventBookingStatusChanged, "storage_booking", sb.ID, sb.BookingGroupID, map[string]interface{}{
		"from": change.From,
		"to":   change.To,
	}))
	return nil
}

func requireConfirmed(sb *bookings.StorageBooking) error {
	if sb.Status != bookings.StatusConfirmed {
		return apperr.InvalidTransition("storage_booking", sb.ID.String(), bookings.StatusConfirmed.String(), sb.Status.String())
	}
	return nil
}

func (s *service) Request(ctx context.Context, actor users.Identity, storageID uuid.UUID, req CheckoutRequest) (*bookings.StorageBooking, error) {
	sb, err := s.advance(ctx, storageID, step{
		event:  bookings.CheckoutEventRequest,
		source: "chef",
		prepare: func(ctx context.Context, sb *bookings.StorageBooking, change *bookings.CheckoutChange, now time.Time) error {
			if !actor.IsAdmin() && sb.ChefID != actor.UserID {
				return apperr.Forbidden("storage booking belongs to another chef")
			}
			if err := requireConfirmed(sb); err != nil {
				return err
			}
			policy, err := s.policies.Resolve(ctx, sb.LocationID)
			if err != nil {
				return fmt.Errorf("failed to resolve location policy: %w", err)
			}
			deadline := now.Add(policy.ReviewWindow())
			change.RequestedAt = &now
			change.ReviewDeadline = &deadline
			change.PhotoURLs = req.PhotoURLs
			if change.PhotoURLs == nil {
				change.PhotoURLs = []string{}
			}
			change.Notes = req.Notes
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Checkout requested",
		slog.String("storage_booking_id", sb.ID.String()),
		slog.Int("photos", len(req.PhotoURLs)),
		slog.Time("review_deadline", *sb.CheckoutReviewDeadline),
	)
	return sb, nil
}

func (s *service) Approve(ctx context.Context, actor users.Identity, storageID uuid.UUID) (*bookings.StorageBooking, error) {
	return s.advance(ctx, storageID, step{
		event:   bookings.CheckoutEventApprove,
		source:  "manager",
		prepare: reviewed(actor, ""),
	})
}

func (s *service) Reject(ctx context.Context, actor users.Identity, storageID uuid.UUID, reason string) (*bookings.StorageBooking, error) {
	return s.advance(ctx, storageID, step{
		event:   bookings.CheckoutEventReject,
		source:  "manager",
		prepare: reviewed(actor, reason),
	})
}

func (s *service) FileClaim(ctx context.Context, actor users.Identity, storageID uuid.UUID, notes string) (*bookings.StorageBooking, error) {
	return s.advance(ctx, storageID, step{
		event:  bookings.CheckoutEventFileClaim,
		source: "manager",
		prepare: func(ctx context.Context, sb *bookings.StorageBooking, change *bookings.CheckoutChange, now time.Time) error {
			if err := reviewed(actor, "")(ctx, sb, change, now); err != nil {
				return err
			}
			change.ClaimNotes = notes
			return nil
		},
	})
}

func reviewed(actor users.Identity, denial string) func(context.Context, *bookings.StorageBooking, *bookings.CheckoutChange, time.Time) error {
	return func(_ context.Context, sb *bookings.StorageBooking, change *bookings.CheckoutChange, now time.Time) error {
		if !actor.CanReview() {
			return apperr.Forbidden("only managers review checkouts")
		}
		if change.To == bookings.CheckoutApproved {
			if err := requireConfirmed(sb); err != nil {
				return err
			}
		}
		change.ReviewedBy = &actor.UserID
		change.ReviewedAt = &now
		change.DenialReason = denial
		return nil
	}
}

func (s *service) SweepReviewDeadlines(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	now := s.clock()
	due, err := s.bookings.ListCheckoutReviewsDue(ctx, now, s.batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list checkout reviews due: %w", err)
	}

	result := SweepResult{Scanned: len(due)}
	for _, candidate := range due {
		advanced, err := s.autoClear(ctx, candidate.ID, now)
		if err != nil {
			result.Failed++
			s.log.ErrorWithContext(ctx, "Checkout auto-clear failed", err, map[string]interface{}{
				"storage_booking_id": candidate.ID.String(),
			})
			continue
		}
		if advanced {
			result.Advanced++
		}
	}

	result.Duration = time.Since(started)
	s.log.LogSweep(ctx, "checkout_review", result.Scanned, result.Advanced, result.Failed, result.Duration)
	return result, nil
}

// autoClear re-checks the stored deadline under the group lock, so a booking
// already cleared by a concurrent tick or a manager is left alone.
func (s *service) autoClear(ctx context.Context, storageID uuid.UUID, now time.Time) (bool, error) {
	var advanced bool
	_, err := s.advance(ctx, storageID, step{
		event:  bookings.CheckoutEventAutoClear,
		source: "system",
		prepare: func(_ context.Context, sb *bookings.StorageBooking, change *bookings.CheckoutChange, at time.Time) error {
			if sb.CheckoutReviewDeadline == nil || !now.After(*sb.CheckoutReviewDeadline) {
				return errNotDue
			}
			if err := requireConfirmed(sb); err != nil {
				return err
			}
			change.ReviewedAt = &at
			advanced = true
			return nil
		},
	})
	switch {
	case err == nil:
		return advanced, nil
	case errors.Is(err, errNotDue), apperr.KindOf(err) == apperr.KindInvalidTransition:
		return false, nil
	default:
		return false, err
	}
}

var errNotDue = errors.New("review deadline not reached")
