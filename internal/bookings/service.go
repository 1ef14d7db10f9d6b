package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/pricing"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PaymentGateway is the part of the payment manager the ledger drives
type PaymentGateway interface {
	Authorize(ctx context.Context, cmd payments.AuthorizeCommand) (*payments.PaymentAuthorization, error)
	Capture(ctx context.Context, id uuid.UUID, amountCents int64) (*payments.PaymentAuthorization, error)
	Void(ctx context.Context, id uuid.UUID) (*payments.PaymentAuthorization, error)
	Get(ctx context.Context, id uuid.UUID) (*payments.PaymentAuthorization, error)
}

// Service interface defines the contract for the booking ledger
type Service interface {
	CreateGroup(ctx context.Context, actor users.Identity, req CreateGroupRequest) (*BookingGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*BookingGroup, error)
	ListGroups(ctx context.Context, query ListQuery) ([]BookingGroup, int64, error)
	GetStorage(ctx context.Context, id uuid.UUID) (*StorageBooking, error)
	AttachAddon(ctx context.Context, actor users.Identity, groupID uuid.UUID, req AddonRequest) (*BookingGroup, error)
	Transition(ctx context.Context, groupID uuid.UUID, from, to Status) (*BookingGroup, error)
	ApproveGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID) (*BookingGroup, error)
	RejectGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID, reason string) (*BookingGroup, error)
	CompleteGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID) (*BookingGroup, error)
}

// Deps wires the booking ledger
type Deps struct {
	Repo      Repository
	Payments  PaymentGateway
	Locker    txn.GroupLocker
	Policies  policies.Resolver
	Publisher notifications.Publisher
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	payments  PaymentGateway
	locker    txn.GroupLocker
	policies  policies.Resolver
	publisher notifications.Publisher
	log       *logger.Logger
	validate  *validator.Validate
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
		payments:  deps.Payments,
		locker:    deps.Locker,
		policies:  deps.Policies,
		publisher: deps.Publisher,
		log:       log.WithComponent("bookings"),
		validate:  validator.New(),
		clock:     func() time.Time { return clock().UTC() },
	}
}

// parseSlots returns the session start and the sorted slot list
func parseSlots(date string, slots []string) (time.Time, time.Time, []string, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, nil, apperr.Validation("booking_date must be YYYY-MM-DD")
	}
	sorted := append([]string(nil), slots...)
	sort.Strings(sorted)
	seen := make(map[string]struct{}, len(sorted))
	for _, s := range sorted {
		if _, err := time.Parse("15:04", s); err != nil {
			return time.Time{}, time.Time{}, nil, apperr.Validation(fmt.Sprintf("invalid time slot %q", s))
		}
		if _, dup := seen[s]; dup {
			return time.Time{}, time.Time{}, nil, apperr.Validation(fmt.Sprintf("duplicate time slot %q", s))
		}
		seen[s] = struct{}{}
	}
	first, _ := time.Parse("15:04", sorted[0])
	start := day.Add(time.Duration(first.Hour())*time.Hour + time.Duration(first.Minute())*time.Minute)
	return day, start, sorted, nil
}

func newStorage(g *BookingGroup, req StorageAddonRequest, minimumDays int) StorageBooking {
	start, end := req.StartDate.UTC(), req.EndDate.UTC()
	_, cents := pricing.StoragePrice(req.DailyRateCents, start, end, minimumDays)
	return StorageBooking{
		ID:               uuid.New(),
		BookingGroupID:   g.ID,
		ChefID:           g.ChefID,
		LocationID:       g.LocationID,
		StorageListingID: req.StorageListingID,
		StartDate:        start,
		EndDate:          end,
		DailyRateCents:   req.DailyRateCents,
		TotalPriceCents:  cents,
		Status:           g.Status,
		CheckoutStatus:   CheckoutActive,
	}
}

func newEquipment(g *BookingGroup, req EquipmentAddonRequest) EquipmentBooking {
	return EquipmentBooking{
		ID:                 uuid.New(),
		BookingGroupID:     g.ID,
		EquipmentListingID: req.EquipmentListingID,
		Units:              req.Units,
		RateCents:          req.RateCents,
		TotalPriceCents:    pricing.EquipmentPrice(req.RateCents, req.Units),
		Status:             g.Status,
	}
}

// priceGroup refreshes the stored totals from the active components
func priceGroup(g *BookingGroup, policy policies.LocationPolicy) pricing.BookingTotal {
	total := g.ActiveTotal()
	g.SubtotalCents = total.SubtotalCents
	g.TaxCents = total.TaxCents
	g.TotalPriceCents = total.GrandTotalCents
	g.ServiceFeeCents = pricing.PlatformFee(total.SubtotalCents, policy.PlatformFeePercent, policy.PlatformFlatFeeCents).FeeCents
	return total
}

func (s *service) CreateGroup(ctx context.Context, actor users.Identity, req CreateGroupRequest) (*BookingGroup, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	day, start, slots, err := parseSlots(req.BookingDate, req.TimeSlots)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.Resolve(ctx, req.LocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve location policy: %w", err)
	}

	g := &BookingGroup{
		ID:                uuid.New(),
		ChefID:            actor.UserID,
		KitchenID:         req.KitchenID,
		LocationID:        req.LocationID,
		BookingDate:       day,
		StartTime:         start,
		TimeSlots:         slots,
		HourlyRateCents:   req.HourlyRateCents,
		TaxRatePercent:    policy.TaxRatePercent,
		Status:            StatusPending,
		KitchenPriceCents: pricing.KitchenPrice(req.HourlyRateCents, len(slots)),
		SpecialNotes:      req.SpecialNotes,
	}
	for _, sr := range req.Storage {
		g.StorageBookings = append(g.StorageBookings, newStorage(g, sr, policy.MinimumStorageDays))
	}
	for _, er := range req.Equipment {
		g.EquipmentBookings = append(g.EquipmentBookings, newEquipment(g, er))
	}
	total := priceGroup(g, policy)

	hold, err := s.payments.Authorize(ctx, payments.AuthorizeCommand{
		GroupID:         g.ID,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		AmountCents:     total.GrandTotalCents,
		Description:     fmt.Sprintf("Kitchen booking %s", g.ID),
		IdempotencyKey:  fmt.Sprintf("group:%s:hold", g.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authorize booking hold: %w", err)
	}
	g.PaymentAuthorizationID = &hold.ID

	err = s.locker.Atomic(ctx, func(ctx context.Context) error {
		return s.repo.CreateGroup(ctx, g)
	})
	if err != nil {
		if _, voidErr := s.payments.Void(ctx, hold.ID); voidErr != nil {
			s.log.ErrorWithContext(ctx, "Failed to void hold for unpersisted booking group", voidErr, map[string]interface{}{
				"group_id":         g.ID.String(),
				"authorization_id": hold.ID.String(),
			})
		}
		return nil, fmt.Errorf("failed to persist booking group: %w", err)
	}

	s.log.InfoContext(ctx, "Booking group created",
		slog.String("group_id", g.ID.String()),
		slog.String("chef_id", g.ChefID.String()),
		slog.Int("storage_count", len(g.StorageBookings)),
		slog.Int("equipment_count", len(g.EquipmentBookings)),
		slog.Int64("total_cents", g.TotalPriceCents),
	)
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventBookingCreated, "booking_group", g.ID, g.ID, map[string]interface{}{
		"status":            g.Status,
		"total_price_cents": g.TotalPriceCents,
		"start_time":        g.StartTime,
	}).WithActor(actor.UserID))
	return g, nil
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (*BookingGroup, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *service) ListGroups(ctx context.Context, query ListQuery) ([]BookingGroup, int64, error) {
	return s.repo.ListGroups(ctx, query)
}

func (s *service) GetStorage(ctx context.Context, id uuid.UUID) (*StorageBooking, error) {
	return s.repo.GetStorage(ctx, id)
}

func (s *service) AttachAddon(ctx context.Context, actor users.Identity, groupID uuid.UUID, req AddonRequest) (*BookingGroup, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	var out *BookingGroup
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		g, err := s.repo.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !g.OwnedBy(actor.UserID) {
			return apperr.Forbidden("booking group belongs to another chef")
		}
		if g.Status != StatusPending {
			return apperr.InvalidTransition("booking_group", g.ID.String(), StatusPending.String(), g.Status.String())
		}
		policy, err := s.policies.Resolve(ctx, g.LocationID)
		if err != nil {
			return fmt.Errorf("failed to resolve location policy: %w", err)
		}

		var addonID uuid.UUID
		if req.Storage != nil {
			sb := newStorage(g, *req.Storage, policy.MinimumStorageDays)
			if err := s.repo.AddStorage(ctx, &sb); err != nil {
				return err
			}
			g.StorageBookings = append(g.StorageBookings, sb)
			addonID = sb.ID
		} else {
			eb := newEquipment(g, *req.Equipment)
			if err := s.repo.AddEquipment(ctx, &eb); err != nil {
				return err
			}
			g.EquipmentBookings = append(g.EquipmentBookings, eb)
			addonID = eb.ID
		}

		total := priceGroup(g, policy)
		next := Pricing{
			SubtotalCents:   g.SubtotalCents,
			TaxCents:        g.TaxCents,
			TotalPriceCents: g.TotalPriceCents,
			ServiceFeeCents: g.ServiceFeeCents,
		}

		hold, err := s.currentHold(ctx, g)
		if err != nil {
			return err
		}
		if total.GrandTotalCents > hold.AuthorizedAmountCents {
			wider, err := s.payments.Authorize(ctx, payments.AuthorizeCommand{
				GroupID:         g.ID,
				CustomerID:      hold.CustomerID,
				PaymentMethodID: hold.PaymentMethodID,
				AmountCents:     total.GrandTotalCents,
				Currency:        hold.Currency,
				Description:     fmt.Sprintf("Kitchen booking %s", g.ID),
				IdempotencyKey:  fmt.Sprintf("group:%s:reauth:%s", g.ID, addonID),
			})
			if err != nil {
				return fmt.Errorf("failed to widen booking hold: %w", err)
			}
			if _, err := s.payments.Void(ctx, hold.ID); err != nil {
				return fmt.Errorf("failed to void replaced hold: %w", err)
			}
			next.AuthorizationID = &wider.ID
			g.PaymentAuthorizationID = &wider.ID
		}
		if err := s.repo.SetGroupPricing(ctx, g.ID, next); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Add-on attached",
		slog.String("group_id", groupID.String()),
		slog.Int64("total_cents", out.TotalPriceCents),
	)
	return out, nil
}

func (s *service) currentHold(ctx context.Context, g *BookingGroup) (*payments.PaymentAuthorization, error) {
	if g.PaymentAuthorizationID == nil {
		return nil, apperr.InvariantBreach("booking_group", g.ID.String(), "no payment authorization")
	}
	return s.payments.Get(ctx, *g.PaymentAuthorizationID)
}

// Transition is the raw compare-and-swap on the group status machine. It
// cascades to linked bookings but moves no money.
func (s *service) Transition(ctx context.Context, groupID uuid.UUID, from, to Status) (*BookingGroup, error) {
	var out *BookingGroup
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		g, err := s.repo.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, g, from, to); err != nil {
			return err
		}
		out, err = s.repo.GetGroup(ctx, groupID)
		return err
	})
	return out, err
}

// transition must run under the group lock
func (s *service) transition(ctx context.Context, g *BookingGroup, from, to Status) error {
	if g.Status != from {
		return apperr.InvalidTransition("booking_group", g.ID.String(), from.String(), g.Status.String())
	}
	if !CanTransition(from, to) {
		return &apperr.Error{
			Kind:     apperr.KindInvalidTransition,
			Entity:   "booking_group",
			ID:       g.ID.String(),
			Expected: from.String(),
			Actual:   g.Status.String(),
			Message:  fmt.Sprintf("no transition from %s to %s", from, to),
		}
	}
	if err := s.repo.UpdateGroupStatus(ctx, g.ID, GroupChange{From: from, To: to, At: s.clock()}); err != nil {
		return err
	}
	g.Status = to

	s.log.LogTransition(ctx, "booking_group", g.ID.String(), from.String(), to.String())
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(notifications.EventBookingStatusChanged, "booking_group", g.ID, g.ID, map[string]interface{}{
		"from": from,
		"to":   to,
	}))
	return nil
}

func (s *service) ApproveGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID) (*BookingGroup, error) {
	var out *BookingGroup
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		g, err := s.repo.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if g.Status != StatusPending {
			return apperr.InvalidTransition("booking_group", g.ID.String(), StatusPending.String(), g.Status.String())
		}
		hold, err := s.currentHold(ctx, g)
		if err != nil {
			return err
		}

		amount := g.ActiveTotal().GrandTotalCents
		if _, err := s.payments.Capture(ctx, hold.ID, amount); err != nil {
			return fmt.Errorf("failed to capture booking hold: %w", err)
		}
		if err := s.transition(ctx, g, StatusPending, StatusConfirmed); err != nil {
			return err
		}
		out, err = s.repo.GetGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Booking group approved",
		slog.String("group_id", groupID.String()),
		slog.String("manager_id", actor.UserID.String()),
	)
	return out, nil
}

func (s *service) RejectGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID, reason string) (*BookingGroup, error) {
	var out *BookingGroup
	err := s.locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		g, err := s.repo.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if g.Status != StatusPending {
			return apperr.InvalidTransition("booking_group", g.ID.String(), StatusPending.String(), g.Status.String())
		}
		hold, err := s.currentHold(ctx, g)
		if err != nil {
			return err
		}
		if _, err := s.payments.Void(ctx, hold.ID); err != nil {
			return fmt.Errorf("failed to void booking hold: %w", err)
		}
		if err := s.transition(ctx, g, StatusPending, StatusCancelled); err != nil {
			return err
		}
		out, err = s.repo.GetGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Booking group rejected",
		slog.String("group_id", groupID.String()),
		slog.String("manager_id", actor.UserID.String()),
		slog.String("reason", reason),
	)
	return out, nil
}

func (s *service) CompleteGroup(ctx context.Context, actor users.Identity, groupID uuid.UUID) (*BookingGroup, error) {
	g, err := s.Transition(ctx, groupID, StatusConfirmed, StatusCompleted)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "Booking group completed",
		slog.String("group_id", groupID.String()),
		slog.String("actor_id", actor.UserID.String()),
	)
	return g, nil
}
