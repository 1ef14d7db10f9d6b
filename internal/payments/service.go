package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kitchenhub/internal/notifications"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// AuthorizeCommand places the hold backing a booking group
type AuthorizeCommand struct {
	GroupID         uuid.UUID
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	Description     string
	IdempotencyKey  string
}

// RefundCommand gives captured money back. IdempotencyKey makes replays no-ops.
type RefundCommand struct {
	AuthorizationID uuid.UUID `json:"authorization_id"`
	AmountCents     int64     `json:"amount_cents"`
	Reason          string    `json:"reason"`
	IdempotencyKey  string    `json:"idempotency_key"`
}

// ChargeCommand takes money off-session using the payment method on a
// group's existing authorization.
type ChargeCommand struct {
	GroupID               uuid.UUID
	SourceAuthorizationID uuid.UUID
	AmountCents           int64
	Description           string
	IdempotencyKey        string
}

// RetryPolicy bounds processor retries
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is three retries starting at 200ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}
}

// Service owns the hold, capture, void and refund lifecycle. It is the only
// caller of the Processor.
type Service interface {
	Authorize(ctx context.Context, cmd AuthorizeCommand) (*PaymentAuthorization, error)
	Capture(ctx context.Context, id uuid.UUID, amountCents int64) (*PaymentAuthorization, error)
	Void(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error)
	Refund(ctx context.Context, cmd RefundCommand) (*PaymentAuthorization, error)
	Charge(ctx context.Context, cmd ChargeCommand) (*PaymentAuthorization, error)
	ApplyEvent(ctx context.Context, ev WebhookEvent) (*PaymentAuthorization, bool, error)
	Reconcile(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error)
	Get(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]PaymentAuthorization, error)
}

// Deps wires the payment service
type Deps struct {
	Repo      Repository
	Processor Processor
	Locker    txn.GroupLocker
	Publisher notifications.Publisher
	Logger    *logger.Logger
	Retry     RetryPolicy
	Currency  string
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	processor Processor
	locker    txn.GroupLocker
	publisher notifications.Publisher
	log       *logger.Logger
	retry     RetryPolicy
	currency  string
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
	currency := deps.Currency
	if currency == "" {
		currency = "cad"
	}
	retry := deps.Retry
	if retry.InitialInterval == 0 {
		retry = DefaultRetryPolicy()
	}
	return &service{
		repo:      deps.Repo,
		processor: deps.Processor,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		log:       log.WithComponent("payments"),
		retry:     retry,
		currency:  currency,
		clock:     func() time.Time { return clock().UTC() },
	}
}

// call runs a processor operation with bounded exponential backoff.
// Permanent errors stop immediately.
func (s *service) call(ctx context.Context, op string, fn func() (IntentState, error)) (IntentState, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialInterval
	exp.MaxInterval = s.retry.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, s.retry.MaxRetries), ctx)

	var st IntentState
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		var err error
		st, err = fn()
		if err != nil && errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.log.WarnContext(ctx, "Processor call failed, retrying",
				slog.String("operation", op),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
		}
		return err
	}, policy)
	if err != nil {
		return IntentState{}, apperr.PaymentFailure(op, err)
	}
	return st, nil
}

func (s *service) emit(ctx context.Context, t notifications.EventType, a *PaymentAuthorization) {
	notifications.Emit(ctx, s.publisher, notifications.NewDomainEvent(t, "payment_authorization", a.ID, a.BookingGroupID, map[string]interface{}{
		"status":                  a.Status,
		"kind":                    a.Kind,
		"authorized_amount_cents": a.AuthorizedAmountCents,
		"captured_amount_cents":   a.CapturedAmountCents,
		"refunded_amount_cents":   a.RefundedAmountCents,
	}))
}

func eventTypeFor(status Status) notifications.EventType {
	switch status {
	case StatusCaptured:
		return notifications.EventPaymentCaptured
	case StatusVoided:
		return notifications.EventPaymentVoided
	default:
		return notifications.EventPaymentRefunded
	}
}

// replayed returns the authorization an earlier call stored under key, or
// nil when there is none
func (s *service) replayed(ctx context.Context, key string) (*PaymentAuthorization, error) {
	existing, err := s.repo.GetByIdempotencyKey(ctx, key)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return existing, nil
}

func (s *service) Authorize(ctx context.Context, cmd AuthorizeCommand) (*PaymentAuthorization, error) {
	if cmd.AmountCents <= 0 {
		return nil, apperr.Validation("authorization amount must be positive")
	}
	if cmd.IdempotencyKey != "" {
		if existing, err := s.replayed(ctx, cmd.IdempotencyKey); err != nil || existing != nil {
			return existing, err
		}
	}

	currency := cmd.Currency
	if currency == "" {
		currency = s.currency
	}
	st, err := s.call(ctx, "authorize", func() (IntentState, error) {
		return s.processor.Authorize(ctx, IntentRequest{
			AmountCents:     cmd.AmountCents,
			Currency:        currency,
			CustomerID:      cmd.CustomerID,
			PaymentMethodID: cmd.PaymentMethodID,
			Description:     cmd.Description,
			IdempotencyKey:  cmd.IdempotencyKey,
			Metadata:        map[string]string{"booking_group_id": cmd.GroupID.String(), "kind": string(KindHold)},
		})
	})
	s.log.LogPaymentOperation(ctx, "authorize", cmd.GroupID.String(), cmd.AmountCents, err)
	if err != nil {
		return nil, err
	}

	a := &PaymentAuthorization{
		ID:                    uuid.New(),
		BookingGroupID:        cmd.GroupID,
		Kind:                  KindHold,
		ProcessorRef:          st.Ref,
		CustomerID:            cmd.CustomerID,
		PaymentMethodID:       cmd.PaymentMethodID,
		Currency:              currency,
		AuthorizedAmountCents: cmd.AmountCents,
		Status:                StatusAuthorizedHold,
		Description:           cmd.Description,
	}
	if cmd.IdempotencyKey != "" {
		key := cmd.IdempotencyKey
		a.IdempotencyKey = &key
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.emit(ctx, notifications.EventPaymentAuthorized, a)
	return a, nil
}

// mutate plans op against the stored authorization, calls the processor and
// swaps the stored state. Replays already reflected locally skip the processor.
func (s *service) mutate(ctx context.Context, id uuid.UUID, op Op, amountCents int64, key string,
	call func(a *PaymentAuthorization) (IntentState, error)) (*PaymentAuthorization, error) {

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, applied, err := PlanCommand(a, op, amountCents)
	if err != nil {
		return nil, err
	}
	if !applied {
		return a, nil
	}

	_, err = s.call(ctx, string(op), func() (IntentState, error) { return call(a) })
	s.log.LogPaymentOperation(ctx, string(op), id.String(), amountCents, err)
	if err != nil {
		return nil, err
	}

	if key != "" {
		fresh, err := s.repo.MarkProcessed(ctx, ProcessedEvent{EventID: key, AuthorizationID: id, Type: string(op), ProcessedAt: s.clock()})
		if err != nil {
			return nil, err
		}
		if !fresh {
			return s.repo.GetByID(ctx, id)
		}
	}

	prev := a.Snapshot()
	if err := s.repo.UpdateState(ctx, id, prev, next, s.clock()); err != nil {
		return nil, err
	}
	a.Status, a.CapturedAmountCents, a.RefundedAmountCents = next.Status, next.Captured, next.Refunded

	s.log.LogTransition(ctx, "payment_authorization", id.String(), string(prev.Status), string(next.Status))
	s.emit(ctx, eventTypeFor(next.Status), a)
	return a, nil
}

func (s *service) Capture(ctx context.Context, id uuid.UUID, amountCents int64) (*PaymentAuthorization, error) {
	return s.mutate(ctx, id, OpCapture, amountCents, "", func(a *PaymentAuthorization) (IntentState, error) {
		return s.processor.Capture(ctx, a.ProcessorRef, amountCents, "capture:"+a.ID.String())
	})
}

func (s *service) Void(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error) {
	return s.mutate(ctx, id, OpVoid, 0, "", func(a *PaymentAuthorization) (IntentState, error) {
		return s.processor.Void(ctx, a.ProcessorRef, "void:"+a.ID.String())
	})
}

func (s *service) Refund(ctx context.Context, cmd RefundCommand) (*PaymentAuthorization, error) {
	if cmd.IdempotencyKey == "" {
		return nil, apperr.Validation("refund requires an idempotency key")
	}
	dedupKey := "refund:" + cmd.IdempotencyKey
	done, err := s.repo.IsProcessed(ctx, dedupKey)
	if err != nil {
		return nil, err
	}
	if done {
		return s.repo.GetByID(ctx, cmd.AuthorizationID)
	}

	return s.mutate(ctx, cmd.AuthorizationID, OpRefund, cmd.AmountCents, dedupKey, func(a *PaymentAuthorization) (IntentState, error) {
		return s.processor.Refund(ctx, a.ProcessorRef, cmd.AmountCents, dedupKey)
	})
}

func (s *service) Charge(ctx context.Context, cmd ChargeCommand) (*PaymentAuthorization, error) {
	if cmd.AmountCents <= 0 {
		return nil, apperr.Validation("charge amount must be positive")
	}
	if cmd.IdempotencyKey == "" {
		return nil, apperr.Validation("charge requires an idempotency key")
	}
	if existing, err := s.replayed(ctx, cmd.IdempotencyKey); err != nil || existing != nil {
		return existing, err
	}

	source, err := s.repo.GetByID(ctx, cmd.SourceAuthorizationID)
	if err != nil {
		return nil, err
	}

	st, err := s.call(ctx, "charge", func() (IntentState, error) {
		return s.processor.Charge(ctx, IntentRequest{
			AmountCents:     cmd.AmountCents,
			Currency:        source.Currency,
			CustomerID:      source.CustomerID,
			PaymentMethodID: source.PaymentMethodID,
			Description:     cmd.Description,
			IdempotencyKey:  cmd.IdempotencyKey,
			Metadata:        map[string]string{"booking_group_id": cmd.GroupID.String(), "kind": string(KindCharge)},
		})
	})
	s.log.LogPaymentOperation(ctx, "charge", cmd.GroupID.String(), cmd.AmountCents, err)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	key := cmd.IdempotencyKey
	a := &PaymentAuthorization{
		ID:                    uuid.New(),
		BookingGroupID:        cmd.GroupID,
		Kind:                  KindCharge,
		ProcessorRef:          st.Ref,
		IdempotencyKey:        &key,
		CustomerID:            source.CustomerID,
		PaymentMethodID:       source.PaymentMethodID,
		Currency:              source.Currency,
		AuthorizedAmountCents: cmd.AmountCents,
		CapturedAmountCents:   cmd.AmountCents,
		Status:                StatusCaptured,
		Description:           cmd.Description,
		CapturedAt:            &now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.emit(ctx, notifications.EventPaymentCharged, a)
	return a, nil
}

// ApplyEvent consumes one processor confirmation exactly once. The returned
// bool is false for duplicates and for events the current state already reflects.
func (s *service) ApplyEvent(ctx context.Context, ev WebhookEvent) (*PaymentAuthorization, bool, error) {
	if ev.EventID == "" {
		return nil, false, apperr.Validation("event id is required")
	}
	a, err := s.repo.GetByProcessorRef(ctx, ev.AuthorizationRef)
	if err != nil {
		return nil, false, err
	}

	var applied bool
	err = s.locker.WithGroupLock(ctx, a.BookingGroupID, func(ctx context.Context) error {
		fresh, err := s.repo.MarkProcessed(ctx, ProcessedEvent{
			EventID:         ev.EventID,
			AuthorizationID: a.ID,
			Type:            string(ev.Type),
			ProcessedAt:     s.clock(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			s.log.DebugContext(ctx, "Duplicate payment event ignored", slog.String("event_id", ev.EventID))
			return nil
		}

		current, err := s.repo.GetByID(ctx, a.ID)
		if err != nil {
			return err
		}
		applied, err = s.applySnapshot(ctx, current, ev)
		a = current
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("apply payment event %s: %w", ev.EventID, err)
	}
	return a, applied, nil
}

// applySnapshot must run under the group lock
func (s *service) applySnapshot(ctx context.Context, a *PaymentAuthorization, ev WebhookEvent) (bool, error) {
	next, ok := PlanEvent(a, ev)
	if !ok {
		return false, nil
	}
	prev := a.Snapshot()
	if err := s.repo.UpdateState(ctx, a.ID, prev, next, s.clock()); err != nil {
		return false, err
	}
	a.Status, a.CapturedAmountCents, a.RefundedAmountCents = next.Status, next.Captured, next.Refunded

	s.log.LogTransition(ctx, "payment_authorization", a.ID.String(), string(prev.Status), string(next.Status))
	s.emit(ctx, eventTypeFor(next.Status), a)
	return true, nil
}

// Reconcile re-reads the processor's view and applies whatever forward
// transitions it implies. It never moves state backwards.
func (s *service) Reconcile(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.call(ctx, "lookup", func() (IntentState, error) {
		return s.processor.Lookup(ctx, a.ProcessorRef)
	})
	if err != nil {
		return nil, err
	}

	err = s.locker.WithGroupLock(ctx, a.BookingGroupID, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		for _, ev := range eventsFromState(st) {
			if _, err := s.applySnapshot(ctx, current, ev); err != nil {
				return err
			}
		}
		a = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile payment %s: %w", id, err)
	}
	return a, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]PaymentAuthorization, error) {
	return s.repo.ListByGroup(ctx, groupID)
}
