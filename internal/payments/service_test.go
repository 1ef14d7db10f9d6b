package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"kitchenhub/internal/notifications"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc       Service
	repo      *MemoryRepository
	processor *SandboxProcessor
	events    *notifications.MemoryPublisher
	groupID   uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      NewMemoryRepository(),
		processor: NewSandboxProcessor(),
		events:    notifications.NewMemoryPublisher(),
		groupID:   uuid.New(),
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Processor: f.processor,
		Locker:    txn.NewLocalGroupLocker(),
		Publisher: f.events,
		Logger:    logger.Discard(),
		Retry:     RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		Clock:     func() time.Time { return now },
	})
	return f
}

func (f *serviceFixture) authorize(t *testing.T, amount int64) *PaymentAuthorization {
	t.Helper()
	a, err := f.svc.Authorize(context.Background(), AuthorizeCommand{
		GroupID:         f.groupID,
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_card",
		AmountCents:     amount,
		IdempotencyKey:  "group:" + f.groupID.String() + ":hold",
	})
	require.NoError(t, err)
	return a
}

// flakyKeyRepository fails idempotency lookups the way a dropped connection would
type flakyKeyRepository struct {
	*MemoryRepository
}

func (r flakyKeyRepository) GetByIdempotencyKey(context.Context, string) (*PaymentAuthorization, error) {
	return nil, errors.New("connection reset by peer")
}

func TestKeyLookupFailureSkipsProcessor(t *testing.T) {
	processor := NewSandboxProcessor()
	svc := NewService(Deps{
		Repo:      flakyKeyRepository{NewMemoryRepository()},
		Processor: processor,
		Locker:    txn.NewLocalGroupLocker(),
		Publisher: notifications.NewMemoryPublisher(),
		Logger:    logger.Discard(),
	})

	_, err := svc.Authorize(context.Background(), AuthorizeCommand{
		GroupID:         uuid.New(),
		PaymentMethodID: "pm_card",
		AmountCents:     5000,
		IdempotencyKey:  "group:hold",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")

	_, err = svc.Charge(context.Background(), ChargeCommand{
		GroupID:               uuid.New(),
		SourceAuthorizationID: uuid.New(),
		AmountCents:           1000,
		IdempotencyKey:        "penalty:1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")

	assert.Zero(t, processor.Calls("authorize"))
	assert.Zero(t, processor.Calls("charge"))
}

func TestAuthorizeIsIdempotentByKey(t *testing.T) {
	f := newServiceFixture(t)

	first := f.authorize(t, 5000)
	second := f.authorize(t, 5000)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.processor.Calls("authorize"))
	assert.Equal(t, StatusAuthorizedHold, first.Status)
	assert.Equal(t, []notifications.EventType{notifications.EventPaymentAuthorized}, f.events.Types())
}

func TestAuthorizeRetriesTransientFailures(t *testing.T) {
	f := newServiceFixture(t)
	f.processor.FailNext(errors.New("connection reset"), errors.New("timeout"))

	a := f.authorize(t, 5000)

	assert.Equal(t, StatusAuthorizedHold, a.Status)
	assert.Equal(t, 3, f.processor.Calls("authorize"))
}

func TestAuthorizeDeclinedIsNotRetried(t *testing.T) {
	f := newServiceFixture(t)
	f.processor.Decline("pm_card")

	_, err := f.svc.Authorize(context.Background(), AuthorizeCommand{
		GroupID: f.groupID, PaymentMethodID: "pm_card", AmountCents: 5000,
	})

	require.ErrorIs(t, err, apperr.ErrPaymentFailure)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, f.processor.Calls("authorize"))
}

func TestCaptureThenReplay(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)

	captured, err := f.svc.Capture(ctx, a.ID, 4200)
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, captured.Status)
	assert.Equal(t, int64(4200), captured.CapturedAmountCents)

	again, err := f.svc.Capture(ctx, a.ID, 4200)
	require.NoError(t, err)
	assert.Equal(t, captured.CapturedAmountCents, again.CapturedAmountCents)
	assert.Equal(t, 1, f.processor.Calls("capture"))

	intent, ok := f.processor.Intent(a.ProcessorRef)
	require.True(t, ok)
	assert.Equal(t, int64(4200), intent.AmountReceivedCents)
}

func TestCaptureAboveAuthorizedFails(t *testing.T) {
	f := newServiceFixture(t)
	a := f.authorize(t, 5000)

	_, err := f.svc.Capture(context.Background(), a.ID, 5001)

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, f.processor.Calls("capture"))
}

func TestVoidAfterCaptureIsInvalid(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)
	_, err := f.svc.Capture(ctx, a.ID, 5000)
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, a.ID)

	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Zero(t, f.processor.Calls("void"))
}

func TestRefundDeduplicatesByKey(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)
	_, err := f.svc.Capture(ctx, a.ID, 5000)
	require.NoError(t, err)

	cmd := RefundCommand{AuthorizationID: a.ID, AmountCents: 2000, IdempotencyKey: "cancellation:abc"}
	first, err := f.svc.Refund(ctx, cmd)
	require.NoError(t, err)
	second, err := f.svc.Refund(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, StatusPartiallyRefunded, first.Status)
	assert.Equal(t, int64(2000), second.RefundedAmountCents)
	assert.Equal(t, 1, f.processor.Calls("refund"))

	rest, err := f.svc.Refund(ctx, RefundCommand{AuthorizationID: a.ID, AmountCents: 3000, IdempotencyKey: "manual:2"})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, rest.Status)

	_, err = f.svc.Refund(ctx, RefundCommand{AuthorizationID: a.ID, AmountCents: 1, IdempotencyKey: "manual:3"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestRefundRequiresKey(t *testing.T) {
	f := newServiceFixture(t)
	a := f.authorize(t, 5000)

	_, err := f.svc.Refund(context.Background(), RefundCommand{AuthorizationID: a.ID, AmountCents: 10})

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestChargeCreatesCapturedRow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	source := f.authorize(t, 5000)

	cmd := ChargeCommand{GroupID: f.groupID, SourceAuthorizationID: source.ID, AmountCents: 3390, IdempotencyKey: "penalty:p-1"}
	charge, err := f.svc.Charge(ctx, cmd)
	require.NoError(t, err)
	replay, err := f.svc.Charge(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, charge.ID, replay.ID)
	assert.Equal(t, KindCharge, charge.Kind)
	assert.Equal(t, StatusCaptured, charge.Status)
	assert.Equal(t, int64(3390), charge.CapturedAmountCents)
	assert.Equal(t, "pm_card", charge.PaymentMethodID)
	assert.Equal(t, 1, f.processor.Calls("charge"))

	list, err := f.svc.ListByGroup(ctx, f.groupID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestChargeDeclinedSurfacesPaymentFailure(t *testing.T) {
	f := newServiceFixture(t)
	source := f.authorize(t, 5000)
	f.processor.Decline("pm_card")

	_, err := f.svc.Charge(context.Background(), ChargeCommand{
		GroupID: f.groupID, SourceAuthorizationID: source.ID, AmountCents: 100, IdempotencyKey: "penalty:p-2",
	})

	assert.ErrorIs(t, err, apperr.ErrPaymentFailure)
}

func TestApplyEventIsExactlyOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)

	ev := WebhookEvent{Type: EventCaptured, AuthorizationRef: a.ProcessorRef, AmountCents: 5000, EventID: "evt_1"}
	first, applied, err := f.svc.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)

	second, applied, err := f.svc.ApplyEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first.Snapshot(), second.Snapshot())

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Status: StatusCaptured, Captured: 5000}, stored.Snapshot())
}

func TestApplyEventIgnoresOutOfOrderRefund(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)
	_, err := f.svc.Capture(ctx, a.ID, 5000)
	require.NoError(t, err)

	_, applied, err := f.svc.ApplyEvent(ctx, WebhookEvent{Type: EventRefunded, AuthorizationRef: a.ProcessorRef, AmountCents: 3000, EventID: "evt_b"})
	require.NoError(t, err)
	assert.True(t, applied)

	got, applied, err := f.svc.ApplyEvent(ctx, WebhookEvent{Type: EventRefunded, AuthorizationRef: a.ProcessorRef, AmountCents: 1000, EventID: "evt_a"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(3000), got.RefundedAmountCents)
}

func TestApplyEventUnknownReference(t *testing.T) {
	f := newServiceFixture(t)

	_, _, err := f.svc.ApplyEvent(context.Background(), WebhookEvent{Type: EventVoided, AuthorizationRef: "pi_unknown", EventID: "evt_x"})

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReconcileAppliesProcessorState(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	a := f.authorize(t, 5000)

	f.processor.SetIntent(IntentState{
		Ref:                 a.ProcessorRef,
		Status:              ProcessorSucceeded,
		AmountCents:         5000,
		AmountReceivedCents: 5000,
		AmountRefundedCents: 1200,
	})

	got, err := f.svc.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Status: StatusPartiallyRefunded, Captured: 5000, Refunded: 1200}, got.Snapshot())

	again, err := f.svc.Reconcile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Snapshot(), again.Snapshot())
	assert.Equal(t, []notifications.EventType{
		notifications.EventPaymentAuthorized,
		notifications.EventPaymentCaptured,
		notifications.EventPaymentRefunded,
	}, f.events.Types())
}
