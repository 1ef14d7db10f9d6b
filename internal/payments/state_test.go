package payments

import (
	"testing"

	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hold(amount int64) *PaymentAuthorization {
	return &PaymentAuthorization{
		ID:                    uuid.New(),
		Status:                StatusAuthorizedHold,
		AuthorizedAmountCents: amount,
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusAuthorizedHold, StatusCaptured, true},
		{StatusAuthorizedHold, StatusVoided, true},
		{StatusCaptured, StatusPartiallyRefunded, true},
		{StatusCaptured, StatusRefunded, true},
		{StatusPartiallyRefunded, StatusRefunded, true},
		{StatusCaptured, StatusVoided, false},
		{StatusVoided, StatusCaptured, false},
		{StatusRefunded, StatusPartiallyRefunded, false},
		{StatusAuthorizedHold, StatusRefunded, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPlanCommandCapture(t *testing.T) {
	a := hold(5000)

	next, applied, err := PlanCommand(a, OpCapture, 4000)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, Snapshot{Status: StatusCaptured, Captured: 4000}, next)

	_, _, err = PlanCommand(a, OpCapture, 5001)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	a.Status, a.CapturedAmountCents = StatusCaptured, 4000
	_, applied, err = PlanCommand(a, OpCapture, 4000)
	require.NoError(t, err)
	assert.False(t, applied, "capture replay is a no-op")
}

func TestPlanCommandVoidOnlyFromHold(t *testing.T) {
	a := hold(5000)
	a.Status, a.CapturedAmountCents = StatusCaptured, 5000

	_, _, err := PlanCommand(a, OpVoid, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	var detail *apperr.Error
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, string(StatusAuthorizedHold), detail.Expected)
	assert.Equal(t, string(StatusCaptured), detail.Actual)

	a.Status, a.CapturedAmountCents = StatusVoided, 0
	_, applied, err := PlanCommand(a, OpVoid, 0)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPlanCommandRefundBounds(t *testing.T) {
	a := hold(5000)
	a.Status, a.CapturedAmountCents = StatusCaptured, 5000

	next, applied, err := PlanCommand(a, OpRefund, 2000)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusPartiallyRefunded, next.Status)
	assert.Equal(t, int64(2000), next.Refunded)

	a.Status, a.RefundedAmountCents = next.Status, next.Refunded
	_, _, err = PlanCommand(a, OpRefund, 3001)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	next, _, err = PlanCommand(a, OpRefund, 3000)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, next.Status)

	_, _, err = PlanCommand(hold(100), OpRefund, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestPlanEventForwardOnly(t *testing.T) {
	a := hold(5000)

	next, ok := PlanEvent(a, WebhookEvent{Type: EventCaptured, AmountCents: 4500})
	require.True(t, ok)
	assert.Equal(t, int64(4500), next.Captured)

	a.Status, a.CapturedAmountCents = StatusCaptured, 4500

	_, ok = PlanEvent(a, WebhookEvent{Type: EventVoided})
	assert.False(t, ok, "void after capture is ignored")

	_, ok = PlanEvent(a, WebhookEvent{Type: EventCaptured, AmountCents: 5000})
	assert.False(t, ok, "second capture is ignored")

	next, ok = PlanEvent(a, WebhookEvent{Type: EventRefunded, AmountCents: 1500})
	require.True(t, ok)
	assert.Equal(t, StatusPartiallyRefunded, next.Status)

	a.Status, a.RefundedAmountCents = next.Status, next.Refunded
	_, ok = PlanEvent(a, WebhookEvent{Type: EventRefunded, AmountCents: 1000})
	assert.False(t, ok, "an older cumulative total never lowers the refunded amount")

	next, ok = PlanEvent(a, WebhookEvent{Type: EventRefunded, AmountCents: 9999})
	require.True(t, ok)
	assert.Equal(t, Snapshot{Status: StatusRefunded, Captured: 4500, Refunded: 4500}, next)
}

func TestAmountsStayWithinBounds(t *testing.T) {
	a := hold(10000)
	ops := []struct {
		op     Op
		amount int64
	}{
		{OpCapture, 8000}, {OpRefund, 3000}, {OpRefund, 6000}, {OpRefund, 5000}, {OpCapture, 100}, {OpVoid, 0},
	}
	for _, o := range ops {
		next, applied, err := PlanCommand(a, o.op, o.amount)
		if err != nil || !applied {
			continue
		}
		a.Status, a.CapturedAmountCents, a.RefundedAmountCents = next.Status, next.Captured, next.Refunded
		assert.LessOrEqual(t, a.CapturedAmountCents, a.AuthorizedAmountCents)
		assert.LessOrEqual(t, a.RefundedAmountCents, a.CapturedAmountCents)
	}
	assert.Equal(t, StatusRefunded, a.Status)
	assert.Equal(t, int64(8000), a.RefundedAmountCents)
}
