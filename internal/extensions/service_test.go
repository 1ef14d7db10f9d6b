package extensions

import (
	"context"
	"testing"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/bookings/bookingstest"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/users"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storageEnd = bookingstest.KitchenDay.AddDate(0, 0, 3)

type fixture struct {
	*bookingstest.Harness
	svc Service
	sb  *bookings.StorageBooking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := bookingstest.New(t)
	f := &fixture{
		Harness: h,
		svc: NewService(Deps{
			Repo:      NewMemoryRepository(),
			Bookings:  h.Repo,
			Payments:  h.Payments,
			Locker:    h.Locker,
			Policies:  h,
			Publisher: h.Events,
			Logger:    h.Log,
			Clock:     h.Clock.Now,
		}),
	}
	g := h.Confirmed(t, nil)
	f.sb = &g.StorageBookings[0]
	return f
}

func (f *fixture) requestDays(t *testing.T, days int) *ExtensionRequest {
	t.Helper()
	ext, err := f.svc.Request(context.Background(), f.Chef, f.sb.ID, CreateRequest{NewEndDate: storageEnd.AddDate(0, 0, days)})
	require.NoError(t, err)
	return ext
}

func (f *fixture) paid(t *testing.T) *ExtensionRequest {
	t.Helper()
	ext := f.requestDays(t, 5)
	ext, err := f.svc.Pay(context.Background(), f.Chef, ext.ID)
	require.NoError(t, err)
	return ext
}

func TestRequestPricesExtension(t *testing.T) {
	f := newFixture(t)
	ext := f.requestDays(t, 5)

	assert.Equal(t, StatusPending, ext.Status)
	assert.Equal(t, storageEnd, ext.CurrentEndDate)
	assert.Equal(t, 5, ext.ExtensionDays)
	assert.EqualValues(t, 10000, ext.BasePriceCents)
	assert.EqualValues(t, 1300, ext.TaxCents)
	assert.EqualValues(t, 11300, ext.TotalPriceCents)
	assert.Contains(t, f.Events.Types(), notifications.EventExtensionStatusChanged)

	_, err := f.svc.Request(context.Background(), f.Chef, f.sb.ID, CreateRequest{NewEndDate: storageEnd.AddDate(0, 0, 2)})
	require.ErrorIs(t, err, apperr.ErrPolicyViolation)
}

func TestRequestRules(t *testing.T) {
	f := newFixture(t)
	f.SetPolicy(func(p *policies.LocationPolicy) { p.MinimumExtensionDays = 3 })

	_, err := f.svc.Request(context.Background(), f.Chef, f.sb.ID, CreateRequest{NewEndDate: storageEnd.AddDate(0, 0, 2)})
	require.ErrorIs(t, err, apperr.ErrBelowMinimum)

	_, err = f.svc.Request(context.Background(), f.Chef, f.sb.ID, CreateRequest{NewEndDate: storageEnd.Add(-time.Hour)})
	require.ErrorIs(t, err, apperr.ErrValidation)

	stranger := users.Identity{UserID: uuid.New(), Role: users.RoleChef}
	_, err = f.svc.Request(context.Background(), stranger, f.sb.ID, CreateRequest{NewEndDate: storageEnd.AddDate(0, 0, 5)})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	pending := f.CreateGroup(t, nil)
	_, err = f.svc.Request(context.Background(), f.Chef, pending.StorageBookings[0].ID, CreateRequest{NewEndDate: storageEnd.AddDate(0, 0, 5)})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestPayChargesOffSession(t *testing.T) {
	f := newFixture(t)
	ext := f.paid(t)

	assert.Equal(t, StatusPaid, ext.Status)
	require.NotNil(t, ext.PaymentAuthorizationID)
	require.NotNil(t, ext.PaidAt)

	charge, err := f.Payments.Get(context.Background(), *ext.PaymentAuthorizationID)
	require.NoError(t, err)
	assert.Equal(t, payments.KindCharge, charge.Kind)
	assert.Equal(t, payments.StatusCaptured, charge.Status)
	assert.EqualValues(t, 11300, charge.CapturedAmountCents)

	_, err = f.svc.Pay(context.Background(), f.Chef, ext.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, 1, f.Processor.Calls("charge"))
}

func TestPayDeclinedStaysPending(t *testing.T) {
	f := newFixture(t)
	ext := f.requestDays(t, 5)
	f.Processor.Decline("pm_card")

	_, err := f.svc.Pay(context.Background(), f.Chef, ext.ID)
	require.ErrorIs(t, err, apperr.ErrPaymentFailure)

	got, err := f.svc.Get(context.Background(), ext.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.PaymentAuthorizationID)
}

func TestApproveExtendsStorage(t *testing.T) {
	f := newFixture(t)
	ext := f.paid(t)

	_, err := f.svc.Approve(context.Background(), f.Chef, ext.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	done, err := f.svc.Approve(context.Background(), f.Manager, ext.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.ReviewedBy)
	assert.Equal(t, f.Manager.UserID, *done.ReviewedBy)
	require.NotNil(t, done.CompletedAt)

	sb := f.Storage(t, f.sb.ID)
	assert.Equal(t, storageEnd.AddDate(0, 0, 5), sb.EndDate)
	assert.Equal(t, f.sb.TotalPriceCents+10000, sb.TotalPriceCents)

	_, err = f.svc.Reject(context.Background(), f.Manager, ext.ID, "changed my mind")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestApproveRejectsStaleEndDate(t *testing.T) {
	f := newFixture(t)
	first := f.paid(t)
	_, err := f.svc.Approve(context.Background(), f.Manager, first.ID)
	require.NoError(t, err)

	// paid extension still priced against the original end date
	repo := NewMemoryRepository()
	svc := NewService(Deps{Repo: repo, Bookings: f.Repo, Payments: f.Payments, Locker: f.Locker, Policies: f, Logger: f.Log, Clock: f.Clock.Now})
	stale := &ExtensionRequest{
		ID:               uuid.New(),
		StorageBookingID: f.sb.ID,
		BookingGroupID:   f.sb.BookingGroupID,
		ChefID:           f.sb.ChefID,
		CurrentEndDate:   storageEnd,
		NewEndDate:       storageEnd.AddDate(0, 0, 2),
		BasePriceCents:   4000,
		Status:           StatusPaid,
	}
	require.NoError(t, repo.Create(context.Background(), stale))

	_, err = svc.Approve(context.Background(), f.Manager, stale.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, storageEnd.AddDate(0, 0, 5), f.Storage(t, f.sb.ID).EndDate)

	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestApproveRefusedAfterCheckout(t *testing.T) {
	f := newFixture(t)
	ext := f.paid(t)

	at := f.Clock.Now()
	require.NoError(t, f.Repo.UpdateCheckout(context.Background(), f.sb.ID, bookings.CheckoutChange{
		From: bookings.CheckoutActive,
		To:   bookings.CheckoutRequested,
	}, at))
	require.NoError(t, f.Repo.UpdateCheckout(context.Background(), f.sb.ID, bookings.CheckoutChange{
		From: bookings.CheckoutRequested,
		To:   bookings.CheckoutApproved,
	}, at))
	require.NoError(t, f.Repo.UpdateStorageStatus(context.Background(), f.sb.ID, bookings.GroupChange{
		From: bookings.StatusConfirmed,
		To:   bookings.StatusCompleted,
		At:   at,
	}))

	_, err := f.svc.Approve(context.Background(), f.Manager, ext.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	sb := f.Storage(t, f.sb.ID)
	assert.Equal(t, storageEnd, sb.EndDate)
	assert.Equal(t, bookings.StatusCompleted, sb.Status)
	got, err := f.svc.Get(context.Background(), ext.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)

	rejected, err := f.svc.Reject(context.Background(), f.Manager, ext.ID, "storage already released")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, rejected.Status)
	charge, err := f.Payments.Get(context.Background(), *ext.PaymentAuthorizationID)
	require.NoError(t, err)
	assert.EqualValues(t, 11300, charge.RefundedAmountCents)
}

func TestApproveRefusedAfterCancellation(t *testing.T) {
	f := newFixture(t)
	ext := f.paid(t)

	require.NoError(t, f.Repo.UpdateStorageStatus(context.Background(), f.sb.ID, bookings.GroupChange{
		From: bookings.StatusConfirmed,
		To:   bookings.StatusCancelled,
		At:   f.Clock.Now(),
	}))

	_, err := f.svc.Approve(context.Background(), f.Manager, ext.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, storageEnd, f.Storage(t, f.sb.ID).EndDate)
}

func TestRejectPaidRefunds(t *testing.T) {
	f := newFixture(t)
	ext := f.paid(t)

	rejected, err := f.svc.Reject(context.Background(), f.Manager, ext.ID, "unit is booked after")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, rejected.Status)
	assert.Equal(t, "unit is booked after", rejected.RejectionReason)

	charge, err := f.Payments.Get(context.Background(), *ext.PaymentAuthorizationID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusRefunded, charge.Status)
	assert.EqualValues(t, 11300, charge.RefundedAmountCents)
	assert.Equal(t, storageEnd, f.Storage(t, f.sb.ID).EndDate)

	var path []interface{}
	for _, ev := range f.Events.Events() {
		if ev.Type == notifications.EventExtensionStatusChanged && ev.AggregateID == ext.ID {
			path = append(path, ev.Data["to"])
		}
	}
	assert.Equal(t, []interface{}{StatusPending, StatusPaid, StatusRejected, StatusRefunded}, path)
}

func TestRejectPendingSkipsRefund(t *testing.T) {
	f := newFixture(t)
	ext := f.requestDays(t, 5)

	rejected, err := f.svc.Reject(context.Background(), f.Manager, ext.ID, "no")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Zero(t, f.Processor.Calls("refund"))

	again := f.requestDays(t, 2)
	assert.Equal(t, StatusPending, again.Status)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusRejected, StatusRefunded))
	assert.False(t, CanTransition(StatusCompleted, StatusRejected))
	assert.False(t, CanTransition(StatusApproved, StatusRejected))
	assert.False(t, CanTransition(StatusPending, StatusApproved))
}
