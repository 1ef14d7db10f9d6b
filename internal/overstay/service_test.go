package overstay

import (
	"context"
	"sync"
	"testing"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/bookings/bookingstest"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The harness storage add-on ends 2026-03-13 00:00 and the default grace
// period is 24h, so penalties accrue from 2026-03-14 00:00.
var (
	storageEnd = bookingstest.KitchenDay.AddDate(0, 0, 3)
	graceEnd   = storageEnd.Add(24 * time.Hour)
)

type fixture struct {
	*bookingstest.Harness
	svc  Service
	repo *MemoryRepository
	sb   *bookings.StorageBooking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newBatchFixture(t, 0)
}

func newBatchFixture(t *testing.T, batch int) *fixture {
	t.Helper()
	h := bookingstest.New(t)
	f := &fixture{Harness: h, repo: NewMemoryRepository()}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Bookings:  h.Repo,
		Payments:  h.Payments,
		Locker:    h.Locker,
		Policies:  h,
		Publisher: h.Events,
		Logger:    h.Log,
		Clock:     h.Clock.Now,
		BatchSize: batch,
	})
	g := h.Confirmed(t, nil)
	f.sb = &g.StorageBookings[0]
	return f
}

func (f *fixture) sweepAt(t *testing.T, at time.Time) SweepResult {
	t.Helper()
	f.Clock.Set(at)
	result, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	return result
}

func (f *fixture) only(t *testing.T) *PenaltyRecord {
	t.Helper()
	records, total, err := f.svc.List(context.Background(), ListQuery{StorageBookingID: &f.sb.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	return &records[0]
}

// laterStorage confirms a second group whose storage ends two days after f.sb
func (f *fixture) laterStorage(t *testing.T) *bookings.StorageBooking {
	t.Helper()
	g := f.Confirmed(t, func(req *bookings.CreateGroupRequest) {
		req.Storage[0].EndDate = storageEnd.AddDate(0, 0, 2)
	})
	return &g.StorageBookings[0]
}

func (f *fixture) recordFor(t *testing.T, storageID uuid.UUID) *PenaltyRecord {
	t.Helper()
	records, total, err := f.svc.List(context.Background(), ListQuery{StorageBookingID: &storageID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	return &records[0]
}

func (f *fixture) pendingReview(t *testing.T) *PenaltyRecord {
	t.Helper()
	f.sweepAt(t, storageEnd.Add(6*time.Hour))
	f.sweepAt(t, graceEnd.Add(60*time.Hour))
	rec := f.only(t)
	require.Equal(t, StatusPendingReview, rec.Status)
	return rec
}

func trail(t *testing.T, svc Service, id uuid.UUID) []Status {
	t.Helper()
	events, err := svc.Events(context.Background(), id)
	require.NoError(t, err)
	out := make([]Status, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.NewStatus)
	}
	return out
}

func TestSweepDetectsOverstay(t *testing.T) {
	f := newFixture(t)

	result := f.sweepAt(t, storageEnd.Add(-time.Hour))
	assert.Zero(t, result.Detected)

	result = f.sweepAt(t, storageEnd.Add(6*time.Hour))
	assert.Equal(t, 1, result.Detected)

	rec := f.only(t)
	assert.Equal(t, StatusGracePeriod, rec.Status)
	assert.Equal(t, graceEnd, rec.GracePeriodEndsAt)
	assert.Equal(t, storageEnd, rec.EndDate)
	assert.Equal(t, int64(2000), rec.DailyRateCents)
	assert.Equal(t, 0.5, rec.PenaltyRate)

	sb := f.Storage(t, f.sb.ID)
	require.NotNil(t, sb.ActivePenaltyID)
	assert.Equal(t, rec.ID, *sb.ActivePenaltyID)

	assert.Equal(t, []Status{StatusDetected, StatusGracePeriod}, trail(t, f.svc, rec.ID))
	assert.Contains(t, f.Events.Types(), notifications.EventPenaltyStatusChanged)

	result = f.sweepAt(t, storageEnd.Add(7*time.Hour))
	assert.Zero(t, result.Detected)
	f.only(t)
}

func TestSweepMovesToReviewAndRecalculates(t *testing.T) {
	f := newFixture(t)
	f.sweepAt(t, storageEnd.Add(6*time.Hour))

	result := f.sweepAt(t, graceEnd.Add(-time.Minute))
	assert.Zero(t, result.Advanced)
	assert.Equal(t, StatusGracePeriod, f.only(t).Status)

	result = f.sweepAt(t, graceEnd.Add(60*time.Hour))
	assert.Equal(t, 1, result.Advanced)
	rec := f.only(t)
	assert.Equal(t, StatusPendingReview, rec.Status)
	assert.Equal(t, 3, rec.DaysOverdue)
	assert.Equal(t, int64(3000), rec.CalculatedPenaltyCents)

	f.sweepAt(t, graceEnd.Add(84*time.Hour))
	rec = f.only(t)
	assert.Equal(t, StatusPendingReview, rec.Status)
	assert.Equal(t, 4, rec.DaysOverdue)
	assert.Equal(t, int64(4000), rec.CalculatedPenaltyCents)
}

func TestApproveChargesPenaltyWithTax(t *testing.T) {
	f := newFixture(t)
	rec := f.pendingReview(t)

	_, err := f.svc.Approve(context.Background(), f.Chef, rec.ID, ApproveRequest{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.Approve(context.Background(), f.Manager, rec.ID, ApproveRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	require.NotNil(t, got.FinalPenaltyCents)
	assert.Equal(t, int64(3000), *got.FinalPenaltyCents)
	assert.Equal(t, int64(390), got.TaxCents)
	require.NotNil(t, got.ChargeAuthorizationID)
	assert.NotEmpty(t, got.ProcessorRef)
	assert.NotNil(t, got.ResolvedAt)

	charge, err := f.Payments.Get(context.Background(), *got.ChargeAuthorizationID)
	require.NoError(t, err)
	assert.Equal(t, payments.KindCharge, charge.Kind)
	assert.Equal(t, int64(3390), charge.CapturedAmountCents)

	assert.Nil(t, f.Storage(t, f.sb.ID).ActivePenaltyID)
	assert.Equal(t, []Status{
		StatusDetected, StatusGracePeriod, StatusPendingReview, StatusPenaltyApproved,
		StatusChargePending, StatusChargeSucceeded, StatusResolved,
	}, trail(t, f.svc, got.ID))

	result := f.sweepAt(t, graceEnd.Add(90*time.Hour))
	assert.Zero(t, result.Detected, "one end date yields one penalty")
}

func TestApproveWithLoweredAmount(t *testing.T) {
	f := newFixture(t)
	rec := f.pendingReview(t)

	over := int64(5000)
	_, err := f.svc.Approve(context.Background(), f.Manager, rec.ID, ApproveRequest{FinalPenaltyCents: &over})
	require.ErrorIs(t, err, apperr.ErrValidation)

	lowered := int64(1000)
	got, err := f.svc.Approve(context.Background(), f.Manager, rec.ID, ApproveRequest{FinalPenaltyCents: &lowered, Note: "first offence"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), *got.FinalPenaltyCents)
	assert.Equal(t, int64(3000), got.CalculatedPenaltyCents)
	assert.Equal(t, int64(130), got.TaxCents)

	charge, err := f.Payments.Get(context.Background(), *got.ChargeAuthorizationID)
	require.NoError(t, err)
	assert.Equal(t, int64(1130), charge.CapturedAmountCents)
}

func TestFailedChargeEscalates(t *testing.T) {
	f := newFixture(t)
	rec := f.pendingReview(t)
	f.Processor.Decline("pm_card")

	got, err := f.svc.Approve(context.Background(), f.Manager, rec.ID, ApproveRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, got.Status)
	assert.Contains(t, got.ChargeFailureReason, "card_declined")
	assert.Nil(t, got.ChargeAuthorizationID)
	assert.Equal(t, 1, f.Processor.Calls("charge"), "permanent declines are not retried")
	assert.NotNil(t, f.Storage(t, f.sb.ID).ActivePenaltyID)

	_, err = f.svc.Resolve(context.Background(), f.Manager, rec.ID, "paid cash")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	resolved, err := f.svc.Resolve(context.Background(), f.Admin, rec.ID, "paid cash")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, "paid cash", resolved.ResolutionNote)
	assert.Nil(t, f.Storage(t, f.sb.ID).ActivePenaltyID)

	events, err := f.svc.Events(context.Background(), rec.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, SourceAdmin, last.Source)
	assert.Equal(t, f.Admin.UserID, *last.ActorID)
}

func TestWaive(t *testing.T) {
	f := newFixture(t)
	rec := f.pendingReview(t)

	got, err := f.svc.Waive(context.Background(), f.Manager, rec.ID, "snowstorm")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.True(t, got.Waived)
	assert.Equal(t, "snowstorm", got.WaiveReason)
	assert.Zero(t, f.Processor.Calls("charge"))

	_, err = f.svc.Waive(context.Background(), f.Manager, rec.ID, "again")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestClosedPenaltiesDoNotHideNewOverstays(t *testing.T) {
	f := newBatchFixture(t, 1)
	second := f.laterStorage(t)

	f.sweepAt(t, storageEnd.Add(6*time.Hour))
	f.sweepAt(t, graceEnd.Add(time.Hour))
	rec := f.only(t)
	require.Equal(t, StatusPendingReview, rec.Status)
	_, err := f.svc.Waive(context.Background(), f.Manager, rec.ID, "first offence")
	require.NoError(t, err)

	result := f.sweepAt(t, storageEnd.AddDate(0, 0, 10))
	assert.Equal(t, 1, result.Detected)
	assert.NotNil(t, f.Storage(t, second.ID).ActivePenaltyID)
	// its grace already lapsed, so the same sweep moves it on
	assert.Equal(t, StatusPendingReview, f.recordFor(t, second.ID).Status)

	for i := 0; i < 3; i++ {
		result = f.sweepAt(t, storageEnd.AddDate(0, 0, 10).Add(time.Duration(i)*time.Minute))
		assert.Zero(t, result.Detected)
	}
	f.only(t)
}

func TestReviewsDoNotCrowdOutGracePeriod(t *testing.T) {
	f := newBatchFixture(t, 1)
	second := f.laterStorage(t)

	f.sweepAt(t, storageEnd.Add(6*time.Hour))
	f.sweepAt(t, graceEnd.Add(time.Hour))
	f.sweepAt(t, storageEnd.Add(50*time.Hour))
	require.Equal(t, StatusGracePeriod, f.recordFor(t, second.ID).Status)

	f.sweepAt(t, storageEnd.Add(73*time.Hour))
	assert.Equal(t, StatusPendingReview, f.only(t).Status)
	assert.Equal(t, StatusPendingReview, f.recordFor(t, second.ID).Status)
}

func TestReviewStopsAccruingOnceExtended(t *testing.T) {
	f := newFixture(t)
	rec := f.pendingReview(t)
	require.Equal(t, 3, rec.DaysOverdue)

	require.NoError(t, f.Repo.ExtendStorage(context.Background(), f.sb.ID, storageEnd, graceEnd.AddDate(0, 0, 30), 0))

	f.sweepAt(t, graceEnd.Add(120*time.Hour))
	got := f.only(t)
	assert.Equal(t, StatusPendingReview, got.Status)
	assert.Equal(t, 3, got.DaysOverdue)
	assert.Equal(t, int64(3000), got.CalculatedPenaltyCents)
}

func TestCheckoutSupersedesGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.sweepAt(t, storageEnd.Add(6*time.Hour))

	requestedAt := storageEnd.Add(8 * time.Hour)
	require.NoError(t, f.Repo.UpdateCheckout(context.Background(), f.sb.ID, bookings.CheckoutChange{
		From:        bookings.CheckoutActive,
		To:          bookings.CheckoutRequested,
		RequestedAt: &requestedAt,
	}, requestedAt))

	result := f.sweepAt(t, storageEnd.Add(10*time.Hour))
	assert.Equal(t, 1, result.Resolved)
	rec := f.only(t)
	assert.Equal(t, StatusResolved, rec.Status)
	assert.Nil(t, f.Storage(t, f.sb.ID).ActivePenaltyID)
}

func TestNoDetectionOnceCheckoutRequested(t *testing.T) {
	f := newFixture(t)
	at := storageEnd.Add(-time.Hour)
	require.NoError(t, f.Repo.UpdateCheckout(context.Background(), f.sb.ID, bookings.CheckoutChange{
		From: bookings.CheckoutActive,
		To:   bookings.CheckoutRequested,
	}, at))

	result := f.sweepAt(t, storageEnd.Add(48*time.Hour))
	assert.Zero(t, result.Detected)
	_, total, err := f.svc.List(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConcurrentSweepsOpenOneRecord(t *testing.T) {
	f := newFixture(t)
	f.Clock.Set(storageEnd.Add(6 * time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Sweep(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, StatusGracePeriod, f.only(t).Status)
}

func TestMemoryRepositoryRejectsSecondOpenRecord(t *testing.T) {
	repo := NewMemoryRepository()
	f := newFixture(t)
	first := &PenaltyRecord{StorageBookingID: f.sb.ID, Status: StatusGracePeriod}
	require.NoError(t, repo.Create(context.Background(), first))

	err := repo.Create(context.Background(), &PenaltyRecord{StorageBookingID: f.sb.ID, Status: StatusDetected})
	require.ErrorIs(t, err, apperr.ErrInvariantBreach)

	require.NoError(t, repo.Transition(context.Background(), first.ID, StatusGracePeriod, Update{To: StatusResolved}, time.Now()))
	require.NoError(t, repo.Create(context.Background(), &PenaltyRecord{StorageBookingID: f.sb.ID, Status: StatusDetected}))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusGracePeriod, StatusResolved))
	assert.True(t, CanTransition(StatusEscalated, StatusResolved))
	assert.False(t, CanTransition(StatusResolved, StatusPendingReview))
	assert.False(t, CanTransition(StatusPendingReview, StatusChargePending))
	assert.False(t, CanTransition(StatusChargeFailed, StatusChargePending), "failed charges are never retried automatically")
}
