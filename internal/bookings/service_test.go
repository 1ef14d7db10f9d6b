package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	svc       Service
	repo      *MemoryRepository
	payments  payments.Service
	processor *payments.SandboxProcessor
	events    *notifications.MemoryPublisher
	chef      users.Identity
	manager   users.Identity
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	locker := txn.NewLocalGroupLocker()
	f := &ledgerFixture{
		repo:      NewMemoryRepository(),
		processor: payments.NewSandboxProcessor(),
		events:    notifications.NewMemoryPublisher(),
		chef:      users.Identity{UserID: uuid.New(), Role: users.RoleChef},
		manager:   users.Identity{UserID: uuid.New(), Role: users.RoleManager},
	}
	f.payments = payments.NewService(payments.Deps{
		Repo:      payments.NewMemoryRepository(),
		Processor: f.processor,
		Locker:    locker,
		Publisher: f.events,
		Logger:    logger.Discard(),
		Retry:     payments.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Clock:     clock,
	})
	policy := policies.Defaults(config.BookingDefaults{
		CancellationPolicyHours:   24,
		GracePeriodHours:          24,
		PenaltyRate:               0.5,
		TaxRatePercent:            13,
		CheckoutReviewWindowHours: 48,
		MinimumExtensionDays:      1,
		MinimumStorageDays:        1,
		PlatformFeePercent:        0.05,
		PlatformFlatFeeCents:      30,
	}, uuid.Nil)
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Payments:  f.payments,
		Locker:    locker,
		Policies:  policies.Static(policy),
		Publisher: f.events,
		Logger:    logger.Discard(),
		Clock:     clock,
	})
	return f
}

func (f *ledgerFixture) request() CreateGroupRequest {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return CreateGroupRequest{
		KitchenID:       uuid.New(),
		LocationID:      uuid.New(),
		BookingDate:     "2026-03-10",
		TimeSlots:       []string{"10:00", "09:00"},
		HourlyRateCents: 5000,
		Storage: []StorageAddonRequest{{
			StorageListingID: uuid.New(),
			StartDate:        start,
			EndDate:          start.AddDate(0, 0, 3),
			DailyRateCents:   1000,
		}},
		Equipment: []EquipmentAddonRequest{{
			EquipmentListingID: uuid.New(),
			Units:              2,
			RateCents:          500,
		}},
		CustomerID:      "cus_chef",
		PaymentMethodID: "pm_card",
	}
}

func (f *ledgerFixture) create(t *testing.T) *BookingGroup {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), f.chef, f.request())
	require.NoError(t, err)
	return g
}

func (f *ledgerFixture) hold(t *testing.T, g *BookingGroup) *payments.PaymentAuthorization {
	t.Helper()
	require.NotNil(t, g.PaymentAuthorizationID)
	a, err := f.payments.Get(context.Background(), *g.PaymentAuthorizationID)
	require.NoError(t, err)
	return a
}

func TestCreateGroupPricesAndAuthorizesOneHold(t *testing.T) {
	f := newLedgerFixture(t)

	g := f.create(t)

	assert.Equal(t, StatusPending, g.Status)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), g.StartTime)
	assert.Equal(t, []string{"09:00", "10:00"}, []string(g.TimeSlots))
	assert.Equal(t, int64(10000), g.KitchenPriceCents)
	// 10000 kitchen + 3000 storage + 1000 equipment, taxed at 13%
	assert.Equal(t, int64(14000), g.SubtotalCents)
	assert.Equal(t, int64(1820), g.TaxCents)
	assert.Equal(t, int64(15820), g.TotalPriceCents)
	assert.Equal(t, int64(730), g.ServiceFeeCents)

	hold := f.hold(t, g)
	assert.Equal(t, payments.StatusAuthorizedHold, hold.Status)
	assert.Equal(t, int64(15820), hold.AuthorizedAmountCents)
	assert.Equal(t, g.ID, hold.BookingGroupID)

	stored, err := f.repo.GetGroup(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, stored.StorageBookings, 1)
	assert.Equal(t, StatusPending, stored.StorageBookings[0].Status)
	assert.Equal(t, CheckoutActive, stored.StorageBookings[0].CheckoutStatus)
	assert.Contains(t, f.events.Types(), notifications.EventBookingCreated)
}

func TestCreateGroupRejectsBadSlots(t *testing.T) {
	f := newLedgerFixture(t)
	req := f.request()
	req.TimeSlots = []string{"25:00"}

	_, err := f.svc.CreateGroup(context.Background(), f.chef, req)

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, f.processor.Calls("authorize"))
}

func TestCreateGroupDeclinedCardPersistsNothing(t *testing.T) {
	f := newLedgerFixture(t)
	f.processor.Decline("pm_card")

	_, err := f.svc.CreateGroup(context.Background(), f.chef, f.request())

	assert.ErrorIs(t, err, apperr.ErrPaymentFailure)
	groups, total, err := f.repo.ListGroups(context.Background(), ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, groups)
}

func TestApproveCapturesActiveTotal(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()

	// A storage add-on cancelled before capture shrinks what is taken
	require.NoError(t, f.repo.UpdateStorageStatus(ctx, g.StorageBookings[0].ID,
		GroupChange{From: StatusPending, To: StatusCancelled, At: testNow}))

	approved, err := f.svc.ApproveGroup(ctx, f.manager, g.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, approved.Status)
	assert.Equal(t, StatusConfirmed, approved.EquipmentBookings[0].Status)
	assert.Equal(t, StatusCancelled, approved.StorageBookings[0].Status)

	hold := f.hold(t, approved)
	assert.Equal(t, payments.StatusCaptured, hold.Status)
	assert.Equal(t, int64(12430), hold.CapturedAmountCents) // (10000 + 1000) * 1.13
}

func TestApproveTwiceIsInvalidTransition(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()

	_, err := f.svc.ApproveGroup(ctx, f.manager, g.ID)
	require.NoError(t, err)
	_, err = f.svc.ApproveGroup(ctx, f.manager, g.ID)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInvalidTransition, appErr.Kind)
	assert.Equal(t, "pending", appErr.Expected)
	assert.Equal(t, "confirmed", appErr.Actual)
	assert.Equal(t, 1, f.processor.Calls("capture"))
}

func TestRejectVoidsHold(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)

	rejected, err := f.svc.RejectGroup(context.Background(), f.manager, g.ID, "kitchen closed")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, rejected.Status)
	assert.NotNil(t, rejected.CancelledAt)
	assert.Equal(t, StatusCancelled, rejected.StorageBookings[0].Status)
	assert.Equal(t, payments.StatusVoided, f.hold(t, rejected).Status)
}

func TestTransitionRequiresExpectedStatusAndKnownPair(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, g.ID, StatusConfirmed, StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, g.ID, StatusPending, StatusCompleted)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "no transition from pending to completed")

	stored, err := f.repo.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCompleteLeavesStorageForCheckout(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()
	_, err := f.svc.ApproveGroup(ctx, f.manager, g.ID)
	require.NoError(t, err)

	done, err := f.svc.CompleteGroup(ctx, f.manager, g.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, StatusCompleted, done.EquipmentBookings[0].Status)
	assert.Equal(t, StatusConfirmed, done.StorageBookings[0].Status)
}

func TestAttachAddonWidensHoldWhenNeeded(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()
	original := *g.PaymentAuthorizationID

	updated, err := f.svc.AttachAddon(ctx, f.chef, g.ID, AddonRequest{
		Equipment: &EquipmentAddonRequest{EquipmentListingID: uuid.New(), Units: 1, RateCents: 2000},
	})
	require.NoError(t, err)

	assert.Len(t, updated.EquipmentBookings, 2)
	assert.Equal(t, int64(18080), updated.TotalPriceCents) // 16000 * 1.13
	require.NotNil(t, updated.PaymentAuthorizationID)
	assert.NotEqual(t, original, *updated.PaymentAuthorizationID)

	old, err := f.payments.Get(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusVoided, old.Status)
	assert.Equal(t, int64(18080), f.hold(t, updated).AuthorizedAmountCents)
}

func TestAttachAddonRequiresPendingOwnedGroup(t *testing.T) {
	f := newLedgerFixture(t)
	g := f.create(t)
	ctx := context.Background()
	addon := AddonRequest{Equipment: &EquipmentAddonRequest{EquipmentListingID: uuid.New(), Units: 1, RateCents: 100}}

	other := users.Identity{UserID: uuid.New(), Role: users.RoleChef}
	_, err := f.svc.AttachAddon(ctx, other, g.ID, addon)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.ApproveGroup(ctx, f.manager, g.ID)
	require.NoError(t, err)
	_, err = f.svc.AttachAddon(ctx, f.chef, g.ID, addon)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestListGroupsFiltersAndPaginates(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t)
	}
	other := users.Identity{UserID: uuid.New(), Role: users.RoleChef}
	_, err := f.svc.CreateGroup(ctx, other, f.request())
	require.NoError(t, err)

	groups, total, err := f.svc.ListGroups(ctx, ListQuery{ChefID: &f.chef.UserID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, groups, 2)

	resp := NewGroupListResponse(groups, total, ListQuery{Limit: 2})
	assert.Equal(t, 2, resp.Pagination.TotalPages)
}
