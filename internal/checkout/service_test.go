package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/bookings/bookingstest"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/users"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	*bookingstest.Harness
	svc Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := bookingstest.New(t)
	return &fixture{
		Harness: h,
		svc: NewService(Deps{
			Bookings:  h.Repo,
			Locker:    h.Locker,
			Policies:  h,
			Publisher: h.Events,
			Logger:    h.Log,
			Clock:     h.Clock.Now,
		}),
	}
}

// requested returns a confirmed storage booking with a pending checkout
func (f *fixture) requested(t *testing.T) *bookings.StorageBooking {
	t.Helper()
	g := f.Confirmed(t, nil)
	sb, err := f.svc.Request(context.Background(), f.Chef, g.StorageBookings[0].ID, CheckoutRequest{
		PhotoURLs: []string{"https://cdn.example.com/unit-1.jpg"},
		Notes:     "emptied and wiped",
	})
	require.NoError(t, err)
	return sb
}

func TestRequestCheckoutStoresDeadline(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)

	assert.Equal(t, bookings.CheckoutRequested, sb.CheckoutStatus)
	require.NotNil(t, sb.CheckoutRequestedAt)
	require.NotNil(t, sb.CheckoutReviewDeadline)
	assert.Equal(t, bookingstest.Epoch, *sb.CheckoutRequestedAt)
	assert.Equal(t, bookingstest.Epoch.Add(48*time.Hour), *sb.CheckoutReviewDeadline)
	assert.Equal(t, []string{"https://cdn.example.com/unit-1.jpg"}, []string(sb.CheckoutPhotoURLs))
	assert.Equal(t, "emptied and wiped", sb.CheckoutNotes)
	assert.Contains(t, f.Events.Types(), notifications.EventCheckoutStatusChanged)

	_, err := f.svc.Request(context.Background(), f.Chef, sb.ID, CheckoutRequest{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestRequestCheckoutRules(t *testing.T) {
	f := newFixture(t)

	pending := f.CreateGroup(t, nil)
	_, err := f.svc.Request(context.Background(), f.Chef, pending.StorageBookings[0].ID, CheckoutRequest{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	confirmed := f.Confirmed(t, nil)
	stranger := users.Identity{UserID: uuid.New(), Role: users.RoleChef}
	_, err = f.svc.Request(context.Background(), stranger, confirmed.StorageBookings[0].ID, CheckoutRequest{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Request(context.Background(), f.Chef, uuid.New(), CheckoutRequest{})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApproveCheckoutCompletesStorage(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)

	_, err := f.svc.Approve(context.Background(), f.Chef, sb.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	approved, err := f.svc.Approve(context.Background(), f.Manager, sb.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.CheckoutApproved, approved.CheckoutStatus)
	assert.Equal(t, bookings.StatusCompleted, approved.Status)
	require.NotNil(t, approved.CheckoutReviewedBy)
	assert.Equal(t, f.Manager.UserID, *approved.CheckoutReviewedBy)

	_, err = f.svc.Reject(context.Background(), f.Manager, sb.ID, "too late")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestRejectCheckoutReturnsToActive(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)

	rejected, err := f.svc.Reject(context.Background(), f.Manager, sb.ID, "shelf still full")
	require.NoError(t, err)
	assert.Equal(t, bookings.CheckoutActive, rejected.CheckoutStatus)
	assert.Equal(t, "shelf still full", rejected.CheckoutDenialReason)
	assert.Equal(t, bookings.StatusConfirmed, rejected.Status)

	again, err := f.svc.Request(context.Background(), f.Chef, sb.ID, CheckoutRequest{Notes: "really empty now"})
	require.NoError(t, err)
	assert.Equal(t, bookings.CheckoutRequested, again.CheckoutStatus)
}

func TestFileClaim(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)

	claimed, err := f.svc.FileClaim(context.Background(), f.Manager, sb.ID, "broken shelf")
	require.NoError(t, err)
	assert.Equal(t, bookings.CheckoutClaimFiled, claimed.CheckoutStatus)
	assert.Equal(t, "broken shelf", claimed.CheckoutClaimNotes)
	assert.Equal(t, bookings.StatusConfirmed, claimed.Status)

	_, err = f.svc.Approve(context.Background(), f.Manager, sb.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestSweepAutoClearsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)

	f.Clock.Advance(47 * time.Hour)
	result, err := f.svc.SweepReviewDeadlines(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Equal(t, bookings.CheckoutRequested, f.Storage(t, sb.ID).CheckoutStatus)

	f.Clock.Advance(2 * time.Hour)
	result, err = f.svc.SweepReviewDeadlines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Advanced)

	got := f.Storage(t, sb.ID)
	assert.Equal(t, bookings.CheckoutApproved, got.CheckoutStatus)
	assert.Equal(t, bookings.StatusCompleted, got.Status)
	assert.Nil(t, got.CheckoutReviewedBy)

	result, err = f.svc.SweepReviewDeadlines(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Advanced)
}

func TestConcurrentSweepsClearOnce(t *testing.T) {
	f := newFixture(t)
	sb := f.requested(t)
	f.Clock.Advance(72 * time.Hour)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		advanced int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.SweepReviewDeadlines(context.Background())
			assert.NoError(t, err)
			assert.Zero(t, result.Failed)
			mu.Lock()
			advanced += result.Advanced
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, advanced)
	assert.Equal(t, bookings.CheckoutApproved, f.Storage(t, sb.ID).CheckoutStatus)

	cleared := 0
	for _, ev := range f.Events.Events() {
		if ev.Type == notifications.EventCheckoutStatusChanged && ev.Data["to"] == bookings.CheckoutApproved {
			cleared++
		}
	}
	assert.Equal(t, 1, cleared)
}
