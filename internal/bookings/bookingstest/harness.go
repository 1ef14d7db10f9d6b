// Package bookingstest wires the booking ledger to in-memory repositories,
// the sandbox processor and a controllable clock for workflow tests.
package bookingstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Epoch is the default harness time
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// KitchenDay is the default booking date
var KitchenDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

// Clock is a settable time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// DefaultPolicy mirrors the shipped configuration defaults
func DefaultPolicy() policies.LocationPolicy {
	return policies.Defaults(config.BookingDefaults{
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
}

// Harness is a fully wired in-memory ledger
type Harness struct {
	Clock       *Clock
	Locker      *txn.LocalGroupLocker
	Events      *notifications.MemoryPublisher
	Processor   *payments.SandboxProcessor
	PaymentRepo *payments.MemoryRepository
	Payments    payments.Service
	Repo        *bookings.MemoryRepository
	Ledger      bookings.Service
	Log         *logger.Logger

	Chef    users.Identity
	Manager users.Identity
	Admin   users.Identity

	mu     sync.Mutex
	policy policies.LocationPolicy
}

func New(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{
		Clock:       NewClock(Epoch),
		Locker:      txn.NewLocalGroupLocker(),
		Events:      notifications.NewMemoryPublisher(),
		Processor:   payments.NewSandboxProcessor(),
		PaymentRepo: payments.NewMemoryRepository(),
		Repo:        bookings.NewMemoryRepository(),
		Log:         logger.Discard(),
		Chef:        users.Identity{UserID: uuid.New(), Role: users.RoleChef},
		Manager:     users.Identity{UserID: uuid.New(), Role: users.RoleManager},
		Admin:       users.Identity{UserID: uuid.New(), Role: users.RoleAdmin},
		policy:      DefaultPolicy(),
	}
	h.Payments = payments.NewService(payments.Deps{
		Repo:      h.PaymentRepo,
		Processor: h.Processor,
		Locker:    h.Locker,
		Publisher: h.Events,
		Logger:    h.Log,
		Retry:     payments.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Clock:     h.Clock.Now,
	})
	h.Ledger = bookings.NewService(bookings.Deps{
		Repo:      h.Repo,
		Payments:  h.Payments,
		Locker:    h.Locker,
		Policies:  h,
		Publisher: h.Events,
		Logger:    h.Log,
		Clock:     h.Clock.Now,
	})
	return h
}

// Resolve makes the harness a policies.Resolver returning the current policy
func (h *Harness) Resolve(_ context.Context, locationID uuid.UUID) (policies.LocationPolicy, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.policy
	p.LocationID = locationID
	return p, nil
}

// SetPolicy changes the policy every location resolves to
func (h *Harness) SetPolicy(fn func(p *policies.LocationPolicy)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.policy)
}

// Request is a kitchen session on KitchenDay 09:00-11:00 with one
// three-day storage add-on at 2000/day.
func (h *Harness) Request() bookings.CreateGroupRequest {
	return bookings.CreateGroupRequest{
		KitchenID:       uuid.New(),
		LocationID:      uuid.New(),
		BookingDate:     KitchenDay.Format("2006-01-02"),
		TimeSlots:       []string{"09:00", "10:00"},
		HourlyRateCents: 5000,
		Storage: []bookings.StorageAddonRequest{{
			StorageListingID: uuid.New(),
			StartDate:        KitchenDay,
			EndDate:          KitchenDay.AddDate(0, 0, 3),
			DailyRateCents:   2000,
		}},
		CustomerID:      "cus_chef",
		PaymentMethodID: "pm_card",
	}
}

// CreateGroup books Request, optionally adjusted by edit
func (h *Harness) CreateGroup(t testing.TB, edit func(req *bookings.CreateGroupRequest)) *bookings.BookingGroup {
	t.Helper()
	req := h.Request()
	if edit != nil {
		edit(&req)
	}
	g, err := h.Ledger.CreateGroup(context.Background(), h.Chef, req)
	require.NoError(t, err)
	return g
}

// Confirmed creates and approves a group, capturing its hold
func (h *Harness) Confirmed(t testing.TB, edit func(req *bookings.CreateGroupRequest)) *bookings.BookingGroup {
	t.Helper()
	g := h.CreateGroup(t, edit)
	approved, err := h.Ledger.ApproveGroup(context.Background(), h.Manager, g.ID)
	require.NoError(t, err)
	return approved
}

// Group reloads a group
func (h *Harness) Group(t testing.TB, id uuid.UUID) *bookings.BookingGroup {
	t.Helper()
	g, err := h.Repo.GetGroup(context.Background(), id)
	require.NoError(t, err)
	return g
}

// Storage reloads a storage booking
func (h *Harness) Storage(t testing.TB, id uuid.UUID) *bookings.StorageBooking {
	t.Helper()
	sb, err := h.Repo.GetStorage(context.Background(), id)
	require.NoError(t, err)
	return sb
}

// Hold returns the group's current payment authorization
func (h *Harness) Hold(t testing.TB, g *bookings.BookingGroup) *payments.PaymentAuthorization {
	t.Helper()
	require.NotNil(t, g.PaymentAuthorizationID)
	a, err := h.Payments.Get(context.Background(), *g.PaymentAuthorizationID)
	require.NoError(t, err)
	return a
}
