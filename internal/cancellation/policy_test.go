package cancellation

import (
	"testing"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/shared/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierImmediate, TierFor(bookings.StatusPending, payments.StatusAuthorizedHold))
	assert.Equal(t, TierImmediate, TierFor(bookings.StatusConfirmed, payments.StatusAuthorizedHold))
	assert.Equal(t, TierRequest, TierFor(bookings.StatusConfirmed, payments.StatusCaptured))
	assert.Equal(t, TierRequest, TierFor(bookings.StatusConfirmed, payments.StatusPartiallyRefunded))
}

func TestEvaluate(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    bookings.Status
		paid      payments.Status
		before    time.Duration
		allowLate bool
		wantTier  Tier
		wantLate  bool
		wantErr   error
	}{
		{
			name:     "pending well ahead cancels immediately",
			status:   bookings.StatusPending,
			paid:     payments.StatusAuthorizedHold,
			before:   48 * time.Hour,
			wantTier: TierImmediate,
		},
		{
			name:     "paid booking ahead of the window needs a request",
			status:   bookings.StatusConfirmed,
			paid:     payments.StatusCaptured,
			before:   72 * time.Hour,
			wantTier: TierRequest,
		},
		{
			name:    "paid booking inside the window is refused",
			status:  bookings.StatusConfirmed,
			paid:    payments.StatusCaptured,
			before:  2 * time.Hour,
			wantErr: apperr.ErrCancellationWindow,
		},
		{
			name:      "late request allowed when the location opts in",
			status:    bookings.StatusConfirmed,
			paid:      payments.StatusCaptured,
			before:    2 * time.Hour,
			allowLate: true,
			wantTier:  TierRequest,
			wantLate:  true,
		},
		{
			name:      "late override never applies to the immediate tier",
			status:    bookings.StatusPending,
			paid:      payments.StatusAuthorizedHold,
			before:    2 * time.Hour,
			allowLate: true,
			wantErr:   apperr.ErrCancellationWindow,
		},
		{
			name:      "started bookings cannot be cancelled",
			status:    bookings.StatusConfirmed,
			paid:      payments.StatusCaptured,
			before:    -time.Hour,
			allowLate: true,
			wantErr:   apperr.ErrAlreadyStarted,
		},
		{
			name:    "cancelled bookings are a transition error",
			status:  bookings.StatusCancelled,
			paid:    payments.StatusVoided,
			before:  72 * time.Hour,
			wantErr: apperr.ErrInvalidTransition,
		},
		{
			name:    "open requests cannot be cancelled again",
			status:  bookings.StatusCancellationRequested,
			paid:    payments.StatusCaptured,
			before:  72 * time.Hour,
			wantErr: apperr.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Evaluate(Input{
				Entity:           "booking_group",
				ID:               "g-1",
				Status:           tt.status,
				PaymentStatus:    tt.paid,
				StartsAt:         start,
				Now:              start.Add(-tt.before),
				WindowHours:      24,
				AllowLateRequest: tt.allowLate,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, ev.Tier)
			assert.Equal(t, tt.wantLate, ev.LateOverride)
			assert.Equal(t, 24, ev.WindowHours)
			assert.InDelta(t, tt.before.Hours(), ev.HoursUntilStart, 0.001)
		})
	}
}

func TestEvaluateWindowBoundary(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	in := Input{
		Status:        bookings.StatusPending,
		PaymentStatus: payments.StatusAuthorizedHold,
		StartsAt:      start,
		Now:           start.Add(-24 * time.Hour),
		WindowHours:   24,
	}
	_, err := Evaluate(in)
	require.NoError(t, err, "exactly at the window edge is still allowed")

	in.Now = in.Now.Add(time.Second)
	_, err = Evaluate(in)
	require.ErrorIs(t, err, apperr.ErrCancellationWindow)
}
