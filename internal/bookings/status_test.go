package bookings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextFollowsTransitionTable(t *testing.T) {
	tests := []struct {
		from Status
		ev   Event
		to   Status
		ok   bool
	}{
		{StatusPending, EventApprove, StatusConfirmed, true},
		{StatusPending, EventReject, StatusCancelled, true},
		{StatusPending, EventCancel, StatusCancelled, true},
		{StatusConfirmed, EventComplete, StatusCompleted, true},
		{StatusConfirmed, EventCancel, StatusCancelled, true},
		{StatusConfirmed, EventRequestCancellation, StatusCancellationRequested, true},
		{StatusCancellationRequested, EventAcceptCancellation, StatusCancelled, true},
		{StatusCancellationRequested, EventDeclineCancellation, StatusConfirmed, true},
		{StatusPending, EventComplete, "", false},
		{StatusConfirmed, EventApprove, "", false},
		{StatusCancelled, EventApprove, "", false},
		{StatusCompleted, EventCancel, "", false},
		{Status("unknown"), EventApprove, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			to, ok := Next(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusCancellationRequested, StatusConfirmed))
	assert.False(t, CanTransition(StatusCompleted, StatusConfirmed))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		assert.True(t, s.IsTerminal(), s)
		_, ok := transitions[s]
		assert.False(t, ok, "terminal status %s has outgoing transitions", s)
	}
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.False(t, Status("bogus").IsValid())
}

func TestCheckoutNeverRegressesExceptRejection(t *testing.T) {
	order := map[CheckoutStatus]int{
		CheckoutActive:     0,
		CheckoutRequested:  1,
		CheckoutApproved:   2,
		CheckoutClaimFiled: 2,
	}
	for from, events := range checkoutTransitions {
		for ev, to := range events {
			if ev == CheckoutEventReject {
				assert.Equal(t, CheckoutRequested, from)
				assert.Equal(t, CheckoutActive, to)
				continue
			}
			assert.Greater(t, order[to], order[from], "%s --%s--> %s", from, ev, to)
		}
	}

	_, ok := NextCheckout(CheckoutApproved, CheckoutEventRequest)
	assert.False(t, ok)
	_, ok = NextCheckout(CheckoutActive, CheckoutEventAutoClear)
	assert.False(t, ok)
}
