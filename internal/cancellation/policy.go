package cancellation

import (
	"fmt"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/shared/apperr"
)

// Input is everything the policy needs to judge a cancellation
type Input struct {
	Entity           string
	ID               string
	Status           bookings.Status
	PaymentStatus    payments.Status
	StartsAt         time.Time
	Now              time.Time
	WindowHours      int
	AllowLateRequest bool
}

// TierFor is request iff the booking is confirmed and money has been captured
func TierFor(status bookings.Status, paid payments.Status) Tier {
	if status == bookings.StatusConfirmed &&
		(paid == payments.StatusCaptured || paid == payments.StatusPartiallyRefunded) {
		return TierRequest
	}
	return TierImmediate
}

// Evaluate applies the cancellation policy. The status is checked first,
// then the start time, then the window. Inside the window only a
// request-tier cancellation at a location that opted in may proceed.
func Evaluate(in Input) (Evaluation, error) {
	tier := TierFor(in.Status, in.PaymentStatus)
	ev := Evaluation{
		Tier:            tier,
		HoursUntilStart: in.StartsAt.Sub(in.Now).Hours(),
		WindowHours:     in.WindowHours,
		Status:          in.Status,
		PaymentStatus:   in.PaymentStatus,
	}

	event := bookings.EventCancel
	if tier == TierRequest {
		event = bookings.EventRequestCancellation
	}
	if _, ok := bookings.Next(in.Status, event); !ok {
		return ev, &apperr.Error{
			Kind:     apperr.KindInvalidTransition,
			Entity:   in.Entity,
			ID:       in.ID,
			Expected: "pending or confirmed",
			Actual:   in.Status.String(),
			Message:  "booking cannot be cancelled",
		}
	}

	if in.Now.After(in.StartsAt) {
		return ev, apperr.PolicyViolation(apperr.CodeAlreadyStarted, "booking has already started")
	}

	window := time.Duration(in.WindowHours) * time.Hour
	if in.StartsAt.Sub(in.Now) < window {
		if tier == TierRequest && in.AllowLateRequest {
			ev.LateOverride = true
			return ev, nil
		}
		return ev, apperr.PolicyViolation(apperr.CodeCancellationWindow,
			fmt.Sprintf("cancellations close %d hours before start; %.1f hours remain", in.WindowHours, ev.HoursUntilStart))
	}
	return ev, nil
}
