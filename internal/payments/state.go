package payments

import (
	"fmt"

	"kitchenhub/internal/shared/apperr"
)

// Op is a local command against an authorization
type Op string

const (
	OpCapture Op = "capture"
	OpVoid    Op = "void"
	OpRefund  Op = "refund"
)

// EventType is a processor confirmation normalised across processors
type EventType string

const (
	EventCaptured EventType = "payment.captured"
	EventVoided   EventType = "payment.voided"
	EventRefunded EventType = "payment.refunded"
)

// WebhookEvent is an inbound processor confirmation. AmountCents is the
// processor's cumulative total for the event type (amount received for
// captures, amount refunded for refunds), so replays and reordering converge.
type WebhookEvent struct {
	Type             EventType `json:"type" binding:"required"`
	AuthorizationRef string    `json:"authorization_id" binding:"required"`
	AmountCents      int64     `json:"amount_cents"`
	EventID          string    `json:"event_id" binding:"required"`
}

// transitions is the only table of allowed status moves
var transitions = map[Status][]Status{
	StatusAuthorizedHold:    {StatusCaptured, StatusVoided},
	StatusCaptured:          {StatusPartiallyRefunded, StatusRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
}

// CanTransition reports whether from -> to is in the table
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func refundStatus(captured, refunded int64) Status {
	if refunded >= captured {
		return StatusRefunded
	}
	return StatusPartiallyRefunded
}

// check enforces captured <= authorized and refunded <= captured
func (s Snapshot) check(a *PaymentAuthorization) error {
	if s.Captured < 0 || s.Refunded < 0 || s.Captured > a.AuthorizedAmountCents || s.Refunded > s.Captured {
		return apperr.InvariantBreach("payment_authorization", a.ID.String(),
			fmt.Sprintf("amounts out of bounds: authorized=%d captured=%d refunded=%d", a.AuthorizedAmountCents, s.Captured, s.Refunded))
	}
	return nil
}

// PlanCommand computes the effect of a local command. applied is false when
// the command is an idempotent replay of something already reflected in a.
func PlanCommand(a *PaymentAuthorization, op Op, amountCents int64) (next Snapshot, applied bool, err error) {
	cur := a.Snapshot()
	id := a.ID.String()

	switch op {
	case OpCapture:
		if cur.Status.IsCaptured() {
			return cur, false, nil
		}
		if cur.Status != StatusAuthorizedHold {
			return cur, false, apperr.InvalidTransition("payment_authorization", id, string(StatusAuthorizedHold), string(cur.Status))
		}
		if amountCents <= 0 || amountCents > a.AuthorizedAmountCents {
			return cur, false, apperr.Validation(fmt.Sprintf("capture amount %d must be between 1 and the authorized %d", amountCents, a.AuthorizedAmountCents))
		}
		next = Snapshot{Status: StatusCaptured, Captured: amountCents}

	case OpVoid:
		if cur.Status == StatusVoided {
			return cur, false, nil
		}
		if cur.Status != StatusAuthorizedHold {
			return cur, false, apperr.InvalidTransition("payment_authorization", id, string(StatusAuthorizedHold), string(cur.Status))
		}
		next = Snapshot{Status: StatusVoided}

	case OpRefund:
		if cur.Status != StatusCaptured && cur.Status != StatusPartiallyRefunded {
			return cur, false, apperr.InvalidTransition("payment_authorization", id, string(StatusCaptured), string(cur.Status))
		}
		if amountCents <= 0 {
			return cur, false, apperr.Validation("refund amount must be positive")
		}
		if cur.Refunded+amountCents > cur.Captured {
			return cur, false, apperr.Validation(fmt.Sprintf("refund of %d exceeds the refundable %d", amountCents, cur.Captured-cur.Refunded))
		}
		refunded := cur.Refunded + amountCents
		next = Snapshot{Status: refundStatus(cur.Captured, refunded), Captured: cur.Captured, Refunded: refunded}

	default:
		return cur, false, apperr.Validation("unknown payment operation " + string(op))
	}

	if !CanTransition(cur.Status, next.Status) {
		return cur, false, apperr.InvalidTransition("payment_authorization", id, string(cur.Status), string(next.Status))
	}
	if err := next.check(a); err != nil {
		return cur, false, err
	}
	return next, true, nil
}

// PlanEvent computes the effect of a processor confirmation. Events only move
// state forward; anything that would regress or contradict the current status
// is ignored.
func PlanEvent(a *PaymentAuthorization, ev WebhookEvent) (next Snapshot, applied bool) {
	cur := a.Snapshot()

	switch ev.Type {
	case EventCaptured:
		if cur.Status != StatusAuthorizedHold {
			return cur, false
		}
		amount := ev.AmountCents
		if amount <= 0 || amount > a.AuthorizedAmountCents {
			amount = a.AuthorizedAmountCents
		}
		next = Snapshot{Status: StatusCaptured, Captured: amount}

	case EventVoided:
		if cur.Status != StatusAuthorizedHold {
			return cur, false
		}
		next = Snapshot{Status: StatusVoided}

	case EventRefunded:
		if cur.Status != StatusCaptured && cur.Status != StatusPartiallyRefunded {
			return cur, false
		}
		refunded := min(ev.AmountCents, cur.Captured)
		if refunded <= cur.Refunded {
			return cur, false
		}
		next = Snapshot{Status: refundStatus(cur.Captured, refunded), Captured: cur.Captured, Refunded: refunded}

	default:
		return cur, false
	}

	if !CanTransition(cur.Status, next.Status) || next.check(a) != nil {
		return cur, false
	}
	return next, true
}
