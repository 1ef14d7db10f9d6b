package payments

import (
	"context"
	"errors"
)

// ErrPermanent marks processor failures that retrying cannot fix (card
// declined, invalid request). Processors wrap it with %w.
var ErrPermanent = errors.New("permanent processor error")

// Processor intent statuses, normalised
const (
	ProcessorRequiresCapture = "requires_capture"
	ProcessorSucceeded       = "succeeded"
	ProcessorCanceled        = "canceled"
	ProcessorPending         = "pending"
)

// IntentRequest is an authorization (manual capture) or an off-session charge
type IntentRequest struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// IntentState is the processor's canonical view of one intent
type IntentState struct {
	Ref                   string
	Status                string
	AmountCents           int64
	AmountCapturableCents int64
	AmountReceivedCents   int64
	AmountRefundedCents   int64
}

// Processor is the external payment processor contract. It is only called by
// the payment service.
type Processor interface {
	Authorize(ctx context.Context, req IntentRequest) (IntentState, error)
	Capture(ctx context.Context, ref string, amountCents int64, idempotencyKey string) (IntentState, error)
	Void(ctx context.Context, ref string, idempotencyKey string) (IntentState, error)
	Refund(ctx context.Context, ref string, amountCents int64, idempotencyKey string) (IntentState, error)
	Charge(ctx context.Context, req IntentRequest) (IntentState, error)
	Lookup(ctx context.Context, ref string) (IntentState, error)
}

// eventsFromState turns a processor snapshot into the confirmations it implies,
// in lifecycle order. Used by reconciliation.
func eventsFromState(st IntentState) []WebhookEvent {
	var out []WebhookEvent
	switch st.Status {
	case ProcessorCanceled:
		out = append(out, WebhookEvent{Type: EventVoided, AuthorizationRef: st.Ref})
	case ProcessorSucceeded:
		out = append(out, WebhookEvent{Type: EventCaptured, AuthorizationRef: st.Ref, AmountCents: st.AmountReceivedCents})
		if st.AmountRefundedCents > 0 {
			out = append(out, WebhookEvent{Type: EventRefunded, AuthorizationRef: st.Ref, AmountCents: st.AmountRefundedCents})
		}
	}
	return out
}
