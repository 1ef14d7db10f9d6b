package payments

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrUnhandledEvent is returned for Stripe event types that carry no payment transition
var ErrUnhandledEvent = errors.New("unhandled stripe event type")

// StripeWebhookVerifier checks Stripe signatures and normalises the events
// the payment lifecycle cares about.
type StripeWebhookVerifier struct {
	secret string
}

func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

// Parse verifies payload against the Stripe-Signature header and maps it to a WebhookEvent
func (v *StripeWebhookVerifier) Parse(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("verify stripe signature: %w", err)
	}
	return FromStripeEvent(event)
}

// FromStripeEvent maps payment_intent.succeeded, payment_intent.canceled and
// charge.refunded. Amounts are the processor's running totals.
func FromStripeEvent(event stripe.Event) (WebhookEvent, error) {
	if event.Data == nil {
		return WebhookEvent{}, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out := WebhookEvent{EventID: event.ID, AuthorizationRef: intent.ID}
		if event.Type == "payment_intent.succeeded" {
			out.Type = EventCaptured
			out.AmountCents = intent.AmountReceived
		} else {
			out.Type = EventVoided
		}
		return out, nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return WebhookEvent{}, fmt.Errorf("decode charge: %w", err)
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return WebhookEvent{}, fmt.Errorf("charge %s has no payment intent", charge.ID)
		}
		return WebhookEvent{
			Type:             EventRefunded,
			AuthorizationRef: charge.PaymentIntent.ID,
			AmountCents:      charge.AmountRefunded,
			EventID:          event.ID,
		}, nil
	}

	return WebhookEvent{}, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
}
