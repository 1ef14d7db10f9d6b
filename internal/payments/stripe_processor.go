package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeClients lets tests replace the Stripe API surface
type StripeClients struct {
	Intents stripePaymentIntentAPI
	Refunds stripeRefundAPI
}

// StripeProcessorConfig configures the StripeProcessor
type StripeProcessorConfig struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends
	Clients  *StripeClients
}

// StripeProcessor implements Processor with manual-capture PaymentIntents
type StripeProcessor struct {
	intents  stripePaymentIntentAPI
	refunds  stripeRefundAPI
	currency string
}

func NewStripeProcessor(cfg StripeProcessorConfig) (*StripeProcessor, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients StripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = StripeClients{Intents: sc.PaymentIntents, Refunds: sc.Refunds}
	}
	if clients.Intents == nil || clients.Refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "cad"
	}

	return &StripeProcessor{intents: clients.Intents, refunds: clients.Refunds, currency: currency}, nil
}

func (p *StripeProcessor) intentParams(ctx context.Context, req IntentRequest) *stripe.PaymentIntentParams {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = p.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}
	return params
}

// Authorize places a hold: the intent is confirmed with manual capture
func (p *StripeProcessor) Authorize(ctx context.Context, req IntentRequest) (IntentState, error) {
	params := p.intentParams(ctx, req)
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.Confirm = stripe.Bool(true)

	intent, err := p.intents.New(params)
	if err != nil {
		return IntentState{}, classifyStripeError("authorize", err)
	}
	return stripeIntentState(intent), nil
}

// Charge takes money immediately from the saved payment method, off-session
func (p *StripeProcessor) Charge(ctx context.Context, req IntentRequest) (IntentState, error) {
	params := p.intentParams(ctx, req)
	params.Confirm = stripe.Bool(true)
	params.OffSession = stripe.Bool(true)

	intent, err := p.intents.New(params)
	if err != nil {
		return IntentState{}, classifyStripeError("charge", err)
	}
	st := stripeIntentState(intent)
	if st.Status != ProcessorSucceeded {
		return st, fmt.Errorf("%w: stripe: charge ended in status %s", ErrPermanent, intent.Status)
	}
	return st, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, ref string, amountCents int64, key string) (IntentState, error) {
	params := &stripe.PaymentIntentCaptureParams{AmountToCapture: stripe.Int64(amountCents)}
	params.Context = ctx
	if key != "" {
		params.SetIdempotencyKey(key)
	}
	intent, err := p.intents.Capture(ref, params)
	if err != nil {
		return IntentState{}, classifyStripeError("capture", err)
	}
	return stripeIntentState(intent), nil
}

func (p *StripeProcessor) Void(ctx context.Context, ref string, key string) (IntentState, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if key != "" {
		params.SetIdempotencyKey(key)
	}
	intent, err := p.intents.Cancel(ref, params)
	if err != nil {
		return IntentState{}, classifyStripeError("void", err)
	}
	return stripeIntentState(intent), nil
}

func (p *StripeProcessor) Refund(ctx context.Context, ref string, amountCents int64, key string) (IntentState, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	if key != "" {
		params.SetIdempotencyKey(key)
	}
	if _, err := p.refunds.New(params); err != nil {
		return IntentState{}, classifyStripeError("refund", err)
	}
	return p.Lookup(ctx, ref)
}

func (p *StripeProcessor) Lookup(ctx context.Context, ref string) (IntentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	intent, err := p.intents.Get(ref, params)
	if err != nil {
		return IntentState{}, classifyStripeError("lookup", err)
	}
	return stripeIntentState(intent), nil
}

// classifyStripeError marks card and invalid request errors permanent
func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return fmt.Errorf("%w: stripe: %s: %s", ErrPermanent, op, stripeErr.Msg)
		}
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}

func stripeIntentState(intent *stripe.PaymentIntent) IntentState {
	if intent == nil {
		return IntentState{}
	}

	status := ProcessorPending
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		status = ProcessorRequiresCapture
	case stripe.PaymentIntentStatusSucceeded:
		status = ProcessorSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = ProcessorCanceled
	}

	st := IntentState{
		Ref:                   intent.ID,
		Status:                status,
		AmountCents:           intent.Amount,
		AmountCapturableCents: intent.AmountCapturable,
		AmountReceivedCents:   intent.AmountReceived,
	}
	if charge := intent.LatestCharge; charge != nil {
		st.AmountRefundedCents = charge.AmountRefunded
	}
	return st
}
