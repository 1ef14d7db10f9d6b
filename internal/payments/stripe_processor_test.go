package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntents struct {
	created  []*stripe.PaymentIntentParams
	captured []*stripe.PaymentIntentCaptureParams
	canceled []string
	next     *stripe.PaymentIntent
	err      error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = append(f.created, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.next, nil
}

func (f *fakeIntents) Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	f.captured = append(f.captured, params)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, AmountReceived: *params.AmountToCapture}, f.err
}

func (f *fakeIntents) Cancel(id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	f.canceled = append(f.canceled, id)
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, f.err
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{
		ID:             id,
		Status:         stripe.PaymentIntentStatusSucceeded,
		Amount:         5000,
		AmountReceived: 5000,
		LatestCharge:   &stripe.Charge{ID: "ch_1", AmountRefunded: 700},
	}, nil
}

type fakeRefunds struct {
	params []*stripe.RefundParams
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = append(f.params, params)
	return &stripe.Refund{ID: "re_1", Amount: *params.Amount}, nil
}

func newFakeStripe(t *testing.T) (*StripeProcessor, *fakeIntents, *fakeRefunds) {
	t.Helper()
	intents := &fakeIntents{}
	refunds := &fakeRefunds{}
	p, err := NewStripeProcessor(StripeProcessorConfig{Clients: &StripeClients{Intents: intents, Refunds: refunds}})
	require.NoError(t, err)
	return p, intents, refunds
}

func TestNewStripeProcessorRequiresKey(t *testing.T) {
	_, err := NewStripeProcessor(StripeProcessorConfig{APIKey: "  "})
	assert.Error(t, err)
}

func TestStripeAuthorizeUsesManualCapture(t *testing.T) {
	p, intents, _ := newFakeStripe(t)
	intents.next = &stripe.PaymentIntent{
		ID:               "pi_1",
		Status:           stripe.PaymentIntentStatusRequiresCapture,
		Amount:           5650,
		AmountCapturable: 5650,
	}

	st, err := p.Authorize(context.Background(), IntentRequest{
		AmountCents:     5650,
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		IdempotencyKey:  "group:g-1:hold",
		Metadata:        map[string]string{"booking_group_id": "g-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, IntentState{Ref: "pi_1", Status: ProcessorRequiresCapture, AmountCents: 5650, AmountCapturableCents: 5650}, st)
	require.Len(t, intents.created, 1)
	params := intents.created[0]
	assert.Equal(t, "manual", *params.CaptureMethod)
	assert.Equal(t, "cad", *params.Currency)
	assert.True(t, *params.Confirm)
	assert.Equal(t, "group:g-1:hold", *params.IdempotencyKey)
	assert.Equal(t, "g-1", params.Metadata["booking_group_id"])
}

func TestStripeChargeRequiresSucceeded(t *testing.T) {
	p, intents, _ := newFakeStripe(t)
	intents.next = &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusRequiresAction}

	_, err := p.Charge(context.Background(), IntentRequest{AmountCents: 100, PaymentMethodID: "pm_1"})

	assert.ErrorIs(t, err, ErrPermanent)
	assert.True(t, *intents.created[0].OffSession)
}

func TestStripeCaptureAndRefund(t *testing.T) {
	p, intents, refunds := newFakeStripe(t)
	ctx := context.Background()

	st, err := p.Capture(ctx, "pi_1", 4000, "capture:a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), st.AmountReceivedCents)
	assert.Equal(t, int64(4000), *intents.captured[0].AmountToCapture)
	assert.Equal(t, "capture:a-1", *intents.captured[0].IdempotencyKey)

	st, err = p.Refund(ctx, "pi_1", 700, "refund:x")
	require.NoError(t, err)
	assert.Equal(t, int64(700), st.AmountRefundedCents)
	assert.Equal(t, "pi_1", *refunds.params[0].PaymentIntent)

	_, err = p.Void(ctx, "pi_9", "void:a-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_9"}, intents.canceled)
}

func TestClassifyStripeError(t *testing.T) {
	card := classifyStripeError("charge", &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."})
	assert.ErrorIs(t, card, ErrPermanent)

	invalid := classifyStripeError("capture", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "bad"})
	assert.ErrorIs(t, invalid, ErrPermanent)

	transient := classifyStripeError("capture", &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "try again"})
	assert.NotErrorIs(t, transient, ErrPermanent)

	network := classifyStripeError("lookup", errors.New("dial tcp: timeout"))
	assert.NotErrorIs(t, network, ErrPermanent)
}
