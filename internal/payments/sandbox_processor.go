package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SandboxProcessor is an in-memory processor. It backs local runs without a
// Stripe key and the service tests. Calls are idempotent per key like Stripe's.
type SandboxProcessor struct {
	mu        sync.Mutex
	intents   map[string]*IntentState
	byKey     map[string]IntentState
	declined  map[string]bool
	failures  []error
	callCount map[string]int
}

func NewSandboxProcessor() *SandboxProcessor {
	return &SandboxProcessor{
		intents:   make(map[string]*IntentState),
		byKey:     make(map[string]IntentState),
		declined:  make(map[string]bool),
		callCount: make(map[string]int),
	}
}

// Decline makes every charge or authorization on the payment method fail permanently
func (p *SandboxProcessor) Decline(paymentMethodID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declined[paymentMethodID] = true
}

// FailNext queues transient errors returned by the next calls, in order
func (p *SandboxProcessor) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// Calls returns how many times op reached the processor, including failures
func (p *SandboxProcessor) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount[op]
}

// Intent returns a copy of the processor-side state
func (p *SandboxProcessor) Intent(ref string) (IntentState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.intents[ref]
	if !ok {
		return IntentState{}, false
	}
	return *st, true
}

// SetIntent overwrites processor-side state, simulating changes made outside the service
func (p *SandboxProcessor) SetIntent(st IntentState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := st
	p.intents[st.Ref] = &cp
}

func (p *SandboxProcessor) begin(op string) error {
	p.callCount[op]++
	if len(p.failures) == 0 {
		return nil
	}
	err := p.failures[0]
	p.failures = p.failures[1:]
	return err
}

func (p *SandboxProcessor) replay(op, key string) (IntentState, bool) {
	if key == "" {
		return IntentState{}, false
	}
	st, ok := p.byKey[op+":"+key]
	return st, ok
}

func (p *SandboxProcessor) remember(op, key string, st IntentState) {
	if key != "" {
		p.byKey[op+":"+key] = st
	}
}

func (p *SandboxProcessor) create(op string, req IntentRequest, status string) (IntentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.begin(op); err != nil {
		return IntentState{}, err
	}
	if st, ok := p.replay(op, req.IdempotencyKey); ok {
		return st, nil
	}
	if req.AmountCents <= 0 {
		return IntentState{}, fmt.Errorf("%w: amount must be positive", ErrPermanent)
	}
	if p.declined[req.PaymentMethodID] {
		return IntentState{}, fmt.Errorf("%w: card_declined", ErrPermanent)
	}

	st := IntentState{Ref: "pi_sandbox_" + uuid.NewString(), Status: status, AmountCents: req.AmountCents}
	if status == ProcessorRequiresCapture {
		st.AmountCapturableCents = req.AmountCents
	} else {
		st.AmountReceivedCents = req.AmountCents
	}
	cp := st
	p.intents[st.Ref] = &cp
	p.remember(op, req.IdempotencyKey, st)
	return st, nil
}

func (p *SandboxProcessor) Authorize(_ context.Context, req IntentRequest) (IntentState, error) {
	return p.create("authorize", req, ProcessorRequiresCapture)
}

func (p *SandboxProcessor) Charge(_ context.Context, req IntentRequest) (IntentState, error) {
	return p.create("charge", req, ProcessorSucceeded)
}

func (p *SandboxProcessor) mutate(op, ref, key string, fn func(st *IntentState) error) (IntentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.begin(op); err != nil {
		return IntentState{}, err
	}
	if st, ok := p.replay(op, key); ok {
		return st, nil
	}
	st, ok := p.intents[ref]
	if !ok {
		return IntentState{}, fmt.Errorf("%w: no such payment intent %s", ErrPermanent, ref)
	}
	if err := fn(st); err != nil {
		return IntentState{}, err
	}
	p.remember(op, key, *st)
	return *st, nil
}

var errSandboxState = errors.New("payment intent is in the wrong state")

func (p *SandboxProcessor) Capture(_ context.Context, ref string, amountCents int64, key string) (IntentState, error) {
	return p.mutate("capture", ref, key, func(st *IntentState) error {
		if st.Status != ProcessorRequiresCapture || amountCents > st.AmountCapturableCents {
			return fmt.Errorf("%w: %w", ErrPermanent, errSandboxState)
		}
		st.Status = ProcessorSucceeded
		st.AmountReceivedCents = amountCents
		st.AmountCapturableCents = 0
		return nil
	})
}

func (p *SandboxProcessor) Void(_ context.Context, ref string, key string) (IntentState, error) {
	return p.mutate("void", ref, key, func(st *IntentState) error {
		if st.Status == ProcessorCanceled {
			return nil
		}
		if st.Status != ProcessorRequiresCapture {
			return fmt.Errorf("%w: %w", ErrPermanent, errSandboxState)
		}
		st.Status = ProcessorCanceled
		st.AmountCapturableCents = 0
		return nil
	})
}

func (p *SandboxProcessor) Refund(_ context.Context, ref string, amountCents int64, key string) (IntentState, error) {
	return p.mutate("refund", ref, key, func(st *IntentState) error {
		if st.Status != ProcessorSucceeded || st.AmountRefundedCents+amountCents > st.AmountReceivedCents {
			return fmt.Errorf("%w: %w", ErrPermanent, errSandboxState)
		}
		st.AmountRefundedCents += amountCents
		return nil
	})
}

func (p *SandboxProcessor) Lookup(_ context.Context, ref string) (IntentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.begin("lookup"); err != nil {
		return IntentState{}, err
	}
	st, ok := p.intents[ref]
	if !ok {
		return IntentState{}, fmt.Errorf("%w: no such payment intent %s", ErrPermanent, ref)
	}
	return *st, nil
}
