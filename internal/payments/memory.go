package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository held in process memory
type MemoryRepository struct {
	mu        sync.Mutex
	items     map[uuid.UUID]PaymentAuthorization
	processed map[string]ProcessedEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:     make(map[uuid.UUID]PaymentAuthorization),
		processed: make(map[string]ProcessedEvent),
	}
}

func (r *MemoryRepository) Create(_ context.Context, a *PaymentAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	for _, existing := range r.items {
		if existing.ProcessorRef == a.ProcessorRef {
			return apperr.InvariantBreach("payment_authorization", a.ID.String(), "duplicate processor reference")
		}
		if a.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *a.IdempotencyKey {
			return apperr.InvariantBreach("payment_authorization", a.ID.String(), "duplicate idempotency key")
		}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	r.items[a.ID] = *a
	return nil
}

func (r *MemoryRepository) find(label string, match func(PaymentAuthorization) bool) (*PaymentAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if match(a) {
			cp := a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("payment_authorization", label)
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*PaymentAuthorization, error) {
	return r.find(id.String(), func(a PaymentAuthorization) bool { return a.ID == id })
}

func (r *MemoryRepository) GetByProcessorRef(_ context.Context, ref string) (*PaymentAuthorization, error) {
	return r.find(ref, func(a PaymentAuthorization) bool { return a.ProcessorRef == ref })
}

func (r *MemoryRepository) GetByIdempotencyKey(_ context.Context, key string) (*PaymentAuthorization, error) {
	return r.find(key, func(a PaymentAuthorization) bool { return a.IdempotencyKey != nil && *a.IdempotencyKey == key })
}

func (r *MemoryRepository) ListByGroup(_ context.Context, groupID uuid.UUID) ([]PaymentAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PaymentAuthorization
	for _, a := range r.items {
		if a.BookingGroupID == groupID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateState(_ context.Context, id uuid.UUID, expected, next Snapshot, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return apperr.NotFound("payment_authorization", id.String())
	}
	if a.Snapshot() != expected {
		return apperr.InvalidTransition("payment_authorization", id.String(), string(expected.Status), string(a.Status))
	}
	if next.Status == StatusCaptured && a.Status != StatusCaptured {
		a.CapturedAt = &at
	}
	if next.Status == StatusVoided {
		a.VoidedAt = &at
	}
	if next.Refunded > a.RefundedAmountCents {
		a.RefundedAt = &at
	}
	a.Status, a.CapturedAmountCents, a.RefundedAmountCents = next.Status, next.Captured, next.Refunded
	a.UpdatedAt = at
	r.items[id] = a
	return nil
}

func (r *MemoryRepository) MarkProcessed(_ context.Context, ev ProcessedEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processed[ev.EventID]; ok {
		return false, nil
	}
	r.processed[ev.EventID] = ev
	return true, nil
}

func (r *MemoryRepository) IsProcessed(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[eventID]
	return ok, nil
}
