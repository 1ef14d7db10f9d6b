package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MemoryRepository is a Repository held in process memory
type MemoryRepository struct {
	mu        sync.Mutex
	groups    map[uuid.UUID]BookingGroup
	storage   map[uuid.UUID]StorageBooking
	equipment map[uuid.UUID]EquipmentBooking
	seq       time.Duration
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		groups:    make(map[uuid.UUID]BookingGroup),
		storage:   make(map[uuid.UUID]StorageBooking),
		equipment: make(map[uuid.UUID]EquipmentBooking),
	}
}

// stamp keeps creation order stable when callers create rows in the same instant
func (r *MemoryRepository) stamp() time.Time {
	r.seq += time.Microsecond
	return time.Now().UTC().Add(r.seq)
}

func (r *MemoryRepository) CreateGroup(_ context.Context, g *BookingGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if _, ok := r.groups[g.ID]; ok {
		return apperr.InvariantBreach("booking_group", g.ID.String(), "duplicate id")
	}
	g.CreatedAt, g.UpdatedAt = r.stamp(), time.Now().UTC()
	for i := range g.StorageBookings {
		sb := &g.StorageBookings[i]
		if sb.ID == uuid.Nil {
			sb.ID = uuid.New()
		}
		sb.BookingGroupID = g.ID
		sb.CreatedAt, sb.UpdatedAt = r.stamp(), g.UpdatedAt
		r.storage[sb.ID] = *sb
	}
	for i := range g.EquipmentBookings {
		eb := &g.EquipmentBookings[i]
		if eb.ID == uuid.Nil {
			eb.ID = uuid.New()
		}
		eb.BookingGroupID = g.ID
		eb.CreatedAt, eb.UpdatedAt = r.stamp(), g.UpdatedAt
		r.equipment[eb.ID] = *eb
	}
	stored := *g
	stored.StorageBookings, stored.EquipmentBookings = nil, nil
	r.groups[g.ID] = stored
	return nil
}

func (r *MemoryRepository) assemble(g BookingGroup) *BookingGroup {
	g.StorageBookings, g.EquipmentBookings = nil, nil
	for _, sb := range r.storage {
		if sb.BookingGroupID == g.ID {
			g.StorageBookings = append(g.StorageBookings, sb)
		}
	}
	for _, eb := range r.equipment {
		if eb.BookingGroupID == g.ID {
			g.EquipmentBookings = append(g.EquipmentBookings, eb)
		}
	}
	sort.Slice(g.StorageBookings, func(i, j int) bool {
		return g.StorageBookings[i].CreatedAt.Before(g.StorageBookings[j].CreatedAt)
	})
	sort.Slice(g.EquipmentBookings, func(i, j int) bool {
		return g.EquipmentBookings[i].CreatedAt.Before(g.EquipmentBookings[j].CreatedAt)
	})
	return &g
}

func (r *MemoryRepository) GetGroup(_ context.Context, id uuid.UUID) (*BookingGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, apperr.NotFound("booking_group", id.String())
	}
	return r.assemble(g), nil
}

func (r *MemoryRepository) ListGroups(_ context.Context, query ListQuery) ([]BookingGroup, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	query = query.normalized()

	var matched []BookingGroup
	for _, g := range r.groups {
		if query.ChefID != nil && g.ChefID != *query.ChefID {
			continue
		}
		if query.LocationID != nil && g.LocationID != *query.LocationID {
			continue
		}
		if query.Status != "" && string(g.Status) != query.Status {
			continue
		}
		matched = append(matched, *r.assemble(g))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.After(matched[j].StartTime) })

	total := int64(len(matched))
	offset := (query.Page - 1) * query.Limit
	if offset >= len(matched) {
		return []BookingGroup{}, total, nil
	}
	end := min(offset+query.Limit, len(matched))
	return matched[offset:end], total, nil
}

func applyStatus(status *Status, cancelledAt **time.Time, change GroupChange) {
	*status = change.To
	if change.To == StatusCancelled {
		at := change.At
		*cancelledAt = &at
	}
}

func (r *MemoryRepository) UpdateGroupStatus(_ context.Context, id uuid.UUID, change GroupChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return apperr.NotFound("booking_group", id.String())
	}
	if g.Status != change.From {
		return apperr.InvalidTransition("booking_group", id.String(), change.From.String(), g.Status.String())
	}
	applyStatus(&g.Status, &g.CancelledAt, change)
	if change.To == StatusCompleted {
		at := change.At
		g.CompletedAt = &at
	}
	g.UpdatedAt = change.At
	r.groups[id] = g

	for eid, eb := range r.equipment {
		if eb.BookingGroupID == id && eb.Status == change.From {
			applyStatus(&eb.Status, &eb.CancelledAt, change)
			eb.UpdatedAt = change.At
			r.equipment[eid] = eb
		}
	}
	if change.To == StatusCompleted {
		return nil
	}
	for sid, sb := range r.storage {
		if sb.BookingGroupID == id && sb.Status == change.From {
			applyStatus(&sb.Status, &sb.CancelledAt, change)
			sb.UpdatedAt = change.At
			r.storage[sid] = sb
		}
	}
	return nil
}

func (r *MemoryRepository) SetGroupPricing(_ context.Context, id uuid.UUID, p Pricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return apperr.NotFound("booking_group", id.String())
	}
	g.SubtotalCents, g.TaxCents, g.TotalPriceCents, g.ServiceFeeCents = p.SubtotalCents, p.TaxCents, p.TotalPriceCents, p.ServiceFeeCents
	if p.AuthorizationID != nil {
		authID := *p.AuthorizationID
		g.PaymentAuthorizationID = &authID
	}
	g.UpdatedAt = time.Now().UTC()
	r.groups[id] = g
	return nil
}

func (r *MemoryRepository) AddStorage(_ context.Context, sb *StorageBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[sb.BookingGroupID]; !ok {
		return apperr.NotFound("booking_group", sb.BookingGroupID.String())
	}
	if sb.ID == uuid.Nil {
		sb.ID = uuid.New()
	}
	sb.CreatedAt, sb.UpdatedAt = r.stamp(), time.Now().UTC()
	r.storage[sb.ID] = *sb
	return nil
}

func (r *MemoryRepository) AddEquipment(_ context.Context, eb *EquipmentBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[eb.BookingGroupID]; !ok {
		return apperr.NotFound("booking_group", eb.BookingGroupID.String())
	}
	if eb.ID == uuid.Nil {
		eb.ID = uuid.New()
	}
	eb.CreatedAt, eb.UpdatedAt = r.stamp(), time.Now().UTC()
	r.equipment[eb.ID] = *eb
	return nil
}

func (r *MemoryRepository) GetStorage(_ context.Context, id uuid.UUID) (*StorageBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.storage[id]
	if !ok {
		return nil, apperr.NotFound("storage_booking", id.String())
	}
	return &sb, nil
}

func (r *MemoryRepository) UpdateStorageStatus(_ context.Context, id uuid.UUID, change GroupChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.storage[id]
	if !ok {
		return apperr.NotFound("storage_booking", id.String())
	}
	if sb.Status != change.From {
		return apperr.InvalidTransition("storage_booking", id.String(), change.From.String(), sb.Status.String())
	}
	applyStatus(&sb.Status, &sb.CancelledAt, change)
	sb.UpdatedAt = change.At
	r.storage[id] = sb
	return nil
}

func (r *MemoryRepository) UpdateCheckout(_ context.Context, id uuid.UUID, change CheckoutChange, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.storage[id]
	if !ok {
		return apperr.NotFound("storage_booking", id.String())
	}
	if sb.CheckoutStatus != change.From {
		return apperr.InvalidTransition("storage_checkout", id.String(), change.From.String(), sb.CheckoutStatus.String())
	}
	sb.CheckoutStatus = change.To
	if change.RequestedAt != nil {
		sb.CheckoutRequestedAt = change.RequestedAt
	}
	if change.ReviewDeadline != nil {
		sb.CheckoutReviewDeadline = change.ReviewDeadline
	}
	if change.PhotoURLs != nil {
		sb.CheckoutPhotoURLs = datatypes.JSONSlice[string](change.PhotoURLs)
	}
	if change.Notes != "" {
		sb.CheckoutNotes = change.Notes
	}
	if change.DenialReason != "" {
		sb.CheckoutDenialReason = change.DenialReason
	}
	if change.ClaimNotes != "" {
		sb.CheckoutClaimNotes = change.ClaimNotes
	}
	if change.ReviewedBy != nil {
		sb.CheckoutReviewedBy = change.ReviewedBy
	}
	if change.ReviewedAt != nil {
		sb.CheckoutReviewedAt = change.ReviewedAt
	}
	sb.UpdatedAt = at
	r.storage[id] = sb
	return nil
}

func (r *MemoryRepository) ExtendStorage(_ context.Context, id uuid.UUID, expectedEnd, newEnd time.Time, addCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.storage[id]
	if !ok {
		return apperr.NotFound("storage_booking", id.String())
	}
	if !sb.EndDate.Equal(expectedEnd) {
		return apperr.InvalidTransition("storage_booking", id.String(),
			expectedEnd.UTC().Format(time.RFC3339), sb.EndDate.UTC().Format(time.RFC3339))
	}
	sb.EndDate = newEnd
	sb.TotalPriceCents += addCents
	sb.UpdatedAt = time.Now().UTC()
	r.storage[id] = sb
	return nil
}

func (r *MemoryRepository) SetActivePenalty(_ context.Context, id uuid.UUID, expected, next *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.storage[id]
	if !ok {
		return apperr.NotFound("storage_booking", id.String())
	}
	matches := (expected == nil && sb.ActivePenaltyID == nil) ||
		(expected != nil && sb.ActivePenaltyID != nil && *expected == *sb.ActivePenaltyID)
	if !matches {
		return apperr.InvalidTransition("storage_booking", id.String(), penaltyLabel(expected), penaltyLabel(sb.ActivePenaltyID))
	}
	if next != nil {
		pid, end := *next, sb.EndDate
		sb.ActivePenaltyID = &pid
		sb.PenalizedEndDate = &end
	} else {
		sb.ActivePenaltyID = nil
	}
	r.storage[id] = sb
	return nil
}

func (r *MemoryRepository) listStorage(limit int, match func(StorageBooking) bool, less func(a, b StorageBooking) bool) []StorageBooking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StorageBooking
	for _, sb := range r.storage {
		if match(sb) {
			out = append(out, sb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) ListOverstayCandidates(_ context.Context, now time.Time, limit int) ([]StorageBooking, error) {
	return r.listStorage(limit, func(sb StorageBooking) bool {
		return sb.Status == StatusConfirmed && sb.CheckoutStatus == CheckoutActive &&
			sb.EndDate.Before(now) && sb.ActivePenaltyID == nil && !sb.PenalizedAtEnd()
	}, func(a, b StorageBooking) bool { return a.EndDate.Before(b.EndDate) }), nil
}

func (r *MemoryRepository) ListCheckoutReviewsDue(_ context.Context, now time.Time, limit int) ([]StorageBooking, error) {
	return r.listStorage(limit, func(sb StorageBooking) bool {
		return sb.CheckoutStatus == CheckoutRequested && sb.CheckoutReviewDeadline != nil &&
			sb.CheckoutReviewDeadline.Before(now)
	}, func(a, b StorageBooking) bool { return a.CheckoutReviewDeadline.Before(*b.CheckoutReviewDeadline) }), nil
}
