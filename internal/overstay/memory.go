package overstay

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
)

// MemoryRepository is a Repository held in process memory. It enforces the
// one-open-record rule the way the partial unique index does.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]PenaltyRecord
	events  []PenaltyEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[uuid.UUID]PenaltyRecord)}
}

func (m *MemoryRepository) Create(_ context.Context, rec *PenaltyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.StorageBookingID == rec.StorageBookingID && existing.Status.IsOpen() {
			return apperr.InvariantBreach("storage_booking", rec.StorageBookingID.String(), "an open overstay penalty already exists")
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*PenaltyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("overstay_penalty", id.String())
	}
	return &rec, nil
}

func (m *MemoryRepository) List(_ context.Context, query ListQuery) ([]PenaltyRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	query = query.normalized()

	var out []PenaltyRecord
	for _, rec := range m.records {
		if query.StorageBookingID != nil && rec.StorageBookingID != *query.StorageBookingID {
			continue
		}
		if query.LocationID != nil && rec.LocationID != *query.LocationID {
			continue
		}
		if query.ChefID != nil && rec.ChefID != *query.ChefID {
			continue
		}
		if query.Status != "" && string(rec.Status) != query.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })

	total := int64(len(out))
	offset := (query.Page - 1) * query.Limit
	if offset >= len(out) {
		return []PenaltyRecord{}, total, nil
	}
	return out[offset:min(offset+query.Limit, len(out))], total, nil
}

func (m *MemoryRepository) list(limit int, match func(PenaltyRecord) bool, less func(a, b PenaltyRecord) bool) []PenaltyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PenaltyRecord
	for _, rec := range m.records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryRepository) ListInGrace(_ context.Context, limit int) ([]PenaltyRecord, error) {
	return m.list(limit, func(rec PenaltyRecord) bool {
		return rec.Status == StatusGracePeriod
	}, func(a, b PenaltyRecord) bool { return a.GracePeriodEndsAt.Before(b.GracePeriodEndsAt) }), nil
}

func (m *MemoryRepository) ListStaleReviews(_ context.Context, now time.Time, limit int) ([]PenaltyRecord, error) {
	return m.list(limit, func(rec PenaltyRecord) bool {
		return rec.Status == StatusPendingReview &&
			rec.GracePeriodEndsAt.Add(time.Duration(rec.DaysOverdue)*24*time.Hour).Before(now)
	}, func(a, b PenaltyRecord) bool { return a.UpdatedAt.Before(b.UpdatedAt) }), nil
}

func (m *MemoryRepository) Transition(_ context.Context, id uuid.UUID, from Status, u Update, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return apperr.NotFound("overstay_penalty", id.String())
	}
	if rec.Status != from {
		return apperr.InvalidTransition("overstay_penalty", id.String(), from.String(), rec.Status.String())
	}

	rec.Status = u.To
	if u.DaysOverdue != nil {
		rec.DaysOverdue = *u.DaysOverdue
	}
	if u.CalculatedPenaltyCents != nil {
		rec.CalculatedPenaltyCents = *u.CalculatedPenaltyCents
	}
	if u.FinalPenaltyCents != nil {
		v := *u.FinalPenaltyCents
		rec.FinalPenaltyCents = &v
	}
	if u.TaxCents != nil {
		rec.TaxCents = *u.TaxCents
	}
	if u.Waived != nil {
		rec.Waived = *u.Waived
	}
	if u.WaiveReason != "" {
		rec.WaiveReason = u.WaiveReason
	}
	if u.ChargeAuthorizationID != nil {
		v := *u.ChargeAuthorizationID
		rec.ChargeAuthorizationID = &v
	}
	if u.ProcessorRef != "" {
		rec.ProcessorRef = u.ProcessorRef
	}
	if u.ChargeFailureReason != "" {
		rec.ChargeFailureReason = u.ChargeFailureReason
	}
	if u.ReviewedBy != nil {
		v := *u.ReviewedBy
		rec.ReviewedBy = &v
	}
	if u.ReviewedAt != nil {
		v := *u.ReviewedAt
		rec.ReviewedAt = &v
	}
	if u.ResolutionNote != "" {
		rec.ResolutionNote = u.ResolutionNote
	}
	if u.ResolvedAt != nil {
		v := *u.ResolvedAt
		rec.ResolvedAt = &v
	}
	rec.UpdatedAt = at
	m.records[id] = rec
	return nil
}

func (m *MemoryRepository) AppendEvent(_ context.Context, ev *PenaltyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *MemoryRepository) ListEvents(_ context.Context, penaltyID uuid.UUID) ([]PenaltyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []PenaltyEvent{}
	for _, ev := range m.events {
		if ev.PenaltyID == penaltyID {
			out = append(out, ev)
		}
	}
	return out, nil
}
