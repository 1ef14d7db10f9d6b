package cancellation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository interface defines the contract for cancellation request data
type Repository interface {
	Create(ctx context.Context, req *CancellationRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*CancellationRequest, error)
	List(ctx context.Context, query ListQuery) ([]CancellationRequest, int64, error)
	// Resolve records the outcome, failing with InvalidTransition when the
	// request was already resolved.
	Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, by uuid.UUID, note string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new cancellation repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *CancellationRequest) error {
	if err := txn.Conn(ctx, r.db).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create cancellation request: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*CancellationRequest, error) {
	var req CancellationRequest
	err := txn.Conn(ctx, r.db).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("cancellation_request", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cancellation request: %w", err)
	}
	return &req, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]CancellationRequest, int64, error) {
	var out []CancellationRequest
	var total int64
	query = query.normalized()

	q := txn.Conn(ctx, r.db).Model(&CancellationRequest{})
	if query.BookingGroupID != nil {
		q = q.Where("booking_group_id = ?", *query.BookingGroupID)
	}
	if query.LocationID != nil {
		q = q.Where("location_id = ?", *query.LocationID)
	}
	if query.RequestedBy != nil {
		q = q.Where("requested_by = ?", *query.RequestedBy)
	}
	if query.OpenOnly {
		q = q.Where("outcome IS NULL")
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count cancellation requests: %w", err)
	}
	err := q.Order("requested_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cancellation requests: %w", err)
	}
	return out, total, nil
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, by uuid.UUID, note string, at time.Time) error {
	res := txn.Conn(ctx, r.db).Model(&CancellationRequest{}).
		Where("id = ? AND outcome IS NULL", id).
		Updates(map[string]interface{}{
			"outcome":         outcome,
			"resolved_at":     at,
			"resolved_by":     by,
			"resolution_note": note,
			"updated_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve cancellation request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("cancellation_request", id.String(), "open", string(*current.Outcome))
	}
	return nil
}

// MemoryRepository is a Repository held in process memory
type MemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]CancellationRequest
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]CancellationRequest)}
}

func (m *MemoryRepository) Create(_ context.Context, req *CancellationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	m.items[req.ID] = *req
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*CancellationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("cancellation_request", id.String())
	}
	return &req, nil
}

func (m *MemoryRepository) List(_ context.Context, query ListQuery) ([]CancellationRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	query = query.normalized()

	var out []CancellationRequest
	for _, req := range m.items {
		if query.BookingGroupID != nil && req.BookingGroupID != *query.BookingGroupID {
			continue
		}
		if query.LocationID != nil && req.LocationID != *query.LocationID {
			continue
		}
		if query.RequestedBy != nil && req.RequestedBy != *query.RequestedBy {
			continue
		}
		if query.OpenOnly && !req.IsOpen() {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })

	total := int64(len(out))
	offset := (query.Page - 1) * query.Limit
	if offset >= len(out) {
		return []CancellationRequest{}, total, nil
	}
	return out[offset:min(offset+query.Limit, len(out))], total, nil
}

func (m *MemoryRepository) Resolve(_ context.Context, id uuid.UUID, outcome Outcome, by uuid.UUID, note string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return apperr.NotFound("cancellation_request", id.String())
	}
	if !req.IsOpen() {
		return apperr.InvalidTransition("cancellation_request", id.String(), "open", string(*req.Outcome))
	}
	req.Outcome = &outcome
	req.ResolvedAt = &at
	req.ResolvedBy = &by
	req.ResolutionNote = note
	req.UpdatedAt = at
	m.items[id] = req
	return nil
}
