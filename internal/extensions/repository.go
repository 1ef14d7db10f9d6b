package extensions

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

type Repository interface {
	Create(ctx context.Context, ext *ExtensionRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error)
	ListByStorage(ctx context.Context, storageID uuid.UUID) ([]ExtensionRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from Status, u Update, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, ext *ExtensionRequest) error {
	if err := txn.Conn(ctx, r.db).Create(ext).Error; err != nil {
		return fmt.Errorf("failed to create storage extension: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*ExtensionRequest, error) {
	var ext ExtensionRequest
	err := txn.Conn(ctx, r.db).First(&ext, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("storage_extension", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage extension: %w", err)
	}
	return &ext, nil
}

func (r *repository) ListByStorage(ctx context.Context, storageID uuid.UUID) ([]ExtensionRequest, error) {
	var out []ExtensionRequest
	err := txn.Conn(ctx, r.db).
		Where("storage_booking_id = ?", storageID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list storage extensions: %w", err)
	}
	return out, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from Status, u Update, at time.Time) error {
	cols := map[string]interface{}{
		"status":     u.To,
		"updated_at": at,
	}
	if u.PaymentAuthorizationID != nil {
		cols["payment_authorization_id"] = *u.PaymentAuthorizationID
	}
	if u.RejectionReason != "" {
		cols["rejection_reason"] = u.RejectionReason
	}
	if u.ReviewedBy != nil {
		cols["reviewed_by"] = *u.ReviewedBy
	}
	if u.ReviewedAt != nil {
		cols["reviewed_at"] = *u.ReviewedAt
	}
	if u.PaidAt != nil {
		cols["paid_at"] = *u.PaidAt
	}
	if u.CompletedAt != nil {
		cols["completed_at"] = *u.CompletedAt
	}

	res := txn.Conn(ctx, r.db).Model(&ExtensionRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update storage extension: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("storage_extension", id.String(), from.String(), current.Status.String())
	}
	return nil
}

// MemoryRepository is a Repository held in process memory
type MemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]ExtensionRequest
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]ExtensionRequest)}
}

func (m *MemoryRepository) Create(_ context.Context, ext *ExtensionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ext.ID == uuid.Nil {
		ext.ID = uuid.New()
	}
	now := time.Now().UTC()
	ext.CreatedAt, ext.UpdatedAt = now, now
	m.items[ext.ID] = *ext
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*ExtensionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("storage_extension", id.String())
	}
	return &ext, nil
}

func (m *MemoryRepository) ListByStorage(_ context.Context, storageID uuid.UUID) ([]ExtensionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ExtensionRequest{}
	for _, ext := range m.items {
		if ext.StorageBookingID == storageID {
			out = append(out, ext)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Transition(_ context.Context, id uuid.UUID, from Status, u Update, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ext, ok := m.items[id]
	if !ok {
		return apperr.NotFound("storage_extension", id.String())
	}
	if ext.Status != from {
		return apperr.InvalidTransition("storage_extension", id.String(), from.String(), ext.Status.String())
	}
	ext.Status = u.To
	if u.PaymentAuthorizationID != nil {
		v := *u.PaymentAuthorizationID
		ext.PaymentAuthorizationID = &v
	}
	if u.RejectionReason != "" {
		ext.RejectionReason = u.RejectionReason
	}
	if u.ReviewedBy != nil {
		v := *u.ReviewedBy
		ext.ReviewedBy = &v
	}
	if u.ReviewedAt != nil {
		v := *u.ReviewedAt
		ext.ReviewedAt = &v
	}
	if u.PaidAt != nil {
		v := *u.PaidAt
		ext.PaidAt = &v
	}
	if u.CompletedAt != nil {
		v := *u.CompletedAt
		ext.CompletedAt = &v
	}
	ext.UpdatedAt = at
	m.items[id] = ext
	return nil
}
