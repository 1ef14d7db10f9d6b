package policies

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Get(ctx context.Context, locationID uuid.UUID) (*LocationPolicy, error)
	Upsert(ctx context.Context, p *LocationPolicy) error
	Delete(ctx context.Context, locationID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, locationID uuid.UUID) (*LocationPolicy, error) {
	var p LocationPolicy
	err := txn.Conn(ctx, r.db).First(&p, "location_id = ?", locationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("location_policy", locationID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location policy: %w", err)
	}
	return &p, nil
}

func (r *repository) Upsert(ctx context.Context, p *LocationPolicy) error {
	err := txn.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "location_id"}},
			UpdateAll: true,
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert location policy: %w", err)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, locationID uuid.UUID) error {
	if err := txn.Conn(ctx, r.db).Delete(&LocationPolicy{}, "location_id = ?", locationID).Error; err != nil {
		return fmt.Errorf("failed to delete location policy: %w", err)
	}
	return nil
}

// MemoryRepository keeps policies in process memory
type MemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]LocationPolicy
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]LocationPolicy)}
}

func (r *MemoryRepository) Get(_ context.Context, locationID uuid.UUID) (*LocationPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[locationID]
	if !ok {
		return nil, apperr.NotFound("location_policy", locationID.String())
	}
	return &p, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, p *LocationPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.items[p.LocationID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.items[p.LocationID] = *p
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, locationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, locationID)
	return nil
}
