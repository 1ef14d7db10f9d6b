package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists authorizations and the dedup records
type Repository interface {
	Create(ctx context.Context, a *PaymentAuthorization) error
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error)
	GetByProcessorRef(ctx context.Context, ref string) (*PaymentAuthorization, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*PaymentAuthorization, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]PaymentAuthorization, error)
	// UpdateState swaps expected for next, failing with InvalidTransition when
	// the stored snapshot differs.
	UpdateState(ctx context.Context, id uuid.UUID, expected, next Snapshot, at time.Time) error
	// MarkProcessed inserts a dedup record and reports false if it already existed
	MarkProcessed(ctx context.Context, ev ProcessedEvent) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, a *PaymentAuthorization) error {
	if err := txn.Conn(ctx, r.db).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create payment authorization: %w", err)
	}
	return nil
}

func (r *repository) first(ctx context.Context, label string, query string, args ...interface{}) (*PaymentAuthorization, error) {
	var a PaymentAuthorization
	err := txn.Conn(ctx, r.db).Where(query, args...).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("payment_authorization", label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment authorization: %w", err)
	}
	return &a, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentAuthorization, error) {
	return r.first(ctx, id.String(), "id = ?", id)
}

func (r *repository) GetByProcessorRef(ctx context.Context, ref string) (*PaymentAuthorization, error) {
	return r.first(ctx, ref, "processor_ref = ?", ref)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (*PaymentAuthorization, error) {
	return r.first(ctx, key, "idempotency_key = ?", key)
}

func (r *repository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]PaymentAuthorization, error) {
	var out []PaymentAuthorization
	err := txn.Conn(ctx, r.db).
		Where("booking_group_id = ?", groupID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payment authorizations: %w", err)
	}
	return out, nil
}

func stateColumns(prev, next Snapshot, at time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"status":                next.Status,
		"captured_amount_cents": next.Captured,
		"refunded_amount_cents": next.Refunded,
		"updated_at":            at,
	}
	switch {
	case next.Status == StatusCaptured && prev.Status != StatusCaptured:
		cols["captured_at"] = at
	case next.Status == StatusVoided:
		cols["voided_at"] = at
	case next.Refunded > prev.Refunded:
		cols["refunded_at"] = at
	}
	return cols
}

func (r *repository) UpdateState(ctx context.Context, id uuid.UUID, expected, next Snapshot, at time.Time) error {
	result := txn.Conn(ctx, r.db).
		Model(&PaymentAuthorization{}).
		Where("id = ? AND status = ? AND captured_amount_cents = ? AND refunded_amount_cents = ?",
			id, expected.Status, expected.Captured, expected.Refunded).
		Updates(stateColumns(expected, next, at))
	if result.Error != nil {
		return fmt.Errorf("failed to update payment authorization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("payment_authorization", id.String(), string(expected.Status), string(current.Status))
	}
	return nil
}

func (r *repository) MarkProcessed(ctx context.Context, ev ProcessedEvent) (bool, error) {
	result := txn.Conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ev)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record processed event: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := txn.Conn(ctx, r.db).
		Model(&ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return count > 0, nil
}
