package overstay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	// Create inserts a record. A second open record for the same storage
	// booking fails with InvariantBreach.
	Create(ctx context.Context, rec *PenaltyRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PenaltyRecord, error)
	List(ctx context.Context, query ListQuery) ([]PenaltyRecord, int64, error)
	// ListInGrace returns grace_period records, earliest grace expiry first
	ListInGrace(ctx context.Context, limit int) ([]PenaltyRecord, error)
	// ListStaleReviews returns pending_review records whose overdue days
	// lag now, least recently touched first
	ListStaleReviews(ctx context.Context, now time.Time, limit int) ([]PenaltyRecord, error)
	Transition(ctx context.Context, id uuid.UUID, from Status, u Update, at time.Time) error

	// Audit trail, append-only
	AppendEvent(ctx context.Context, ev *PenaltyEvent) error
	ListEvents(ctx context.Context, penaltyID uuid.UUID) ([]PenaltyEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rec *PenaltyRecord) error {
	err := txn.Conn(ctx, r.db).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.InvariantBreach("storage_booking", rec.StorageBookingID.String(), "an open overstay penalty already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to create overstay penalty: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*PenaltyRecord, error) {
	var rec PenaltyRecord
	err := txn.Conn(ctx, r.db).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("overstay_penalty", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get overstay penalty: %w", err)
	}
	return &rec, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]PenaltyRecord, int64, error) {
	var out []PenaltyRecord
	var total int64
	query = query.normalized()

	q := txn.Conn(ctx, r.db).Model(&PenaltyRecord{})
	if query.StorageBookingID != nil {
		q = q.Where("storage_booking_id = ?", *query.StorageBookingID)
	}
	if query.LocationID != nil {
		q = q.Where("location_id = ?", *query.LocationID)
	}
	if query.ChefID != nil {
		q = q.Where("chef_id = ?", *query.ChefID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count overstay penalties: %w", err)
	}
	err := q.Order("detected_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list overstay penalties: %w", err)
	}
	return out, total, nil
}

func (r *repository) ListInGrace(ctx context.Context, limit int) ([]PenaltyRecord, error) {
	var out []PenaltyRecord
	err := txn.Conn(ctx, r.db).
		Where("status = ?", StatusGracePeriod).
		Order("grace_period_ends_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overstay penalties in grace: %w", err)
	}
	return out, nil
}

func (r *repository) ListStaleReviews(ctx context.Context, now time.Time, limit int) ([]PenaltyRecord, error) {
	var out []PenaltyRecord
	err := txn.Conn(ctx, r.db).
		Where("status = ?", StatusPendingReview).
		Where("grace_period_ends_at + days_overdue * INTERVAL '1 day' < ?", now).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale overstay reviews: %w", err)
	}
	return out, nil
}

func updateColumns(u Update, at time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"status":     u.To,
		"updated_at": at,
	}
	if u.DaysOverdue != nil {
		cols["days_overdue"] = *u.DaysOverdue
	}
	if u.CalculatedPenaltyCents != nil {
		cols["calculated_penalty_cents"] = *u.CalculatedPenaltyCents
	}
	if u.FinalPenaltyCents != nil {
		cols["final_penalty_cents"] = *u.FinalPenaltyCents
	}
	if u.TaxCents != nil {
		cols["tax_cents"] = *u.TaxCents
	}
	if u.Waived != nil {
		cols["waived"] = *u.Waived
	}
	if u.WaiveReason != "" {
		cols["waive_reason"] = u.WaiveReason
	}
	if u.ChargeAuthorizationID != nil {
		cols["charge_authorization_id"] = *u.ChargeAuthorizationID
	}
	if u.ProcessorRef != "" {
		cols["processor_ref"] = u.ProcessorRef
	}
	if u.ChargeFailureReason != "" {
		cols["charge_failure_reason"] = u.ChargeFailureReason
	}
	if u.ReviewedBy != nil {
		cols["reviewed_by"] = *u.ReviewedBy
	}
	if u.ReviewedAt != nil {
		cols["reviewed_at"] = *u.ReviewedAt
	}
	if u.ResolutionNote != "" {
		cols["resolution_note"] = u.ResolutionNote
	}
	if u.ResolvedAt != nil {
		cols["resolved_at"] = *u.ResolvedAt
	}
	return cols
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from Status, u Update, at time.Time) error {
	res := txn.Conn(ctx, r.db).Model(&PenaltyRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updateColumns(u, at))
	if res.Error != nil {
		return fmt.Errorf("failed to update overstay penalty: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("overstay_penalty", id.String(), from.String(), current.Status.String())
	}
	return nil
}

func (r *repository) AppendEvent(ctx context.Context, ev *PenaltyEvent) error {
	if err := txn.Conn(ctx, r.db).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append overstay penalty event: %w", err)
	}
	return nil
}

func (r *repository) ListEvents(ctx context.Context, penaltyID uuid.UUID) ([]PenaltyEvent, error) {
	var out []PenaltyEvent
	err := txn.Conn(ctx, r.db).
		Where("penalty_id = ?", penaltyID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overstay penalty events: %w", err)
	}
	return out, nil
}
