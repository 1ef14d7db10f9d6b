package bookings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/txn"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pricing is the money snapshot stored on a group
type Pricing struct {
	AuthorizationID *uuid.UUID
	SubtotalCents   int64
	TaxCents        int64
	TotalPriceCents int64
	ServiceFeeCents int64
}

type Repository interface {
	// Group operations
	CreateGroup(ctx context.Context, g *BookingGroup) error
	GetGroup(ctx context.Context, id uuid.UUID) (*BookingGroup, error)
	ListGroups(ctx context.Context, query ListQuery) ([]BookingGroup, int64, error)
	// UpdateGroupStatus swaps the group status and cascades the change to
	// linked bookings that were in the same status.
	UpdateGroupStatus(ctx context.Context, id uuid.UUID, change GroupChange) error
	SetGroupPricing(ctx context.Context, id uuid.UUID, p Pricing) error

	// Add-ons
	AddStorage(ctx context.Context, sb *StorageBooking) error
	AddEquipment(ctx context.Context, eb *EquipmentBooking) error

	// Storage operations
	GetStorage(ctx context.Context, id uuid.UUID) (*StorageBooking, error)
	UpdateStorageStatus(ctx context.Context, id uuid.UUID, change GroupChange) error
	UpdateCheckout(ctx context.Context, id uuid.UUID, change CheckoutChange, at time.Time) error
	ExtendStorage(ctx context.Context, id uuid.UUID, expectedEnd, newEnd time.Time, addCents int64) error
	SetActivePenalty(ctx context.Context, id uuid.UUID, expected, next *uuid.UUID) error

	// Sweep queries
	ListOverstayCandidates(ctx context.Context, now time.Time, limit int) ([]StorageBooking, error)
	ListCheckoutReviewsDue(ctx context.Context, now time.Time, limit int) ([]StorageBooking, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateGroup(ctx context.Context, g *BookingGroup) error {
	if err := txn.Conn(ctx, r.db).Create(g).Error; err != nil {
		return fmt.Errorf("failed to create booking group: %w", err)
	}
	return nil
}

func (r *repository) GetGroup(ctx context.Context, id uuid.UUID) (*BookingGroup, error) {
	var g BookingGroup
	err := txn.Conn(ctx, r.db).
		Preload("StorageBookings", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("EquipmentBookings", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("booking_group", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking group: %w", err)
	}
	return &g, nil
}

func (r *repository) ListGroups(ctx context.Context, query ListQuery) ([]BookingGroup, int64, error) {
	var groups []BookingGroup
	var totalCount int64

	query = query.normalized()

	baseQuery := txn.Conn(ctx, r.db).Model(&BookingGroup{})
	baseQuery = r.applyFilters(baseQuery, query)

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count booking groups: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	err := baseQuery.
		Preload("StorageBookings").
		Preload("EquipmentBookings").
		Order("start_time DESC").
		Offset(offset).
		Limit(query.Limit).
		Find(&groups).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list booking groups: %w", err)
	}
	return groups, totalCount, nil
}

func (r *repository) applyFilters(query *gorm.DB, filters ListQuery) *gorm.DB {
	if filters.ChefID != nil {
		query = query.Where("chef_id = ?", *filters.ChefID)
	}
	if filters.LocationID != nil {
		query = query.Where("location_id = ?", *filters.LocationID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	return query
}

func statusUpdates(change GroupChange) map[string]interface{} {
	updates := map[string]interface{}{
		"status":     change.To,
		"updated_at": change.At,
	}
	switch change.To {
	case StatusCancelled:
		updates["cancelled_at"] = change.At
	case StatusCompleted:
		updates["completed_at"] = change.At
	}
	return updates
}

func (r *repository) UpdateGroupStatus(ctx context.Context, id uuid.UUID, change GroupChange) error {
	db := txn.Conn(ctx, r.db)
	res := db.Model(&BookingGroup{}).
		Where("id = ? AND status = ?", id, change.From).
		Updates(statusUpdates(change))
	if res.Error != nil {
		return fmt.Errorf("failed to update booking group status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.groupMismatch(ctx, id, change.From)
	}

	child := statusUpdates(change)
	delete(child, "completed_at")
	if err := db.Model(&EquipmentBooking{}).
		Where("booking_group_id = ? AND status = ?", id, change.From).
		Updates(child).Error; err != nil {
		return fmt.Errorf("failed to cascade equipment status: %w", err)
	}
	// Storage completes through checkout, never with the kitchen session
	if change.To != StatusCompleted {
		if err := db.Model(&StorageBooking{}).
			Where("booking_group_id = ? AND status = ?", id, change.From).
			Updates(child).Error; err != nil {
			return fmt.Errorf("failed to cascade storage status: %w", err)
		}
	}
	return nil
}

func (r *repository) groupMismatch(ctx context.Context, id uuid.UUID, expected Status) error {
	var current BookingGroup
	err := txn.Conn(ctx, r.db).Select("id", "status").Where("id = ?", id).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("booking_group", id.String())
	}
	if err != nil {
		return fmt.Errorf("failed to get booking group: %w", err)
	}
	return apperr.InvalidTransition("booking_group", id.String(), expected.String(), current.Status.String())
}

func (r *repository) SetGroupPricing(ctx context.Context, id uuid.UUID, p Pricing) error {
	updates := map[string]interface{}{
		"subtotal_cents":    p.SubtotalCents,
		"tax_cents":         p.TaxCents,
		"total_price_cents": p.TotalPriceCents,
		"service_fee_cents": p.ServiceFeeCents,
		"updated_at":        time.Now().UTC(),
	}
	if p.AuthorizationID != nil {
		updates["payment_authorization_id"] = *p.AuthorizationID
	}
	res := txn.Conn(ctx, r.db).Model(&BookingGroup{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update booking group pricing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("booking_group", id.String())
	}
	return nil
}

func (r *repository) AddStorage(ctx context.Context, sb *StorageBooking) error {
	if err := txn.Conn(ctx, r.db).Create(sb).Error; err != nil {
		return fmt.Errorf("failed to create storage booking: %w", err)
	}
	return nil
}

func (r *repository) AddEquipment(ctx context.Context, eb *EquipmentBooking) error {
	if err := txn.Conn(ctx, r.db).Create(eb).Error; err != nil {
		return fmt.Errorf("failed to create equipment booking: %w", err)
	}
	return nil
}

func (r *repository) GetStorage(ctx context.Context, id uuid.UUID) (*StorageBooking, error) {
	var sb StorageBooking
	err := txn.Conn(ctx, r.db).Where("id = ?", id).First(&sb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("storage_booking", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage booking: %w", err)
	}
	return &sb, nil
}

func (r *repository) UpdateStorageStatus(ctx context.Context, id uuid.UUID, change GroupChange) error {
	updates := statusUpdates(change)
	delete(updates, "completed_at")
	res := txn.Conn(ctx, r.db).Model(&StorageBooking{}).
		Where("id = ? AND status = ?", id, change.From).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update storage booking status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetStorage(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("storage_booking", id.String(), change.From.String(), current.Status.String())
	}
	return nil
}

func checkoutUpdates(change CheckoutChange, at time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"checkout_status": change.To,
		"updated_at":      at,
	}
	if change.RequestedAt != nil {
		updates["checkout_requested_at"] = *change.RequestedAt
	}
	if change.ReviewDeadline != nil {
		updates["checkout_review_deadline"] = *change.ReviewDeadline
	}
	if change.PhotoURLs != nil {
		updates["checkout_photo_urls"] = datatypes.JSONSlice[string](change.PhotoURLs)
	}
	if change.Notes != "" {
		updates["checkout_notes"] = change.Notes
	}
	if change.DenialReason != "" {
		updates["checkout_denial_reason"] = change.DenialReason
	}
	if change.ClaimNotes != "" {
		updates["checkout_claim_notes"] = change.ClaimNotes
	}
	if change.ReviewedBy != nil {
		updates["checkout_reviewed_by"] = *change.ReviewedBy
	}
	if change.ReviewedAt != nil {
		updates["checkout_reviewed_at"] = *change.ReviewedAt
	}
	return updates
}

func (r *repository) UpdateCheckout(ctx context.Context, id uuid.UUID, change CheckoutChange, at time.Time) error {
	res := txn.Conn(ctx, r.db).Model(&StorageBooking{}).
		Where("id = ? AND checkout_status = ?", id, change.From).
		Updates(checkoutUpdates(change, at))
	if res.Error != nil {
		return fmt.Errorf("failed to update checkout status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetStorage(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("storage_checkout", id.String(), change.From.String(), current.CheckoutStatus.String())
	}
	return nil
}

func (r *repository) ExtendStorage(ctx context.Context, id uuid.UUID, expectedEnd, newEnd time.Time, addCents int64) error {
	res := txn.Conn(ctx, r.db).Model(&StorageBooking{}).
		Where("id = ? AND end_date = ?", id, expectedEnd).
		Updates(map[string]interface{}{
			"end_date":          newEnd,
			"total_price_cents": gorm.Expr("total_price_cents + ?", addCents),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to extend storage booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetStorage(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("storage_booking", id.String(),
			expectedEnd.UTC().Format(time.RFC3339), current.EndDate.UTC().Format(time.RFC3339))
	}
	return nil
}

func (r *repository) SetActivePenalty(ctx context.Context, id uuid.UUID, expected, next *uuid.UUID) error {
	q := txn.Conn(ctx, r.db).Model(&StorageBooking{}).Where("id = ?", id)
	if expected == nil {
		q = q.Where("active_penalty_id IS NULL")
	} else {
		q = q.Where("active_penalty_id = ?", *expected)
	}
	cols := map[string]interface{}{"active_penalty_id": next}
	if next != nil {
		cols["penalized_end_date"] = gorm.Expr("end_date")
	}
	res := q.Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to set active penalty: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := r.GetStorage(ctx, id)
		if err != nil {
			return err
		}
		return apperr.InvalidTransition("storage_booking", id.String(), penaltyLabel(expected), penaltyLabel(current.ActivePenaltyID))
	}
	return nil
}

func (r *repository) ListOverstayCandidates(ctx context.Context, now time.Time, limit int) ([]StorageBooking, error) {
	var out []StorageBooking
	err := txn.Conn(ctx, r.db).
		Where("status = ? AND checkout_status = ? AND end_date < ? AND active_penalty_id IS NULL",
			StatusConfirmed, CheckoutActive, now).
		Where("penalized_end_date IS NULL OR penalized_end_date <> end_date").
		Order("end_date ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overstay candidates: %w", err)
	}
	return out, nil
}

func (r *repository) ListCheckoutReviewsDue(ctx context.Context, now time.Time, limit int) ([]StorageBooking, error) {
	var out []StorageBooking
	err := txn.Conn(ctx, r.db).
		Where("checkout_status = ? AND checkout_review_deadline < ?", CheckoutRequested, now).
		Order("checkout_review_deadline ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout reviews due: %w", err)
	}
	return out, nil
}

func penaltyLabel(id *uuid.UUID) string {
	if id == nil {
		return "none"
	}
	return id.String()
}

func (q ListQuery) normalized() ListQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	return q
}

// CalculateTotalPages returns the page count for a listing
func CalculateTotalPages(totalCount int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalCount) / float64(limit)))
}
