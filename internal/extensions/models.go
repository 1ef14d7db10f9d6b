package extensions

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a storage extension
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusRefunded  Status = "refunded"
)

func (s Status) String() string {
	return string(s)
}

// IsOpen reports whether the extension still awaits payment or review
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusPaid
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusPaid, StatusRejected},
	StatusPaid:     {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
	StatusRejected: {StatusRefunded},
}

// CanTransition reports whether from -> to is allowed. Approved and
// completed extensions are immutable apart from approved -> completed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ExtensionRequest asks to push a storage booking's end date out
type ExtensionRequest struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StorageBookingID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"storage_booking_id"`
	BookingGroupID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	ChefID                 uuid.UUID  `gorm:"type:uuid;index;not null" json:"chef_id"`
	LocationID             uuid.UUID  `gorm:"type:uuid;index;not null" json:"location_id"`
	CurrentEndDate         time.Time  `gorm:"not null" json:"current_end_date"`
	NewEndDate             time.Time  `gorm:"not null" json:"new_end_date"`
	ExtensionDays          int        `gorm:"not null" json:"extension_days"`
	DailyRateCents         int64      `gorm:"not null" json:"daily_rate_cents"`
	BasePriceCents         int64      `gorm:"not null" json:"base_price_cents"`
	TaxCents               int64      `gorm:"not null" json:"tax_cents"`
	TotalPriceCents        int64      `gorm:"not null" json:"total_price_cents"`
	Status                 Status     `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`
	PaymentAuthorizationID *uuid.UUID `gorm:"type:uuid" json:"payment_authorization_id,omitempty"`
	RejectionReason        string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	ReviewedBy             *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt             *time.Time `json:"reviewed_at,omitempty"`
	PaidAt                 *time.Time `json:"paid_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (ExtensionRequest) TableName() string {
	return "storage_extensions"
}

// Update is a status compare-and-swap; nil fields are left untouched
type Update struct {
	To                     Status
	PaymentAuthorizationID *uuid.UUID
	RejectionReason        string
	ReviewedBy             *uuid.UUID
	ReviewedAt             *time.Time
	PaidAt                 *time.Time
	CompletedAt            *time.Time
}

// CreateRequest is the chef's extension body
type CreateRequest struct {
	NewEndDate time.Time `json:"new_end_date" binding:"required"`
}

// RejectRequest records why a manager turned an extension down
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}
