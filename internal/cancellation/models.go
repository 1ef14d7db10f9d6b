package cancellation

import (
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/payments"

	"github.com/google/uuid"
)

// Tier decides who finishes a cancellation
type Tier string

const (
	// TierImmediate cancels on the spot
	TierImmediate Tier = "immediate"
	// TierRequest opens a CancellationRequest for the manager
	TierRequest Tier = "request"
)

// Outcome is the manager's decision on a request
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeDeclined Outcome = "declined"
)

// CancellationRequest is a chef's ask to cancel paid-for work. Outcome stays
// nil while the request is open.
type CancellationRequest struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookingGroupID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	StorageBookingID *uuid.UUID `gorm:"type:uuid;index" json:"storage_booking_id,omitempty"`
	LocationID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"location_id"`
	RequestedBy      uuid.UUID  `gorm:"type:uuid;not null" json:"requested_by"`
	Reason           string     `gorm:"type:text" json:"reason"`
	RefundCents      int64      `gorm:"not null;default:0" json:"refund_cents"`
	RequestedAt      time.Time  `gorm:"not null" json:"requested_at"`
	Outcome          *Outcome   `gorm:"type:varchar(20);index" json:"outcome,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolutionNote   string     `gorm:"type:text" json:"resolution_note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (CancellationRequest) TableName() string {
	return "cancellation_requests"
}

// IsOpen reports whether the manager has yet to decide
func (r *CancellationRequest) IsOpen() bool {
	return r.Outcome == nil
}

// Evaluation is the dry-run answer to "what happens if I cancel now"
type Evaluation struct {
	Tier            Tier            `json:"tier"`
	HoursUntilStart float64         `json:"hours_until_start"`
	WindowHours     int             `json:"window_hours"`
	LateOverride    bool            `json:"late_override"`
	Status          bookings.Status `json:"status"`
	PaymentStatus   payments.Status `json:"payment_status"`
	RefundCents     int64           `json:"refund_cents"`
}

// Result describes what a cancellation did
type Result struct {
	Tier    Tier                           `json:"tier"`
	Group   *bookings.BookingGroup         `json:"group,omitempty"`
	Storage *bookings.StorageBooking       `json:"storage,omitempty"`
	Request *CancellationRequest           `json:"request,omitempty"`
	Payment *payments.PaymentAuthorization `json:"payment,omitempty"`
}

// ListQuery filters cancellation requests
type ListQuery struct {
	BookingGroupID *uuid.UUID `form:"-"`
	LocationID     *uuid.UUID `form:"-"`
	RequestedBy    *uuid.UUID `form:"-"`
	OpenOnly       bool       `form:"open"`
	Page           int        `form:"page" binding:"omitempty,min=1"`
	Limit          int        `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (q ListQuery) normalized() ListQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

// CancelRequest is the chef's cancellation body
type CancelRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// ResolveRequest is the manager's decision body
type ResolveRequest struct {
	Outcome Outcome `json:"outcome" binding:"required,oneof=accepted declined"`
	Note    string  `json:"note" binding:"omitempty,max=500"`
}
