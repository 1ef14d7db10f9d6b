package overstay

import (
	"time"

	"github.com/google/uuid"
)

// PenaltyRecord tracks one overstay of a storage booking past its end date.
// A booking has at most one record that is not resolved.
type PenaltyRecord struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StorageBookingID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"storage_booking_id"`
	BookingGroupID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	LocationID             uuid.UUID  `gorm:"type:uuid;index;not null" json:"location_id"`
	ChefID                 uuid.UUID  `gorm:"type:uuid;index;not null" json:"chef_id"`
	Status                 Status     `gorm:"type:varchar(30);index;not null" json:"status"`
	DetectedAt             time.Time  `gorm:"not null" json:"detected_at"`
	EndDate                time.Time  `gorm:"not null" json:"end_date"`
	GracePeriodEndsAt      time.Time  `gorm:"not null;index" json:"grace_period_ends_at"`
	DaysOverdue            int        `gorm:"not null;default:0" json:"days_overdue"`
	DailyRateCents         int64      `gorm:"not null" json:"daily_rate_cents"`
	PenaltyRate            float64    `gorm:"not null" json:"penalty_rate"`
	CalculatedPenaltyCents int64      `gorm:"not null;default:0" json:"calculated_penalty_cents"`
	FinalPenaltyCents      *int64     `json:"final_penalty_cents,omitempty"`
	TaxCents               int64      `gorm:"not null;default:0" json:"tax_cents"`
	Waived                 bool       `gorm:"not null;default:false" json:"waived"`
	WaiveReason            string     `gorm:"type:text" json:"waive_reason,omitempty"`
	ChargeAuthorizationID  *uuid.UUID `gorm:"type:uuid" json:"charge_authorization_id,omitempty"`
	ProcessorRef           string     `gorm:"type:varchar(255)" json:"processor_ref,omitempty"`
	ChargeFailureReason    string     `gorm:"type:text" json:"charge_failure_reason,omitempty"`
	ReviewedBy             *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt             *time.Time `json:"reviewed_at,omitempty"`
	ResolutionNote         string     `gorm:"type:text" json:"resolution_note,omitempty"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (PenaltyRecord) TableName() string {
	return "overstay_penalties"
}

// AmountDue is the approved amount, falling back to the calculated one
func (p *PenaltyRecord) AmountDue() int64 {
	if p.FinalPenaltyCents != nil {
		return *p.FinalPenaltyCents
	}
	return p.CalculatedPenaltyCents
}

// PenaltyEvent is one immutable entry in a record's audit trail
type PenaltyEvent struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PenaltyID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"penalty_id"`
	PreviousStatus *Status    `gorm:"type:varchar(30)" json:"previous_status,omitempty"`
	NewStatus      Status     `gorm:"type:varchar(30);not null" json:"new_status"`
	Source         Source     `gorm:"type:varchar(20);not null" json:"source"`
	ActorID        *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	Note           string     `gorm:"type:text" json:"note,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
}

func (PenaltyEvent) TableName() string {
	return "overstay_penalty_events"
}

// Update is a compare-and-swap on a record's status. To may equal the
// expected status to refresh amounts without transitioning. Nil fields are
// left untouched.
type Update struct {
	To                     Status
	DaysOverdue            *int
	CalculatedPenaltyCents *int64
	FinalPenaltyCents      *int64
	TaxCents               *int64
	Waived                 *bool
	WaiveReason            string
	ChargeAuthorizationID  *uuid.UUID
	ProcessorRef           string
	ChargeFailureReason    string
	ReviewedBy             *uuid.UUID
	ReviewedAt             *time.Time
	ResolutionNote         string
	ResolvedAt             *time.Time
}

// ListQuery filters penalty records
type ListQuery struct {
	StorageBookingID *uuid.UUID `form:"-"`
	LocationID       *uuid.UUID `form:"-"`
	ChefID           *uuid.UUID `form:"-"`
	Status           string     `form:"status" binding:"omitempty,oneof=detected grace_period pending_review penalty_approved penalty_waived charge_pending charge_succeeded charge_failed resolved escalated"`
	Page             int        `form:"page" binding:"omitempty,min=1"`
	Limit            int        `form:"limit" binding:"omitempty,min=1,max=100"`
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

// ApproveRequest may lower the charged amount below the calculated penalty
type ApproveRequest struct {
	FinalPenaltyCents *int64 `json:"final_penalty_cents" binding:"omitempty,gt=0"`
	Note              string `json:"note" binding:"omitempty,max=500"`
}

// WaiveRequest records why a penalty was forgiven
type WaiveRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// ResolveRequest closes an escalated record manually
type ResolveRequest struct {
	Note string `json:"note" binding:"required,min=3,max=500"`
}

// SweepResult summarizes one overstay sweep
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Detected int           `json:"detected"`
	Advanced int           `json:"advanced"`
	Resolved int           `json:"resolved"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
