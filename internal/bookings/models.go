package bookings

import (
	"time"

	"kitchenhub/internal/pricing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BookingGroup is a kitchen booking plus the storage and equipment add-ons
// paid for by the same authorization. Rows are never deleted.
type BookingGroup struct {
	ID                     uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ChefID                 uuid.UUID                   `gorm:"type:uuid;index;not null" json:"chef_id"`
	KitchenID              uuid.UUID                   `gorm:"type:uuid;index;not null" json:"kitchen_id"`
	LocationID             uuid.UUID                   `gorm:"type:uuid;index;not null" json:"location_id"`
	BookingDate            time.Time                   `gorm:"type:date;not null" json:"booking_date"`
	StartTime              time.Time                   `gorm:"not null;index" json:"start_time"`
	TimeSlots              datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"time_slots"`
	HourlyRateCents        int64                       `gorm:"not null" json:"hourly_rate_cents"`
	TaxRatePercent         float64                     `gorm:"not null" json:"tax_rate_percent"`
	Status                 Status                      `gorm:"type:varchar(30);index;not null;default:'pending'" json:"status"`
	PaymentAuthorizationID *uuid.UUID                  `gorm:"type:uuid;index" json:"payment_authorization_id,omitempty"`
	KitchenPriceCents      int64                       `gorm:"not null" json:"kitchen_price_cents"`
	SubtotalCents          int64                       `gorm:"not null" json:"subtotal_cents"`
	TaxCents               int64                       `gorm:"not null" json:"tax_cents"`
	TotalPriceCents        int64                       `gorm:"not null" json:"total_price_cents"`
	ServiceFeeCents        int64                       `gorm:"not null;default:0" json:"service_fee_cents"`
	SpecialNotes           string                      `json:"special_notes,omitempty"`
	CancelledAt            *time.Time                  `json:"cancelled_at,omitempty"`
	CompletedAt            *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt              time.Time                   `json:"created_at"`
	UpdatedAt              time.Time                   `json:"updated_at"`

	// Relationships
	StorageBookings   []StorageBooking   `json:"storage_bookings,omitempty" gorm:"foreignKey:BookingGroupID;constraint:OnDelete:RESTRICT;"`
	EquipmentBookings []EquipmentBooking `json:"equipment_bookings,omitempty" gorm:"foreignKey:BookingGroupID;constraint:OnDelete:RESTRICT;"`
}

// StorageBooking is a storage add-on with its own checkout workflow
type StorageBooking struct {
	ID                     uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	BookingGroupID         uuid.UUID                   `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	ChefID                 uuid.UUID                   `gorm:"type:uuid;index;not null" json:"chef_id"`
	LocationID             uuid.UUID                   `gorm:"type:uuid;index;not null" json:"location_id"`
	StorageListingID       uuid.UUID                   `gorm:"type:uuid;index;not null" json:"storage_listing_id"`
	StartDate              time.Time                   `gorm:"not null" json:"start_date"`
	EndDate                time.Time                   `gorm:"not null;index" json:"end_date"`
	DailyRateCents         int64                       `gorm:"not null" json:"daily_rate_cents"`
	TotalPriceCents        int64                       `gorm:"not null" json:"total_price_cents"`
	Status                 Status                      `gorm:"type:varchar(30);index;not null;default:'pending'" json:"status"`
	CheckoutStatus         CheckoutStatus              `gorm:"type:varchar(30);index;not null;default:'active'" json:"checkout_status"`
	CheckoutRequestedAt    *time.Time                  `json:"checkout_requested_at,omitempty"`
	CheckoutReviewDeadline *time.Time                  `gorm:"index" json:"checkout_review_deadline,omitempty"`
	CheckoutPhotoURLs      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"checkout_photo_urls,omitempty"`
	CheckoutNotes          string                      `json:"checkout_notes,omitempty"`
	CheckoutDenialReason   string                      `json:"checkout_denial_reason,omitempty"`
	CheckoutClaimNotes     string                      `json:"checkout_claim_notes,omitempty"`
	CheckoutReviewedBy     *uuid.UUID                  `gorm:"type:uuid" json:"checkout_reviewed_by,omitempty"`
	CheckoutReviewedAt     *time.Time                  `json:"checkout_reviewed_at,omitempty"`
	ActivePenaltyID        *uuid.UUID                  `gorm:"type:uuid;uniqueIndex" json:"active_penalty_id,omitempty"`
	PenalizedEndDate       *time.Time                  `json:"penalized_end_date,omitempty"`
	CancelledAt            *time.Time                  `json:"cancelled_at,omitempty"`
	CreatedAt              time.Time                   `json:"created_at"`
	UpdatedAt              time.Time                   `json:"updated_at"`
}

// PenalizedAtEnd reports whether an overstay past the current end date
// already opened a penalty. Extending the booking clears this.
func (sb *StorageBooking) PenalizedAtEnd() bool {
	return sb.PenalizedEndDate != nil && sb.PenalizedEndDate.Equal(sb.EndDate)
}

// EquipmentBooking is an equipment rental add-on. Its status follows the group.
type EquipmentBooking struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookingGroupID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	EquipmentListingID uuid.UUID  `gorm:"type:uuid;index;not null" json:"equipment_listing_id"`
	Units              int        `gorm:"not null;default:1" json:"units"`
	RateCents          int64      `gorm:"not null" json:"rate_cents"`
	TotalPriceCents    int64      `gorm:"not null" json:"total_price_cents"`
	Status             Status     `gorm:"type:varchar(30);index;not null;default:'pending'" json:"status"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (BookingGroup) TableName() string {
	return "booking_groups"
}

func (StorageBooking) TableName() string {
	return "storage_bookings"
}

func (EquipmentBooking) TableName() string {
	return "equipment_bookings"
}

// ActiveTotal prices the components that are not cancelled. Approval
// captures this amount, so a storage add-on cancelled before capture shrinks it.
func (g *BookingGroup) ActiveTotal() pricing.BookingTotal {
	var storage, equipment int64
	for _, sb := range g.StorageBookings {
		if sb.Status != StatusCancelled {
			storage += sb.TotalPriceCents
		}
	}
	for _, eb := range g.EquipmentBookings {
		if eb.Status != StatusCancelled {
			equipment += eb.TotalPriceCents
		}
	}
	return pricing.CombinedBookingTotal(g.KitchenPriceCents, storage, equipment, g.TaxRatePercent)
}

// Storage returns the linked storage booking with id
func (g *BookingGroup) Storage(id uuid.UUID) (*StorageBooking, bool) {
	for i := range g.StorageBookings {
		if g.StorageBookings[i].ID == id {
			return &g.StorageBookings[i], true
		}
	}
	return nil, false
}

// OwnedBy reports whether chefID booked the group
func (g *BookingGroup) OwnedBy(chefID uuid.UUID) bool {
	return g.ChefID == chefID
}

// GroupChange is a status compare-and-swap on a group and its add-ons
type GroupChange struct {
	From Status
	To   Status
	At   time.Time
}

// CheckoutChange is a checkout compare-and-swap. Zero-valued fields are left untouched.
type CheckoutChange struct {
	From           CheckoutStatus
	To             CheckoutStatus
	RequestedAt    *time.Time
	ReviewDeadline *time.Time
	PhotoURLs      []string
	Notes          string
	DenialReason   string
	ClaimNotes     string
	ReviewedBy     *uuid.UUID
	ReviewedAt     *time.Time
}

// ListQuery filters group listings
type ListQuery struct {
	ChefID     *uuid.UUID `form:"-"`
	LocationID *uuid.UUID `form:"-"`
	Status     string     `form:"status" binding:"omitempty,oneof=pending confirmed cancellation_requested cancelled completed"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	Limit      int        `form:"limit" binding:"omitempty,min=1,max=100"`
}
