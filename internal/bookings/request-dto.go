package bookings

import (
	"time"

	"github.com/google/uuid"
)

// StorageAddonRequest reserves a storage listing for a date range
type StorageAddonRequest struct {
	StorageListingID uuid.UUID `json:"storage_listing_id" binding:"required" validate:"required"`
	StartDate        time.Time `json:"start_date" binding:"required" validate:"required"`
	EndDate          time.Time `json:"end_date" binding:"required,gtfield=StartDate" validate:"required,gtfield=StartDate"`
	DailyRateCents   int64     `json:"daily_rate_cents" binding:"required,gt=0" validate:"gt=0"`
}

// EquipmentAddonRequest rents equipment for the kitchen session
type EquipmentAddonRequest struct {
	EquipmentListingID uuid.UUID `json:"equipment_listing_id" binding:"required" validate:"required"`
	Units              int       `json:"units" binding:"required,min=1,max=50" validate:"min=1,max=50"`
	RateCents          int64     `json:"rate_cents" binding:"required,gt=0" validate:"gt=0"`
}

// CreateGroupRequest books a kitchen with optional add-ons on one payment hold
type CreateGroupRequest struct {
	KitchenID       uuid.UUID               `json:"kitchen_id" binding:"required" validate:"required"`
	LocationID      uuid.UUID               `json:"location_id" binding:"required" validate:"required"`
	BookingDate     string                  `json:"booking_date" binding:"required,datetime=2006-01-02" validate:"required,datetime=2006-01-02"`
	TimeSlots       []string                `json:"time_slots" binding:"required,min=1,max=24,unique,dive,datetime=15:04" validate:"required,min=1,max=24,unique,dive,datetime=15:04"`
	HourlyRateCents int64                   `json:"hourly_rate_cents" binding:"required,gt=0" validate:"gt=0"`
	Storage         []StorageAddonRequest   `json:"storage" binding:"omitempty,dive" validate:"omitempty,dive"`
	Equipment       []EquipmentAddonRequest `json:"equipment" binding:"omitempty,dive" validate:"omitempty,dive"`
	CustomerID      string                  `json:"customer_id" binding:"max=255" validate:"max=255"`
	PaymentMethodID string                  `json:"payment_method_id" binding:"required,max=255" validate:"required,max=255"`
	SpecialNotes    string                  `json:"special_notes" binding:"max=1000" validate:"max=1000"`
}

// AddonRequest attaches exactly one add-on to a pending group
type AddonRequest struct {
	Storage   *StorageAddonRequest   `json:"storage" binding:"required_without=Equipment,excluded_with=Equipment" validate:"required_without=Equipment,excluded_with=Equipment"`
	Equipment *EquipmentAddonRequest `json:"equipment" binding:"required_without=Storage" validate:"required_without=Storage"`
}

// TransitionRequest is the explicit compare-and-swap used by admins
type TransitionRequest struct {
	From Status `json:"from" binding:"required,oneof=pending confirmed cancellation_requested cancelled completed"`
	To   Status `json:"to" binding:"required,oneof=pending confirmed cancellation_requested cancelled completed"`
}

// RejectRequest records why a manager turned a booking down
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}
