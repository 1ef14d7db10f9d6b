package policies

import (
	"time"

	"kitchenhub/internal/shared/config"

	"github.com/google/uuid"
)

// LocationPolicy holds the per-location knobs the lifecycle engine reads.
// Locations without a row resolve to the configured defaults.
type LocationPolicy struct {
	LocationID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"location_id"`
	CancellationPolicyHours      int       `gorm:"not null;default:24" json:"cancellation_policy_hours" validate:"min=0,max=720"`
	AllowLateRequestCancellation bool      `gorm:"not null;default:false" json:"allow_late_request_cancellation"`
	GracePeriodHours             int       `gorm:"not null;default:24" json:"grace_period_hours" validate:"min=0,max=720"`
	PenaltyRate                  float64   `gorm:"not null;default:0.5" json:"penalty_rate" validate:"min=0,max=10"`
	TaxRatePercent               float64   `gorm:"not null;default:13" json:"tax_rate_percent" validate:"min=0,max=100"`
	CheckoutReviewWindowHours    int       `gorm:"not null;default:48" json:"checkout_review_window_hours" validate:"min=1,max=720"`
	MinimumExtensionDays         int       `gorm:"not null;default:1" json:"minimum_extension_days" validate:"min=1,max=365"`
	MinimumStorageDays           int       `gorm:"not null;default:1" json:"minimum_storage_days" validate:"min=1,max=365"`
	PlatformFeePercent           float64   `gorm:"not null;default:0.05" json:"platform_fee_percent" validate:"min=0,max=1"`
	PlatformFlatFeeCents         int64     `gorm:"not null;default:30" json:"platform_flat_fee_cents" validate:"min=0"`
	IsDefault                    bool      `gorm:"-" json:"is_default"`
	CreatedAt                    time.Time `json:"created_at"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

func (LocationPolicy) TableName() string {
	return "location_policies"
}

// Defaults builds the policy used when a location has no stored row
func Defaults(d config.BookingDefaults, locationID uuid.UUID) LocationPolicy {
	return LocationPolicy{
		LocationID:                   locationID,
		CancellationPolicyHours:      d.CancellationPolicyHours,
		AllowLateRequestCancellation: d.AllowLateRequestCancellation,
		GracePeriodHours:             d.GracePeriodHours,
		PenaltyRate:                  d.PenaltyRate,
		TaxRatePercent:               d.TaxRatePercent,
		CheckoutReviewWindowHours:    d.CheckoutReviewWindowHours,
		MinimumExtensionDays:         d.MinimumExtensionDays,
		MinimumStorageDays:           d.MinimumStorageDays,
		PlatformFeePercent:           d.PlatformFeePercent,
		PlatformFlatFeeCents:         d.PlatformFlatFeeCents,
		IsDefault:                    true,
	}
}

func (p LocationPolicy) CancellationWindow() time.Duration {
	return time.Duration(p.CancellationPolicyHours) * time.Hour
}

func (p LocationPolicy) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodHours) * time.Hour
}

func (p LocationPolicy) ReviewWindow() time.Duration {
	return time.Duration(p.CheckoutReviewWindowHours) * time.Hour
}

// UpsertPolicyRequest is a partial update; nil fields keep their current value
type UpsertPolicyRequest struct {
	CancellationPolicyHours      *int     `json:"cancellation_policy_hours" validate:"omitempty,min=0,max=720"`
	AllowLateRequestCancellation *bool    `json:"allow_late_request_cancellation"`
	GracePeriodHours             *int     `json:"grace_period_hours" validate:"omitempty,min=0,max=720"`
	PenaltyRate                  *float64 `json:"penalty_rate" validate:"omitempty,min=0,max=10"`
	TaxRatePercent               *float64 `json:"tax_rate_percent" validate:"omitempty,min=0,max=100"`
	CheckoutReviewWindowHours    *int     `json:"checkout_review_window_hours" validate:"omitempty,min=1,max=720"`
	MinimumExtensionDays         *int     `json:"minimum_extension_days" validate:"omitempty,min=1,max=365"`
	MinimumStorageDays           *int     `json:"minimum_storage_days" validate:"omitempty,min=1,max=365"`
	PlatformFeePercent           *float64 `json:"platform_fee_percent" validate:"omitempty,min=0,max=1"`
	PlatformFlatFeeCents         *int64   `json:"platform_flat_fee_cents" validate:"omitempty,min=0"`
}

// Apply copies the set fields onto p
func (r UpsertPolicyRequest) Apply(p *LocationPolicy) {
	if r.CancellationPolicyHours != nil {
		p.CancellationPolicyHours = *r.CancellationPolicyHours
	}
	if r.AllowLateRequestCancellation != nil {
		p.AllowLateRequestCancellation = *r.AllowLateRequestCancellation
	}
	if r.GracePeriodHours != nil {
		p.GracePeriodHours = *r.GracePeriodHours
	}
	if r.PenaltyRate != nil {
		p.PenaltyRate = *r.PenaltyRate
	}
	if r.TaxRatePercent != nil {
		p.TaxRatePercent = *r.TaxRatePercent
	}
	if r.CheckoutReviewWindowHours != nil {
		p.CheckoutReviewWindowHours = *r.CheckoutReviewWindowHours
	}
	if r.MinimumExtensionDays != nil {
		p.MinimumExtensionDays = *r.MinimumExtensionDays
	}
	if r.MinimumStorageDays != nil {
		p.MinimumStorageDays = *r.MinimumStorageDays
	}
	if r.PlatformFeePercent != nil {
		p.PlatformFeePercent = *r.PlatformFeePercent
	}
	if r.PlatformFlatFeeCents != nil {
		p.PlatformFlatFeeCents = *r.PlatformFlatFeeCents
	}
}
