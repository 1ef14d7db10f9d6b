// Package pricing holds the side-effect free money calculations. All amounts
// are integer cents; fractional cents are rounded half away from zero.
package pricing

import (
	"fmt"
	"math"
	"time"

	"kitchenhub/internal/shared/apperr"
)

const day = 24 * time.Hour

// ExtensionQuote is the price of moving a storage booking's end date
type ExtensionQuote struct {
	Days            int   `json:"days"`
	BasePriceCents  int64 `json:"base_price_cents"`
	TaxCents        int64 `json:"tax_cents"`
	TotalPriceCents int64 `json:"total_price_cents"`
}

// PlatformFeeSplit is the platform's cut and the manager's remainder
type PlatformFeeSplit struct {
	FeeCents             int64 `json:"fee_cents"`
	ManagerReceivesCents int64 `json:"manager_receives_cents"`
}

// BookingTotal is the combined price of a booking group
type BookingTotal struct {
	SubtotalCents   int64 `json:"subtotal_cents"`
	TaxCents        int64 `json:"tax_cents"`
	GrandTotalCents int64 `json:"grand_total_cents"`
}

// PenaltyQuote is the overstay penalty at a point in time
type PenaltyQuote struct {
	DaysOverdue            int   `json:"days_overdue"`
	CalculatedPenaltyCents int64 `json:"calculated_penalty_cents"`
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

// CeilDays counts whole or partial days in d. Non-positive spans count as zero.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(day)))
}

// TaxCents is round(base * rate / 100)
func TaxCents(baseCents int64, taxRatePercent float64) int64 {
	if taxRatePercent <= 0 {
		return 0
	}
	return roundCents(float64(baseCents) * taxRatePercent / 100)
}

// ExtensionPrice prices a storage extension. Requests shorter than the
// minimum duration are rejected rather than rounded up.
func ExtensionPrice(dailyRateCents int64, currentEnd, newEnd time.Time, minimumDays int, taxRatePercent float64) (ExtensionQuote, error) {
	if dailyRateCents < 0 {
		return ExtensionQuote{}, apperr.Validation("daily rate must not be negative")
	}
	if !newEnd.After(currentEnd) {
		return ExtensionQuote{}, apperr.Validation("new end date must be after the current end date")
	}

	requested := CeilDays(newEnd.Sub(currentEnd))
	if requested < minimumDays {
		return ExtensionQuote{}, apperr.PolicyViolation(apperr.CodeBelowMinimum,
			fmt.Sprintf("extension of %d day(s) is below the minimum of %d", requested, minimumDays))
	}

	days := max(requested, minimumDays)
	base := dailyRateCents * int64(days)
	tax := TaxCents(base, taxRatePercent)

	return ExtensionQuote{
		Days:            days,
		BasePriceCents:  base,
		TaxCents:        tax,
		TotalPriceCents: base + tax,
	}, nil
}

// PlatformFee is round(base * percentageFee + flatFee). percentageFee is a fraction (0.05 = 5%).
func PlatformFee(basePriceCents int64, percentageFee float64, flatFeeCents int64) PlatformFeeSplit {
	fee := roundCents(float64(basePriceCents)*percentageFee + float64(flatFeeCents))
	return PlatformFeeSplit{
		FeeCents:             fee,
		ManagerReceivesCents: basePriceCents - fee,
	}
}

// CombinedBookingTotal sums the components of a group and taxes the subtotal once
func CombinedBookingTotal(kitchenBaseCents, storageBaseCents, equipmentBaseCents int64, taxRatePercent float64) BookingTotal {
	subtotal := kitchenBaseCents + storageBaseCents + equipmentBaseCents
	tax := TaxCents(subtotal, taxRatePercent)
	return BookingTotal{
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		GrandTotalCents: subtotal + tax,
	}
}

// KitchenPrice is the hourly rate times the number of booked one-hour slots
func KitchenPrice(hourlyRateCents int64, slots int) int64 {
	if slots <= 0 {
		return 0
	}
	return hourlyRateCents * int64(slots)
}

// StoragePrice charges whole days between start and end, at least minimumDays
func StoragePrice(dailyRateCents int64, start, end time.Time, minimumDays int) (days int, cents int64) {
	days = max(CeilDays(end.Sub(start)), minimumDays)
	return days, dailyRateCents * int64(days)
}

// EquipmentPrice is the per-booking rate times the number of units
func EquipmentPrice(rateCents int64, units int) int64 {
	if units <= 0 {
		return 0
	}
	return rateCents * int64(units)
}

// PenaltyAmount computes the overstay penalty accrued since the grace period ended
func PenaltyAmount(dailyRateCents int64, penaltyRate float64, graceEndsAt, now time.Time) PenaltyQuote {
	days := CeilDays(now.Sub(graceEndsAt))
	return PenaltyQuote{
		DaysOverdue:            days,
		CalculatedPenaltyCents: roundCents(float64(dailyRateCents) * penaltyRate * float64(days)),
	}
}
