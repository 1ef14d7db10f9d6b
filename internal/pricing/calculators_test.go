package pricing

import (
	"testing"
	"time"

	"kitchenhub/internal/shared/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestExtensionPrice(t *testing.T) {
	quote, err := ExtensionPrice(1000, day0, day0.AddDate(0, 0, 5), 1, 13)

	require.NoError(t, err)
	assert.Equal(t, ExtensionQuote{Days: 5, BasePriceCents: 5000, TaxCents: 650, TotalPriceCents: 5650}, quote)
}

func TestExtensionPricePartialDayRoundsUp(t *testing.T) {
	quote, err := ExtensionPrice(1000, day0, day0.Add(49*time.Hour), 1, 0)

	require.NoError(t, err)
	assert.Equal(t, 3, quote.Days)
	assert.Equal(t, int64(3000), quote.TotalPriceCents)
}

func TestExtensionPriceBelowMinimum(t *testing.T) {
	_, err := ExtensionPrice(1000, day0, day0.AddDate(0, 0, 2), 3, 13)

	assert.ErrorIs(t, err, apperr.ErrBelowMinimum)
}

func TestExtensionPriceRejectsNonForwardDates(t *testing.T) {
	_, err := ExtensionPrice(1000, day0, day0, 1, 13)

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPlatformFee(t *testing.T) {
	split := PlatformFee(10000, 0.05, 30)

	assert.Equal(t, int64(530), split.FeeCents)
	assert.Equal(t, int64(9470), split.ManagerReceivesCents)
}

func TestPlatformFeeRounding(t *testing.T) {
	// 1234 * 0.035 = 43.19
	split := PlatformFee(1234, 0.035, 0)

	assert.Equal(t, int64(43), split.FeeCents)
	assert.Equal(t, int64(1191), split.ManagerReceivesCents)
}

func TestCombinedBookingTotal(t *testing.T) {
	total := CombinedBookingTotal(8000, 3000, 1500, 13)

	assert.Equal(t, int64(12500), total.SubtotalCents)
	assert.Equal(t, int64(1625), total.TaxCents)
	assert.Equal(t, int64(14125), total.GrandTotalCents)
}

func TestComponentPrices(t *testing.T) {
	assert.Equal(t, int64(9000), KitchenPrice(3000, 3))
	assert.Equal(t, int64(0), KitchenPrice(3000, 0))
	assert.Equal(t, int64(2500), EquipmentPrice(500, 5))

	days, cents := StoragePrice(700, day0, day0.Add(12*time.Hour), 2)
	assert.Equal(t, 2, days)
	assert.Equal(t, int64(1400), cents)
}

func TestPenaltyAmount(t *testing.T) {
	graceEnd := day0
	quote := PenaltyAmount(2000, 0.5, graceEnd, graceEnd.AddDate(0, 0, 3))

	assert.Equal(t, 3, quote.DaysOverdue)
	assert.Equal(t, int64(3000), quote.CalculatedPenaltyCents)
}

func TestPenaltyAmountPartialDay(t *testing.T) {
	quote := PenaltyAmount(2000, 0.5, day0, day0.Add(25*time.Hour))

	assert.Equal(t, 2, quote.DaysOverdue)
	assert.Equal(t, int64(2000), quote.CalculatedPenaltyCents)
}

func TestPenaltyAmountBeforeGraceEnd(t *testing.T) {
	quote := PenaltyAmount(2000, 0.5, day0, day0.Add(-time.Hour))

	assert.Equal(t, 0, quote.DaysOverdue)
	assert.Equal(t, int64(0), quote.CalculatedPenaltyCents)
}

func TestTaxCents(t *testing.T) {
	assert.Equal(t, int64(0), TaxCents(5000, 0))
	assert.Equal(t, int64(390), TaxCents(3000, 13))
	assert.Equal(t, int64(1), TaxCents(5, 13)) // 0.65 rounds up
}
