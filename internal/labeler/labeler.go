package labeler

import (
	"github.com/shopspring/decimal"

	"marketpulse/internal/models"
)

// Market-cap category boundaries, in dollars.
var (
	largeCapFloor = decimal.New(1, 10) // 10B
	midCapFloor   = decimal.New(2, 9)  // 2B
)

const (
	CapLarge   = "Large-Cap"
	CapMid     = "Mid-Cap"
	CapSmall   = "Small-Cap"
	CapUnknown = "Unknown"
)

// CapCategory buckets a market cap for screening and dashboard filters.
func CapCategory(marketCap decimal.NullDecimal) string {
	if !marketCap.Valid || marketCap.Decimal.Sign() <= 0 {
		return CapUnknown
	}
	switch {
	case marketCap.Decimal.GreaterThanOrEqual(largeCapFloor):
		return CapLarge
	case marketCap.Decimal.GreaterThanOrEqual(midCapFloor):
		return CapMid
	default:
		return CapSmall
	}
}

// Trend classifies one day from its close and the three moving averages.
// It returns nil until the longest average exists. The label is a total
// function of the four values: strictly stacked up is an uptrend, strictly
// stacked down is a downtrend, and everything else, ties included, is
// neutral.
func Trend(close float64, ma20, ma50, ma200 *float64) *string {
	if ma20 == nil || ma50 == nil || ma200 == nil {
		return nil
	}
	switch {
	case close > *ma20 && *ma20 > *ma50 && *ma50 > *ma200:
		return strPtr(models.TrendUp)
	case close < *ma20 && *ma20 < *ma50 && *ma50 < *ma200:
		return strPtr(models.TrendDown)
	default:
		return strPtr(models.TrendNeutral)
	}
}

func strPtr(v string) *string { return &v }
