package models

import "time"

// DailyMarketIndicator is the market-wide breadth row for one trading day.
// The advance-decline line is a cumulative fold over the full date sequence,
// so historical rewrites recompute the whole series rather than patching it.
type DailyMarketIndicator struct {
	Date time.Time `gorm:"primaryKey;type:date"`

	Advancers int   `gorm:"not null;default:0"`
	Decliners int   `gorm:"not null;default:0"`
	ADLine    int64 `gorm:"column:ad_line;type:bigint;not null;default:0"`

	HighVolumeBreakoutCount int      `gorm:"column:high_volume_breakout_count;not null;default:0"`
	PctAboveAvgVolume       *float64 `gorm:"column:pct_above_avg_volume;type:double precision"`

	// Macro joins by exact date; a series with no observation stays null.
	InterestRate    *float64 `gorm:"column:interest_rate;type:double precision"`
	YieldSpread     *float64 `gorm:"column:yield_spread;type:double precision"`
	VolatilityIndex *float64 `gorm:"column:volatility_index;type:double precision"`
}

func (DailyMarketIndicator) TableName() string {
	return "daily_market_indicators"
}
