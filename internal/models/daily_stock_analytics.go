package models

import "time"

// DailyStockAnalytics is the derived indicator row for one ticker and day.
// Window-based fields stay null until their window is full; they are never
// zero-filled. Trend is null until the 200-day average exists.
type DailyStockAnalytics struct {
	Ticker string    `gorm:"primaryKey;type:varchar(20)"`
	Date   time.Time `gorm:"primaryKey;type:date"`

	HLCC4 float64  `gorm:"column:hlcc4;type:double precision;not null"`
	MA20  *float64 `gorm:"column:ma_20;type:double precision"`
	MA50  *float64 `gorm:"column:ma_50;type:double precision"`
	MA200 *float64 `gorm:"column:ma_200;type:double precision"`
	RS    *float64 `gorm:"column:rs;type:double precision"`
	Trend *string  `gorm:"column:trend;type:varchar(16)"`

	Perf1W  *float64 `gorm:"column:perf_1w;type:double precision"`
	Perf1M  *float64 `gorm:"column:perf_1m;type:double precision"`
	Perf3M  *float64 `gorm:"column:perf_3m;type:double precision"`
	Perf6M  *float64 `gorm:"column:perf_6m;type:double precision"`
	PerfYTD *float64 `gorm:"column:perf_ytd;type:double precision"`
}

const (
	TrendUp      = "uptrend"
	TrendDown    = "downtrend"
	TrendNeutral = "neutral"
)

func (DailyStockAnalytics) TableName() string {
	return "daily_stock_analytics"
}
