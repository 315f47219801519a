package models

import "time"

// DailyBreakoutStock flags a ticker whose volume exceeded its trailing
// average by the configured multiple on a day it also closed higher.
type DailyBreakoutStock struct {
	Date   time.Time `gorm:"primaryKey;type:date"`
	Ticker string    `gorm:"primaryKey;type:varchar(20)"`

	// Volume divided by its trailing average that day.
	VolumeRatio float64 `gorm:"column:volume_ratio;type:double precision;not null;default:0"`
}

func (DailyBreakoutStock) TableName() string {
	return "daily_breakout_stocks"
}
