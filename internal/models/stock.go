package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is one row of the registry: a listed security that passed the
// screener's liquidity and size filters, or the benchmark index.
type Stock struct {
	Ticker            string              `gorm:"primaryKey;type:varchar(20)"`
	Sector            string              `gorm:"type:varchar(100);not null;default:'Unknown';index"`
	Industry          string              `gorm:"type:varchar(100);not null;default:'Unknown';index"`
	MarketCapCategory string              `gorm:"type:varchar(50);not null;default:'Unknown'"`
	MarketCap         decimal.NullDecimal `gorm:"type:numeric"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Stock) TableName() string {
	return "stocks"
}
