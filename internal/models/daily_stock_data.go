package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStockData is one OHLCV bar. The (ticker,date) key is the idempotency
// contract for the whole pipeline: replaying an insert is a no-op, and a full
// refresh replaces every row for a ticker inside one transaction.
type DailyStockData struct {
	Ticker string    `gorm:"primaryKey;type:varchar(20)"`
	Date   time.Time `gorm:"primaryKey;type:date"`

	Open     decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	High     decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	Low      decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	Close    decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	AdjClose decimal.Decimal `gorm:"column:adj_close;type:numeric(18,6);not null"`
	Volume   int64           `gorm:"type:bigint;not null;default:0"`

	Stock Stock `gorm:"foreignKey:Ticker;references:Ticker;constraint:OnDelete:CASCADE" json:"-"`
}

func (DailyStockData) TableName() string {
	return "daily_stock_data"
}
