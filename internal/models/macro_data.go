package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MacroData is one observation of a macroeconomic series. Append-only: a
// published value is never rewritten, and missing observations stay null.
type MacroData struct {
	Date     time.Time        `gorm:"primaryKey;type:date"`
	SeriesID string           `gorm:"primaryKey;type:varchar(20)"`
	Value    *decimal.Decimal `gorm:"type:numeric"`
}

func (MacroData) TableName() string {
	return "macro_data"
}
