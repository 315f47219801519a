package models

import "time"

// RefreshedTicker marks a ticker whose stored price history changed in the
// current pipeline run. Mode tells the analytics stage whether to rebuild the
// ticker's full series or only append the new tail.
type RefreshedTicker struct {
	Ticker    string    `gorm:"primaryKey;type:varchar(20)"`
	Mode      string    `gorm:"type:varchar(16);not null;default:'full'"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

const (
	RefreshModeFull        = "full"
	RefreshModeIncremental = "incremental"
)

func (RefreshedTicker) TableName() string {
	return "refreshed_tickers_log"
}
