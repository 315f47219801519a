package models

import "time"

// DailyGroupAnalytics is the cap-weighted relative-strength composite for one
// sector or industry on one day, with its own moving averages and momentum.
type DailyGroupAnalytics struct {
	AnalysisDate time.Time `gorm:"column:analysis_date;primaryKey;type:date"`
	GroupName    string    `gorm:"column:group_name;primaryKey;type:varchar(100)"`
	GroupType    string    `gorm:"column:group_type;primaryKey;type:varchar(16)"`

	GroupRSValue  float64  `gorm:"column:group_rs_value;type:double precision;not null"`
	GroupRSSMA20  *float64 `gorm:"column:group_rs_sma_20;type:double precision"`
	GroupRSSMA50  *float64 `gorm:"column:group_rs_sma_50;type:double precision"`
	GroupRSSMA200 *float64 `gorm:"column:group_rs_sma_200;type:double precision"`

	AboveRS20SMA  *bool `gorm:"column:above_rs_20sma"`
	AboveRS50SMA  *bool `gorm:"column:above_rs_50sma"`
	AboveRS200SMA *bool `gorm:"column:above_rs_200sma"`

	GroupRSROC20 *float64 `gorm:"column:group_rs_roc_20;type:double precision"`
}

const (
	GroupTypeSector   = "sector"
	GroupTypeIndustry = "industry"
)

func (DailyGroupAnalytics) TableName() string {
	return "daily_group_analytics"
}
