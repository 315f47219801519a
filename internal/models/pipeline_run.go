package models

import (
	"time"

	"gorm.io/datatypes"
)

// PipelineRun records one execution of the daily pipeline: who triggered it,
// how it ended, and the per-phase report consumed by the ops endpoints.
type PipelineRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Trigger string `gorm:"type:varchar(16);not null;default:'cron'"`
	Status  string `gorm:"type:varchar(16);not null;default:'running';index"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`

	// Counts per sync class, failed tickers with reasons, phase durations.
	Report datatypes.JSON `gorm:"type:jsonb"`
}

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
