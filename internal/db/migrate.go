package db

import (
	"marketpulse/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Stock{},
		&models.DailyStockData{},
		&models.MacroData{},
		&models.RefreshedTicker{},
		&models.DailyStockAnalytics{},
		&models.DailyMarketIndicator{},
		&models.DailyBreakoutStock{},
		&models.DailyGroupAnalytics{},
		&models.PipelineRun{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	// Early deployments carried a serial id on daily_stock_data; the composite
	// (ticker,date) key replaced it.
	if db.Gorm.Migrator().HasColumn(&models.DailyStockData{}, "id") {
		if err := db.Gorm.Migrator().DropColumn(&models.DailyStockData{}, "id"); err != nil {
			return err
		}
	}
	return nil
}
