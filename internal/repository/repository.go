package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"marketpulse/internal/models"
)

// Repository is the persistence surface shared by the sync pipeline, the
// analytics stages, and the read API.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Registry
	UpsertStocks(ctx context.Context, items []models.Stock) error
	DeleteStocksNotIn(ctx context.Context, keep []string) (int64, error)
	ListStocks(ctx context.Context, params ListStocksParams) ([]models.Stock, error)
	CountStocks(ctx context.Context, params ListStocksParams) (int64, error)
	ListStockTickers(ctx context.Context) ([]string, error)
	GetStock(ctx context.Context, ticker string) (*models.Stock, error)
	DistinctGroupsForTickers(ctx context.Context, groupType string, tickers []string) ([]string, error)

	// Price bars
	LatestBarDates(ctx context.Context) (map[string]time.Time, error)
	MaxBarDate(ctx context.Context) (*time.Time, error)
	TailBars(ctx context.Context, ticker string, n int) ([]models.DailyStockData, error)
	ListBars(ctx context.Context, ticker string) ([]models.DailyStockData, error)
	InsertBarsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockData, batchSize int) (int64, error)
	DeleteTickerBarsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error)

	// Refresh log
	UpsertRefreshLogTx(ctx context.Context, tx *gorm.DB, item *models.RefreshedTicker) error
	ListRefreshLog(ctx context.Context) ([]models.RefreshedTicker, error)
	ClearRefreshLog(ctx context.Context) error

	// Macro
	LatestMacroDates(ctx context.Context) (map[string]time.Time, error)
	InsertMacroPoints(ctx context.Context, items []models.MacroData) (int64, error)
	ListMacroData(ctx context.Context, seriesIDs []string, since *time.Time) ([]models.MacroData, error)

	// Per-ticker analytics
	MaxAnalyticsDate(ctx context.Context, ticker string) (*time.Time, error)
	DeleteTickerAnalyticsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error)
	InsertAnalyticsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockAnalytics, batchSize int) error
	UpsertAnalytics(ctx context.Context, items []models.DailyStockAnalytics, batchSize int) error
	ListStockAnalytics(ctx context.Context, params ListStockAnalyticsParams) ([]models.DailyStockAnalytics, error)

	// Market breadth
	DailyAdvanceDecline(ctx context.Context, exclude string, volWindow int) ([]AdvanceDeclineRow, error)
	DailyBreakoutRows(ctx context.Context, exclude string, volWindow int, multiple float64) ([]BreakoutRow, error)
	UpsertMarketIndicators(ctx context.Context, items []models.DailyMarketIndicator, batchSize int) error
	ListMarketIndicators(ctx context.Context, params ListMarketIndicatorsParams) ([]models.DailyMarketIndicator, error)
	ReplaceBreakoutStocks(ctx context.Context, items []models.DailyBreakoutStock, batchSize int) error
	ListBreakoutStocks(ctx context.Context, date *time.Time) ([]models.DailyBreakoutStock, error)
	LatestBreakoutDate(ctx context.Context) (*time.Time, error)

	// Group composites
	GroupRSComposite(ctx context.Context, groupType string, names []string, exclusions []string) ([]GroupCompositeRow, error)
	ReplaceGroupAnalytics(ctx context.Context, groupType string, names []string, items []models.DailyGroupAnalytics, batchSize int) error
	ListGroupAnalytics(ctx context.Context, params ListGroupAnalyticsParams) ([]models.DailyGroupAnalytics, error)
	ListGroupNames(ctx context.Context, groupType string) ([]string, error)

	// Pipeline runs
	CreatePipelineRun(ctx context.Context, item *models.PipelineRun) error
	FinishPipelineRun(ctx context.Context, id uint64, status string, finishedAt time.Time, report []byte) error
	GetPipelineRun(ctx context.Context, id uint64) (*models.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, params ListPipelineRunsParams) ([]models.PipelineRun, error)

	// System settings
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

// AdvanceDeclineRow is one day of market-wide counts, computed SQL-side over
// every ticker except the benchmark.
type AdvanceDeclineRow struct {
	Date           time.Time
	Advancers      int
	Decliners      int
	AboveAvgVolume int
	VolumeEligible int
}

// BreakoutRow is one (date,ticker) whose volume cleared the configured
// multiple of its trailing average on an up close.
type BreakoutRow struct {
	Date        time.Time
	Ticker      string
	VolumeRatio float64
}

// GroupCompositeRow is the cap-weighted relative-strength mean for one group
// and day, before moving averages are layered on.
type GroupCompositeRow struct {
	Date      time.Time
	GroupName string
	Value     float64
}

type ListStocksParams struct {
	Limit       int
	Offset      int
	Sector      *string
	Industry    *string
	CapCategory *string
	Ticker      *string
	OrderBy     string
	Asc         *bool
}

type ListStockAnalyticsParams struct {
	Ticker  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListMarketIndicatorsParams struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
	Asc    *bool
}

type ListGroupAnalyticsParams struct {
	GroupType *string
	GroupName *string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
	Asc       *bool
}

type ListPipelineRunsParams struct {
	Limit  int
	Offset int
	Status *string
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
