package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

// EngineStore is the slice of the repository the per-ticker indicator stage
// reads and writes through.
type EngineStore interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	ListRefreshLog(ctx context.Context) ([]models.RefreshedTicker, error)
	ListBars(ctx context.Context, ticker string) ([]models.DailyStockData, error)
	MaxAnalyticsDate(ctx context.Context, ticker string) (*time.Time, error)
	DeleteTickerAnalyticsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error)
	InsertAnalyticsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockAnalytics, batchSize int) error
	UpsertAnalytics(ctx context.Context, items []models.DailyStockAnalytics, batchSize int) error
}

// Engine recomputes per-ticker indicator series for every ticker in the
// refresh log. Mode full replaces the whole series in one transaction; mode
// incremental upserts only dates past the stored analytics max, with window
// context coming from the full in-memory bar series either way.
type Engine struct {
	Repo      EngineStore
	Logger    *zap.Logger
	Benchmark string
	Config    config.AnalyticsConfig
}

// EngineResult reports one indicator pass.
type EngineResult struct {
	Rebuilt  int   `json:"rebuilt"`
	Appended int   `json:"appended"`
	Rows     int64 `json:"rows"`
}

// Run processes the refresh log. Any per-ticker error aborts the pass: the
// log is left intact so the next run repairs the gap.
func (e *Engine) Run(ctx context.Context) (EngineResult, error) {
	var result EngineResult
	if e == nil || e.Repo == nil {
		return result, nil
	}

	log, err := e.Repo.ListRefreshLog(ctx)
	if err != nil {
		return result, fmt.Errorf("list refresh log: %w", err)
	}
	if len(log) == 0 {
		return result, nil
	}
	sort.Slice(log, func(i, j int) bool { return log[i].Ticker < log[j].Ticker })

	benchmarkHLCC4, err := e.benchmarkSeries(ctx)
	if err != nil {
		return result, err
	}

	for _, entry := range log {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rows, mode, err := e.syncTicker(ctx, entry, benchmarkHLCC4)
		if err != nil {
			return result, fmt.Errorf("analytics for %s: %w", entry.Ticker, err)
		}
		result.Rows += rows
		switch mode {
		case models.RefreshModeFull:
			result.Rebuilt++
		case models.RefreshModeIncremental:
			result.Appended++
		}
	}

	if e.Logger != nil {
		e.Logger.Info("ticker analytics complete",
			zap.Int("rebuilt", result.Rebuilt),
			zap.Int("appended", result.Appended),
			zap.Int64("rows", result.Rows),
		)
	}
	return result, nil
}

func (e *Engine) benchmarkSeries(ctx context.Context) (map[time.Time]float64, error) {
	bars, err := e.Repo.ListBars(ctx, e.Benchmark)
	if err != nil {
		return nil, fmt.Errorf("load benchmark bars: %w", err)
	}
	out := make(map[time.Time]float64, len(bars))
	for _, bar := range bars {
		out[bar.Date] = HLCC4(
			bar.High.InexactFloat64(),
			bar.Low.InexactFloat64(),
			bar.Close.InexactFloat64(),
			bar.AdjClose.InexactFloat64(),
		)
	}
	return out, nil
}

func (e *Engine) syncTicker(ctx context.Context, entry models.RefreshedTicker, benchmarkHLCC4 map[time.Time]float64) (int64, string, error) {
	bars, err := e.Repo.ListBars(ctx, entry.Ticker)
	if err != nil {
		return 0, "", err
	}
	series := ComputeSeries(entry.Ticker, bars, benchmarkHLCC4, entry.Ticker == e.Benchmark)
	if len(series) == 0 {
		return 0, "", nil
	}

	if entry.Mode == models.RefreshModeIncremental {
		max, err := e.Repo.MaxAnalyticsDate(ctx, entry.Ticker)
		if err != nil {
			return 0, "", err
		}
		if max != nil {
			tail := series[:0:0]
			for _, row := range series {
				if row.Date.After(*max) {
					tail = append(tail, row)
				}
			}
			series = tail
		}
		if len(series) == 0 {
			return 0, models.RefreshModeIncremental, nil
		}
		if err := e.Repo.UpsertAnalytics(ctx, series, e.batchLen()); err != nil {
			return 0, "", err
		}
		return int64(len(series)), models.RefreshModeIncremental, nil
	}

	// Full rewrite: the bar history changed under the old analytics, so the
	// whole derived series is stale.
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := e.Repo.DeleteTickerAnalyticsTx(ctx, tx, entry.Ticker); err != nil {
			return err
		}
		return e.Repo.InsertAnalyticsTx(ctx, tx, series, e.batchLen())
	})
	if err != nil {
		return 0, "", err
	}
	return int64(len(series)), models.RefreshModeFull, nil
}

func (e *Engine) batchLen() int {
	if e.Config.AnalyticsBatchLen <= 0 {
		return 500
	}
	return e.Config.AnalyticsBatchLen
}
