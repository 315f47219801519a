package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// BreadthStore is the slice of the repository the market breadth stage uses.
// The per-date aggregates come out of one windowed SQL pass; only the fold
// runs in Go.
type BreadthStore interface {
	DailyAdvanceDecline(ctx context.Context, exclude string, volWindow int) ([]repository.AdvanceDeclineRow, error)
	DailyBreakoutRows(ctx context.Context, exclude string, volWindow int, multiple float64) ([]repository.BreakoutRow, error)
	ListMacroData(ctx context.Context, seriesIDs []string, since *time.Time) ([]models.MacroData, error)
	UpsertMarketIndicators(ctx context.Context, items []models.DailyMarketIndicator, batchSize int) error
	ReplaceBreakoutStocks(ctx context.Context, items []models.DailyBreakoutStock, batchSize int) error
}

// Breadth rebuilds the market-wide daily series. The advance-decline line is
// a cumulative sum over the whole date sequence, so it is always recomputed
// from scratch rather than patched; upserting identical rows keeps untouched
// dates drift-free.
type Breadth struct {
	Repo      BreadthStore
	Logger    *zap.Logger
	Benchmark string
	Config    config.AnalyticsConfig
	// MacroSeries maps indicator column to the macro series id feeding it,
	// e.g. volatility_index -> VIXCLS.
	MacroSeries map[string]string
}

type BreadthResult struct {
	Days      int `json:"days"`
	Breakouts int `json:"breakouts"`
}

func (b *Breadth) Run(ctx context.Context) (BreadthResult, error) {
	var result BreadthResult
	if b == nil || b.Repo == nil {
		return result, nil
	}

	window := b.Config.VolumeAvgWindow
	if window <= 0 {
		window = 50
	}
	multiple := b.Config.BreakoutMultiple
	if multiple <= 0 {
		multiple = 1.5
	}

	counts, err := b.Repo.DailyAdvanceDecline(ctx, b.Benchmark, window)
	if err != nil {
		return result, fmt.Errorf("advance-decline aggregates: %w", err)
	}
	if len(counts) == 0 {
		return result, nil
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Date.Before(counts[j].Date) })

	breakouts, err := b.Repo.DailyBreakoutRows(ctx, b.Benchmark, window, multiple)
	if err != nil {
		return result, fmt.Errorf("breakout rows: %w", err)
	}
	breakoutsPerDay := map[time.Time]int{}
	for _, row := range breakouts {
		breakoutsPerDay[row.Date]++
	}

	macro, err := b.macroByDate(ctx)
	if err != nil {
		return result, err
	}

	items := make([]models.DailyMarketIndicator, 0, len(counts))
	var adLine int64
	for _, row := range counts {
		adLine += int64(row.Advancers - row.Decliners)
		item := models.DailyMarketIndicator{
			Date:                    row.Date,
			Advancers:               row.Advancers,
			Decliners:               row.Decliners,
			ADLine:                  adLine,
			HighVolumeBreakoutCount: breakoutsPerDay[row.Date],
		}
		if row.VolumeEligible > 0 {
			pct := 100 * float64(row.AboveAvgVolume) / float64(row.VolumeEligible)
			item.PctAboveAvgVolume = &pct
		}
		if values, ok := macro[row.Date]; ok {
			item.InterestRate = values["interest_rate"]
			item.YieldSpread = values["yield_spread"]
			item.VolatilityIndex = values["volatility_index"]
		}
		items = append(items, item)
	}

	if err := b.Repo.UpsertMarketIndicators(ctx, items, b.batchLen()); err != nil {
		return result, fmt.Errorf("upsert market indicators: %w", err)
	}

	flagged := make([]models.DailyBreakoutStock, 0, len(breakouts))
	for _, row := range breakouts {
		flagged = append(flagged, models.DailyBreakoutStock{
			Date:        row.Date,
			Ticker:      row.Ticker,
			VolumeRatio: row.VolumeRatio,
		})
	}
	if err := b.Repo.ReplaceBreakoutStocks(ctx, flagged, b.batchLen()); err != nil {
		return result, fmt.Errorf("replace breakout stocks: %w", err)
	}

	result.Days = len(items)
	result.Breakouts = len(flagged)
	if b.Logger != nil {
		b.Logger.Info("market breadth complete",
			zap.Int("days", result.Days),
			zap.Int("breakouts", result.Breakouts),
		)
	}
	return result, nil
}

// macroByDate pivots the stored macro observations into date -> column ->
// value. Joins are by exact date: no forward fill, absent observations stay
// nil.
func (b *Breadth) macroByDate(ctx context.Context) (map[time.Time]map[string]*float64, error) {
	if len(b.MacroSeries) == 0 {
		return nil, nil
	}
	columnBySeries := make(map[string]string, len(b.MacroSeries))
	seriesIDs := make([]string, 0, len(b.MacroSeries))
	for column, seriesID := range b.MacroSeries {
		columnBySeries[seriesID] = column
		seriesIDs = append(seriesIDs, seriesID)
	}
	sort.Strings(seriesIDs)

	observations, err := b.Repo.ListMacroData(ctx, seriesIDs, nil)
	if err != nil {
		return nil, fmt.Errorf("list macro data: %w", err)
	}
	out := map[time.Time]map[string]*float64{}
	for _, obs := range observations {
		column, ok := columnBySeries[obs.SeriesID]
		if !ok || obs.Value == nil {
			continue
		}
		if out[obs.Date] == nil {
			out[obs.Date] = map[string]*float64{}
		}
		value := obs.Value.InexactFloat64()
		out[obs.Date][column] = &value
	}
	return out, nil
}

func (b *Breadth) batchLen() int {
	if b.Config.AnalyticsBatchLen <= 0 {
		return 500
	}
	return b.Config.AnalyticsBatchLen
}
