package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// GroupStore is the slice of the repository the group composite stage uses.
type GroupStore interface {
	ListRefreshLog(ctx context.Context) ([]models.RefreshedTicker, error)
	DistinctGroupsForTickers(ctx context.Context, groupType string, tickers []string) ([]string, error)
	GroupRSComposite(ctx context.Context, groupType string, names []string, exclusions []string) ([]repository.GroupCompositeRow, error)
	ReplaceGroupAnalytics(ctx context.Context, groupType string, names []string, items []models.DailyGroupAnalytics, batchSize int) error
}

// Groups rebuilds the cap-weighted relative-strength composites for every
// sector and industry touched by the refresh log. A group is always rebuilt
// over its full history: one member's rewritten past shifts the composite on
// every date, whatever the member's refresh mode was.
type Groups struct {
	Repo   GroupStore
	Logger *zap.Logger
	Config config.AnalyticsConfig
}

type GroupsResult struct {
	Sectors    int   `json:"sectors"`
	Industries int   `json:"industries"`
	Rows       int64 `json:"rows"`
}

func (g *Groups) Run(ctx context.Context) (GroupsResult, error) {
	var result GroupsResult
	if g == nil || g.Repo == nil {
		return result, nil
	}

	log, err := g.Repo.ListRefreshLog(ctx)
	if err != nil {
		return result, fmt.Errorf("list refresh log: %w", err)
	}
	if len(log) == 0 {
		return result, nil
	}
	tickers := make([]string, 0, len(log))
	for _, entry := range log {
		tickers = append(tickers, entry.Ticker)
	}
	sort.Strings(tickers)

	for _, groupType := range []string{models.GroupTypeSector, models.GroupTypeIndustry} {
		rebuilt, rows, err := g.rebuildType(ctx, groupType, tickers)
		if err != nil {
			return result, err
		}
		switch groupType {
		case models.GroupTypeSector:
			result.Sectors = rebuilt
		case models.GroupTypeIndustry:
			result.Industries = rebuilt
		}
		result.Rows += rows
	}

	if g.Logger != nil {
		g.Logger.Info("group analytics complete",
			zap.Int("sectors", result.Sectors),
			zap.Int("industries", result.Industries),
			zap.Int64("rows", result.Rows),
		)
	}
	return result, nil
}

func (g *Groups) rebuildType(ctx context.Context, groupType string, tickers []string) (int, int64, error) {
	names, err := g.Repo.DistinctGroupsForTickers(ctx, groupType, tickers)
	if err != nil {
		return 0, 0, fmt.Errorf("affected %s groups: %w", groupType, err)
	}
	names = g.dropExcluded(names)
	if len(names) == 0 {
		return 0, 0, nil
	}
	sort.Strings(names)

	composites, err := g.Repo.GroupRSComposite(ctx, groupType, names, g.Config.GroupExclusions)
	if err != nil {
		return 0, 0, fmt.Errorf("%s composites: %w", groupType, err)
	}

	byGroup := map[string][]repository.GroupCompositeRow{}
	for _, row := range composites {
		byGroup[row.GroupName] = append(byGroup[row.GroupName], row)
	}

	items := make([]models.DailyGroupAnalytics, 0, len(composites))
	for _, name := range names {
		series := byGroup[name]
		if len(series) == 0 {
			if g.Logger != nil {
				g.Logger.Debug("no qualifying members for group",
					zap.String("group_type", groupType),
					zap.String("group", name),
				)
			}
			continue
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		items = append(items, g.deriveSeries(groupType, name, series)...)
	}

	if err := g.Repo.ReplaceGroupAnalytics(ctx, groupType, names, items, g.batchLen()); err != nil {
		return 0, 0, fmt.Errorf("replace %s analytics: %w", groupType, err)
	}
	return len(names), int64(len(items)), nil
}

// deriveSeries layers the moving averages and momentum onto one group's
// ordered composite values.
func (g *Groups) deriveSeries(groupType, name string, series []repository.GroupCompositeRow) []models.DailyGroupAnalytics {
	values := make([]float64, len(series))
	for i, row := range series {
		values[i] = row.Value
	}
	rocWindow := g.Config.ROCWindow
	if rocWindow <= 0 {
		rocWindow = 20
	}
	sma20 := SMA(values, 20)
	sma50 := SMA(values, 50)
	sma200 := SMA(values, 200)
	roc := PercentChange(values, rocWindow)

	out := make([]models.DailyGroupAnalytics, len(series))
	for i, row := range series {
		out[i] = models.DailyGroupAnalytics{
			AnalysisDate:  row.Date,
			GroupName:     name,
			GroupType:     groupType,
			GroupRSValue:  row.Value,
			GroupRSSMA20:  sma20[i],
			GroupRSSMA50:  sma50[i],
			GroupRSSMA200: sma200[i],
			AboveRS20SMA:  above(row.Value, sma20[i]),
			AboveRS50SMA:  above(row.Value, sma50[i]),
			AboveRS200SMA: above(row.Value, sma200[i]),
			GroupRSROC20:  roc[i],
		}
	}
	return out
}

func above(value float64, sma *float64) *bool {
	if sma == nil {
		return nil
	}
	result := value > *sma
	return &result
}

func (g *Groups) dropExcluded(names []string) []string {
	excluded := make(map[string]struct{}, len(g.Config.GroupExclusions))
	for _, name := range g.Config.GroupExclusions {
		excluded[name] = struct{}{}
	}
	out := names[:0:0]
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, skip := excluded[name]; skip {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (g *Groups) batchLen() int {
	if g.Config.AnalyticsBatchLen <= 0 {
		return 500
	}
	return g.Config.AnalyticsBatchLen
}
