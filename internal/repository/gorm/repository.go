package gormrepository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Registry ---------------------------------------------------------------

func (s *Store) UpsertStocks(ctx context.Context, items []models.Stock) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sector",
			"industry",
			"market_cap_category",
			"market_cap",
			"updated_at",
		}),
	}).CreateInBatches(items, 500).Error
}

func (s *Store) DeleteStocksNotIn(ctx context.Context, keep []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	keep = cleanStrings(keep)
	if len(keep) == 0 {
		// An empty keep set would wipe the registry and cascade every bar.
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("ticker NOT IN ?", keep).
		Delete(&models.Stock{})
	return res.RowsAffected, res.Error
}

func (s *Store) ListStocks(ctx context.Context, params repository.ListStocksParams) ([]models.Stock, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyStockFilters(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "ticker")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Stock
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountStocks(ctx context.Context, params repository.ListStocksParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := s.applyStockFilters(ctx, params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) applyStockFilters(ctx context.Context, params repository.ListStocksParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Stock{})
	if params.Sector != nil && strings.TrimSpace(*params.Sector) != "" {
		query = query.Where("sector = ?", strings.TrimSpace(*params.Sector))
	}
	if params.Industry != nil && strings.TrimSpace(*params.Industry) != "" {
		query = query.Where("industry = ?", strings.TrimSpace(*params.Industry))
	}
	if params.CapCategory != nil && strings.TrimSpace(*params.CapCategory) != "" {
		query = query.Where("market_cap_category = ?", strings.TrimSpace(*params.CapCategory))
	}
	if params.Ticker != nil && strings.TrimSpace(*params.Ticker) != "" {
		query = query.Where("ticker ILIKE ?", strings.TrimSpace(*params.Ticker)+"%")
	}
	return query
}

func (s *Store) ListStockTickers(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var tickers []string
	if err := s.db.WithContext(ctx).
		Model(&models.Stock{}).
		Order("ticker asc").
		Pluck("ticker", &tickers).Error; err != nil {
		return nil, err
	}
	return tickers, nil
}

func (s *Store) GetStock(ctx context.Context, ticker string) (*models.Stock, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, nil
	}
	var item models.Stock
	err := s.db.WithContext(ctx).Where("ticker = ?", ticker).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DistinctGroupsForTickers(ctx context.Context, groupType string, tickers []string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	tickers = cleanStrings(tickers)
	if len(tickers) == 0 {
		return nil, nil
	}
	column, err := groupColumn(groupType)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&models.Stock{}).
		Distinct(column).
		Where("ticker IN ?", tickers).
		Order(column + " asc").
		Pluck(column, &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// --- Price bars -------------------------------------------------------------

func (s *Store) LatestBarDates(ctx context.Context) (map[string]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []struct {
		Ticker  string
		MaxDate time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&models.DailyStockData{}).
		Select("ticker, MAX(date) AS max_date").
		Group("ticker").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.Ticker] = r.MaxDate.UTC()
	}
	return out, nil
}

func (s *Store) MaxBarDate(ctx context.Context) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var row struct {
		MaxDate *time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&models.DailyStockData{}).
		Select("MAX(date) AS max_date").
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.MaxDate == nil {
		return nil, nil
	}
	d := row.MaxDate.UTC()
	return &d, nil
}

func (s *Store) TailBars(ctx context.Context, ticker string, n int) ([]models.DailyStockData, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" || n <= 0 {
		return nil, nil
	}
	var items []models.DailyStockData
	if err := s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("date desc").
		Limit(n).
		Find(&items).Error; err != nil {
		return nil, err
	}
	// Callers expect ascending order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *Store) ListBars(ctx context.Context, ticker string) ([]models.DailyStockData, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, nil
	}
	var items []models.DailyStockData
	if err := s.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("date asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertBarsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockData, batchSize int) (int64, error) {
	if tx == nil || len(items) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	var inserted int64
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		res := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}, {Name: "date"}},
			DoNothing: true,
		}).Create(items[i:end])
		if res.Error != nil {
			return inserted, res.Error
		}
		inserted += res.RowsAffected
	}
	return inserted, nil
}

func (s *Store) DeleteTickerBarsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error) {
	if tx == nil {
		return 0, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Where("ticker = ?", ticker).
		Delete(&models.DailyStockData{})
	return res.RowsAffected, res.Error
}

// --- Refresh log ------------------------------------------------------------

func (s *Store) UpsertRefreshLogTx(ctx context.Context, tx *gorm.DB, item *models.RefreshedTicker) error {
	if tx == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Ticker) == "" {
		return nil
	}
	// A full-mode entry must not be downgraded by a later incremental pass.
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker"}},
		DoUpdates: clause.Assignments(map[string]any{
			"mode": gorm.Expr(
				"CASE WHEN refreshed_tickers_log.mode = ? THEN refreshed_tickers_log.mode ELSE excluded.mode END",
				models.RefreshModeFull,
			),
		}),
	}).Create(item).Error
}

func (s *Store) ListRefreshLog(ctx context.Context) ([]models.RefreshedTicker, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.RefreshedTicker
	if err := s.db.WithContext(ctx).Order("ticker asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ClearRefreshLog(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Exec("TRUNCATE TABLE refreshed_tickers_log").Error
}

// --- Macro ------------------------------------------------------------------

func (s *Store) LatestMacroDates(ctx context.Context) (map[string]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []struct {
		SeriesID string
		MaxDate  time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&models.MacroData{}).
		Select("series_id, MAX(date) AS max_date").
		Group("series_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.SeriesID] = r.MaxDate.UTC()
	}
	return out, nil
}

func (s *Store) InsertMacroPoints(ctx context.Context, items []models.MacroData) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "series_id"}},
		DoNothing: true,
	}).CreateInBatches(items, 500)
	return res.RowsAffected, res.Error
}

func (s *Store) ListMacroData(ctx context.Context, seriesIDs []string, since *time.Time) ([]models.MacroData, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MacroData{})
	seriesIDs = cleanStrings(seriesIDs)
	if len(seriesIDs) > 0 {
		query = query.Where("series_id IN ?", seriesIDs)
	}
	if since != nil && !since.IsZero() {
		query = query.Where("date >= ?", since.UTC())
	}
	var items []models.MacroData
	if err := query.Order("date asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Per-ticker analytics ---------------------------------------------------

func (s *Store) MaxAnalyticsDate(ctx context.Context, ticker string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, nil
	}
	var row struct {
		MaxDate *time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&models.DailyStockAnalytics{}).
		Select("MAX(date) AS max_date").
		Where("ticker = ?", ticker).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.MaxDate == nil {
		return nil, nil
	}
	d := row.MaxDate.UTC()
	return &d, nil
}

func (s *Store) DeleteTickerAnalyticsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error) {
	if tx == nil {
		return 0, nil
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return 0, nil
	}
	res := tx.WithContext(ctx).
		Where("ticker = ?", ticker).
		Delete(&models.DailyStockAnalytics{})
	return res.RowsAffected, res.Error
}

func (s *Store) InsertAnalyticsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockAnalytics, batchSize int) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return tx.WithContext(ctx).CreateInBatches(items, batchSize).Error
}

func (s *Store) UpsertAnalytics(ctx context.Context, items []models.DailyStockAnalytics, batchSize int) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"hlcc4",
			"ma_20",
			"ma_50",
			"ma_200",
			"rs",
			"trend",
			"perf_1w",
			"perf_1m",
			"perf_3m",
			"perf_6m",
			"perf_ytd",
		}),
	}).CreateInBatches(items, batchSize).Error
}

func (s *Store) ListStockAnalytics(ctx context.Context, params repository.ListStockAnalyticsParams) ([]models.DailyStockAnalytics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ticker := strings.TrimSpace(params.Ticker)
	if ticker == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.DailyStockAnalytics{}).
		Where("ticker = ?", ticker)
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("date >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("date <= ?", params.Until.UTC())
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "date")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyStockAnalytics
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Market breadth ---------------------------------------------------------

func (s *Store) DailyAdvanceDecline(ctx context.Context, exclude string, volWindow int) ([]repository.AdvanceDeclineRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if volWindow <= 1 {
		volWindow = 50
	}
	// The frame bound cannot be a bind parameter; volWindow is a validated int.
	// The vol_rows gate and volume filter mirror repository.VolumeEligible
	// and repository.HighVolume.
	sql := fmt.Sprintf(`
WITH seq AS (
    SELECT d.ticker,
           d.date,
           d.close,
           LAG(d.close) OVER w AS prev_close,
           d.volume,
           AVG(d.volume) OVER wv AS avg_volume,
           COUNT(*) OVER wv AS vol_rows
    FROM daily_stock_data d
    WHERE d.ticker <> ?
    WINDOW w AS (PARTITION BY d.ticker ORDER BY d.date),
           wv AS (PARTITION BY d.ticker ORDER BY d.date ROWS BETWEEN %d PRECEDING AND CURRENT ROW)
)
SELECT date,
       COUNT(*) FILTER (WHERE prev_close IS NOT NULL AND close > prev_close) AS advancers,
       COUNT(*) FILTER (WHERE prev_close IS NOT NULL AND close < prev_close) AS decliners,
       COUNT(*) FILTER (WHERE vol_rows >= %d AND avg_volume > 0 AND volume > avg_volume) AS above_avg_volume,
       COUNT(*) FILTER (WHERE vol_rows >= %d) AS volume_eligible
FROM seq
GROUP BY date
ORDER BY date ASC`, volWindow-1, volWindow, volWindow)

	var rows []struct {
		Date           time.Time
		Advancers      int
		Decliners      int
		AboveAvgVolume int
		VolumeEligible int
	}
	if err := s.db.WithContext(ctx).Raw(sql, exclude).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]repository.AdvanceDeclineRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, repository.AdvanceDeclineRow{
			Date:           r.Date.UTC(),
			Advancers:      r.Advancers,
			Decliners:      r.Decliners,
			AboveAvgVolume: r.AboveAvgVolume,
			VolumeEligible: r.VolumeEligible,
		})
	}
	return out, nil
}

func (s *Store) DailyBreakoutRows(ctx context.Context, exclude string, volWindow int, multiple float64) ([]repository.BreakoutRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if volWindow <= 1 {
		volWindow = 50
	}
	if multiple <= 0 {
		multiple = 1.5
	}
	// The WHERE clause mirrors repository.Breakout.
	sql := fmt.Sprintf(`
WITH seq AS (
    SELECT d.ticker,
           d.date,
           d.close,
           LAG(d.close) OVER w AS prev_close,
           d.volume,
           AVG(d.volume) OVER wv AS avg_volume,
           COUNT(*) OVER wv AS vol_rows
    FROM daily_stock_data d
    WHERE d.ticker <> ?
    WINDOW w AS (PARTITION BY d.ticker ORDER BY d.date),
           wv AS (PARTITION BY d.ticker ORDER BY d.date ROWS BETWEEN %d PRECEDING AND CURRENT ROW)
)
SELECT ticker,
       date,
       volume::float8 / NULLIF(avg_volume, 0) AS volume_ratio
FROM seq
WHERE vol_rows >= %d
  AND avg_volume > 0
  AND volume > avg_volume * ?
  AND prev_close IS NOT NULL
  AND close > prev_close
ORDER BY date ASC, ticker ASC`, volWindow-1, volWindow)

	var rows []struct {
		Ticker      string
		Date        time.Time
		VolumeRatio float64
	}
	if err := s.db.WithContext(ctx).Raw(sql, exclude, multiple).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]repository.BreakoutRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, repository.BreakoutRow{
			Date:        r.Date.UTC(),
			Ticker:      r.Ticker,
			VolumeRatio: r.VolumeRatio,
		})
	}
	return out, nil
}

func (s *Store) UpsertMarketIndicators(ctx context.Context, items []models.DailyMarketIndicator, batchSize int) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"advancers",
			"decliners",
			"ad_line",
			"high_volume_breakout_count",
			"pct_above_avg_volume",
			"interest_rate",
			"yield_spread",
			"volatility_index",
		}),
	}).CreateInBatches(items, batchSize).Error
}

func (s *Store) ListMarketIndicators(ctx context.Context, params repository.ListMarketIndicatorsParams) ([]models.DailyMarketIndicator, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyMarketIndicator{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("date >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("date <= ?", params.Until.UTC())
	}
	query = applyOrder(query, "date", params.Asc, "date")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyMarketIndicator
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ReplaceBreakoutStocks(ctx context.Context, items []models.DailyBreakoutStock, batchSize int) error {
	if s == nil || s.db == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("TRUNCATE TABLE daily_breakout_stocks").Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.CreateInBatches(items, batchSize).Error
	})
}

func (s *Store) ListBreakoutStocks(ctx context.Context, date *time.Time) ([]models.DailyBreakoutStock, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyBreakoutStock{})
	if date != nil && !date.IsZero() {
		query = query.Where("date = ?", date.UTC())
	} else {
		query = query.Where("date = (SELECT MAX(date) FROM daily_breakout_stocks)")
	}
	var items []models.DailyBreakoutStock
	if err := query.Order("ticker asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LatestBreakoutDate(ctx context.Context) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var row struct {
		MaxDate *time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&models.DailyBreakoutStock{}).
		Select("MAX(date) AS max_date").
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.MaxDate == nil {
		return nil, nil
	}
	d := row.MaxDate.UTC()
	return &d, nil
}

// --- Group composites -------------------------------------------------------

func (s *Store) GroupRSComposite(ctx context.Context, groupType string, names []string, exclusions []string) ([]repository.GroupCompositeRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	column, err := groupColumn(groupType)
	if err != nil {
		return nil, err
	}
	// The weighting and member filters mirror repository.CapWeightedMean.
	query := s.db.WithContext(ctx).
		Table("daily_stock_analytics AS a").
		Select(fmt.Sprintf(`
			a.date AS date,
			st.%s AS group_name,
			SUM(a.rs * st.market_cap) / SUM(st.market_cap) AS value
		`, column)).
		Joins("JOIN stocks AS st ON st.ticker = a.ticker").
		Where("a.rs IS NOT NULL").
		Where("st.market_cap IS NOT NULL AND st.market_cap > 0")
	exclusions = cleanStrings(exclusions)
	if len(exclusions) > 0 {
		query = query.Where("st."+column+" NOT IN ?", exclusions)
	}
	names = cleanStrings(names)
	if len(names) > 0 {
		query = query.Where("st."+column+" IN ?", names)
	}
	var rows []struct {
		Date      time.Time
		GroupName string
		Value     float64
	}
	if err := query.
		Group("a.date, st." + column).
		Order("st." + column + " asc, a.date asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]repository.GroupCompositeRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, repository.GroupCompositeRow{
			Date:      r.Date.UTC(),
			GroupName: r.GroupName,
			Value:     r.Value,
		})
	}
	return out, nil
}

func (s *Store) ReplaceGroupAnalytics(ctx context.Context, groupType string, names []string, items []models.DailyGroupAnalytics, batchSize int) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := groupColumn(groupType); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	names = cleanStrings(names)
	return s.InTx(ctx, func(tx *gorm.DB) error {
		del := tx.Where("group_type = ?", groupType)
		if len(names) > 0 {
			del = del.Where("group_name IN ?", names)
		}
		if err := del.Delete(&models.DailyGroupAnalytics{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.CreateInBatches(items, batchSize).Error
	})
}

func (s *Store) ListGroupAnalytics(ctx context.Context, params repository.ListGroupAnalyticsParams) ([]models.DailyGroupAnalytics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DailyGroupAnalytics{})
	if params.GroupType != nil && strings.TrimSpace(*params.GroupType) != "" {
		query = query.Where("group_type = ?", strings.TrimSpace(*params.GroupType))
	}
	if params.GroupName != nil && strings.TrimSpace(*params.GroupName) != "" {
		query = query.Where("group_name = ?", strings.TrimSpace(*params.GroupName))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("analysis_date >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("analysis_date <= ?", params.Until.UTC())
	}
	query = applyOrder(query, "analysis_date", params.Asc, "analysis_date")
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.DailyGroupAnalytics
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGroupNames(ctx context.Context, groupType string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	groupType = strings.TrimSpace(groupType)
	var names []string
	query := s.db.WithContext(ctx).
		Model(&models.DailyGroupAnalytics{}).
		Distinct("group_name")
	if groupType != "" {
		query = query.Where("group_type = ?", groupType)
	}
	if err := query.Order("group_name asc").Pluck("group_name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// --- Pipeline runs ----------------------------------------------------------

func (s *Store) CreatePipelineRun(ctx context.Context, item *models.PipelineRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.StartedAt.IsZero() {
		item.StartedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = models.RunStatusRunning
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) FinishPipelineRun(ctx context.Context, id uint64, status string, finishedAt time.Time, report []byte) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	updates := map[string]any{
		"status":      status,
		"finished_at": finishedAt.UTC(),
	}
	if len(report) > 0 {
		updates["report"] = report
	}
	return s.db.WithContext(ctx).
		Model(&models.PipelineRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) GetPipelineRun(ctx context.Context, id uint64) (*models.PipelineRun, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.PipelineRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPipelineRuns(ctx context.Context, params repository.ListPipelineRunsParams) ([]models.PipelineRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PipelineRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.PipelineRun
	if err := query.
		Order("started_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings --------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers ----------------------------------------------------------------

func groupColumn(groupType string) (string, error) {
	switch strings.TrimSpace(groupType) {
	case models.GroupTypeSector:
		return "sector", nil
	case models.GroupTypeIndustry:
		return "industry", nil
	default:
		return "", fmt.Errorf("unknown group type %q", groupType)
	}
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 2000 {
		return 2000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
