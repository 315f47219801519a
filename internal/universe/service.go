package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketpulse/internal/client/screener"
	"marketpulse/internal/config"
	"marketpulse/internal/labeler"
	"marketpulse/internal/models"
)

// Screener is the slice of the scan client the registry refresh needs.
type Screener interface {
	Scan(ctx context.Context, opts screener.ScanOptions) ([]screener.Listing, error)
}

// Store is the slice of the repository the registry refresh writes through.
type Store interface {
	UpsertStocks(ctx context.Context, items []models.Stock) error
	DeleteStocksNotIn(ctx context.Context, keep []string) (int64, error)
}

// Service refreshes the stocks table from the screener: upserts the current
// universe, forces the benchmark row, and prunes departed tickers (cascade
// removes their bars).
type Service struct {
	Repo      Store
	Screener  Screener
	Logger    *zap.Logger
	Config    config.UniverseConfig
	Benchmark string
}

type Result struct {
	Fetched  int   `json:"fetched"`
	Upserted int   `json:"upserted"`
	Pruned   int64 `json:"pruned"`
}

func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	var result Result
	if s == nil || s.Repo == nil || s.Screener == nil {
		return result, nil
	}

	byTicker := map[string]models.Stock{}
	order := make([]string, 0, 4096)
	failedExchanges := 0
	for _, exchange := range s.Config.Exchanges {
		listings, err := s.Screener.Scan(ctx, screener.ScanOptions{
			Exchange:     exchange,
			MaxRows:      s.Config.MaxStocksPerExchange,
			MinMarketCap: s.Config.MinMarketCap,
			MinAvgVolume: s.Config.MinAvgVolume,
		})
		if err != nil {
			failedExchanges++
			if s.Logger != nil {
				s.Logger.Warn("screener scan failed",
					zap.String("exchange", exchange),
					zap.Error(err),
				)
			}
			continue
		}
		result.Fetched += len(listings)
		for _, l := range listings {
			if _, ok := byTicker[l.Ticker]; ok {
				continue
			}
			marketCap := decimal.NullDecimal{Decimal: l.MarketCap, Valid: true}
			byTicker[l.Ticker] = models.Stock{
				Ticker:            l.Ticker,
				Sector:            l.Sector,
				Industry:          l.Industry,
				MarketCapCategory: labeler.CapCategory(marketCap),
				MarketCap:         marketCap,
				UpdatedAt:         time.Now().UTC(),
			}
			order = append(order, l.Ticker)
		}
	}
	if len(byTicker) == 0 {
		// Nothing usable came back; leave the stored registry alone so the
		// rest of the pipeline can still run off it.
		return result, fmt.Errorf("screener returned no listings (%d exchanges failed)", failedExchanges)
	}

	items := make([]models.Stock, 0, len(byTicker)+1)
	for _, ticker := range order {
		items = append(items, byTicker[ticker])
	}
	if s.Benchmark != "" {
		if _, ok := byTicker[s.Benchmark]; !ok {
			items = append(items, models.Stock{
				Ticker:            s.Benchmark,
				Sector:            "Index",
				Industry:          "Market Index",
				MarketCapCategory: labeler.CapUnknown,
				UpdatedAt:         time.Now().UTC(),
			})
			order = append(order, s.Benchmark)
		}
	}

	if err := s.Repo.UpsertStocks(ctx, items); err != nil {
		return result, fmt.Errorf("upsert stocks: %w", err)
	}
	result.Upserted = len(items)

	if s.Config.PruneDeparted && failedExchanges == 0 {
		pruned, err := s.Repo.DeleteStocksNotIn(ctx, order)
		if err != nil {
			return result, fmt.Errorf("prune departed stocks: %w", err)
		}
		result.Pruned = pruned
	}

	if s.Logger != nil {
		s.Logger.Info("universe refreshed",
			zap.Int("fetched", result.Fetched),
			zap.Int("upserted", result.Upserted),
			zap.Int64("pruned", result.Pruned),
		)
	}
	return result, nil
}
