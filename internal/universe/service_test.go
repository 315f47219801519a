package universe

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"marketpulse/internal/client/screener"
	"marketpulse/internal/config"
	"marketpulse/internal/labeler"
	"marketpulse/internal/models"
)

type stubStore struct {
	upserted []models.Stock
	kept     []string
	pruned   int64
}

func (s *stubStore) UpsertStocks(ctx context.Context, items []models.Stock) error {
	s.upserted = append(s.upserted, items...)
	return nil
}

func (s *stubStore) DeleteStocksNotIn(ctx context.Context, keep []string) (int64, error) {
	s.kept = keep
	return s.pruned, nil
}

type stubScreener struct {
	byExchange map[string][]screener.Listing
	errs       map[string]error
}

func (s *stubScreener) Scan(ctx context.Context, opts screener.ScanOptions) ([]screener.Listing, error) {
	if err := s.errs[opts.Exchange]; err != nil {
		return nil, err
	}
	return s.byExchange[opts.Exchange], nil
}

func listing(ticker, sector, industry string, cap int64) screener.Listing {
	return screener.Listing{
		Ticker:    ticker,
		Sector:    sector,
		Industry:  industry,
		MarketCap: decimal.NewFromInt(cap),
	}
}

func TestRunOnceUpsertsBenchmarkAndPrunes(t *testing.T) {
	store := &stubStore{pruned: 3}
	svc := &Service{
		Repo: store,
		Screener: &stubScreener{byExchange: map[string][]screener.Listing{
			"NASDAQ": {listing("AAPL", "Technology", "Consumer Electronics", 3_000_000_000_000)},
			"NYSE":   {listing("XOM", "Energy", "Oil & Gas", 400_000_000_000)},
		}},
		Config: config.UniverseConfig{
			Exchanges:     []string{"NASDAQ", "NYSE"},
			PruneDeparted: true,
		},
		Benchmark: "^GSPC",
	}

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Upserted != 3 {
		t.Fatalf("expected 3 upserts (2 listings + benchmark), got %d", result.Upserted)
	}
	if result.Pruned != 3 {
		t.Fatalf("expected pruned=3, got %d", result.Pruned)
	}

	var bench *models.Stock
	for i := range store.upserted {
		if store.upserted[i].Ticker == "^GSPC" {
			bench = &store.upserted[i]
		}
	}
	if bench == nil {
		t.Fatalf("benchmark row not upserted: %+v", store.upserted)
	}
	if bench.Sector != "Index" || bench.Industry != "Market Index" || bench.MarketCap.Valid {
		t.Fatalf("unexpected benchmark row %+v", bench)
	}
	if bench.MarketCapCategory != labeler.CapUnknown {
		t.Fatalf("benchmark cap category = %q", bench.MarketCapCategory)
	}

	// The benchmark must survive pruning.
	found := false
	for _, ticker := range store.kept {
		if ticker == "^GSPC" {
			found = true
		}
	}
	if !found {
		t.Fatalf("benchmark missing from keep set %v", store.kept)
	}
}

func TestRunOnceDedupesAcrossExchanges(t *testing.T) {
	store := &stubStore{}
	svc := &Service{
		Repo: store,
		Screener: &stubScreener{byExchange: map[string][]screener.Listing{
			"NASDAQ": {listing("DUAL", "Technology", "Software", 5_000_000_000)},
			"NYSE":   {listing("DUAL", "Technology", "Software", 5_000_000_000)},
		}},
		Config:    config.UniverseConfig{Exchanges: []string{"NASDAQ", "NYSE"}},
		Benchmark: "^GSPC",
	}
	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Fetched != 2 || result.Upserted != 2 {
		t.Fatalf("expected fetched=2 upserted=2 (dedupe + benchmark), got %+v", result)
	}
}

func TestRunOnceSkipsPruneWhenAnExchangeFails(t *testing.T) {
	store := &stubStore{}
	svc := &Service{
		Repo: store,
		Screener: &stubScreener{
			byExchange: map[string][]screener.Listing{
				"NASDAQ": {listing("AAPL", "Technology", "Consumer Electronics", 3_000_000_000_000)},
			},
			errs: map[string]error{"NYSE": errors.New("boom")},
		},
		Config: config.UniverseConfig{
			Exchanges:     []string{"NASDAQ", "NYSE"},
			PruneDeparted: true,
		},
		Benchmark: "^GSPC",
	}
	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// A failed exchange must never cascade-delete its listings.
	if store.kept != nil {
		t.Fatalf("expected prune to be skipped, keep set %v", store.kept)
	}
	if result.Upserted != 2 {
		t.Fatalf("expected upserted=2, got %d", result.Upserted)
	}
}

func TestRunOnceAllExchangesFail(t *testing.T) {
	store := &stubStore{}
	svc := &Service{
		Repo: store,
		Screener: &stubScreener{errs: map[string]error{
			"NASDAQ": errors.New("boom"),
		}},
		Config:    config.UniverseConfig{Exchanges: []string{"NASDAQ"}, PruneDeparted: true},
		Benchmark: "^GSPC",
	}
	if _, err := svc.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error when no listings are available")
	}
	if len(store.upserted) != 0 {
		t.Fatalf("registry must stay untouched, got %d upserts", len(store.upserted))
	}
}
