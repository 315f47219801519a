package pricesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketpulse/internal/client/yahoo"
	"marketpulse/internal/config"
	"marketpulse/internal/models"
	"marketpulse/internal/quality"
)

// BarProvider is the slice of the market data client the executor needs.
type BarProvider interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]yahoo.Bar, error)
}

// Store is the slice of the repository the executor writes through. Each
// ticker commits as one transaction, so a full delete-then-insert can never
// interleave with anything else for the same ticker.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	LatestBarDates(ctx context.Context) (map[string]time.Time, error)
	MaxBarDate(ctx context.Context) (*time.Time, error)
	TailBars(ctx context.Context, ticker string, n int) ([]models.DailyStockData, error)
	InsertBarsTx(ctx context.Context, tx *gorm.DB, items []models.DailyStockData, batchSize int) (int64, error)
	DeleteTickerBarsTx(ctx context.Context, tx *gorm.DB, ticker string) (int64, error)
	UpsertRefreshLogTx(ctx context.Context, tx *gorm.DB, item *models.RefreshedTicker) error
}

// Service plans and executes the per-ticker price sync with a bounded
// worker pool. Failures isolate per ticker; the uniqueness constraint on
// (ticker,date) makes replays idempotent.
type Service struct {
	Repo     Store
	Bars     BarProvider
	Logger   *zap.Logger
	Config   config.MarketDataConfig
	Progress *Hub
}

// Result is the run report for one sync pass.
type Result struct {
	Full          int               `json:"full"`
	Incremental   int               `json:"incremental"`
	Unchanged     int               `json:"unchanged"`
	Skipped       int               `json:"skipped"`
	Failed        int               `json:"failed"`
	BarsInserted  int64             `json:"bars_inserted"`
	FailedTickers map[string]string `json:"failed_tickers,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

type tickerOutcome struct {
	ticker   string
	class    Class
	inserted int64
	warning  string
	err      error
}

// Run syncs every ticker in the registry snapshot. The benchmark is synced
// first, alone: its latest bar date becomes the market reference date for
// the rest of the plan, and the analytics stage needs its series complete
// before any other ticker's.
func (s *Service) Run(ctx context.Context, tickers []string) (Result, error) {
	result := Result{FailedTickers: map[string]string{}}
	if s == nil || s.Repo == nil || s.Bars == nil || len(tickers) == 0 {
		return result, nil
	}

	latest, err := s.Repo.LatestBarDates(ctx)
	if err != nil {
		return result, fmt.Errorf("load latest bar dates: %w", err)
	}

	benchmark := s.Config.BenchmarkTicker
	rest := make([]string, 0, len(tickers))
	haveBenchmark := false
	for _, ticker := range tickers {
		if ticker == benchmark {
			haveBenchmark = true
			continue
		}
		rest = append(rest, ticker)
	}

	total := len(rest)
	if haveBenchmark {
		total++
	}

	reference := midnight(time.Now().UTC())
	if haveBenchmark {
		benchPlan := BuildPlan([]string{benchmark}, latest, reference, s.Config.YearsBack, s.Config.TailDays)
		if entry := benchPlan.Entries[0]; entry.Class == ClassSkip {
			result.Skipped++
		} else {
			outcome := s.syncTicker(ctx, entry, latest[benchmark], reference)
			s.tally(&result, outcome)
			// Watchers see the benchmark phase too, not just the pool.
			s.Progress.Publish(ProgressEvent{
				Ticker: benchmark,
				Class:  string(outcome.class),
				Done:   1,
				Total:  total,
			})
		}
		if ref := s.resolveReference(ctx, latest[benchmark]); !ref.IsZero() {
			reference = ref
		}
	} else if ref := s.resolveReference(ctx, time.Time{}); !ref.IsZero() {
		reference = ref
	}

	plan := BuildPlan(rest, latest, reference, s.Config.YearsBack, s.Config.TailDays)

	work := make([]PlanEntry, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		if entry.Class == ClassSkip {
			result.Skipped++
			continue
		}
		work = append(work, entry)
	}

	workers := s.Config.Workers
	if workers <= 0 {
		workers = 8
	}
	if workers > len(work) {
		workers = len(work)
	}

	jobs := make(chan PlanEntry)
	outcomes := make(chan tickerOutcome, len(work))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				outcomes <- s.syncTicker(ctx, entry, latest[entry.Ticker], reference)
			}
		}()
	}

	canceled := false
feed:
	for _, entry := range work {
		select {
		case jobs <- entry:
		case <-ctx.Done():
			canceled = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	done := total - len(work)
	for outcome := range outcomes {
		s.tally(&result, outcome)
		done++
		s.Progress.Publish(ProgressEvent{
			Ticker: outcome.ticker,
			Class:  string(outcome.class),
			Done:   done,
			Total:  total,
		})
	}

	if s.Logger != nil {
		s.Logger.Info("price sync complete",
			zap.Int("full", result.Full),
			zap.Int("incremental", result.Incremental),
			zap.Int("unchanged", result.Unchanged),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Int64("bars_inserted", result.BarsInserted),
		)
	}
	if canceled {
		return result, ctx.Err()
	}
	return result, nil
}

func (s *Service) tally(result *Result, outcome tickerOutcome) {
	if outcome.warning != "" {
		result.Warnings = append(result.Warnings, outcome.warning)
	}
	if outcome.err != nil {
		result.Failed++
		result.FailedTickers[outcome.ticker] = outcome.err.Error()
		if s.Logger != nil {
			s.Logger.Warn("ticker sync failed",
				zap.String("ticker", outcome.ticker),
				zap.Error(outcome.err),
			)
		}
		return
	}
	result.BarsInserted += outcome.inserted
	switch outcome.class {
	case ClassFull:
		result.Full++
	case ClassIncremental:
		result.Incremental++
	case ClassUnchanged:
		result.Unchanged++
	}
}

// resolveReference picks the market reference date: the benchmark's latest
// stored bar after its own sync, then the global max bar date, then today.
func (s *Service) resolveReference(ctx context.Context, benchmarkLatest time.Time) time.Time {
	latest, err := s.Repo.LatestBarDates(ctx)
	if err == nil {
		if last, ok := latest[s.Config.BenchmarkTicker]; ok {
			return midnight(last)
		}
	}
	if !benchmarkLatest.IsZero() {
		return midnight(benchmarkLatest)
	}
	if max, err := s.Repo.MaxBarDate(ctx); err == nil && max != nil {
		return midnight(*max)
	}
	return time.Time{}
}

func (s *Service) syncTicker(ctx context.Context, entry PlanEntry, storedMax, reference time.Time) tickerOutcome {
	outcome := tickerOutcome{ticker: entry.Ticker, class: entry.Class}

	timeout := s.Config.TickerTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Fetch through tomorrow so the reference date itself is included.
	end := midnight(time.Now().UTC()).AddDate(0, 0, 1)
	if reference.After(end) {
		end = reference.AddDate(0, 0, 1)
	}

	switch entry.Class {
	case ClassFull:
		return s.syncFull(tctx, entry.Ticker, entry.FetchFrom, end)
	case ClassIncremental:
		bars, err := s.Bars.GetDailyBars(tctx, entry.Ticker, entry.FetchFrom, end)
		if err != nil {
			outcome.err = &FetchFailure{Ticker: entry.Ticker, Err: err}
			return outcome
		}
		tail, err := s.Repo.TailBars(ctx, entry.Ticker, s.tailDays())
		if err != nil {
			outcome.err = &StorageFailure{Ticker: entry.Ticker, Err: err}
			return outcome
		}
		decision, derr := DetectAdjustmentChange(tail, bars, s.Config.PriceTolerance)
		if errors.Is(derr, ErrAmbiguousTail) {
			outcome.warning = fmt.Sprintf("%s: ambiguous tail, treated as unchanged", entry.Ticker)
		}
		switch decision {
		case DecisionNew, DecisionAdjusted:
			// The adjustment basis moved under us: every stored row for
			// this ticker is stale, so replace the whole history.
			fullFrom := midnight(reference.AddDate(-s.yearsBack(), 0, 0))
			full := s.syncFull(tctx, entry.Ticker, fullFrom, end)
			full.warning = outcome.warning
			return full
		}
		newBars := make([]yahoo.Bar, 0, len(bars))
		for _, bar := range bars {
			if bar.Date.After(midnight(storedMax)) {
				newBars = append(newBars, bar)
			}
		}
		if len(newBars) == 0 {
			outcome.class = ClassUnchanged
			return outcome
		}
		rows := toModels(entry.Ticker, newBars)
		if violations := quality.Check(rows); len(violations) > 0 {
			outcome.err = &FetchFailure{Ticker: entry.Ticker, Err: violations[0]}
			return outcome
		}
		err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
			inserted, err := s.Repo.InsertBarsTx(ctx, tx, rows, s.Config.InsertBatchSize)
			if err != nil {
				return err
			}
			outcome.inserted = inserted
			if inserted == 0 {
				return nil
			}
			return s.Repo.UpsertRefreshLogTx(ctx, tx, &models.RefreshedTicker{
				Ticker: entry.Ticker,
				Mode:   models.RefreshModeIncremental,
			})
		})
		if err != nil {
			outcome.err = &StorageFailure{Ticker: entry.Ticker, Err: err}
			return outcome
		}
		if outcome.inserted == 0 {
			// Every fetched row already existed; a replayed run is a no-op.
			outcome.class = ClassUnchanged
		}
		return outcome
	default:
		return outcome
	}
}

func (s *Service) syncFull(ctx context.Context, ticker string, from, end time.Time) tickerOutcome {
	outcome := tickerOutcome{ticker: ticker, class: ClassFull}
	bars, err := s.Bars.GetDailyBars(ctx, ticker, from, end)
	if err != nil {
		outcome.err = &FetchFailure{Ticker: ticker, Err: err}
		return outcome
	}
	if len(bars) == 0 {
		// An empty full fetch must not wipe stored history.
		outcome.err = &FetchFailure{Ticker: ticker, Err: fmt.Errorf("empty full-history fetch")}
		return outcome
	}
	rows := toModels(ticker, bars)
	if violations := quality.Check(rows); len(violations) > 0 {
		outcome.err = &FetchFailure{Ticker: ticker, Err: violations[0]}
		return outcome
	}
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.Repo.DeleteTickerBarsTx(ctx, tx, ticker); err != nil {
			return err
		}
		inserted, err := s.Repo.InsertBarsTx(ctx, tx, rows, s.Config.InsertBatchSize)
		if err != nil {
			return err
		}
		outcome.inserted = inserted
		return s.Repo.UpsertRefreshLogTx(ctx, tx, &models.RefreshedTicker{
			Ticker: ticker,
			Mode:   models.RefreshModeFull,
		})
	})
	if err != nil {
		outcome.inserted = 0
		outcome.err = &StorageFailure{Ticker: ticker, Err: err}
	}
	return outcome
}

func (s *Service) tailDays() int {
	if s.Config.TailDays <= 0 {
		return 5
	}
	return s.Config.TailDays
}

func (s *Service) yearsBack() int {
	if s.Config.YearsBack <= 0 {
		return 10
	}
	return s.Config.YearsBack
}

func toModels(ticker string, bars []yahoo.Bar) []models.DailyStockData {
	out := make([]models.DailyStockData, 0, len(bars))
	for _, bar := range bars {
		out = append(out, models.DailyStockData{
			Ticker:   ticker,
			Date:     bar.Date,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: bar.AdjClose,
			Volume:   bar.Volume,
		})
	}
	return out
}
