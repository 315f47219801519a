package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/analytics"
	"marketpulse/internal/config"
	"marketpulse/internal/macro"
	"marketpulse/internal/models"
	"marketpulse/internal/notify"
	"marketpulse/internal/pricesync"
	"marketpulse/internal/universe"
)

// ErrRunActive rejects a trigger while a run is in flight. Overlapping runs
// would race on the refresh log.
var ErrRunActive = errors.New("pipeline run already active")

// ErrDisabled is returned when the pipeline switch is off and the trigger did
// not force.
var ErrDisabled = errors.New("pipeline is disabled")

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Phase selection for manual triggers.
const (
	PhasesAll       = "all"
	PhasesSync      = "sync"
	PhasesAnalytics = "analytics"
)

// Store is the slice of the repository the orchestrator itself touches.
type Store interface {
	ListStockTickers(ctx context.Context) ([]string, error)
	ClearRefreshLog(ctx context.Context) error
	CreatePipelineRun(ctx context.Context, item *models.PipelineRun) error
	FinishPipelineRun(ctx context.Context, id uint64, status string, finishedAt time.Time, report []byte) error
}

type UniverseSyncer interface {
	RunOnce(ctx context.Context) (universe.Result, error)
}

type MacroSyncer interface {
	RunOnce(ctx context.Context) (macro.Result, error)
}

type PriceSyncer interface {
	Run(ctx context.Context, tickers []string) (pricesync.Result, error)
}

type TickerAnalytics interface {
	Run(ctx context.Context) (analytics.EngineResult, error)
}

type BreadthAnalytics interface {
	Run(ctx context.Context) (analytics.BreadthResult, error)
}

type GroupAnalytics interface {
	Run(ctx context.Context) (analytics.GroupsResult, error)
}

// Runner executes the daily pipeline phase by phase. The price sync pool
// drains fully before the first analytics phase starts, so every derived row
// reads a settled store. Registry and macro failures degrade; an analytics
// failure aborts the rest and keeps the refresh log so the next run repairs.
type Runner struct {
	Repo      Store
	Universe  UniverseSyncer
	Macro     MacroSyncer
	Prices    PriceSyncer
	Analytics TickerAnalytics
	Breadth   BreadthAnalytics
	Groups    GroupAnalytics
	Settings  *SettingsService
	Notifier  *notify.Client
	Logger    *zap.Logger
	Config    config.PipelineConfig

	mu     sync.Mutex
	active bool
}

type RunOptions struct {
	Trigger string
	Phases  string
	Force   bool
}

// Report is the JSON document stored on the pipeline_runs row.
type Report struct {
	Trigger   string                   `json:"trigger"`
	Phases    string                   `json:"phases"`
	Universe  *universe.Result         `json:"universe,omitempty"`
	Macro     *macro.Result            `json:"macro,omitempty"`
	Prices    *pricesync.Result        `json:"prices,omitempty"`
	Tickers   *analytics.EngineResult  `json:"ticker_analytics,omitempty"`
	Breadth   *analytics.BreadthResult `json:"breadth,omitempty"`
	Groups    *analytics.GroupsResult  `json:"groups,omitempty"`
	Warnings  []string                 `json:"warnings,omitempty"`
	Durations map[string]string        `json:"durations"`
	Error     string                   `json:"error,omitempty"`
}

func (r *Runner) Run(ctx context.Context, opts RunOptions) (Report, error) {
	report := Report{
		Trigger:   opts.Trigger,
		Phases:    normalizePhases(opts.Phases),
		Durations: map[string]string{},
	}
	if r == nil || r.Repo == nil {
		return report, nil
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return report, ErrRunActive
	}
	r.active = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	if !opts.Force && !r.enabled(ctx) {
		if r.Logger != nil {
			r.Logger.Info("pipeline disabled, skipping run", zap.String("trigger", opts.Trigger))
		}
		return report, ErrDisabled
	}

	run := &models.PipelineRun{
		Trigger:   opts.Trigger,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.Repo.CreatePipelineRun(ctx, run); err != nil {
		return report, fmt.Errorf("create pipeline run: %w", err)
	}

	runErr := r.execute(ctx, &report)
	if runErr != nil {
		report.Error = runErr.Error()
	}
	r.finish(run.ID, &report, runErr)
	return report, runErr
}

// Active reports whether a run is currently in flight.
func (r *Runner) Active() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) execute(ctx context.Context, report *Report) error {
	doSync := report.Phases != PhasesAnalytics
	doAnalytics := report.Phases != PhasesSync

	if doSync {
		if r.Universe != nil && r.Settings.IsEnabled(ctx, SettingUniverseSync, true) {
			stop := phaseTimer(report, "universe")
			res, err := r.Universe.RunOnce(ctx)
			stop()
			if err != nil {
				// A stale registry still syncs; warn and move on.
				report.Warnings = append(report.Warnings, "universe: "+err.Error())
			} else {
				report.Universe = &res
			}
		}
		if r.Macro != nil && r.Settings.IsEnabled(ctx, SettingMacroSync, true) {
			stop := phaseTimer(report, "macro")
			res, err := r.Macro.RunOnce(ctx)
			stop()
			if err != nil {
				report.Warnings = append(report.Warnings, "macro: "+err.Error())
			} else {
				report.Macro = &res
			}
		}
		if r.Prices != nil {
			tickers, err := r.Repo.ListStockTickers(ctx)
			if err != nil {
				return fmt.Errorf("list tickers: %w", err)
			}
			stop := phaseTimer(report, "prices")
			res, err := r.Prices.Run(ctx, tickers)
			stop()
			report.Prices = &res
			if err != nil {
				return fmt.Errorf("price sync: %w", err)
			}
		}
	}

	if doAnalytics {
		if r.Analytics != nil {
			stop := phaseTimer(report, "ticker_analytics")
			res, err := r.Analytics.Run(ctx)
			stop()
			if err != nil {
				return fmt.Errorf("ticker analytics: %w", err)
			}
			report.Tickers = &res
		}
		if r.Breadth != nil {
			stop := phaseTimer(report, "breadth")
			res, err := r.Breadth.Run(ctx)
			stop()
			if err != nil {
				return fmt.Errorf("market breadth: %w", err)
			}
			report.Breadth = &res
		}
		if r.Groups != nil {
			stop := phaseTimer(report, "groups")
			res, err := r.Groups.Run(ctx)
			stop()
			if err != nil {
				return fmt.Errorf("group analytics: %w", err)
			}
			report.Groups = &res
		}
		// Only now is every derived table consistent with the synced bars.
		if err := r.Repo.ClearRefreshLog(ctx); err != nil {
			report.Warnings = append(report.Warnings, "clear refresh log: "+err.Error())
		}
	}
	return nil
}

func phaseTimer(report *Report, phase string) func() {
	start := time.Now()
	return func() {
		report.Durations[phase] = time.Since(start).Round(time.Millisecond).String()
	}
}

func (r *Runner) finish(id uint64, report *Report, runErr error) {
	status := models.RunStatusOK
	event := notify.EventRunFinished
	level := "info"
	if runErr != nil {
		status = models.RunStatusFailed
		event = notify.EventRunFailed
		level = "error"
	}

	raw, err := json.Marshal(report)
	if err != nil {
		raw = []byte(`{}`)
	}
	// The run itself may have died on a canceled context; the bookkeeping
	// write gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Repo.FinishPipelineRun(ctx, id, status, time.Now().UTC(), raw); err != nil && r.Logger != nil {
		r.Logger.Warn("finish pipeline run failed", zap.Uint64("run_id", id), zap.Error(err))
	}

	if emitErr := r.Notifier.Emit(notify.Event{
		Event: event,
		Level: level,
		Details: map[string]any{
			"run_id":  id,
			"status":  status,
			"trigger": report.Trigger,
			"error":   report.Error,
		},
	}); emitErr != nil && r.Logger != nil {
		r.Logger.Debug("pipeline notify failed", zap.Error(emitErr))
	}
}

func (r *Runner) enabled(ctx context.Context) bool {
	if !r.Config.Enabled {
		return false
	}
	return r.Settings.IsEnabled(ctx, SettingPipelineEnabled, true)
}

func normalizePhases(phases string) string {
	switch phases {
	case PhasesSync, PhasesAnalytics:
		return phases
	default:
		return PhasesAll
	}
}
