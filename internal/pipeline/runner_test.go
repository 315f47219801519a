package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"marketpulse/internal/analytics"
	"marketpulse/internal/config"
	"marketpulse/internal/macro"
	"marketpulse/internal/models"
	"marketpulse/internal/pricesync"
	"marketpulse/internal/universe"
)

type stubRunStore struct {
	mu       sync.Mutex
	tickers  []string
	cleared  int
	created  []*models.PipelineRun
	finished []finishedRun
	nextID   uint64
}

type finishedRun struct {
	id     uint64
	status string
	report Report
}

func (s *stubRunStore) ListStockTickers(ctx context.Context) ([]string, error) {
	return s.tickers, nil
}

func (s *stubRunStore) ClearRefreshLog(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	return nil
}

func (s *stubRunStore) CreatePipelineRun(ctx context.Context, item *models.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	s.created = append(s.created, item)
	return nil
}

func (s *stubRunStore) FinishPipelineRun(ctx context.Context, id uint64, status string, finishedAt time.Time, report []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var parsed Report
	if err := json.Unmarshal(report, &parsed); err != nil {
		return err
	}
	s.finished = append(s.finished, finishedRun{id: id, status: status, report: parsed})
	return nil
}

// phaseRecorder notes phase order shared across the stub services.
type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) note(phase string) {
	r.mu.Lock()
	r.phases = append(r.phases, phase)
	r.mu.Unlock()
}

type stubUniverse struct {
	rec *phaseRecorder
	err error
}

func (s *stubUniverse) RunOnce(ctx context.Context) (universe.Result, error) {
	s.rec.note("universe")
	return universe.Result{Fetched: 10, Upserted: 10}, s.err
}

type stubMacro struct {
	rec *phaseRecorder
	err error
}

func (s *stubMacro) RunOnce(ctx context.Context) (macro.Result, error) {
	s.rec.note("macro")
	return macro.Result{SeriesSynced: 3, PointsAdded: 30}, s.err
}

type stubPrices struct {
	rec   *phaseRecorder
	err   error
	block chan struct{}
}

func (s *stubPrices) Run(ctx context.Context, tickers []string) (pricesync.Result, error) {
	s.rec.note("prices")
	if s.block != nil {
		<-s.block
	}
	return pricesync.Result{Incremental: len(tickers)}, s.err
}

type stubEngine struct {
	rec *phaseRecorder
	err error
}

func (s *stubEngine) Run(ctx context.Context) (analytics.EngineResult, error) {
	s.rec.note("ticker_analytics")
	return analytics.EngineResult{Appended: 2}, s.err
}

type stubBreadth struct {
	rec *phaseRecorder
	err error
}

func (s *stubBreadth) Run(ctx context.Context) (analytics.BreadthResult, error) {
	s.rec.note("breadth")
	return analytics.BreadthResult{Days: 5}, s.err
}

type stubGroups struct {
	rec *phaseRecorder
	err error
}

func (s *stubGroups) Run(ctx context.Context) (analytics.GroupsResult, error) {
	s.rec.note("groups")
	return analytics.GroupsResult{Sectors: 1}, s.err
}

func newRunner(store *stubRunStore, rec *phaseRecorder) *Runner {
	return &Runner{
		Repo:      store,
		Universe:  &stubUniverse{rec: rec},
		Macro:     &stubMacro{rec: rec},
		Prices:    &stubPrices{rec: rec},
		Analytics: &stubEngine{rec: rec},
		Breadth:   &stubBreadth{rec: rec},
		Groups:    &stubGroups{rec: rec},
		Config:    config.PipelineConfig{Enabled: true},
	}
}

func TestRunnerPhaseOrder(t *testing.T) {
	store := &stubRunStore{tickers: []string{"AAA", "BBB"}}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)

	report, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"universe", "macro", "prices", "ticker_analytics", "breadth", "groups"}
	if len(rec.phases) != len(want) {
		t.Fatalf("phases = %v", rec.phases)
	}
	for i, phase := range want {
		if rec.phases[i] != phase {
			t.Fatalf("phase %d = %s, want %s", i, rec.phases[i], phase)
		}
	}
	if store.cleared != 1 {
		t.Fatalf("refresh log cleared %d times, want 1", store.cleared)
	}
	if len(store.finished) != 1 || store.finished[0].status != models.RunStatusOK {
		t.Fatalf("finished runs %+v", store.finished)
	}
	if report.Prices == nil || report.Prices.Incremental != 2 {
		t.Fatalf("prices report %+v", report.Prices)
	}
	for _, phase := range want {
		if _, ok := report.Durations[phase]; !ok {
			t.Fatalf("missing duration for %s", phase)
		}
	}
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	store := &stubRunStore{}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)
	block := make(chan struct{})
	runner.Prices = &stubPrices{rec: rec, block: block}

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerCron})
		done <- err
	}()
	<-started
	for !runner.Active() {
		time.Sleep(time.Millisecond)
	}

	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The slot frees up after the run ends.
	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual}); err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
}

func TestRunnerDegradesOnRegistryAndMacroFailure(t *testing.T) {
	store := &stubRunStore{tickers: []string{"AAA"}}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)
	runner.Universe = &stubUniverse{rec: rec, err: errors.New("screener down")}
	runner.Macro = &stubMacro{rec: rec, err: errors.New("fred down")}

	report, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerCron})
	if err != nil {
		t.Fatalf("Run must degrade, got %v", err)
	}
	if len(report.Warnings) != 2 {
		t.Fatalf("warnings %v", report.Warnings)
	}
	if report.Prices == nil {
		t.Fatalf("price sync must still run")
	}
	if store.finished[0].status != models.RunStatusOK {
		t.Fatalf("status = %s", store.finished[0].status)
	}
}

func TestRunnerAnalyticsFailureAbortsAndKeepsLog(t *testing.T) {
	store := &stubRunStore{tickers: []string{"AAA"}}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)
	runner.Breadth = &stubBreadth{rec: rec, err: errors.New("window query failed")}

	_, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerCron})
	if err == nil {
		t.Fatalf("expected an error")
	}
	// Groups never ran, and the refresh log survives for the repair run.
	for _, phase := range rec.phases {
		if phase == "groups" {
			t.Fatalf("groups must not run after a breadth failure")
		}
	}
	if store.cleared != 0 {
		t.Fatalf("refresh log must be kept on analytics failure")
	}
	if store.finished[0].status != models.RunStatusFailed {
		t.Fatalf("status = %s", store.finished[0].status)
	}
}

func TestRunnerDisabledSkips(t *testing.T) {
	store := &stubRunStore{}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)
	runner.Config.Enabled = false

	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerCron}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if len(store.created) != 0 || len(rec.phases) != 0 {
		t.Fatalf("disabled run must not start anything")
	}

	// force overrides the switch.
	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual, Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("forced run must be recorded")
	}
}

func TestRunnerPhaseSelection(t *testing.T) {
	store := &stubRunStore{tickers: []string{"AAA"}}
	rec := &phaseRecorder{}
	runner := newRunner(store, rec)

	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual, Phases: PhasesSync}); err != nil {
		t.Fatalf("sync-only run: %v", err)
	}
	for _, phase := range rec.phases {
		if phase == "ticker_analytics" || phase == "breadth" || phase == "groups" {
			t.Fatalf("sync-only run executed %s", phase)
		}
	}
	if store.cleared != 0 {
		t.Fatalf("sync-only run must not clear the refresh log")
	}

	rec.phases = nil
	if _, err := runner.Run(context.Background(), RunOptions{Trigger: TriggerManual, Phases: PhasesAnalytics}); err != nil {
		t.Fatalf("analytics-only run: %v", err)
	}
	for _, phase := range rec.phases {
		if phase == "universe" || phase == "macro" || phase == "prices" {
			t.Fatalf("analytics-only run executed %s", phase)
		}
	}
	if store.cleared != 1 {
		t.Fatalf("analytics-only run must clear the refresh log")
	}
}
