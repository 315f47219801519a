package macro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketpulse/internal/client/fred"
	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

type stubStore struct {
	latest   map[string]time.Time
	inserted []models.MacroData
}

func (s *stubStore) LatestMacroDates(ctx context.Context) (map[string]time.Time, error) {
	return s.latest, nil
}

func (s *stubStore) InsertMacroPoints(ctx context.Context, items []models.MacroData) (int64, error) {
	s.inserted = append(s.inserted, items...)
	return int64(len(items)), nil
}

type stubClient struct {
	bySeries map[string][]fred.Observation
	starts   map[string]time.Time
	errs     map[string]error
}

func (c *stubClient) GetObservations(ctx context.Context, seriesID string, start time.Time) ([]fred.Observation, error) {
	if c.starts == nil {
		c.starts = map[string]time.Time{}
	}
	c.starts[seriesID] = start
	if err := c.errs[seriesID]; err != nil {
		return nil, err
	}
	return c.bySeries[seriesID], nil
}

func date(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
	return t
}

func obs(day string, value *float64) fred.Observation {
	o := fred.Observation{Date: date(day)}
	if value != nil {
		d := decimal.NewFromFloat(*value)
		o.Value = &d
	}
	return o
}

func fp(v float64) *float64 { return &v }

func TestRunOnceResolvesStartDates(t *testing.T) {
	store := &stubStore{latest: map[string]time.Time{
		"VIXCLS": date("2024-03-01"),
	}}
	client := &stubClient{bySeries: map[string][]fred.Observation{
		"VIXCLS":   {obs("2024-03-04", fp(14.1))},
		"FEDFUNDS": {obs("2000-01-03", fp(5.45))},
	}}
	svc := &Service{
		Repo:   store,
		Client: client,
		Config: config.MacroConfig{
			StartDate: "2000-01-01",
			Series: map[string]string{
				"volatility_index": "VIXCLS",
				"interest_rate":    "FEDFUNDS",
			},
		},
	}

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.SeriesSynced != 2 || result.PointsAdded != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	// Existing series resume the day after the stored max; new series use
	// the configured start.
	if got := client.starts["VIXCLS"]; !got.Equal(date("2024-03-02")) {
		t.Fatalf("VIXCLS start = %s", got)
	}
	if got := client.starts["FEDFUNDS"]; !got.Equal(date("2000-01-01")) {
		t.Fatalf("FEDFUNDS start = %s", got)
	}
}

func TestRunOnceKeepsNullValues(t *testing.T) {
	store := &stubStore{}
	client := &stubClient{bySeries: map[string][]fred.Observation{
		"T10Y2Y": {
			obs("2024-01-02", fp(-0.38)),
			obs("2024-01-03", nil),
		},
	}}
	svc := &Service{
		Repo:   store,
		Client: client,
		Config: config.MacroConfig{
			StartDate: "2024-01-01",
			Series:    map[string]string{"yield_spread": "T10Y2Y"},
		},
	}
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 points, got %d", len(store.inserted))
	}
	if store.inserted[1].Value != nil {
		t.Fatalf("missing observation must stay null, got %v", store.inserted[1].Value)
	}
}

func TestRunOnceFailSoftPerSeries(t *testing.T) {
	store := &stubStore{}
	client := &stubClient{
		bySeries: map[string][]fred.Observation{
			"VIXCLS": {obs("2024-01-02", fp(13.2))},
		},
		errs: map[string]error{"FEDFUNDS": errors.New("rate limited")},
	}
	svc := &Service{
		Repo:   store,
		Client: client,
		Config: config.MacroConfig{
			StartDate: "2024-01-01",
			Series: map[string]string{
				"volatility_index": "VIXCLS",
				"interest_rate":    "FEDFUNDS",
			},
		},
	}
	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce must not fail on a single series: %v", err)
	}
	if result.SeriesSynced != 1 || result.SeriesFailed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, ok := result.Failed["FEDFUNDS"]; !ok {
		t.Fatalf("expected FEDFUNDS in failed map, got %v", result.Failed)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 point inserted, got %d", len(store.inserted))
	}
}
