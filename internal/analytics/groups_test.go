package analytics

import (
	"context"
	"testing"

	"marketpulse/internal/config"
	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

type stubGroupStore struct {
	log        []models.RefreshedTicker
	groups     map[string][]string
	composites map[string][]repository.GroupCompositeRow

	replaced map[string][]models.DailyGroupAnalytics
	names    map[string][]string
}

func (s *stubGroupStore) ListRefreshLog(ctx context.Context) ([]models.RefreshedTicker, error) {
	return s.log, nil
}

func (s *stubGroupStore) DistinctGroupsForTickers(ctx context.Context, groupType string, tickers []string) ([]string, error) {
	return s.groups[groupType], nil
}

func (s *stubGroupStore) GroupRSComposite(ctx context.Context, groupType string, names []string, exclusions []string) ([]repository.GroupCompositeRow, error) {
	return s.composites[groupType], nil
}

func (s *stubGroupStore) ReplaceGroupAnalytics(ctx context.Context, groupType string, names []string, items []models.DailyGroupAnalytics, batchSize int) error {
	if s.replaced == nil {
		s.replaced = map[string][]models.DailyGroupAnalytics{}
		s.names = map[string][]string{}
	}
	s.replaced[groupType] = items
	s.names[groupType] = names
	return nil
}

func TestGroupsEmptyLogIsNoOp(t *testing.T) {
	store := &stubGroupStore{}
	groups := &Groups{Repo: store}
	result, err := groups.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Sectors != 0 || result.Industries != 0 || store.replaced != nil {
		t.Fatalf("empty log must be a no-op")
	}
}

func TestGroupsRebuildsAffectedWithDerivedSeries(t *testing.T) {
	store := &stubGroupStore{
		log: []models.RefreshedTicker{{Ticker: "AAA", Mode: models.RefreshModeIncremental}},
		groups: map[string][]string{
			models.GroupTypeSector:   {"Technology", "Unknown"},
			models.GroupTypeIndustry: {"Semiconductors"},
		},
		composites: map[string][]repository.GroupCompositeRow{
			models.GroupTypeSector: {
				// Unordered on purpose.
				{Date: day("2024-01-03"), GroupName: "Technology", Value: 1.10},
				{Date: day("2024-01-02"), GroupName: "Technology", Value: 1.25},
				{Date: day("2024-01-04"), GroupName: "Technology", Value: 1.30},
			},
			models.GroupTypeIndustry: {
				{Date: day("2024-01-02"), GroupName: "Semiconductors", Value: 2.0},
			},
		},
	}
	groups := &Groups{
		Repo: store,
		Config: config.AnalyticsConfig{
			ROCWindow:       2,
			GroupExclusions: []string{"Unknown", "Index", "Market Index"},
		},
	}

	result, err := groups.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Sectors != 1 || result.Industries != 1 || result.Rows != 4 {
		t.Fatalf("unexpected result %+v", result)
	}

	// Excluded group names never reach the replace call.
	if got := store.names[models.GroupTypeSector]; len(got) != 1 || got[0] != "Technology" {
		t.Fatalf("sector names %v", got)
	}

	rows := store.replaced[models.GroupTypeSector]
	if len(rows) != 3 {
		t.Fatalf("sector rows = %d, want 3", len(rows))
	}
	if !rows[0].AnalysisDate.Equal(day("2024-01-02")) {
		t.Fatalf("rows not sorted by date: %v", rows[0].AnalysisDate)
	}
	if rows[0].GroupType != models.GroupTypeSector || rows[0].GroupName != "Technology" {
		t.Fatalf("unexpected row identity %+v", rows[0])
	}

	// ROC over a 2-row window: null, null, then 100*(1.30-1.25)/1.25.
	if rows[0].GroupRSROC20 != nil || rows[1].GroupRSROC20 != nil {
		t.Fatalf("roc must be nil before the window fills")
	}
	if rows[2].GroupRSROC20 == nil || !approx(*rows[2].GroupRSROC20, 4) {
		t.Fatalf("roc[2] = %v, want 4", rows[2].GroupRSROC20)
	}

	// SMAs and above-flags are nil until their windows fill; a 20-day window
	// never fills on 3 rows.
	if rows[2].GroupRSSMA20 != nil || rows[2].AboveRS20SMA != nil {
		t.Fatalf("sma_20 and its flag must be nil on a short series")
	}
}

func TestGroupsSkipsGroupsWithNoComposite(t *testing.T) {
	store := &stubGroupStore{
		log: []models.RefreshedTicker{{Ticker: "AAA", Mode: models.RefreshModeFull}},
		groups: map[string][]string{
			models.GroupTypeSector: {"Energy"},
		},
		// No composite rows at all: every member lacked rs or cap.
		composites: map[string][]repository.GroupCompositeRow{},
	}
	groups := &Groups{Repo: store}

	result, err := groups.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Rows != 0 {
		t.Fatalf("unexpected rows %d", result.Rows)
	}
	// The replace still runs so stale rows for the group are cleared.
	if got := store.names[models.GroupTypeSector]; len(got) != 1 || got[0] != "Energy" {
		t.Fatalf("sector names %v", got)
	}
}
