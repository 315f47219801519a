package macro

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/client/fred"
	"marketpulse/internal/config"
	"marketpulse/internal/models"
)

// Observations is the slice of the FRED client the macro sync needs.
type Observations interface {
	GetObservations(ctx context.Context, seriesID string, start time.Time) ([]fred.Observation, error)
}

// Store is the slice of the repository the macro sync uses.
type Store interface {
	LatestMacroDates(ctx context.Context) (map[string]time.Time, error)
	InsertMacroPoints(ctx context.Context, items []models.MacroData) (int64, error)
}

// Service appends new macro observations per configured series. Points are
// never mutated: inserts ignore conflicts, and missing values stay null.
type Service struct {
	Repo   Store
	Client Observations
	Logger *zap.Logger
	Config config.MacroConfig
}

type Result struct {
	SeriesSynced int               `json:"series_synced"`
	SeriesFailed int               `json:"series_failed"`
	PointsAdded  int64             `json:"points_added"`
	Failed       map[string]string `json:"failed,omitempty"`
}

func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	result := Result{}
	if s == nil || s.Repo == nil || s.Client == nil {
		return result, nil
	}
	if len(s.Config.Series) == 0 {
		return result, nil
	}

	latest, err := s.Repo.LatestMacroDates(ctx)
	if err != nil {
		return result, err
	}
	defaultStart := s.startDate()

	for _, seriesID := range sortedSeriesIDs(s.Config.Series) {
		start := defaultStart
		if last, ok := latest[seriesID]; ok {
			start = last.AddDate(0, 0, 1)
		}
		observations, err := s.Client.GetObservations(ctx, seriesID, start)
		if err != nil {
			// Fail-soft per series; the joined columns stay null until the
			// next successful run.
			result.SeriesFailed++
			if result.Failed == nil {
				result.Failed = map[string]string{}
			}
			result.Failed[seriesID] = err.Error()
			if s.Logger != nil {
				s.Logger.Warn("macro series fetch failed",
					zap.String("series_id", seriesID),
					zap.Error(err),
				)
			}
			continue
		}
		items := make([]models.MacroData, 0, len(observations))
		for _, obs := range observations {
			if obs.Date.Before(start) {
				continue
			}
			items = append(items, models.MacroData{
				Date:     obs.Date,
				SeriesID: seriesID,
				Value:    obs.Value,
			})
		}
		added, err := s.Repo.InsertMacroPoints(ctx, items)
		if err != nil {
			result.SeriesFailed++
			if result.Failed == nil {
				result.Failed = map[string]string{}
			}
			result.Failed[seriesID] = err.Error()
			if s.Logger != nil {
				s.Logger.Warn("macro series insert failed",
					zap.String("series_id", seriesID),
					zap.Error(err),
				)
			}
			continue
		}
		result.SeriesSynced++
		result.PointsAdded += added
	}

	if s.Logger != nil {
		s.Logger.Info("macro sync complete",
			zap.Int("series_synced", result.SeriesSynced),
			zap.Int("series_failed", result.SeriesFailed),
			zap.Int64("points_added", result.PointsAdded),
		)
	}
	return result, nil
}

func (s *Service) startDate() time.Time {
	if t, err := time.ParseInLocation("2006-01-02", s.Config.StartDate, time.UTC); err == nil {
		return t
	}
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
}

func sortedSeriesIDs(series map[string]string) []string {
	out := make([]string, 0, len(series))
	for _, id := range series {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
