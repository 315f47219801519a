package pricesync

import (
	"math"
	"time"

	"marketpulse/internal/client/yahoo"
	"marketpulse/internal/models"
)

// Decision is the change detector's verdict for one ticker.
type Decision int

const (
	// DecisionNew — no stored history at all; full fetch required.
	DecisionNew Decision = iota
	// DecisionAdjusted — a stored adjusted close no longer matches the
	// provider's value for the same date. A split or dividend rewrote the
	// adjustment basis, so the whole history must be refetched.
	DecisionAdjusted
	// DecisionUnchanged — every overlapping date matches within tolerance.
	DecisionUnchanged
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionAdjusted:
		return "adjusted"
	default:
		return "unchanged"
	}
}

// Near zero a relative tolerance degenerates, so an absolute floor guards
// the comparison for sub-cent prices.
const absTolerance = 1e-4

// DetectAdjustmentChange compares the stored tail against the freshly
// fetched bars on adjusted close. Providers rewrite adj_close retroactively
// when a corporate action lands, so a mismatch on any overlapping date is
// the cheap, reliable split/dividend signal.
//
// Zero overlap (empty fetch, or disjoint windows) carries no information:
// the verdict is DecisionUnchanged with ErrAmbiguousTail, never a forced
// refresh.
func DetectAdjustmentChange(stored []models.DailyStockData, fetched []yahoo.Bar, tol float64) (Decision, error) {
	if len(stored) == 0 {
		return DecisionNew, nil
	}
	if tol <= 0 {
		tol = 0.001
	}
	fetchedByDate := make(map[time.Time]yahoo.Bar, len(fetched))
	for _, bar := range fetched {
		fetchedByDate[bar.Date] = bar
	}
	overlap := 0
	for _, row := range stored {
		bar, ok := fetchedByDate[row.Date]
		if !ok {
			continue
		}
		overlap++
		if !withinTolerance(row.AdjClose.InexactFloat64(), bar.AdjClose.InexactFloat64(), tol) {
			return DecisionAdjusted, nil
		}
	}
	if overlap == 0 {
		return DecisionUnchanged, ErrAmbiguousTail
	}
	return DecisionUnchanged, nil
}

func withinTolerance(a, b, tol float64) bool {
	diff := math.Abs(a - b)
	if diff <= absTolerance {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= tol*scale
}
