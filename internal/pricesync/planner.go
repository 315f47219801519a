package pricesync

import (
	"sort"
	"time"
)

// Class is a ticker's refresh class for the current run.
type Class string

const (
	// ClassFull — new ticker or detected corporate action; the whole
	// history is refetched and replaced.
	ClassFull Class = "full"
	// ClassIncremental — existing ticker behind the reference date; only
	// dates after the stored maximum are fetched.
	ClassIncremental Class = "incremental"
	// ClassSkip — already current; no fetch, no writes, no log entry.
	ClassSkip Class = "skip"
	// ClassUnchanged — incremental fetch produced zero new rows.
	ClassUnchanged Class = "unchanged"
	// ClassFailed — fetch, validation, or storage error; assigned during
	// execution, never by the planner.
	ClassFailed Class = "failed"
)

// PlanEntry assigns one ticker exactly one class plus its fetch window.
type PlanEntry struct {
	Ticker    string
	Class     Class
	FetchFrom time.Time
}

// Plan is the run's refresh manifest. Total work scales with the entries
// that actually need data, not with universe size or history depth.
type Plan struct {
	Entries   []PlanEntry
	Reference time.Time
}

func (p Plan) CountByClass() map[Class]int {
	out := map[Class]int{}
	for _, e := range p.Entries {
		out[e.Class]++
	}
	return out
}

// BuildPlan partitions tickers into {full, incremental, skip} from the
// stored per-ticker max dates and the market reference date. Deterministic:
// identical inputs produce an identical plan, entries sorted by ticker.
//
// An incremental window starts 2*tailDays calendar days before the stored
// maximum so the fetch overlaps the stored tail across weekends and
// holidays; the overlap feeds the change detector, and only rows past the
// stored maximum are inserted.
func BuildPlan(tickers []string, latest map[string]time.Time, reference time.Time, yearsBack, tailDays int) Plan {
	if yearsBack <= 0 {
		yearsBack = 10
	}
	if tailDays <= 0 {
		tailDays = 5
	}
	fullStart := midnight(reference.AddDate(-yearsBack, 0, 0))

	entries := make([]PlanEntry, 0, len(tickers))
	for _, ticker := range tickers {
		last, ok := latest[ticker]
		switch {
		case !ok:
			entries = append(entries, PlanEntry{
				Ticker:    ticker,
				Class:     ClassFull,
				FetchFrom: fullStart,
			})
		case !midnight(last).Before(midnight(reference)):
			entries = append(entries, PlanEntry{
				Ticker: ticker,
				Class:  ClassSkip,
			})
		default:
			entries = append(entries, PlanEntry{
				Ticker:    ticker,
				Class:     ClassIncremental,
				FetchFrom: midnight(last).AddDate(0, 0, -2*tailDays),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ticker < entries[j].Ticker })
	return Plan{Entries: entries, Reference: midnight(reference)}
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
