package analytics

import (
	"time"

	"marketpulse/internal/labeler"
	"marketpulse/internal/models"
)

// Perf lookback lengths in trading rows, not calendar days.
const (
	perf1WRows = 5
	perf1MRows = 21
	perf3MRows = 63
	perf6MRows = 126
)

// HLCC4 is the weighted daily price used by every downstream indicator. High
// and low arrive unadjusted, so they are scaled by the same split/dividend
// factor the provider applied to the close.
func HLCC4(high, low, close, adjClose float64) float64 {
	factor := 1.0
	if close != 0 {
		factor = adjClose / close
	}
	return (high*factor + low*factor + 2*adjClose) / 4
}

// SMA returns the trailing arithmetic mean per position. Positions before the
// window has its full count are nil, never zero-filled.
func SMA(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			mean := sum / float64(window)
			out[i] = &mean
		}
	}
	return out
}

// PercentChange returns the percent change vs the value lag rows back, nil
// until enough rows exist or when the base is 0.
func PercentChange(values []float64, lag int) []*float64 {
	out := make([]*float64, len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		base := values[i-lag]
		if base == 0 {
			continue
		}
		change := 100 * (values[i] - base) / base
		out[i] = &change
	}
	return out
}

// YTDChange anchors each position to the last value of the prior calendar
// year. The first calendar year present in the series has no anchor and stays
// nil.
func YTDChange(dates []time.Time, values []float64) []*float64 {
	out := make([]*float64, len(values))
	anchor := 0.0
	haveAnchor := false
	for i := range values {
		if i > 0 && dates[i].Year() != dates[i-1].Year() {
			anchor = values[i-1]
			haveAnchor = true
		}
		if !haveAnchor || anchor == 0 {
			continue
		}
		change := 100 * (values[i] - anchor) / anchor
		out[i] = &change
	}
	return out
}

// ComputeSeries derives the full analytics series for one ticker from its
// ordered bar history. benchmarkHLCC4 maps date to the benchmark's hlcc4; rs
// stays nil on dates the benchmark is missing or zero. For the benchmark
// itself pass selfBenchmark true and rs is pinned to 1.
func ComputeSeries(ticker string, bars []models.DailyStockData, benchmarkHLCC4 map[time.Time]float64, selfBenchmark bool) []models.DailyStockAnalytics {
	if len(bars) == 0 {
		return nil
	}

	dates := make([]time.Time, len(bars))
	adjClose := make([]float64, len(bars))
	hlcc4 := make([]float64, len(bars))
	for i, bar := range bars {
		dates[i] = bar.Date
		adjClose[i] = bar.AdjClose.InexactFloat64()
		hlcc4[i] = HLCC4(
			bar.High.InexactFloat64(),
			bar.Low.InexactFloat64(),
			bar.Close.InexactFloat64(),
			bar.AdjClose.InexactFloat64(),
		)
	}

	ma20 := SMA(hlcc4, 20)
	ma50 := SMA(hlcc4, 50)
	ma200 := SMA(hlcc4, 200)
	perf1w := PercentChange(adjClose, perf1WRows)
	perf1m := PercentChange(adjClose, perf1MRows)
	perf3m := PercentChange(adjClose, perf3MRows)
	perf6m := PercentChange(adjClose, perf6MRows)
	perfYTD := YTDChange(dates, adjClose)

	out := make([]models.DailyStockAnalytics, len(bars))
	for i := range bars {
		var rs *float64
		if selfBenchmark {
			one := 1.0
			rs = &one
		} else if bench, ok := benchmarkHLCC4[dates[i]]; ok && bench != 0 {
			ratio := hlcc4[i] / bench
			rs = &ratio
		}
		out[i] = models.DailyStockAnalytics{
			Ticker:  ticker,
			Date:    dates[i],
			HLCC4:   hlcc4[i],
			MA20:    ma20[i],
			MA50:    ma50[i],
			MA200:   ma200[i],
			RS:      rs,
			Trend:   labeler.Trend(adjClose[i], ma20[i], ma50[i], ma200[i]),
			Perf1W:  perf1w[i],
			Perf1M:  perf1m[i],
			Perf3M:  perf3m[i],
			Perf6M:  perf6m[i],
			PerfYTD: perfYTD[i],
		}
	}
	return out
}
