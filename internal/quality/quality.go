package quality

import (
	"fmt"
	"time"

	"marketpulse/internal/models"
)

// Violation describes one defect in a fetched bar batch. Any violation
// rejects the whole batch before a single row is written, so a bad provider
// response can never contaminate stored history.
type Violation struct {
	Ticker string
	Date   time.Time
	Rule   string
	Detail string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s %s: %s (%s)", v.Ticker, v.Date.Format("2006-01-02"), v.Rule, v.Detail)
}

// Check validates a fetched bar series before storage: dates strictly
// ascending, close and adj_close positive, high >= low, volume non-negative.
func Check(bars []models.DailyStockData) []Violation {
	var out []Violation
	var prev time.Time
	for i, bar := range bars {
		if i > 0 && !bar.Date.After(prev) {
			out = append(out, Violation{
				Ticker: bar.Ticker,
				Date:   bar.Date,
				Rule:   "dates_ascending",
				Detail: fmt.Sprintf("date <= previous %s", prev.Format("2006-01-02")),
			})
		}
		prev = bar.Date
		if !bar.Close.IsPositive() {
			out = append(out, Violation{
				Ticker: bar.Ticker,
				Date:   bar.Date,
				Rule:   "close_positive",
				Detail: "close " + bar.Close.String(),
			})
		}
		if bar.Close.IsPositive() && !bar.AdjClose.IsPositive() {
			out = append(out, Violation{
				Ticker: bar.Ticker,
				Date:   bar.Date,
				Rule:   "adj_close_positive",
				Detail: "adj_close " + bar.AdjClose.String(),
			})
		}
		if bar.High.LessThan(bar.Low) {
			out = append(out, Violation{
				Ticker: bar.Ticker,
				Date:   bar.Date,
				Rule:   "high_gte_low",
				Detail: fmt.Sprintf("high %s < low %s", bar.High, bar.Low),
			})
		}
		if bar.Volume < 0 {
			out = append(out, Violation{
				Ticker: bar.Ticker,
				Date:   bar.Date,
				Rule:   "volume_non_negative",
				Detail: fmt.Sprintf("volume %d", bar.Volume),
			})
		}
	}
	return out
}
