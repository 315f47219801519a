package yahoo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one daily OHLCV row as published by the chart endpoint. AdjClose
// is retroactively rewritten by the provider after splits and dividends,
// which is exactly what the sync planner's tail comparison detects.
type Bar struct {
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   int64
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

func parseChart(body []byte) ([]Bar, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid chart response: %w", err)
	}
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, ErrNoData
	}
	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePx := at(quote.Close, i)
		if closePx == nil {
			// Half-holiday placeholder rows carry null quotes.
			continue
		}
		bar := Bar{
			Date:  midnightUTC(time.Unix(ts, 0).UTC()),
			Close: decimal.NewFromFloat(*closePx),
		}
		if v := at(quote.Open, i); v != nil {
			bar.Open = decimal.NewFromFloat(*v)
		} else {
			bar.Open = bar.Close
		}
		if v := at(quote.High, i); v != nil {
			bar.High = decimal.NewFromFloat(*v)
		} else {
			bar.High = bar.Close
		}
		if v := at(quote.Low, i); v != nil {
			bar.Low = decimal.NewFromFloat(*v)
		} else {
			bar.Low = bar.Close
		}
		if v := at(adj, i); v != nil {
			bar.AdjClose = decimal.NewFromFloat(*v)
		} else {
			bar.AdjClose = bar.Close
		}
		if v := at(quote.Volume, i); v != nil {
			bar.Volume = *v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func at[T any](items []*T, i int) *T {
	if i < 0 || i >= len(items) {
		return nil
	}
	return items[i]
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
