package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const chartFixture = `{
  "chart": {
    "result": [
      {
        "timestamp": [1704240000, 1704326400, 1704412800],
        "indicators": {
          "quote": [
            {
              "open":   [10.0, 10.5, null],
              "high":   [10.8, 11.0, null],
              "low":    [9.9, 10.2, null],
              "close":  [10.5, 10.9, null],
              "volume": [1000, 2000, null]
            }
          ],
          "adjclose": [
            {"adjclose": [10.4, 10.8, null]}
          ]
        }
      }
    ],
    "error": null
  }
}`

func TestGetDailyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Fatalf("expected 1d interval, got %q", r.URL.Query().Get("interval"))
		}
		_, _ = w.Write([]byte(chartFixture))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	bars, err := c.GetDailyBars(context.Background(), "AAPL", time.Unix(1704000000, 0), time.Unix(1705000000, 0))
	if err != nil {
		t.Fatalf("GetDailyBars: %v", err)
	}
	// Third row has a null close and must be skipped.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if got := bars[0].Date.Format("2006-01-02"); got != "2024-01-03" {
		t.Fatalf("unexpected first date %s", got)
	}
	if !bars[0].Close.Equal(mustDecimal(t, "10.5")) {
		t.Fatalf("unexpected close %s", bars[0].Close)
	}
	if !bars[1].AdjClose.Equal(mustDecimal(t, "10.8")) {
		t.Fatalf("unexpected adj close %s", bars[1].AdjClose)
	}
	if bars[1].Volume != 2000 {
		t.Fatalf("unexpected volume %d", bars[1].Volume)
	}
}

func TestGetDailyBarsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.GetDailyBars(context.Background(), "GONE", time.Now().Add(-24*time.Hour), time.Now())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestParseChartErrorBody(t *testing.T) {
	_, err := parseChart([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
