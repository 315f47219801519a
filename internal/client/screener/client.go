package screener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

type Client struct {
	url        string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, url string) *Client {
	if url == "" {
		url = "https://scanner.tradingview.com/america/scan"
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
	}
}

// Listing is one screener hit: a common stock on one of the scanned
// exchanges with its classification and size columns.
type Listing struct {
	Ticker    string
	Sector    string
	Industry  string
	MarketCap decimal.Decimal
	AvgVolume float64
}

type ScanOptions struct {
	Exchange     string
	MaxRows      int
	MinMarketCap float64
	MinAvgVolume float64
}

type scanRequest struct {
	Filter  []scanFilter `json:"filter"`
	Columns []string     `json:"columns"`
	Range   [2]int       `json:"range"`
}

type scanFilter struct {
	Left      string `json:"left"`
	Operation string `json:"operation"`
	Right     any    `json:"right"`
}

type scanResponse struct {
	Data []struct {
		S string `json:"s"`
		D []any  `json:"d"`
	} `json:"data"`
}

// Scan fetches one exchange's listings and applies the size/liquidity
// filters client-side, the way the scan endpoint is normally consumed.
// Tickers containing '.' or '/' (units, warrants, share classes) are
// dropped.
func (c *Client) Scan(ctx context.Context, opts ScanOptions) ([]Listing, error) {
	exchange := strings.TrimSpace(opts.Exchange)
	if exchange == "" {
		return nil, fmt.Errorf("exchange is required")
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = 5000
	}
	payload := scanRequest{
		Filter: []scanFilter{
			{Left: "exchange", Operation: "equal", Right: exchange},
		},
		Columns: []string{"name", "sector", "industry", "market_cap_basic", "average_volume_10d_calc"},
		Range:   [2]int{0, maxRows},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return parseScan(respBody, opts)
}

func parseScan(body []byte, opts ScanOptions) ([]Listing, error) {
	var resp scanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid scan response: %w", err)
	}
	out := make([]Listing, 0, len(resp.Data))
	for _, row := range resp.Data {
		if len(row.D) < 5 {
			continue
		}
		ticker := row.S
		if i := strings.Index(ticker, ":"); i >= 0 {
			ticker = ticker[i+1:]
		}
		ticker = strings.TrimSpace(ticker)
		if ticker == "" || strings.ContainsAny(ticker, "./") {
			continue
		}
		cap, capOK := asFloat(row.D[3])
		vol, volOK := asFloat(row.D[4])
		if !capOK || cap <= opts.MinMarketCap {
			continue
		}
		if !volOK || vol <= opts.MinAvgVolume {
			continue
		}
		out = append(out, Listing{
			Ticker:    ticker,
			Sector:    asString(row.D[1], "Unknown"),
			Industry:  asString(row.D[2], "Unknown"),
			MarketCap: decimal.NewFromFloat(cap),
			AvgVolume: vol,
		})
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asString(v any, fallback string) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
