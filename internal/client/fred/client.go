package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host, apiKey string) *Client {
	if host == "" {
		host = "https://api.stlouisfed.org"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Observation is one published value of a series. Value is nil when the
// series has no reading for that date (FRED publishes ".").
type Observation struct {
	Date  time.Time
	Value *decimal.Decimal
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GetObservations returns the series' observations from start onward,
// oldest first.
func (c *Client) GetObservations(ctx context.Context, seriesID string, start time.Time) ([]Observation, error) {
	seriesID = strings.TrimSpace(seriesID)
	if seriesID == "" {
		return nil, fmt.Errorf("series_id is required")
	}
	query := url.Values{}
	query.Set("series_id", seriesID)
	query.Set("api_key", c.apiKey)
	query.Set("file_type", "json")
	if !start.IsZero() {
		query.Set("observation_start", start.Format("2006-01-02"))
	}
	body, err := c.doRequest(ctx, "/fred/series/observations", query)
	if err != nil {
		return nil, err
	}
	return parseObservations(body)
}

func parseObservations(body []byte) ([]Observation, error) {
	var resp struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid observations response: %w", err)
	}
	out := make([]Observation, 0, len(resp.Observations))
	for _, raw := range resp.Observations {
		date, err := time.ParseInLocation("2006-01-02", raw.Date, time.UTC)
		if err != nil {
			continue
		}
		obs := Observation{Date: date}
		val := strings.TrimSpace(raw.Value)
		if val != "" && val != "." {
			d, err := decimal.NewFromString(val)
			if err == nil {
				obs.Value = &d
			}
		}
		out = append(out, obs)
	}
	return out, nil
}
