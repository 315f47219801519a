package fred

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fred/series/observations" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("series_id") != "VIXCLS" {
			t.Fatalf("unexpected series_id %q", q.Get("series_id"))
		}
		if q.Get("api_key") != "test-key" {
			t.Fatalf("unexpected api_key %q", q.Get("api_key"))
		}
		if q.Get("observation_start") != "2024-01-01" {
			t.Fatalf("unexpected observation_start %q", q.Get("observation_start"))
		}
		_, _ = w.Write([]byte(`{"observations":[
			{"date":"2024-01-02","value":"13.20"},
			{"date":"2024-01-03","value":"."},
			{"date":"2024-01-04","value":"14.13"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "test-key")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs, err := c.GetObservations(context.Background(), "VIXCLS", start)
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].Value == nil || obs[0].Value.String() != "13.2" {
		t.Fatalf("unexpected first value %v", obs[0].Value)
	}
	// "." means no reading and must stay nil, never zero.
	if obs[1].Value != nil {
		t.Fatalf("expected nil value for missing reading, got %v", obs[1].Value)
	}
	if got := obs[2].Date.Format("2006-01-02"); got != "2024-01-04" {
		t.Fatalf("unexpected date %s", got)
	}
}
