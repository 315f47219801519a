package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketpulse/internal/models"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func day(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
	return t
}

func doRequest(r *gin.Engine, method, target string, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type stubStocksStore struct {
	stocks    []models.Stock
	analytics []models.DailyStockAnalytics
	lastList  repository.ListStocksParams
}

func (s *stubStocksStore) ListStocks(ctx context.Context, params repository.ListStocksParams) ([]models.Stock, error) {
	s.lastList = params
	return s.stocks, nil
}

func (s *stubStocksStore) CountStocks(ctx context.Context, params repository.ListStocksParams) (int64, error) {
	return int64(len(s.stocks)), nil
}

func (s *stubStocksStore) GetStock(ctx context.Context, ticker string) (*models.Stock, error) {
	for i := range s.stocks {
		if s.stocks[i].Ticker == ticker {
			return &s.stocks[i], nil
		}
	}
	return nil, nil
}

func (s *stubStocksStore) ListStockAnalytics(ctx context.Context, params repository.ListStockAnalyticsParams) ([]models.DailyStockAnalytics, error) {
	return s.analytics, nil
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequireBearerMiddleware("sekrit"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/stocks", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doRequest(r, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/stocks", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token must 401, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/stocks", "", map[string]string{
		"Authorization": "Bearer wrong",
	}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token must 401, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/stocks", "", map[string]string{
		"Authorization": "Bearer sekrit",
	}); w.Code != http.StatusOK {
		t.Fatalf("good token must pass, got %d", w.Code)
	}
}

func TestAuthMiddlewareDisabledWhenTokenEmpty(t *testing.T) {
	r := gin.New()
	r.Use(RequireBearerMiddleware(""))
	r.GET("/api/v1/stocks", func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := doRequest(r, http.MethodGet, "/api/v1/stocks", "", nil); w.Code != http.StatusOK {
		t.Fatalf("empty token must disable auth, got %d", w.Code)
	}
}

func TestListStocksFiltersAndPagination(t *testing.T) {
	store := &stubStocksStore{stocks: []models.Stock{{Ticker: "AAPL"}}}
	h := &StocksHandler{Repo: store}
	r := gin.New()
	h.Register(r)

	w := doRequest(r, http.MethodGet, "/api/v1/stocks?sector=Technology&limit=10&order_by=market_cap", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if store.lastList.Sector == nil || *store.lastList.Sector != "Technology" {
		t.Fatalf("sector filter not forwarded: %+v", store.lastList)
	}
	if store.lastList.OrderBy != "market_cap" {
		t.Fatalf("order_by = %q", store.lastList.OrderBy)
	}

	var resp struct {
		Meta map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Meta["total"] != float64(1) {
		t.Fatalf("meta %v", resp.Meta)
	}
}

func TestGetStockNotFound(t *testing.T) {
	h := &StocksHandler{Repo: &stubStocksStore{}}
	r := gin.New()
	h.Register(r)
	if w := doRequest(r, http.MethodGet, "/api/v1/stocks/ZZZZ", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

type stubMarketStore struct {
	latest    *time.Time
	breakouts []models.DailyBreakoutStock
	lastDate  *time.Time
}

func (s *stubMarketStore) ListMarketIndicators(ctx context.Context, params repository.ListMarketIndicatorsParams) ([]models.DailyMarketIndicator, error) {
	return nil, nil
}

func (s *stubMarketStore) ListBreakoutStocks(ctx context.Context, date *time.Time) ([]models.DailyBreakoutStock, error) {
	s.lastDate = date
	return s.breakouts, nil
}

func (s *stubMarketStore) LatestBreakoutDate(ctx context.Context) (*time.Time, error) {
	return s.latest, nil
}

func TestListBreakoutsDefaultsToLatestDate(t *testing.T) {
	latest := day("2024-03-08")
	store := &stubMarketStore{
		latest:    &latest,
		breakouts: []models.DailyBreakoutStock{{Date: latest, Ticker: "AAA", VolumeRatio: 2.1}},
	}
	h := &MarketHandler{Repo: store}
	r := gin.New()
	h.Register(r)

	w := doRequest(r, http.MethodGet, "/api/v1/market/breakouts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if store.lastDate == nil || !store.lastDate.Equal(latest) {
		t.Fatalf("handler must query the latest date, got %v", store.lastDate)
	}
}

func TestListBreakoutsEmptyStore(t *testing.T) {
	h := &MarketHandler{Repo: &stubMarketStore{}}
	r := gin.New()
	h.Register(r)
	w := doRequest(r, http.MethodGet, "/api/v1/market/breakouts", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

type stubGroupsStore struct {
	lastParams repository.ListGroupAnalyticsParams
}

func (s *stubGroupsStore) ListGroupAnalytics(ctx context.Context, params repository.ListGroupAnalyticsParams) ([]models.DailyGroupAnalytics, error) {
	s.lastParams = params
	return nil, nil
}

func (s *stubGroupsStore) ListGroupNames(ctx context.Context, groupType string) ([]string, error) {
	return []string{"Technology"}, nil
}

func TestListGroupsValidatesType(t *testing.T) {
	store := &stubGroupsStore{}
	h := &GroupsHandler{Repo: store}
	r := gin.New()
	h.Register(r)

	if w := doRequest(r, http.MethodGet, "/api/v1/groups?type=bogus", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bogus type must 400, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/groups?type=sector&name=Technology", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if store.lastParams.GroupType == nil || *store.lastParams.GroupType != models.GroupTypeSector {
		t.Fatalf("type not forwarded: %+v", store.lastParams)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/groups/names", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("names without type must 400, got %d", w.Code)
	}
}

type stubSettingsRepo struct {
	items map[string]*models.SystemSetting
}

func (s *stubSettingsRepo) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	out := make([]models.SystemSetting, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *stubSettingsRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	return s.items[key], nil
}

func (s *stubSettingsRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s.items == nil {
		s.items = map[string]*models.SystemSetting{}
	}
	s.items[item.Key] = item
	return nil
}

func TestPutSettingValidatesBody(t *testing.T) {
	repo := &stubSettingsRepo{}
	h := &SettingsHandler{
		Repo:     repo,
		Settings: &pipeline.SettingsService{Repo: repo},
	}
	r := gin.New()
	h.Register(r)

	if w := doRequest(r, http.MethodPut, "/api/v1/settings/pipeline.enabled", `{"nope":1}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body must 400, got %d", w.Code)
	}
	w := doRequest(r, http.MethodPut, "/api/v1/settings/pipeline.enabled", `{"enabled":false}`, map[string]string{
		"Content-Type": "application/json",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if h.Settings.IsEnabled(context.Background(), "pipeline.enabled", true) {
		t.Fatalf("switch must persist as off")
	}
}

type stubPipelineStore struct {
	runs []models.PipelineRun
}

func (s *stubPipelineStore) GetPipelineRun(ctx context.Context, id uint64) (*models.PipelineRun, error) {
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, nil
}

func (s *stubPipelineStore) ListPipelineRuns(ctx context.Context, params repository.ListPipelineRunsParams) ([]models.PipelineRun, error) {
	return s.runs, nil
}

func TestPipelineRunsEndpoints(t *testing.T) {
	store := &stubPipelineStore{runs: []models.PipelineRun{{ID: 7, Status: models.RunStatusOK}}}
	h := &PipelineHandler{Repo: store}
	r := gin.New()
	h.Register(r)

	if w := doRequest(r, http.MethodGet, "/api/v1/pipeline/runs", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/pipeline/runs/7", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/pipeline/runs/8", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/v1/pipeline/runs/abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestTriggerRunAcceptedEnvelope(t *testing.T) {
	h := &PipelineHandler{Runner: &pipeline.Runner{}}
	r := gin.New()
	h.Register(r)

	w := doRequest(r, http.MethodPost, "/api/v1/pipeline/run?phases=sync", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != 0 || resp.Message != "accepted" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if resp.Data["phases"] != "sync" {
		t.Fatalf("unexpected data %v", resp.Data)
	}
}

func TestTriggerRunWithoutRunner(t *testing.T) {
	h := &PipelineHandler{}
	r := gin.New()
	h.Register(r)
	if w := doRequest(r, http.MethodPost, "/api/v1/pipeline/run", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
}
