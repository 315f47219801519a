package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// StocksStore is the read surface behind the registry endpoints.
type StocksStore interface {
	ListStocks(ctx context.Context, params repository.ListStocksParams) ([]models.Stock, error)
	CountStocks(ctx context.Context, params repository.ListStocksParams) (int64, error)
	GetStock(ctx context.Context, ticker string) (*models.Stock, error)
	ListStockAnalytics(ctx context.Context, params repository.ListStockAnalyticsParams) ([]models.DailyStockAnalytics, error)
}

type StocksHandler struct {
	Repo   StocksStore
	Logger *zap.Logger
}

func (h *StocksHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/stocks")
	group.GET("", h.listStocks)
	group.GET("/:ticker", h.getStock)
	group.GET("/:ticker/analytics", h.listAnalytics)
}

// @Summary List registry stocks
// @Tags stocks
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param sector query string false "sector"
// @Param industry query string false "industry"
// @Param cap_category query string false "large_cap|mid_cap|small_cap|unknown"
// @Param ticker query string false "ticker prefix"
// @Param order_by query string false "ticker|market_cap"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/v1/stocks [get]
func (h *StocksHandler) listStocks(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	params := repository.ListStocksParams{
		Limit:       intQuery(c, "limit", 50),
		Offset:      intQuery(c, "offset", 0),
		Sector:      strQueryPtr(c, "sector"),
		Industry:    strQueryPtr(c, "industry"),
		CapCategory: strQueryPtr(c, "cap_category"),
		Ticker:      strQueryPtr(c, "ticker"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"ticker":     "ticker",
			"market_cap": "market_cap",
		}),
		Asc: boolQueryPtr(c, "ascending"),
	}
	items, err := h.Repo.ListStocks(c.Request.Context(), params)
	if err != nil {
		h.fail(c, "list stocks failed", err)
		return
	}
	total, err := h.Repo.CountStocks(c.Request.Context(), params)
	if err != nil {
		h.fail(c, "count stocks failed", err)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary Get one stock
// @Tags stocks
// @Param ticker path string true "ticker"
// @Success 200 {object} apiResponse
// @Router /api/v1/stocks/{ticker} [get]
func (h *StocksHandler) getStock(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		Error(c, http.StatusBadRequest, "ticker is required", nil)
		return
	}
	item, err := h.Repo.GetStock(c.Request.Context(), ticker)
	if err != nil {
		h.fail(c, "get stock failed", err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "stock not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List per-ticker analytics rows
// @Tags stocks
// @Param ticker path string true "ticker"
// @Param since query string false "YYYY-MM-DD"
// @Param until query string false "YYYY-MM-DD"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param ascending query bool false "ascending (default newest first)"
// @Success 200 {object} apiResponse
// @Router /api/v1/stocks/{ticker}/analytics [get]
func (h *StocksHandler) listAnalytics(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		Error(c, http.StatusBadRequest, "ticker is required", nil)
		return
	}
	items, err := h.Repo.ListStockAnalytics(c.Request.Context(), repository.ListStockAnalyticsParams{
		Ticker: ticker,
		Since:  dateQuery(c, "since"),
		Until:  dateQuery(c, "until"),
		Limit:  intQuery(c, "limit", 200),
		Offset: intQuery(c, "offset", 0),
		Asc:    boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		h.fail(c, "list analytics failed", err)
		return
	}
	Ok(c, items, nil)
}

func (h *StocksHandler) fail(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
	Error(c, http.StatusInternalServerError, err.Error(), nil)
}
