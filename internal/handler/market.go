package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketpulse/internal/models"
	"marketpulse/internal/repository"
)

// MarketStore is the read surface behind the breadth endpoints.
type MarketStore interface {
	ListMarketIndicators(ctx context.Context, params repository.ListMarketIndicatorsParams) ([]models.DailyMarketIndicator, error)
	ListBreakoutStocks(ctx context.Context, date *time.Time) ([]models.DailyBreakoutStock, error)
	LatestBreakoutDate(ctx context.Context) (*time.Time, error)
}

type MarketHandler struct {
	Repo   MarketStore
	Logger *zap.Logger
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/market")
	group.GET("/indicators", h.listIndicators)
	group.GET("/breakouts", h.listBreakouts)
}

// @Summary List market breadth rows
// @Tags market
// @Param since query string false "YYYY-MM-DD"
// @Param until query string false "YYYY-MM-DD"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param ascending query bool false "ascending (default newest first)"
// @Success 200 {object} apiResponse
// @Router /api/v1/market/indicators [get]
func (h *MarketHandler) listIndicators(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	items, err := h.Repo.ListMarketIndicators(c.Request.Context(), repository.ListMarketIndicatorsParams{
		Since:  dateQuery(c, "since"),
		Until:  dateQuery(c, "until"),
		Limit:  intQuery(c, "limit", 200),
		Offset: intQuery(c, "offset", 0),
		Asc:    boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		h.fail(c, "list market indicators failed", err)
		return
	}
	Ok(c, items, nil)
}

// @Summary List breakout stocks for a date
// @Tags market
// @Param date query string false "YYYY-MM-DD (default: latest)"
// @Success 200 {object} apiResponse
// @Router /api/v1/market/breakouts [get]
func (h *MarketHandler) listBreakouts(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	date := dateQuery(c, "date")
	if date == nil {
		latest, err := h.Repo.LatestBreakoutDate(c.Request.Context())
		if err != nil {
			h.fail(c, "latest breakout date failed", err)
			return
		}
		if latest == nil {
			Ok(c, []models.DailyBreakoutStock{}, nil)
			return
		}
		date = latest
	}
	items, err := h.Repo.ListBreakoutStocks(c.Request.Context(), date)
	if err != nil {
		h.fail(c, "list breakouts failed", err)
		return
	}
	Ok(c, items, map[string]any{"date": date.Format("2006-01-02")})
}

func (h *MarketHandler) fail(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
	Error(c, http.StatusInternalServerError, err.Error(), nil)
}
