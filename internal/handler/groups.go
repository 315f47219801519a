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

// GroupsStore is the read surface behind the sector/industry endpoints.
type GroupsStore interface {
	ListGroupAnalytics(ctx context.Context, params repository.ListGroupAnalyticsParams) ([]models.DailyGroupAnalytics, error)
	ListGroupNames(ctx context.Context, groupType string) ([]string, error)
}

type GroupsHandler struct {
	Repo   GroupsStore
	Logger *zap.Logger
}

func (h *GroupsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/groups")
	group.GET("", h.listGroups)
	group.GET("/names", h.listNames)
}

// @Summary List group composite rows
// @Tags groups
// @Param type query string false "sector|industry"
// @Param name query string false "group name"
// @Param since query string false "YYYY-MM-DD"
// @Param until query string false "YYYY-MM-DD"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param ascending query bool false "ascending (default newest first)"
// @Success 200 {object} apiResponse
// @Router /api/v1/groups [get]
func (h *GroupsHandler) listGroups(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	groupType := normalizeGroupType(c.Query("type"))
	if c.Query("type") != "" && groupType == nil {
		Error(c, http.StatusBadRequest, "type must be sector or industry", nil)
		return
	}
	items, err := h.Repo.ListGroupAnalytics(c.Request.Context(), repository.ListGroupAnalyticsParams{
		GroupType: groupType,
		GroupName: strQueryPtr(c, "name"),
		Since:     dateQuery(c, "since"),
		Until:     dateQuery(c, "until"),
		Limit:     intQuery(c, "limit", 200),
		Offset:    intQuery(c, "offset", 0),
		Asc:       boolQueryPtr(c, "ascending"),
	})
	if err != nil {
		h.fail(c, "list group analytics failed", err)
		return
	}
	Ok(c, items, nil)
}

// @Summary List known group names
// @Tags groups
// @Param type query string true "sector|industry"
// @Success 200 {object} apiResponse
// @Router /api/v1/groups/names [get]
func (h *GroupsHandler) listNames(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	groupType := normalizeGroupType(c.Query("type"))
	if groupType == nil {
		Error(c, http.StatusBadRequest, "type must be sector or industry", nil)
		return
	}
	names, err := h.Repo.ListGroupNames(c.Request.Context(), *groupType)
	if err != nil {
		h.fail(c, "list group names failed", err)
		return
	}
	Ok(c, names, nil)
}

func normalizeGroupType(value string) *string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case models.GroupTypeSector:
		v := models.GroupTypeSector
		return &v
	case models.GroupTypeIndustry:
		v := models.GroupTypeIndustry
		return &v
	default:
		return nil
	}
}

func (h *GroupsHandler) fail(c *gin.Context, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Warn(msg, zap.Error(err))
	}
	Error(c, http.StatusInternalServerError, err.Error(), nil)
}
