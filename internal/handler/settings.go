package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketpulse/internal/models"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/repository"
)

// SettingsStore is the read surface behind the settings endpoints; writes go
// through the switch service so values stay well-formed JSON booleans.
type SettingsStore interface {
	ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type SettingsHandler struct {
	Repo     SettingsStore
	Settings *pipeline.SettingsService
	Logger   *zap.Logger
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/settings")
	group.GET("", h.listSettings)
	group.PUT("/:key", h.putSetting)
}

// @Summary List system settings
// @Tags settings
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param prefix query string false "key prefix"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings [get]
func (h *SettingsHandler) listSettings(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), repository.ListSystemSettingsParams{
		Limit:  intQuery(c, "limit", 100),
		Offset: intQuery(c, "offset", 0),
		Prefix: strQueryPtr(c, "prefix"),
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list settings failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type putSettingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary Set a runtime switch
// @Tags settings
// @Param key path string true "setting key"
// @Param body body putSettingRequest true "new value"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/{key} [put]
func (h *SettingsHandler) putSetting(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "key is required", nil)
		return
	}
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "body must be {\"enabled\": true|false}", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("set setting failed", zap.String("key", key), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": *req.Enabled}, nil)
}
