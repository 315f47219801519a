package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"marketpulse/internal/models"
	"marketpulse/internal/notify"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/pricesync"
	"marketpulse/internal/repository"
)

// PipelineStore is the read surface behind the run-report endpoints.
type PipelineStore interface {
	GetPipelineRun(ctx context.Context, id uint64) (*models.PipelineRun, error)
	ListPipelineRuns(ctx context.Context, params repository.ListPipelineRunsParams) ([]models.PipelineRun, error)
}

type PipelineHandler struct {
	Runner   *pipeline.Runner
	Repo     PipelineStore
	Progress *pricesync.Hub
	Logger   *zap.Logger
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/pipeline")
	group.POST("/run", h.triggerRun)
	group.GET("/runs", h.listRuns)
	group.GET("/runs/:id", h.getRun)
	group.GET("/stream", h.stream)
}

// @Summary Trigger a pipeline run
// @Tags pipeline
// @Param phases query string false "sync|analytics|all"
// @Param force query bool false "run even when the pipeline switch is off"
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/pipeline/run [post]
func (h *PipelineHandler) triggerRun(c *gin.Context) {
	if h.Runner == nil {
		Error(c, http.StatusInternalServerError, "runner unavailable", nil)
		return
	}
	if h.Runner.Active() {
		Error(c, http.StatusConflict, pipeline.ErrRunActive.Error(), nil)
		return
	}
	opts := pipeline.RunOptions{
		Trigger: pipeline.TriggerManual,
		Phases:  strings.TrimSpace(c.Query("phases")),
		Force:   boolQueryDefault(c, "force", false),
	}
	notifier := notify.ClientFromGin(c)
	go func() {
		// The run outlives the HTTP request on purpose.
		_, err := h.Runner.Run(context.Background(), opts)
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrRunActive), errors.Is(err, pipeline.ErrDisabled):
			if h.Logger != nil {
				h.Logger.Info("manual pipeline trigger skipped", zap.Error(err))
			}
		default:
			if h.Logger != nil {
				h.Logger.Error("manual pipeline run failed", zap.Error(err))
			}
			if emitErr := notifier.Emit(notify.Event{
				Event:   notify.EventRunFailed,
				Level:   "error",
				Details: map[string]any{"trigger": opts.Trigger, "error": err.Error()},
			}); emitErr != nil && h.Logger != nil {
				h.Logger.Debug("notify failed", zap.Error(emitErr))
			}
		}
	}()
	Accepted(c, gin.H{"trigger": opts.Trigger, "phases": opts.Phases, "force": opts.Force})
}

// @Summary List pipeline runs
// @Tags pipeline
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param status query string false "running|ok|failed"
// @Success 200 {object} apiResponse
// @Router /api/v1/pipeline/runs [get]
func (h *PipelineHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	items, err := h.Repo.ListPipelineRuns(c.Request.Context(), repository.ListPipelineRunsParams{
		Limit:  intQuery(c, "limit", 20),
		Offset: intQuery(c, "offset", 0),
		Status: strQueryPtr(c, "status"),
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list pipeline runs failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get one pipeline run
// @Tags pipeline
// @Param id path int true "run id"
// @Success 200 {object} apiResponse
// @Router /api/v1/pipeline/runs/{id} [get]
func (h *PipelineHandler) getRun(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "id must be numeric", nil)
		return
	}
	item, err := h.Repo.GetPipelineRun(c.Request.Context(), id)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("get pipeline run failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "run not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Stream sync progress over a websocket
// @Tags pipeline
// @Success 101 {string} string "switching protocols"
// @Router /api/v1/pipeline/stream [get]
func (h *PipelineHandler) stream(c *gin.Context) {
	if h.Progress == nil {
		Error(c, http.StatusInternalServerError, "progress hub unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	events, cancel := h.Progress.Subscribe(256)
	defer cancel()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}
