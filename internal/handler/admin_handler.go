package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/scheduler"
)

// JobRunner runs a named job synchronously.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// CacheClearer drops the cached upcoming list.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// AdminHandler exposes operator actions. All routes require an API key.
type AdminHandler struct {
	jobs   JobRunner
	cache  CacheClearer
	logger *zap.Logger
}

func NewAdminHandler(jobs JobRunner, cache CacheClearer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		jobs:   jobs,
		cache:  cache,
		logger: logger,
	}
}

func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup, guard gin.HandlerFunc) {
	admin := api.Group("/admin", guard)
	admin.POST("/refresh/contests", h.run(scheduler.JobRefreshContests))
	admin.POST("/refresh/solutions", h.run(scheduler.JobSyncSolutions))
	admin.DELETE("/cache", h.ClearCache)
}

func (h *AdminHandler) run(job string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		err := h.jobs.RunNow(c.Request.Context(), job)

		switch {
		case errors.Is(err, scheduler.ErrJobRunning):
			sendError(c, http.StatusConflict, "Conflict", "job is already running", map[string]any{"job": job})
		case err != nil:
			h.logger.Error("Manual job run failed", zap.String("job", job), zap.Error(err))
			sendError(c, http.StatusInternalServerError, "Job failed", err.Error(), map[string]any{"job": job})
		default:
			c.JSON(http.StatusOK, gin.H{
				"job":         job,
				"status":      "completed",
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}
	}
}

// ClearCache handles DELETE /api/admin/cache.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear cache", zap.Error(err))
		sendError(c, http.StatusServiceUnavailable, "Cache unavailable", err.Error(), nil)
		return
	}
	c.Status(http.StatusNoContent)
}
