package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db/models"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
	"github.com/contest-tracker/contest-aggregator-go/internal/service"
)

// ContestReader is the read side used by the contest endpoints.
type ContestReader interface {
	Upcoming(ctx context.Context, filter service.UpcomingFilter) ([]models.ContestView, error)
	ByCanonicalID(ctx context.Context, canonicalID string) (models.ContestView, error)
	List(ctx context.Context, filters *repository.ContestFilters) ([]*models.Contest, int, error)
	Solutions(ctx context.Context, canonicalID string) (*models.Solution, error)
	Vote(ctx context.Context, solutionID uuid.UUID, vote models.VoteType) (*models.Votes, error)
}

// ContestHandler serves contests and their solutions.
type ContestHandler struct {
	query  ContestReader
	logger *zap.Logger
}

// ContestListResponse is the paginated contest listing.
type ContestListResponse struct {
	Items []*models.Contest `json:"items"`
	PaginatedResponse
}

// UpcomingResponse is the upcoming contest listing.
type UpcomingResponse struct {
	Items []models.ContestView `json:"items"`
	Count int                  `json:"count"`
}

// VoteRequest is the body of a vote.
type VoteRequest struct {
	VoteType models.VoteType `json:"voteType" binding:"required,oneof=upvote downvote"`
}

func NewContestHandler(query ContestReader, logger *zap.Logger) *ContestHandler {
	return &ContestHandler{
		query:  query,
		logger: logger,
	}
}

// RegisterRoutes mounts the public contest routes and the guarded vote route.
func (h *ContestHandler) RegisterRoutes(api *gin.RouterGroup, guard gin.HandlerFunc) {
	contests := api.Group("/contests")
	contests.GET("", h.List)
	contests.GET("/upcoming", h.Upcoming)
	contests.GET("/:contestId", h.Get)
	contests.GET("/:contestId/solutions", h.Solutions)

	api.PUT("/solutions/:id/vote", guard, h.Vote)
}

// List handles GET /api/contests.
func (h *ContestHandler) List(c *gin.Context) {
	filters := &repository.ContestFilters{
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  parseLimit(c),
		Offset: parseOffset(c),
	}

	var ok bool
	if filters.Platform, ok = platformParam(c); !ok {
		return
	}
	if s := c.Query("status"); s != "" {
		status, valid := models.ParseStatus(s)
		if !valid {
			sendError(c, http.StatusBadRequest, "Invalid request", "unknown status", map[string]any{"status": s})
			return
		}
		filters.Status = status
	}

	contests, total, err := h.query.List(c.Request.Context(), filters)
	if err != nil {
		sendStoreError(c, h.logger, err, "contests")
		return
	}

	c.JSON(http.StatusOK, ContestListResponse{
		Items: contests,
		PaginatedResponse: PaginatedResponse{
			Count:  len(contests),
			Total:  total,
			Limit:  filters.PageLimit(),
			Offset: filters.Offset,
		},
	})
}

// Upcoming handles GET /api/contests/upcoming.
func (h *ContestHandler) Upcoming(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	views, err := h.query.Upcoming(c.Request.Context(), service.UpcomingFilter{
		Platform: platform,
		Search:   strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		sendStoreError(c, h.logger, err, "upcoming contests")
		return
	}

	c.JSON(http.StatusOK, UpcomingResponse{Items: views, Count: len(views)})
}

// Get handles GET /api/contests/:contestId.
func (h *ContestHandler) Get(c *gin.Context) {
	view, err := h.query.ByCanonicalID(c.Request.Context(), c.Param("contestId"))
	if err != nil {
		sendStoreError(c, h.logger, err, "contest")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Solutions handles GET /api/contests/:contestId/solutions.
func (h *ContestHandler) Solutions(c *gin.Context) {
	solution, err := h.query.Solutions(c.Request.Context(), c.Param("contestId"))
	if err != nil {
		sendStoreError(c, h.logger, err, "solution")
		return
	}
	c.JSON(http.StatusOK, solution)
}

// Vote handles PUT /api/solutions/:id/vote.
func (h *ContestHandler) Vote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request", "invalid solution id", nil)
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request", "voteType must be upvote or downvote", nil)
		return
	}

	votes, err := h.query.Vote(c.Request.Context(), id, req.VoteType)
	if err != nil {
		sendStoreError(c, h.logger, err, "solution")
		return
	}
	c.JSON(http.StatusOK, votes)
}

func platformParam(c *gin.Context) (models.Platform, bool) {
	raw := c.Query("platform")
	if raw == "" {
		return "", true
	}
	p, ok := models.ParsePlatform(raw)
	if !ok {
		sendError(c, http.StatusBadRequest, "Invalid request", "unknown platform", map[string]any{"platform": raw})
		return "", false
	}
	return p, true
}
