// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contest-tracker/contest-aggregator-go/internal/db"
	"github.com/contest-tracker/contest-aggregator-go/internal/db/repository"
)

const (
	defaultLimit = repository.DefaultListLimit
	maxLimit     = 200
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// PaginatedResponse contains common pagination metadata.
type PaginatedResponse struct {
	Count  int `json:"count"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func sendError(c *gin.Context, statusCode int, errText string, message string, details map[string]any) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		Error:   errText,
		Message: message,
		Details: details,
	})
}

// sendStoreError maps repository errors onto HTTP statuses.
func sendStoreError(c *gin.Context, logger *zap.Logger, err error, what string) {
	switch {
	case db.IsNotFound(err):
		sendError(c, http.StatusNotFound, "Not found", what+" not found", nil)
	case errors.Is(err, db.ErrCheckViolation), errors.Is(err, db.ErrForeignKeyViolation):
		sendError(c, http.StatusBadRequest, "Invalid request", err.Error(), nil)
	default:
		logger.Error("Store request failed",
			zap.String("path", c.FullPath()),
			zap.String("resource", what),
			zap.Error(err),
		)
		sendError(c, http.StatusInternalServerError, "Internal error", "failed to load "+what, nil)
	}
}

func parseLimit(c *gin.Context) int {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return defaultLimit
	}

	if limit > maxLimit {
		return maxLimit
	}

	return limit
}

func parseOffset(c *gin.Context) int {
	offsetStr := c.Query("offset")
	if offsetStr == "" {
		return 0
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		return 0
	}

	return offset
}
