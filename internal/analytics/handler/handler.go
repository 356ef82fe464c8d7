// Package handler exposes period summaries over HTTP.
package handler

import (
	"net/http"
	"time"

	"mantaqc_backend/internal/analytics"
	"mantaqc_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for analytics.
type Handler struct {
	svc *analytics.Service
}

// New creates a new analytics handler.
func New(svc *analytics.Service) *Handler {
	return &Handler{svc: svc}
}

// Name identifies the module for logging.
func (h *Handler) Name() string { return "analytics" }

// RegisterRoutes mounts the analytics endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analytics/summary", h.PeriodSummary)
}

type summaryQuery struct {
	Granularity  string `form:"granularity"`
	Start        string `form:"start" binding:"required"`
	End          string `form:"end" binding:"required"`
	BrigadeID    string `form:"brigade_id"`
	DepartmentID string `form:"department_id"`
	AuthorID     string `form:"author_id"`
}

// PeriodSummary computes report counts, score averages, and deltas for a
// date window.
// GET /api/v1/analytics/summary
func (h *Handler) PeriodSummary(c *gin.Context) {
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	start, err := time.Parse("2006-01-02", q.Start)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid start date", nil)
		return
	}
	end, err := time.Parse("2006-01-02", q.End)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid end date", nil)
		return
	}
	if end.Before(start) {
		httpkit.Error(c, http.StatusBadRequest, "end precedes start", nil)
		return
	}

	granularity := analytics.Granularity(q.Granularity)
	switch granularity {
	case "":
		granularity = analytics.GranularityDay
	case analytics.GranularityDay, analytics.GranularityWeek, analytics.GranularityMonth:
	default:
		httpkit.Error(c, http.StatusBadRequest, "invalid granularity", nil)
		return
	}

	var filters analytics.Filters
	if q.BrigadeID != "" {
		id, err := uuid.Parse(q.BrigadeID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid brigade id", nil)
			return
		}
		filters.BrigadeID = &id
	}
	if q.DepartmentID != "" {
		filters.DepartmentID = &q.DepartmentID
	}
	if q.AuthorID != "" {
		id, err := uuid.Parse(q.AuthorID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid author id", nil)
			return
		}
		filters.AuthorID = &id
	}

	summary, err := h.svc.ComputePeriodSummary(c.Request.Context(), granularity, start, end, filters)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}
