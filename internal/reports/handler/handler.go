// Package handler exposes report retrieval and regeneration over HTTP.
package handler

import (
	"net/http"

	"mantaqc_backend/internal/adapters/storage"
	"mantaqc_backend/internal/reports"
	"mantaqc_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for reports.
type Handler struct {
	pipeline  *reports.Pipeline
	repo      *reports.Repository
	artifacts storage.ArtifactStore
}

const msgInvalidID = "invalid report id"

// New creates a new reports handler.
func New(pipeline *reports.Pipeline, repo *reports.Repository, artifacts storage.ArtifactStore) *Handler {
	return &Handler{pipeline: pipeline, repo: repo, artifacts: artifacts}
}

// Name identifies the module for logging.
func (h *Handler) Name() string { return "reports" }

// RegisterRoutes mounts the report endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reports/:id", h.GetReport)
	rg.GET("/reports/:id/download", h.DownloadReport)
	rg.POST("/reports/:id/regenerate", h.RegenerateReport)
	rg.GET("/checks/:id/report-events", h.ListEvents)
}

// GetReport returns a report row.
// GET /api/v1/reports/:id
func (h *Handler) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	report, err := h.repo.GetReport(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// DownloadReport returns a presigned URL for the report artifact.
// GET /api/v1/reports/:id/download
func (h *Handler) DownloadReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	report, err := h.repo.GetReport(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	if report.Status != reports.ReportReady || report.FileKey == nil {
		httpkit.Error(c, http.StatusConflict, "report is not ready", nil)
		return
	}
	url, err := h.artifacts.DownloadURL(c.Request.Context(), *report.FileKey, storage.DownloadURLTTL)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"url": url})
}

type regenerateRequest struct {
	TriggeredBy   string `json:"triggered_by"`
	TriggerAlerts bool   `json:"trigger_alerts"`
}

// RegenerateReport reruns the pipeline for an existing report.
// POST /api/v1/reports/:id/regenerate
func (h *Handler) RegenerateReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "system"
	}

	report, err := h.pipeline.Regenerate(c.Request.Context(), id, reports.Author{Email: req.TriggeredBy}, req.TriggerAlerts)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ListEvents returns the generation history of a check.
// GET /api/v1/checks/:id/report-events
func (h *Handler) ListEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid check id", nil)
		return
	}
	events, err := h.repo.ListEventsForCheck(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, events)
}
