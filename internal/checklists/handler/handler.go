// Package handler exposes the check lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mantaqc_backend/internal/checklists"
	"mantaqc_backend/internal/reports"
	"mantaqc_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportGenerator triggers report generation for a completed check.
type ReportGenerator interface {
	Generate(ctx context.Context, checkID uuid.UUID, author reports.Author, eventType reports.EventType, triggerAlerts bool) (reports.Report, error)
}

// Handler handles HTTP requests for checks.
type Handler struct {
	svc       *checklists.Service
	generator ReportGenerator
}

const msgInvalidID = "invalid check id"

// New creates a new checks handler.
func New(svc *checklists.Service, generator ReportGenerator) *Handler {
	return &Handler{svc: svc, generator: generator}
}

// Name identifies the module for logging.
func (h *Handler) Name() string { return "checklists" }

// RegisterRoutes mounts the check endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/checks/:id/complete", h.CompleteCheck)
	rg.POST("/templates/:id/versions", h.CreateTemplateVersion)
}

type createVersionRequest struct {
	Schema    json.RawMessage `json:"schema" binding:"required"`
	CreatedBy string          `json:"created_by"`
}

// CreateTemplateVersion freezes the current schema and makes the submitted
// one current.
// POST /api/v1/templates/:id/versions
func (h *Handler) CreateTemplateVersion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid template id", nil)
		return
	}

	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}

	version, err := h.svc.CreateTemplateVersion(c.Request.Context(), id, req.Schema, createdBy)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, version)
}

type completeCheckRequest struct {
	TriggeredBy   string `json:"triggered_by"`
	TriggerAlerts *bool  `json:"trigger_alerts"`
}

type completeCheckResponse struct {
	CheckID    uuid.UUID      `json:"check_id"`
	Status     string         `json:"status"`
	FinishedAt *time.Time     `json:"finished_at"`
	Report     reports.Report `json:"report"`
}

// CompleteCheck validates and finishes a check, then generates its report.
// POST /api/v1/checks/:id/complete
func (h *Handler) CompleteCheck(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req completeCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "system"
	}
	triggerAlerts := true
	if req.TriggerAlerts != nil {
		triggerAlerts = *req.TriggerAlerts
	}

	ctx := c.Request.Context()
	check, err := h.svc.CompleteCheck(ctx, id, time.Now())
	if httpkit.HandleError(c, err) {
		return
	}

	report, err := h.generator.Generate(ctx, check.ID, reports.Author{Email: triggeredBy}, reports.EventManual, triggerAlerts)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, completeCheckResponse{
		CheckID:    check.ID,
		Status:     string(check.Status),
		FinishedAt: check.FinishedAt,
		Report:     report,
	})
}
