// Package handler exposes schedule operations over HTTP.
package handler

import (
	"net/http"
	"time"

	"mantaqc_backend/internal/schedules"
	"mantaqc_backend/platform/httpkit"
	"mantaqc_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for schedules.
type Handler struct {
	repo *schedules.Repository
	val  *validator.Validator
}

// New creates a new schedules handler.
func New(repo *schedules.Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

// Name identifies the module for logging.
func (h *Handler) Name() string { return "schedules" }

// RegisterRoutes mounts the schedule endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/schedules", h.CreateSchedule)
	rg.GET("/schedules/:id", h.GetSchedule)
	rg.POST("/schedules/:id/spawn", h.SpawnCheck)
}

type createScheduleRequest struct {
	Name          string      `json:"name" validate:"required,min=1,max=255"`
	TemplateID    uuid.UUID   `json:"template_id" validate:"required"`
	InspectorPool []uuid.UUID `json:"inspector_pool"`
	BrigadePool   []uuid.UUID `json:"brigade_pool"`
	IntervalDays  int         `json:"interval_days" validate:"gte=0,lte=365"`
	NextRunAt     *time.Time  `json:"next_run_at"`
	Enabled       *bool       `json:"enabled"`
}

// CreateSchedule registers a new automation schedule.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	templateID := req.TemplateID
	schedule, err := h.repo.Create(c.Request.Context(), schedules.Schedule{
		Name:          req.Name,
		TemplateID:    &templateID,
		InspectorPool: req.InspectorPool,
		BrigadePool:   req.BrigadePool,
		IntervalDays:  req.IntervalDays,
		NextRunAt:     req.NextRunAt,
		Enabled:       enabled,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, schedule)
}

// GetSchedule returns a schedule with its rotation cursors.
// GET /api/v1/schedules/:id
func (h *Handler) GetSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid schedule id", nil)
		return
	}
	schedule, err := h.repo.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, schedule)
}

type spawnRequest struct {
	InspectorID *uuid.UUID `json:"inspector_id"`
	BrigadeID   *uuid.UUID `json:"brigade_id"`
}

// SpawnCheck materializes the schedule's next check, honoring overrides.
// POST /api/v1/schedules/:id/spawn
func (h *Handler) SpawnCheck(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid schedule id", nil)
		return
	}

	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	check, err := h.repo.SpawnCheck(c.Request.Context(), id, req.InspectorID, req.BrigadeID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, check)
}
