package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type scheduleRunner interface {
	Submit(ctx context.Context, req dto.CreateRunRequest) (*dto.RunAccepted, error)
	Get(ctx context.Context, id string) (*dto.RunResponse, error)
	Progress(ctx context.Context, id string) (*models.ProgressEvent, error)
	Events(ctx context.Context, id string) ([]models.ProgressEvent, error)
	Cancel(ctx context.Context, id string) (*dto.RunResponse, error)
}

// ScheduleGeneratorHandler exposes scheduling run endpoints.
type ScheduleGeneratorHandler struct {
	service scheduleRunner
}

// NewScheduleGeneratorHandler constructs the handler.
func NewScheduleGeneratorHandler(svc scheduleRunner) *ScheduleGeneratorHandler {
	return &ScheduleGeneratorHandler{service: svc}
}

// Create godoc
// @Summary Queue a scheduling run
// @Description Loads the stored data of the given study plans and schedules them in the background.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.CreateRunRequest true "Run payload"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/runs [post]
func (h *ScheduleGeneratorHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	req.RequestedBy = subjectFromContext(c)
	accepted, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", accepted.StatusURL)
	response.Accepted(c, accepted)
}

// Get godoc
// @Summary Get a scheduling run
// @Description Returns the run state and, once finished, the schedule.
// @Tags Scheduler
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/runs/{id} [get]
func (h *ScheduleGeneratorHandler) Get(c *gin.Context) {
	run, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, run)
}

// Progress godoc
// @Summary Latest progress event of a run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/runs/{id}/progress [get]
func (h *ScheduleGeneratorHandler) Progress(c *gin.Context) {
	event, err := h.service.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}

// Events godoc
// @Summary Progress history of a run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/runs/{id}/events [get]
func (h *ScheduleGeneratorHandler) Events(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, events, map[string]interface{}{"count": len(events)})
}

// Cancel godoc
// @Summary Cancel a queued or running run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/runs/{id}/cancel [post]
func (h *ScheduleGeneratorHandler) Cancel(c *gin.Context) {
	run, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}
