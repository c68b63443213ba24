package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type scheduleExporter interface {
	Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportResponse, error)
	Resolve(token string) (*service.ExportFile, error)
}

// ExportHandler renders finished schedules and serves the files.
type ExportHandler struct {
	service scheduleExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc scheduleExporter) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Export the schedule of a finished run
// @Tags Exports
// @Produce json
// @Param id path string true "Run ID"
// @Param format query string true "csv, pdf, xlsx or json"
// @Param planId query string false "Restrict the export to one study plan"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/runs/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	result, err := h.service.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result)
}

// Download godoc
// @Summary Download an export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /schedules/exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, err := h.service.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", file.ContentType)
	c.FileAttachment(file.Path, file.Name)
}
