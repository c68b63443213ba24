package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type datasetValidator interface {
	Validate(ctx context.Context, req dto.ValidateDatasetRequest) (*dto.ValidationReport, error)
}

// ValidationHandler checks stored scheduling data.
type ValidationHandler struct {
	service datasetValidator
}

// NewValidationHandler constructs the handler.
func NewValidationHandler(svc datasetValidator) *ValidationHandler {
	return &ValidationHandler{service: svc}
}

// Validate godoc
// @Summary Validate stored scheduling data
// @Description Reports blocking errors and warnings for the given plans. An empty body checks every plan.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.ValidateDatasetRequest false "Plans to check"
// @Success 200 {object} response.Envelope
// @Router /schedules/validate [post]
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req dto.ValidateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validation payload"))
		return
	}
	report, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
