package dto

import (
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// RunOverrides replaces engine settings for a single run.
type RunOverrides struct {
	MaxAttempts    *int   `json:"maxAttempts" validate:"omitempty,min=1,max=100"`
	RoundBudget    *int   `json:"roundBudget" validate:"omitempty,min=0,max=10000"`
	Seed           *int64 `json:"seed"`
	BacktrackLimit *int   `json:"backtrackLimit" validate:"omitempty,min=0,max=8"`
	AllowPartial   *bool  `json:"allowPartial"`
}

// CreateRunRequest starts an asynchronous scheduling run over stored data.
type CreateRunRequest struct {
	PlanIDs   []string     `json:"planIds" validate:"required,min=1,dive,required"`
	Overrides RunOverrides `json:"overrides"`
	// RequestedBy is the token subject, filled in by the handler.
	RequestedBy string `json:"-"`
}

// RunAccepted is returned when a run has been queued.
type RunAccepted struct {
	RunID     string `json:"runId"`
	State     string `json:"state"`
	StatusURL string `json:"statusUrl"`
}

// RunResponse describes a run and, once finished, its schedule.
type RunResponse struct {
	RunID      string                `json:"runId"`
	State      string                `json:"state"`
	PlanIDs    []string              `json:"planIds"`
	CreatedAt  time.Time             `json:"createdAt"`
	StartedAt  *time.Time            `json:"startedAt,omitempty"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
	Progress   *models.ProgressEvent `json:"progress,omitempty"`
	Schedule   *models.Schedule      `json:"schedule,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// ValidateDatasetRequest selects the stored plans to check. Empty means every plan.
type ValidateDatasetRequest struct {
	PlanIDs []string `json:"planIds" validate:"omitempty,dive,required"`
}

// ValidationIssue is one finding of a dataset check.
type ValidationIssue struct {
	Entity  string `json:"entity"`
	ID      string `json:"id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationReport lists blocking errors and advisory warnings for a dataset.
type ValidationReport struct {
	Valid    bool              `json:"valid"`
	Blocks   int               `json:"blocks"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// ExportRequest selects the export format and an optional study plan filter.
type ExportRequest struct {
	Format string `form:"format" validate:"required,oneof=csv pdf xlsx json"`
	PlanID string `form:"planId"`
}

// ExportResponse points to a rendered export.
type ExportResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}
