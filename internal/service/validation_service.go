package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// ValidationService checks stored datasets before they are scheduled.
type ValidationService struct {
	data      datasetLoader
	grid      models.Grid
	validator *validator.Validate
	logger    *zap.Logger
}

// NewValidationService constructs a ValidationService using the configured grid.
func NewValidationService(data datasetLoader, grid models.Grid, validate *validator.Validate, logger *zap.Logger) *ValidationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{data: data, grid: grid, validator: validate, logger: logger}
}

// Validate loads the requested plans and reports what would stop or hurt a run.
func (s *ValidationService) Validate(ctx context.Context, req dto.ValidateDatasetRequest) (*dto.ValidationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	dataset, err := loadDataset(ctx, s.data, req.PlanIDs)
	if err != nil {
		return nil, err
	}
	grid := s.grid
	if dataset.Grid != nil {
		grid = *dataset.Grid
	}
	report := ValidateDataset(grid, dataset)
	s.logger.Debug("dataset validated",
		zap.Bool("valid", report.Valid),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

// ValidateDataset returns the blocking issues of a dataset and, when there are
// none, warnings about data that is valid but likely to produce conflicts.
func ValidateDataset(grid models.Grid, dataset *models.Dataset) *dto.ValidationReport {
	report := &dto.ValidationReport{Errors: []dto.ValidationIssue{}, Warnings: []dto.ValidationIssue{}}
	if dataset == nil {
		report.Errors = append(report.Errors, dto.ValidationIssue{Entity: "dataset", Message: "dataset is empty"})
		return report
	}

	blocks, err := scheduler.GenerateBlocks(grid, dataset.Plans, dataset.Staff, dataset.Facilities)
	if err != nil {
		var incomplete *scheduler.IncompleteDataError
		if errors.As(err, &incomplete) {
			report.Errors = lo.Map(incomplete.Issues, func(issue scheduler.DataIssue, _ int) dto.ValidationIssue {
				return dto.ValidationIssue{Entity: issue.Entity, ID: issue.ID, Field: issue.Field, Message: issue.Message}
			})
		} else {
			report.Errors = append(report.Errors, dto.ValidationIssue{Entity: "dataset", Message: err.Error()})
		}
		return report
	}

	report.Valid = true
	report.Blocks = len(blocks)
	warn := func(entity, id, field, format string, args ...any) {
		report.Warnings = append(report.Warnings, dto.ValidationIssue{Entity: entity, ID: id, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	demand := make(map[string]int, len(dataset.Staff))
	for _, b := range blocks {
		demand[b.StaffID] += b.Duration
	}

	for _, member := range dataset.Staff {
		available := lo.CountBy(grid.Slots(), func(slot models.TimeSlot) bool {
			return models.WindowsCover(member.Availability, slot)
		})
		switch {
		case available == 0:
			warn("staff", member.ID, "availability", "availability windows cover no slot of the grid")
		case demand[member.ID] > available:
			warn("staff", member.ID, "availability", "teaches %d periods but is available for %d", demand[member.ID], available)
		}
		if member.MaxWeeklyLoad > 0 && demand[member.ID] > member.MaxWeeklyLoad {
			warn("staff", member.ID, "maxWeeklyLoad", "teaches %d periods, above the weekly limit of %d", demand[member.ID], member.MaxWeeklyLoad)
		}
		if _, ok := demand[member.ID]; !ok {
			warn("staff", member.ID, "id", "not assigned to any session")
		}
	}

	fits := func(b models.Block, f models.Facility) bool {
		ok, _ := b.SessionType.Accepts(f.Type)
		return ok && b.Admits(f) && f.Capacity >= b.GroupSize
	}

	for _, facility := range dataset.Facilities {
		if !lo.SomeBy(blocks, func(b models.Block) bool { return fits(b, facility) }) {
			warn("facility", facility.ID, "type", "no session can use this %s with capacity %d", facility.Type, facility.Capacity)
		}
	}

	seen := make(map[string]bool)
	for _, b := range blocks {
		key := fmt.Sprintf("%s/%s/%s", b.PlanID, b.CourseID, b.SessionType)
		if seen[key] {
			continue
		}
		seen[key] = true
		if lo.SomeBy(dataset.Facilities, func(f models.Facility) bool { return fits(b, f) }) {
			continue
		}
		compatible := lo.Filter(dataset.Facilities, func(f models.Facility, _ int) bool {
			ok, _ := b.SessionType.Accepts(f.Type)
			return ok
		})
		id := b.PlanID + "/" + b.CourseID
		switch {
		case len(compatible) == 0:
			warn("course", id, "sessions", "no facility accepts %s sessions", b.SessionType)
		case !lo.SomeBy(compatible, b.Admits):
			warn("course", id, "sessions", "every facility accepting %s sessions is reserved for specialist courses", b.SessionType)
		case len(b.PreferredFacilities) > 0:
			warn("course", id, "sessions.preferredFacilities", "%s group of %d exceeds every preferred facility", b.SessionType, b.GroupSize)
		default:
			warn("course", id, "groupSize", "%s group of %d exceeds every compatible facility", b.SessionType, b.GroupSize)
		}
	}

	return report
}
