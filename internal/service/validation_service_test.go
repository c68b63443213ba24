package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

var testGrid = models.Grid{Days: 5, PeriodsPerDay: 8}

func warningFor(report *dto.ValidationReport, entity, id string) *dto.ValidationIssue {
	for i, w := range report.Warnings {
		if w.Entity == entity && w.ID == id {
			return &report.Warnings[i]
		}
	}
	return nil
}

func TestValidateDatasetClean(t *testing.T) {
	report := ValidateDataset(testGrid, sampleDataset())
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Blocks)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
}

func TestValidateDatasetErrors(t *testing.T) {
	dataset := sampleDataset()
	dataset.Facilities[0].Capacity = 0
	report := ValidateDataset(testGrid, dataset)
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, "facility", report.Errors[0].Entity)

	assert.False(t, ValidateDataset(testGrid, nil).Valid)
}

func TestValidateDatasetWarnings(t *testing.T) {
	dataset := sampleDataset()
	dataset.Staff[0].Availability = []models.Window{{Day: 0, Start: 0, End: 2}}
	dataset.Staff[0].MaxWeeklyLoad = 3
	dataset.Staff = append(dataset.Staff, models.Staff{ID: "idle", Name: "Idle"})
	dataset.Facilities = append(dataset.Facilities, models.Facility{ID: "lab-1", Name: "Lab", Type: models.FacilityLab, Capacity: 20})
	dataset.Plans[0].Courses[1].GroupSize = 80

	report := ValidateDataset(testGrid, dataset)
	require.True(t, report.Valid)

	availability := warningFor(report, "staff", "lecturer-1")
	require.NotNil(t, availability)
	assert.Contains(t, availability.Message, "available for 2")
	assert.NotNil(t, warningFor(report, "staff", "idle"))
	assert.NotNil(t, warningFor(report, "facility", "lab-1"))

	course := warningFor(report, "course", "cs-1/calc")
	require.NotNil(t, course)
	assert.Contains(t, course.Message, "exceeds every compatible facility")

	weekly := 0
	for _, w := range report.Warnings {
		if w.Field == "maxWeeklyLoad" {
			weekly++
		}
	}
	assert.Equal(t, 1, weekly)
}

func TestValidateDatasetSpecialistFacilities(t *testing.T) {
	dataset := sampleDataset()
	labSession := models.SessionRequirement{
		Type:        models.SessionLab,
		WeeklyCount: 1,
		Duration:    2,
		Staff:       []models.StaffAssignment{{StaffID: "lecturer-1"}},
	}
	preferred := labSession
	preferred.PreferredFacilities = []string{"bio-lab"}
	dataset.Plans[0].Courses = append(dataset.Plans[0].Courses,
		models.Course{ID: "chem", Name: "Chemistry", GroupSize: 20, Sessions: []models.SessionRequirement{labSession}},
		models.Course{ID: "bio", Name: "Biology", GroupSize: 40, Sessions: []models.SessionRequirement{preferred}},
	)
	dataset.Facilities = append(dataset.Facilities,
		models.Facility{ID: "chem-lab", Name: "Chemistry Lab", Type: models.FacilityLab, Capacity: 30, Specialist: true},
		models.Facility{ID: "bio-lab", Name: "Biology Lab", Type: models.FacilityLab, Capacity: 25, Specialist: true},
	)

	report := ValidateDataset(testGrid, dataset)
	require.True(t, report.Valid)

	chem := warningFor(report, "course", "cs-1/chem")
	require.NotNil(t, chem)
	assert.Contains(t, chem.Message, "reserved for specialist courses")

	bio := warningFor(report, "course", "cs-1/bio")
	require.NotNil(t, bio)
	assert.Equal(t, "sessions.preferredFacilities", bio.Field)
	assert.Contains(t, bio.Message, "exceeds every preferred facility")

	assert.NotNil(t, warningFor(report, "facility", "chem-lab"))
}

func TestValidationServiceLoadsPlans(t *testing.T) {
	loader := &stubLoader{dataset: sampleDataset()}
	svc := NewValidationService(loader, testGrid, nil, zap.NewNop())

	report, err := svc.Validate(context.Background(), dto.ValidateDatasetRequest{PlanIDs: []string{"cs-1"}})
	require.NoError(t, err)
	assert.True(t, report.Valid)

	_, err = svc.Validate(context.Background(), dto.ValidateDatasetRequest{PlanIDs: []string{"nope"}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestValidationServiceUsesDatasetGrid(t *testing.T) {
	dataset := sampleDataset()
	dataset.Grid = &models.Grid{Days: 1, PeriodsPerDay: 8}
	dataset.Staff[0].Availability = []models.Window{{Day: 3, Start: 0, End: 8}}
	svc := NewValidationService(&stubLoader{dataset: dataset}, testGrid, nil, nil)

	report, err := svc.Validate(context.Background(), dto.ValidateDatasetRequest{})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "availability", report.Errors[0].Field)
}
