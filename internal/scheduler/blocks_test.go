package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestGenerateBlocksExpandsWeeklyCount(t *testing.T) {
	in := endToEndInput()
	in.Plans[0].Courses[0].Sessions = append(in.Plans[0].Courses[0].Sessions, lab("lecturer-1", 2, 3))

	blocks, err := GenerateBlocks(DefaultConfig().Grid, in.Plans, in.Staff, in.Facilities)
	require.NoError(t, err)

	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
		assert.Equal(t, i, b.Index)
	}
	assert.Equal(t, []string{
		"cs-1/algo/lecture/g1/1",
		"cs-1/algo/lab/g1/1",
		"cs-1/algo/lab/g1/2",
		"cs-1/calc/lecture/g1/1",
	}, ids)
	assert.Equal(t, models.FacilityLab, blocks[1].FacilityType)
	assert.Equal(t, 3, blocks[1].Duration)
	assert.Equal(t, 2, blocks[2].Occurrence)
	assert.True(t, blocks[0].SingleGroup())
}

func TestGenerateBlocksSplitsGroups(t *testing.T) {
	plans := []models.StudyPlan{{
		ID: "p",
		Courses: []models.Course{{
			ID:        "chem",
			GroupSize: 50,
			Sessions: []models.SessionRequirement{{
				Type:        models.SessionLab,
				WeeklyCount: 2,
				Duration:    2,
				Staff:       []models.StaffAssignment{{StaffID: "s1", Groups: 2}, {StaffID: "s2"}},
			}},
		}},
	}}
	staff := []models.Staff{{ID: "s1"}, {ID: "s2"}}

	blocks, err := GenerateBlocks(DefaultConfig().Grid, plans, staff, nil)
	require.NoError(t, err)
	require.Len(t, blocks, 6)

	for _, b := range blocks {
		assert.Equal(t, 17, b.GroupSize)
		assert.Equal(t, 3, b.TotalGroups)
		assert.False(t, b.SingleGroup())
	}
	assert.Equal(t, "p/chem/lab/g1/1", blocks[0].ID)
	assert.Equal(t, "s1", blocks[0].StaffID)
	assert.Equal(t, "p/chem/lab/g2/2", blocks[3].ID)
	assert.Equal(t, "s1", blocks[3].StaffID)
	assert.Equal(t, "p/chem/lab/g3/1", blocks[4].ID)
	assert.Equal(t, "s2", blocks[4].StaffID)
}

func TestGenerateBlocksReportsEveryIssue(t *testing.T) {
	grid := DefaultConfig().Grid
	plans := []models.StudyPlan{
		{ID: "p", Courses: []models.Course{
			{ID: "c1", GroupSize: 0, Sessions: []models.SessionRequirement{{Type: "seminar", WeeklyCount: 1, Duration: 1}}},
			{ID: "c2", GroupSize: 10, Sessions: []models.SessionRequirement{{Type: models.SessionLecture, WeeklyCount: 0, Duration: 0}}},
			{ID: "c2", GroupSize: 10},
		}},
		{ID: "p"},
	}
	staff := []models.Staff{
		{ID: "s1", Availability: []models.Window{{Day: 6, Start: 0, End: 2}}},
		{ID: "s1", MaxDailyLoad: -1},
	}
	facilities := []models.Facility{{ID: "f1", Type: "garage", Capacity: 0}}

	_, err := GenerateBlocks(grid, plans, staff, facilities)
	require.Error(t, err)

	var incomplete *IncompleteDataError
	require.True(t, errors.As(err, &incomplete))

	fields := map[string]bool{}
	for _, issue := range incomplete.Issues {
		fields[issue.Entity+"."+issue.Field] = true
	}
	for _, want := range []string{
		"staff.availability",
		"staff.id",
		"staff.maxLoad",
		"facility.type",
		"facility.capacity",
		"study_plan.id",
		"study_plan.courses",
		"course.id",
		"course.groupSize",
		"course.sessions",
		"course.sessions.type",
		"course.sessions.weeklyCount",
		"course.sessions.duration",
		"course.sessions.staff",
	} {
		assert.True(t, fields[want], "missing issue for %s", want)
	}
	assert.Contains(t, err.Error(), "incomplete data")
	assert.Contains(t, err.Error(), "more")
}

func TestValidateInputAcceptsCompleteData(t *testing.T) {
	in := contendedInput()
	assert.Empty(t, ValidateInput(DefaultConfig().Grid, in.Plans, in.Staff, in.Facilities))
}

func TestValidateInputRequiresPlans(t *testing.T) {
	issues := ValidateInput(DefaultConfig().Grid, nil, nil, nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "study_plan", issues[0].Entity)
}
