package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newTestConstructive(t *testing.T, cfg Config, in Input) *constructive {
	t.Helper()
	blocks, err := GenerateBlocks(cfg.Grid, in.Plans, in.Staff, in.Facilities)
	require.NoError(t, err)
	engine := NewConstraintEngine(cfg.Grid, cfg.Weights, in.Staff, in.Facilities)
	return newConstructive(cfg, engine, blocks, in.Facilities, len(in.Plans), NewReporter(), zap.NewNop())
}

// displacementInput has l2 pinned to the first period, which the first lecture
// of the same plan takes when placed first.
func displacementInput() Input {
	return Input{
		Plans: []models.StudyPlan{{
			ID: "p",
			Courses: []models.Course{
				course("a", 10, lecture("l1", 1, 1)),
				course("b", 10, lecture("l2", 1, 1)),
			},
		}},
		Staff: []models.Staff{
			{ID: "l1", Preferred: []models.Window{{Day: 0, Start: 0, End: 1}}},
			{ID: "l2", Availability: []models.Window{{Day: 0, Start: 0, End: 1}}},
		},
		Facilities: []models.Facility{hall("h", 10)},
	}
}

func TestConstructiveRepairDisplacesBlocker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid = models.Grid{Days: 1, PeriodsPerDay: 2}
	c := newTestConstructive(t, cfg, displacementInput())

	res := c.attempt(context.Background(), 1, []int{0, 1})

	assert.Empty(t, res.conflicts)
	require.Equal(t, 2, res.tt.Placed())
	a, _ := res.tt.Assignment(0)
	b, _ := res.tt.Assignment(1)
	assert.Equal(t, 1, a.Start)
	assert.Equal(t, 0, b.Start)
}

func TestConstructiveWithoutBacktrackingReportsBlocker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Grid = models.Grid{Days: 1, PeriodsPerDay: 2}
	cfg.BacktrackLimit = 0
	c := newTestConstructive(t, cfg, displacementInput())

	res := c.attempt(context.Background(), 1, []int{0, 1})

	require.Len(t, res.conflicts, 1)
	assert.Equal(t, "p/b/lecture/g1/1", res.conflicts[0].BlockID)
	assert.Equal(t, models.ReasonFacilityBusy, res.conflicts[0].Reason)
	assert.Equal(t, []string{"p/a/lecture/g1/1"}, res.conflicts[0].RelatedBlocks)
	a, _ := res.tt.Assignment(0)
	assert.Equal(t, 0, a.Start)
}

func TestConstructiveOrderMostConstrainedFirst(t *testing.T) {
	in := Input{
		Plans: []models.StudyPlan{{
			ID: "p",
			Courses: []models.Course{
				course("free", 10, lecture("relaxed", 1, 1)),
				course("tight", 10, lecture("busy", 1, 1)),
				course("long", 10, lecture("relaxed", 1, 3)),
				course("lab", 10, lab("relaxed", 1, 1)),
			},
		}},
		Staff: []models.Staff{
			{ID: "relaxed"},
			{ID: "busy", Availability: []models.Window{{Day: 0, Start: 0, End: 2}}},
		},
		Facilities: []models.Facility{hall("h1", 10), hall("h2", 10), labRoom("l", 10)},
	}
	c := newTestConstructive(t, DefaultConfig(), in)

	order := c.order()
	ids := make([]string, len(order))
	for i, index := range order {
		ids[i] = c.blocks[index].CourseID
	}
	// busy has the least slack; among relaxed blocks the lab has the smallest
	// pool, then the longer lecture goes first.
	assert.Equal(t, []string{"tight", "lab", "long", "free"}, ids)
}

func TestConstructivePerturbStaysInsideBands(t *testing.T) {
	c := newTestConstructive(t, DefaultConfig(), contendedInput())
	base := c.order()

	for i := 0; i < 10; i++ {
		perturbed := c.perturb(base)
		require.Len(t, perturbed, len(base))
		assert.ElementsMatch(t, base, perturbed)
		for pos := range base {
			assert.Equal(t, c.keys[base[pos]], c.keys[perturbed[pos]], "position %d left its band", pos)
		}
	}
}

func TestConstructiveCandidatesRespectStaticConstraints(t *testing.T) {
	in := endToEndInput()
	in.Staff[0].Availability = []models.Window{{Day: 1, Start: 2, End: 5}}
	in.Facilities = append(in.Facilities, hall("tiny", 10), labRoom("lab", 50))
	in.Plans[0].Courses[0].Sessions[0].Type = models.SessionTutorial
	c := newTestConstructive(t, DefaultConfig(), in)

	// tutorial: hall first as the exact match, then the lab superset; tiny is too small.
	var facilities []string
	for _, cand := range c.candidates[0] {
		assert.Equal(t, 1, cand.day)
		assert.GreaterOrEqual(t, cand.start, 2)
		assert.LessOrEqual(t, cand.start+2, 5)
		if len(facilities) < 2 {
			facilities = append(facilities, cand.facility.ID)
		}
	}
	assert.Len(t, c.candidates[0], 4)
	assert.Equal(t, []string{"h1", "lab"}, facilities)
}
