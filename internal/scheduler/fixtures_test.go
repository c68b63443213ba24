package scheduler

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// --- Fixtures ---

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func lecture(staffID string, weekly, duration int) models.SessionRequirement {
	return models.SessionRequirement{
		Type:        models.SessionLecture,
		WeeklyCount: weekly,
		Duration:    duration,
		Staff:       []models.StaffAssignment{{StaffID: staffID}},
	}
}

func lab(staffID string, weekly, duration int) models.SessionRequirement {
	return models.SessionRequirement{
		Type:        models.SessionLab,
		WeeklyCount: weekly,
		Duration:    duration,
		Staff:       []models.StaffAssignment{{StaffID: staffID}},
	}
}

func course(id string, groupSize int, sessions ...models.SessionRequirement) models.Course {
	return models.Course{ID: id, Name: "Course " + id, GroupSize: groupSize, Sessions: sessions}
}

func hall(id string, capacity int) models.Facility {
	return models.Facility{ID: id, Name: "Hall " + id, Type: models.FacilityHall, Capacity: capacity}
}

func labRoom(id string, capacity int) models.Facility {
	return models.Facility{ID: id, Name: "Lab " + id, Type: models.FacilityLab, Capacity: capacity}
}

func specialistLab(id string, capacity int) models.Facility {
	f := labRoom(id, capacity)
	f.Specialist = true
	return f
}

// endToEndInput is one plan with two courses that each need one 2-period lecture,
// taught by one always-available lecturer in one matching hall.
func endToEndInput() Input {
	return Input{
		Plans: []models.StudyPlan{{
			ID:   "cs-1",
			Name: "Computer Science Year 1",
			Courses: []models.Course{
				course("algo", 30, lecture("lecturer-1", 1, 2)),
				course("calc", 30, lecture("lecturer-1", 1, 2)),
			},
		}},
		Staff:      []models.Staff{{ID: "lecturer-1", Name: "Dr. One"}},
		Facilities: []models.Facility{hall("h1", 30)},
	}
}

// contendedInput has two plans sharing lecturers, halls and a lab, with
// preferences so the optimizer has something to improve.
func contendedInput() Input {
	morning := []models.Window{}
	for day := 0; day < 5; day++ {
		morning = append(morning, models.Window{Day: day, Start: 0, End: 4})
	}
	return Input{
		Plans: []models.StudyPlan{
			{
				ID: "cs-1",
				Courses: []models.Course{
					course("algo", 30, lecture("l1", 2, 2), lab("t1", 1, 2)),
					course("calc", 60, lecture("l2", 2, 1)),
					{
						ID:        "prog",
						GroupSize: 60,
						Sessions: []models.SessionRequirement{{
							Type:        models.SessionLab,
							WeeklyCount: 1,
							Duration:    2,
							Staff:       []models.StaffAssignment{{StaffID: "t1", Groups: 2}, {StaffID: "t2"}},
						}},
					},
				},
			},
			{
				ID: "ee-1",
				Courses: []models.Course{
					course("circuits", 40, lecture("l1", 2, 2), models.SessionRequirement{
						Type: models.SessionTutorial, WeeklyCount: 1, Duration: 1,
						Staff: []models.StaffAssignment{{StaffID: "t2"}},
					}),
					course("signals", 40, lecture("l2", 1, 2)),
				},
			},
		},
		Staff: []models.Staff{
			{ID: "l1", Preferred: morning, MaxDailyLoad: 4},
			{ID: "l2", Availability: []models.Window{{Day: 0, Start: 0, End: 8}, {Day: 2, Start: 0, End: 8}, {Day: 4, Start: 2, End: 6}}},
			{ID: "t1", Preferred: morning, PreferenceWeight: 2},
			{ID: "t2", MaxWeeklyLoad: 10},
		},
		Facilities: []models.Facility{
			hall("h-large", 120),
			hall("h-small", 45),
			labRoom("lab-a", 30),
			labRoom("lab-b", 25),
		},
	}
}

// randomInput builds a valid input whose feasibility is left to chance.
func randomInput(rng *rand.Rand, grid models.Grid) Input {
	staffCount := 2 + rng.Intn(4)
	staff := make([]models.Staff, staffCount)
	for i := range staff {
		member := models.Staff{ID: fmt.Sprintf("s%d", i)}
		if rng.Intn(2) == 0 {
			for day := 0; day < grid.Days; day++ {
				if rng.Intn(3) == 0 {
					continue
				}
				start := rng.Intn(grid.PeriodsPerDay - 1)
				end := start + 1 + rng.Intn(grid.PeriodsPerDay-start)
				member.Availability = append(member.Availability, models.Window{Day: day, Start: start, End: end})
			}
		}
		if rng.Intn(3) == 0 {
			member.MaxDailyLoad = 2 + rng.Intn(4)
		}
		if rng.Intn(3) == 0 {
			member.Preferred = []models.Window{{Day: rng.Intn(grid.Days), Start: 0, End: grid.PeriodsPerDay / 2}}
		}
		staff[i] = member
	}

	facilityCount := 1 + rng.Intn(4)
	facilities := make([]models.Facility, facilityCount)
	for i := range facilities {
		facilityType := models.FacilityHall
		if rng.Intn(3) == 0 {
			facilityType = models.FacilityLab
		}
		facilities[i] = models.Facility{
			ID:       fmt.Sprintf("f%d", i),
			Type:     facilityType,
			Capacity: 20 + rng.Intn(80),
		}
		if facilityType == models.FacilityLab && rng.Intn(3) == 0 {
			facilities[i].Specialist = true
		}
		if rng.Intn(4) == 0 {
			facilities[i].Availability = []models.Window{{Day: rng.Intn(grid.Days), Start: 0, End: grid.PeriodsPerDay}}
		}
	}

	sessionTypes := []models.SessionType{models.SessionLecture, models.SessionLab, models.SessionTutorial}
	planCount := 1 + rng.Intn(3)
	plans := make([]models.StudyPlan, planCount)
	for p := range plans {
		plan := models.StudyPlan{ID: fmt.Sprintf("p%d", p)}
		for c := 0; c < 1+rng.Intn(4); c++ {
			crs := models.Course{ID: fmt.Sprintf("c%d", c), GroupSize: 10 + rng.Intn(90)}
			for _, st := range rng.Perm(len(sessionTypes))[:1+rng.Intn(2)] {
				crs.Sessions = append(crs.Sessions, models.SessionRequirement{
					Type:        sessionTypes[st],
					WeeklyCount: 1 + rng.Intn(2),
					Duration:    1 + rng.Intn(3),
					Staff: []models.StaffAssignment{{
						StaffID: staff[rng.Intn(staffCount)].ID,
						Groups:  rng.Intn(3),
					}},
				})
			}
			plan.Courses = append(plan.Courses, crs)
		}
		plans[p] = plan
	}
	return Input{Plans: plans, Staff: staff, Facilities: facilities}
}
