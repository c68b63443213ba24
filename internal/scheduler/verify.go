package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Verify re-checks every hard constraint of a finished schedule from scratch and
// returns one message per violation. An empty result means the schedule is valid.
func Verify(schedule *models.Schedule, staff []models.Staff, facilities []models.Facility) []string {
	if schedule == nil {
		return []string{"schedule is nil"}
	}
	var violations []string
	report := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	blocks := make(map[string]models.Block, len(schedule.Blocks))
	for _, b := range schedule.Blocks {
		blocks[b.ID] = b
	}
	staffByID := make(map[string]models.Staff, len(staff))
	for _, s := range staff {
		staffByID[s.ID] = s
	}
	facilityByID := make(map[string]models.Facility, len(facilities))
	for _, f := range facilities {
		facilityByID[f.ID] = f
	}

	seen := make(map[string]bool, len(schedule.Assignments))
	weekly := make(map[string]int)
	daily := make(map[string]map[int]int)
	grid := schedule.Grid

	for _, a := range schedule.Assignments {
		block, ok := blocks[a.BlockID]
		if !ok {
			report("assignment for unknown block %s", a.BlockID)
			continue
		}
		if seen[a.BlockID] {
			report("block %s assigned more than once", a.BlockID)
		}
		seen[a.BlockID] = true

		if a.Duration != block.Duration {
			report("block %s assigned %d periods, needs %d", a.BlockID, a.Duration, block.Duration)
		}
		if grid.Run(a.Day, a.Start, a.Duration) == nil {
			report("block %s leaves the grid at day %d period %d", a.BlockID, a.Day, a.Start)
		}
		if a.StaffID != block.StaffID {
			report("block %s taught by %s instead of %s", a.BlockID, a.StaffID, block.StaffID)
		}

		member, ok := staffByID[a.StaffID]
		if !ok {
			report("block %s taught by unknown staff %s", a.BlockID, a.StaffID)
		}
		facility, ok := facilityByID[a.FacilityID]
		if !ok {
			report("block %s placed in unknown facility %s", a.BlockID, a.FacilityID)
		} else {
			if accepted, _ := block.SessionType.Accepts(facility.Type); !accepted {
				report("block %s (%s) placed in %s facility %s", a.BlockID, block.SessionType, facility.Type, facility.ID)
			}
			if !block.Admits(facility) {
				report("block %s may not use restricted facility %s", a.BlockID, facility.ID)
			}
			if facility.Capacity < block.GroupSize {
				report("block %s needs %d seats, facility %s has %d", a.BlockID, block.GroupSize, facility.ID, facility.Capacity)
			}
		}
		for _, slot := range a.Slots() {
			if !models.WindowsCover(member.Availability, slot) {
				report("staff %s unavailable at %s for block %s", a.StaffID, slot, a.BlockID)
			}
			if !models.WindowsCover(facility.Availability, slot) {
				report("facility %s unavailable at %s for block %s", a.FacilityID, slot, a.BlockID)
			}
		}

		weekly[a.StaffID] += a.Duration
		if daily[a.StaffID] == nil {
			daily[a.StaffID] = make(map[int]int)
		}
		daily[a.StaffID][a.Day] += a.Duration
	}

	for i := 0; i < len(schedule.Assignments); i++ {
		a := schedule.Assignments[i]
		for j := i + 1; j < len(schedule.Assignments); j++ {
			b := schedule.Assignments[j]
			if !a.Overlaps(b) {
				continue
			}
			if a.StaffID == b.StaffID {
				report("staff %s double-booked by %s and %s", a.StaffID, a.BlockID, b.BlockID)
			}
			if a.FacilityID == b.FacilityID {
				report("facility %s double-booked by %s and %s", a.FacilityID, a.BlockID, b.BlockID)
			}
			ba, okA := blocks[a.BlockID]
			bb, okB := blocks[b.BlockID]
			if okA && okB && cohortClash(ba, bb) {
				report("study plan %s has %s and %s at the same time", ba.PlanID, a.BlockID, b.BlockID)
			}
		}
	}

	for _, s := range staff {
		if s.MaxWeeklyLoad > 0 && weekly[s.ID] > s.MaxWeeklyLoad {
			report("staff %s teaches %d periods, weekly limit %d", s.ID, weekly[s.ID], s.MaxWeeklyLoad)
		}
		if s.MaxDailyLoad > 0 {
			for day := 0; day < grid.Days; day++ {
				if daily[s.ID][day] > s.MaxDailyLoad {
					report("staff %s teaches %d periods on day %d, daily limit %d", s.ID, daily[s.ID][day], day, s.MaxDailyLoad)
				}
			}
		}
	}

	for _, c := range schedule.Conflicts {
		if seen[c.BlockID] {
			report("block %s is both assigned and listed as a conflict", c.BlockID)
		}
	}
	return violations
}
