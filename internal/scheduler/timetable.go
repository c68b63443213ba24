package scheduler

import (
	"sort"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Timetable is the mutable assignment state of one attempt. Only the constructive
// scheduler and the optimizer mutate it; the constraint engine only reads it.
type Timetable struct {
	grid   models.Grid
	blocks []models.Block

	placed   []bool
	assigned []models.Assignment

	staffBusy    map[string]map[models.TimeSlot]int
	facilityBusy map[string]map[models.TimeSlot]int
	cohortBusy   map[string]map[models.TimeSlot][]int
	staffLoad    map[string]int
	staffDayLoad map[string][]int
	planDayLoad  map[string][]int
	placedCount  int
}

// NewTimetable returns an empty timetable. Block.Index must equal the slice position.
func NewTimetable(grid models.Grid, blocks []models.Block) *Timetable {
	return &Timetable{
		grid:         grid,
		blocks:       blocks,
		placed:       make([]bool, len(blocks)),
		assigned:     make([]models.Assignment, len(blocks)),
		staffBusy:    make(map[string]map[models.TimeSlot]int),
		facilityBusy: make(map[string]map[models.TimeSlot]int),
		cohortBusy:   make(map[string]map[models.TimeSlot][]int),
		staffLoad:    make(map[string]int),
		staffDayLoad: make(map[string][]int),
		planDayLoad:  make(map[string][]int),
	}
}

// Grid returns the time-slot universe.
func (t *Timetable) Grid() models.Grid { return t.grid }

// Blocks returns the blocks in index order.
func (t *Timetable) Blocks() []models.Block { return t.blocks }

// Placed returns the number of assigned blocks.
func (t *Timetable) Placed() int { return t.placedCount }

// Assignment returns the assignment of the block with the given index.
func (t *Timetable) Assignment(index int) (models.Assignment, bool) {
	if index < 0 || index >= len(t.blocks) || !t.placed[index] {
		return models.Assignment{}, false
	}
	return t.assigned[index], true
}

// Assign records the assignment for the block, replacing any previous one.
func (t *Timetable) Assign(index int, a models.Assignment) {
	if t.placed[index] {
		t.Unassign(index)
	}
	block := t.blocks[index]
	a.BlockID = block.ID
	a.StaffID = block.StaffID
	a.Duration = block.Duration

	for _, slot := range a.Slots() {
		ownerMap(t.staffBusy, a.StaffID)[slot] = index
		ownerMap(t.facilityBusy, a.FacilityID)[slot] = index
		cohort := t.cohortBusy[block.PlanID]
		if cohort == nil {
			cohort = make(map[models.TimeSlot][]int)
			t.cohortBusy[block.PlanID] = cohort
		}
		cohort[slot] = append(cohort[slot], index)
	}
	t.staffLoad[a.StaffID] += a.Duration
	dayLoad(t.staffDayLoad, a.StaffID, t.grid.Days)[a.Day] += a.Duration
	dayLoad(t.planDayLoad, block.PlanID, t.grid.Days)[a.Day] += a.Duration

	t.placed[index] = true
	t.assigned[index] = a
	t.placedCount++
}

// Unassign removes the block's assignment and returns it.
func (t *Timetable) Unassign(index int) (models.Assignment, bool) {
	if !t.placed[index] {
		return models.Assignment{}, false
	}
	block := t.blocks[index]
	a := t.assigned[index]

	for _, slot := range a.Slots() {
		delete(t.staffBusy[a.StaffID], slot)
		delete(t.facilityBusy[a.FacilityID], slot)
		occupants := t.cohortBusy[block.PlanID][slot]
		for i, occupant := range occupants {
			if occupant == index {
				occupants = append(occupants[:i:i], occupants[i+1:]...)
				break
			}
		}
		if len(occupants) == 0 {
			delete(t.cohortBusy[block.PlanID], slot)
		} else {
			t.cohortBusy[block.PlanID][slot] = occupants
		}
	}
	t.staffLoad[a.StaffID] -= a.Duration
	t.staffDayLoad[a.StaffID][a.Day] -= a.Duration
	t.planDayLoad[block.PlanID][a.Day] -= a.Duration

	t.placed[index] = false
	t.assigned[index] = models.Assignment{}
	t.placedCount--
	return a, true
}

// StaffOwner returns the block occupying the staff member at the slot.
func (t *Timetable) StaffOwner(staffID string, slot models.TimeSlot) (int, bool) {
	owner, ok := t.staffBusy[staffID][slot]
	return owner, ok
}

// FacilityOwner returns the block occupying the facility at the slot.
func (t *Timetable) FacilityOwner(facilityID string, slot models.TimeSlot) (int, bool) {
	owner, ok := t.facilityBusy[facilityID][slot]
	return owner, ok
}

// CohortOccupants returns the blocks of the plan running at the slot.
func (t *Timetable) CohortOccupants(planID string, slot models.TimeSlot) []int {
	return t.cohortBusy[planID][slot]
}

// StaffLoad returns the periods assigned to the staff member over the week.
func (t *Timetable) StaffLoad(staffID string) int { return t.staffLoad[staffID] }

// StaffDayLoad returns the periods assigned to the staff member on the day.
func (t *Timetable) StaffDayLoad(staffID string, day int) int {
	loads := t.staffDayLoad[staffID]
	if day < 0 || day >= len(loads) {
		return 0
	}
	return loads[day]
}

// PlanDayLoad returns the periods scheduled for the plan on the day.
func (t *Timetable) PlanDayLoad(planID string, day int) int {
	loads := t.planDayLoad[planID]
	if day < 0 || day >= len(loads) {
		return 0
	}
	return loads[day]
}

// Assignments returns all assignments ordered by block index.
func (t *Timetable) Assignments() []models.Assignment {
	result := make([]models.Assignment, 0, t.placedCount)
	for i, ok := range t.placed {
		if ok {
			result = append(result, t.assigned[i])
		}
	}
	return result
}

// PlacedIndexes returns the indexes of assigned blocks in ascending order.
func (t *Timetable) PlacedIndexes() []int {
	result := make([]int, 0, t.placedCount)
	for i, ok := range t.placed {
		if ok {
			result = append(result, i)
		}
	}
	return result
}

// Clone returns an independent copy.
func (t *Timetable) Clone() *Timetable {
	clone := NewTimetable(t.grid, t.blocks)
	for _, index := range t.PlacedIndexes() {
		clone.Assign(index, t.assigned[index])
	}
	return clone
}

func (t *Timetable) staffIDs() []string {
	ids := make([]string, 0, len(t.staffBusy))
	for id, slots := range t.staffBusy {
		if len(slots) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Timetable) planIDs() []string {
	ids := make([]string, 0, len(t.cohortBusy))
	for id, slots := range t.cohortBusy {
		if len(slots) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func ownerMap(m map[string]map[models.TimeSlot]int, key string) map[models.TimeSlot]int {
	inner := m[key]
	if inner == nil {
		inner = make(map[models.TimeSlot]int)
		m[key] = inner
	}
	return inner
}

func dayLoad(m map[string][]int, key string, days int) []int {
	loads := m[key]
	if loads == nil {
		loads = make([]int, days)
		m[key] = loads
	}
	return loads
}
