package scheduler

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Weights maps each soft-constraint category to its multiplier.
type Weights map[models.CostCategory]float64

// DefaultWeights returns the weights used when no configuration overrides them.
func DefaultWeights() Weights {
	return Weights{
		models.CostStaffPreference:  5,
		models.CostFragmentation:    2,
		models.CostFacilityMismatch: 3,
		models.CostCapacityWaste:    1.5,
	}
}

// Validate rejects unknown categories and negative weights.
func (w Weights) Validate() error {
	for category, weight := range w {
		if !lo.Contains(models.CostCategories, category) {
			return fmt.Errorf("unknown cost category %q", category)
		}
		if weight < 0 {
			return fmt.Errorf("cost weight for %s must not be negative", category)
		}
	}
	return nil
}

// minUtilization is the occupancy ratio below which a facility counts as wasted.
const minUtilization = 0.5

// Violation reports the first hard constraint a placement breaks.
type Violation struct {
	Reason   models.ConflictReason
	Blocking []int
}

// OK reports whether no hard constraint is violated.
func (v Violation) OK() bool { return v.Reason == "" }

// ConstraintEngine evaluates hard feasibility and soft cost. It never mutates
// the timetable it is given and holds no state besides immutable lookups.
type ConstraintEngine struct {
	grid       models.Grid
	weights    Weights
	staff      map[string]models.Staff
	facilities map[string]models.Facility
}

// NewConstraintEngine builds an engine over the run's staff and facilities.
func NewConstraintEngine(grid models.Grid, weights Weights, staff []models.Staff, facilities []models.Facility) *ConstraintEngine {
	if weights == nil {
		weights = DefaultWeights()
	}
	e := &ConstraintEngine{
		grid:       grid,
		weights:    weights,
		staff:      make(map[string]models.Staff, len(staff)),
		facilities: make(map[string]models.Facility, len(facilities)),
	}
	for _, s := range staff {
		e.staff[s.ID] = s
	}
	for _, f := range facilities {
		e.facilities[f.ID] = f
	}
	return e
}

// Staff returns the staff record by id.
func (e *ConstraintEngine) Staff(id string) (models.Staff, bool) {
	s, ok := e.staff[id]
	return s, ok
}

// Facility returns the facility record by id.
func (e *ConstraintEngine) Facility(id string) (models.Facility, bool) {
	f, ok := e.facilities[id]
	return f, ok
}

// IsFeasible reports whether placing block on slots in facility taught by staff
// keeps every hard constraint against the timetable built so far.
func (e *ConstraintEngine) IsFeasible(block models.Block, slots []models.TimeSlot, facility models.Facility, staff models.Staff, tt *Timetable) bool {
	return e.Check(block, slots, facility, staff, tt).OK()
}

// Check is IsFeasible with the reason and the blocking blocks of the first violation.
// The block's own current assignment, if any, is ignored.
func (e *ConstraintEngine) Check(block models.Block, slots []models.TimeSlot, facility models.Facility, staff models.Staff, tt *Timetable) Violation {
	if len(slots) != block.Duration || len(slots) == 0 {
		return Violation{Reason: models.ReasonDuration}
	}
	for i, slot := range slots {
		if !e.grid.Contains(slot) || slot.Day != slots[0].Day || slot.Period != slots[0].Period+i {
			return Violation{Reason: models.ReasonInvalidPlacement}
		}
	}
	if staff.ID != block.StaffID {
		return Violation{Reason: models.ReasonInvalidPlacement}
	}
	if ok, _ := block.SessionType.Accepts(facility.Type); !ok {
		return Violation{Reason: models.ReasonNoFacilityType}
	}
	if !block.Admits(facility) {
		return Violation{Reason: models.ReasonFacilityRestricted}
	}
	if facility.Capacity < block.GroupSize {
		return Violation{Reason: models.ReasonCapacity}
	}
	for _, slot := range slots {
		if !models.WindowsCover(staff.Availability, slot) {
			return Violation{Reason: models.ReasonStaffUnavailable}
		}
		if !models.WindowsCover(facility.Availability, slot) {
			return Violation{Reason: models.ReasonFacilityUnavailable}
		}
	}
	for _, slot := range slots {
		if owner, ok := tt.StaffOwner(staff.ID, slot); ok && owner != block.Index {
			return Violation{Reason: models.ReasonStaffBusy, Blocking: []int{owner}}
		}
		if owner, ok := tt.FacilityOwner(facility.ID, slot); ok && owner != block.Index {
			return Violation{Reason: models.ReasonFacilityBusy, Blocking: []int{owner}}
		}
		for _, occupant := range tt.CohortOccupants(block.PlanID, slot) {
			if occupant != block.Index && cohortClash(block, tt.blocks[occupant]) {
				return Violation{Reason: models.ReasonCohortClash, Blocking: []int{occupant}}
			}
		}
	}
	if v := e.checkLoad(block, slots[0].Day, staff, tt); !v.OK() {
		return v
	}
	return Violation{}
}

// blockers gathers every assigned block standing in the way of the placement.
func (e *ConstraintEngine) blockers(block models.Block, slots []models.TimeSlot, facility models.Facility, staff models.Staff, tt *Timetable) []int {
	seen := make(map[int]bool)
	var result []int
	add := func(i int) {
		if i != block.Index && !seen[i] {
			seen[i] = true
			result = append(result, i)
		}
	}
	for _, slot := range slots {
		if owner, ok := tt.StaffOwner(staff.ID, slot); ok {
			add(owner)
		}
		if owner, ok := tt.FacilityOwner(facility.ID, slot); ok {
			add(owner)
		}
		for _, occupant := range tt.CohortOccupants(block.PlanID, slot) {
			if cohortClash(block, tt.blocks[occupant]) {
				add(occupant)
			}
		}
	}
	sort.Ints(result)
	return result
}

func (e *ConstraintEngine) checkLoad(block models.Block, day int, staff models.Staff, tt *Timetable) Violation {
	weekly := tt.StaffLoad(staff.ID)
	daily := tt.StaffDayLoad(staff.ID, day)
	if current, ok := tt.Assignment(block.Index); ok {
		weekly -= current.Duration
		if current.Day == day {
			daily -= current.Duration
		}
	}
	if staff.MaxWeeklyLoad > 0 && weekly+block.Duration > staff.MaxWeeklyLoad {
		return Violation{Reason: models.ReasonStaffOverloaded}
	}
	if staff.MaxDailyLoad > 0 && daily+block.Duration > staff.MaxDailyLoad {
		return Violation{Reason: models.ReasonStaffOverloaded}
	}
	return Violation{}
}

// cohortClash reports whether two blocks of the same plan may not run in parallel.
// Single-group sessions are attended by the whole cohort; parallel sections of a
// multi-group course only clash with their own section.
func cohortClash(a, b models.Block) bool {
	if a.PlanID != b.PlanID {
		return false
	}
	if a.SingleGroup() || b.SingleGroup() {
		return true
	}
	return a.CourseID == b.CourseID && a.SessionType == b.SessionType && a.Group == b.Group
}

// Cost scores the whole timetable. Lower is better and zero means no soft
// constraint is violated. Categories hold weighted values that sum to Total.
func (e *ConstraintEngine) Cost(tt *Timetable) models.CostSummary {
	raw := make(map[models.CostCategory]float64, len(models.CostCategories))
	for _, index := range tt.PlacedIndexes() {
		e.addBlockTerms(raw, tt.blocks[index], tt.assigned[index])
	}
	for _, staffID := range tt.staffIDs() {
		for day := 0; day < e.grid.Days; day++ {
			raw[models.CostFragmentation] += float64(e.staffGaps(tt, staffID, day))
		}
	}
	for _, planID := range tt.planIDs() {
		for day := 0; day < e.grid.Days; day++ {
			raw[models.CostFragmentation] += float64(e.planGaps(tt, planID, day))
		}
	}
	return e.summarize(raw)
}

func (e *ConstraintEngine) summarize(raw map[models.CostCategory]float64) models.CostSummary {
	summary := models.CostSummary{Categories: make(map[models.CostCategory]float64, len(models.CostCategories))}
	for _, category := range models.CostCategories {
		weighted := raw[category] * e.weights[category]
		summary.Categories[category] = weighted
		summary.Total += weighted
	}
	return summary
}

func (e *ConstraintEngine) addBlockTerms(raw map[models.CostCategory]float64, block models.Block, a models.Assignment) {
	if staff, ok := e.staff[block.StaffID]; ok && len(staff.Preferred) > 0 {
		weight := staff.PreferenceWeight
		if weight <= 0 {
			weight = 1
		}
		outside := 0
		for _, slot := range a.Slots() {
			if !models.WindowsCover(staff.Preferred, slot) {
				outside++
			}
		}
		raw[models.CostStaffPreference] += float64(outside) * weight
	}
	facility, ok := e.facilities[a.FacilityID]
	if !ok {
		return
	}
	if _, exact := block.SessionType.Accepts(facility.Type); !exact {
		raw[models.CostFacilityMismatch]++
	}
	if facility.Capacity > 0 {
		utilization := float64(block.GroupSize) / float64(facility.Capacity)
		if utilization < minUtilization {
			raw[models.CostCapacityWaste] += (minUtilization - utilization) / minUtilization
		}
	}
}

// blockCost is the weighted cost of the block's own terms.
func (e *ConstraintEngine) blockCost(block models.Block, a models.Assignment) float64 {
	raw := make(map[models.CostCategory]float64, 3)
	e.addBlockTerms(raw, block, a)
	return e.summarize(raw).Total
}

func (e *ConstraintEngine) staffGaps(tt *Timetable, staffID string, day int) int {
	busy := tt.staffBusy[staffID]
	if len(busy) == 0 {
		return 0
	}
	return gaps(e.grid.PeriodsPerDay, func(p int) bool {
		_, ok := busy[models.TimeSlot{Day: day, Period: p}]
		return ok
	})
}

func (e *ConstraintEngine) planGaps(tt *Timetable, planID string, day int) int {
	busy := tt.cohortBusy[planID]
	if len(busy) == 0 {
		return 0
	}
	return gaps(e.grid.PeriodsPerDay, func(p int) bool {
		return len(busy[models.TimeSlot{Day: day, Period: p}]) > 0
	})
}

// gaps counts idle periods between the first and last busy period of a day.
func gaps(periods int, busy func(int) bool) int {
	first, last, count := -1, -1, 0
	for p := 0; p < periods; p++ {
		if busy(p) {
			if first < 0 {
				first = p
			}
			last = p
			count++
		}
	}
	if first < 0 {
		return 0
	}
	return last - first + 1 - count
}

type staffDay struct {
	staffID string
	day     int
}

type planDay struct {
	planID string
	day    int
}

// costScope is the part of the cost a local change can affect.
type costScope struct {
	blocks    []int
	staffDays []staffDay
	planDays  []planDay
}

func (s *costScope) addBlock(block models.Block, days ...int) {
	if !lo.Contains(s.blocks, block.Index) {
		s.blocks = append(s.blocks, block.Index)
	}
	for _, day := range days {
		sd := staffDay{staffID: block.StaffID, day: day}
		if !lo.Contains(s.staffDays, sd) {
			s.staffDays = append(s.staffDays, sd)
		}
		pd := planDay{planID: block.PlanID, day: day}
		if !lo.Contains(s.planDays, pd) {
			s.planDays = append(s.planDays, pd)
		}
	}
}

// scopedCost sums the cost terms inside the scope. Differences of scopedCost
// before and after a change equal the difference in total cost.
func (e *ConstraintEngine) scopedCost(tt *Timetable, scope costScope) float64 {
	var total float64
	for _, index := range scope.blocks {
		if a, ok := tt.Assignment(index); ok {
			total += e.blockCost(tt.blocks[index], a)
		}
	}
	fragWeight := e.weights[models.CostFragmentation]
	for _, sd := range scope.staffDays {
		total += fragWeight * float64(e.staffGaps(tt, sd.staffID, sd.day))
	}
	for _, pd := range scope.planDays {
		total += fragWeight * float64(e.planGaps(tt, pd.planID, pd.day))
	}
	return total
}

// PlacementDelta returns the cost change of assigning an unplaced block.
func (e *ConstraintEngine) PlacementDelta(tt *Timetable, block models.Block, a models.Assignment) float64 {
	var scope costScope
	scope.addBlock(block, a.Day)
	before := e.scopedCost(tt, scope)
	tt.Assign(block.Index, a)
	after := e.scopedCost(tt, scope)
	tt.Unassign(block.Index)
	return after - before
}

// localCost is the cost attributable to a placed block: its own terms plus the
// fragmentation of its staff day and plan day.
func (e *ConstraintEngine) localCost(tt *Timetable, index int) float64 {
	a, ok := tt.Assignment(index)
	if !ok {
		return 0
	}
	var scope costScope
	scope.addBlock(tt.blocks[index], a.Day)
	return e.scopedCost(tt, scope)
}
