package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

const (
	costEpsilon = 1e-9
	// maxRepairCandidates caps how many blocked positions one repair tries.
	maxRepairCandidates = 16
)

// candidate is a statically valid position for a block: on the grid, inside the
// staff and facility availability, in a compatible facility with enough seats.
type candidate struct {
	day      int
	start    int
	facility models.Facility
}

func (c candidate) assignment(block models.Block) models.Assignment {
	return models.Assignment{
		BlockID:    block.ID,
		Day:        c.day,
		Start:      c.start,
		Duration:   block.Duration,
		FacilityID: c.facility.ID,
		StaffID:    block.StaffID,
	}
}

type orderKey struct {
	slack int
	pool  int
}

type attemptResult struct {
	attempt   int
	tt        *Timetable
	conflicts []models.Conflict
	cost      float64
	cancelled bool
}

// better prefers fewer conflicts, then lower cost. Earlier attempts win ties.
func (r attemptResult) better(than attemptResult) bool {
	if len(r.conflicts) != len(than.conflicts) {
		return len(r.conflicts) < len(than.conflicts)
	}
	return r.cost < than.cost-costEpsilon
}

type constructiveResult struct {
	best      attemptResult
	attempts  int
	cancelled bool
}

// constructive places blocks most-constrained first, one greedy pass per attempt.
type constructive struct {
	cfg        Config
	engine     *ConstraintEngine
	blocks     []models.Block
	facilities []models.Facility
	candidates [][]candidate
	keys       []orderKey
	planTotals map[string]int
	totalPlans int
	reporter   *Reporter
	logger     *zap.Logger
	rng        *rand.Rand
}

func newConstructive(cfg Config, engine *ConstraintEngine, blocks []models.Block, facilities []models.Facility, totalPlans int, reporter *Reporter, logger *zap.Logger) *constructive {
	c := &constructive{
		cfg:        cfg,
		engine:     engine,
		blocks:     blocks,
		facilities: facilities,
		candidates: make([][]candidate, len(blocks)),
		keys:       make([]orderKey, len(blocks)),
		planTotals: make(map[string]int),
		totalPlans: totalPlans,
		reporter:   reporter,
		logger:     logger,
		rng:        newRand(cfg.Seed),
	}

	demand := make(map[string]int)
	for _, block := range blocks {
		demand[block.StaffID] += block.Duration
		c.planTotals[block.PlanID]++
	}
	for i, block := range blocks {
		pool := c.pool(block)
		c.candidates[i] = c.enumerate(block, pool)
		staff, _ := engine.Staff(block.StaffID)
		c.keys[i] = orderKey{
			slack: availableSlots(cfg.Grid, staff) - demand[block.StaffID],
			pool:  len(pool),
		}
	}
	return c
}

// pool returns the facilities able to host the block, exact type first, then by
// ascending capacity and id.
func (c *constructive) pool(block models.Block) []models.Facility {
	type ranked struct {
		facility models.Facility
		exact    bool
	}
	var pool []ranked
	for _, f := range c.facilities {
		ok, exact := block.SessionType.Accepts(f.Type)
		if !ok || !block.Admits(f) || f.Capacity < block.GroupSize {
			continue
		}
		pool = append(pool, ranked{facility: f, exact: exact})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].exact != pool[j].exact {
			return pool[i].exact
		}
		if pool[i].facility.Capacity != pool[j].facility.Capacity {
			return pool[i].facility.Capacity < pool[j].facility.Capacity
		}
		return pool[i].facility.ID < pool[j].facility.ID
	})
	result := make([]models.Facility, len(pool))
	for i, r := range pool {
		result[i] = r.facility
	}
	return result
}

func (c *constructive) enumerate(block models.Block, pool []models.Facility) []candidate {
	staff, _ := c.engine.Staff(block.StaffID)
	grid := c.cfg.Grid
	var result []candidate
	for day := 0; day < grid.Days; day++ {
		for start := 0; start+block.Duration <= grid.PeriodsPerDay; start++ {
			slots := grid.Run(day, start, block.Duration)
			if !allCovered(staff.Availability, slots) {
				continue
			}
			for _, f := range pool {
				if allCovered(f.Availability, slots) {
					result = append(result, candidate{day: day, start: start, facility: f})
				}
			}
		}
	}
	return result
}

func allCovered(windows []models.Window, slots []models.TimeSlot) bool {
	for _, slot := range slots {
		if !models.WindowsCover(windows, slot) {
			return false
		}
	}
	return true
}

func availableSlots(grid models.Grid, staff models.Staff) int {
	count := 0
	for _, slot := range grid.Slots() {
		if models.WindowsCover(staff.Availability, slot) {
			count++
		}
	}
	return count
}

// order sorts blocks most-constrained first: least staff slack, smallest facility
// pool, longest duration, then plan and declaration order. Slack is the staff
// member's available slots minus the periods they teach, not the raw count of
// available slots.
func (c *constructive) order() []int {
	order := make([]int, len(c.blocks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := c.blocks[order[i]], c.blocks[order[j]]
		ka, kb := c.keys[a.Index], c.keys[b.Index]
		if ka.slack != kb.slack {
			return ka.slack < kb.slack
		}
		if ka.pool != kb.pool {
			return ka.pool < kb.pool
		}
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		if a.PlanIndex != b.PlanIndex {
			return a.PlanIndex < b.PlanIndex
		}
		return a.Index < b.Index
	})
	return order
}

// perturb shuffles blocks inside each constrainedness band so later attempts
// explore different tie-breaks while keeping the overall ordering.
func (c *constructive) perturb(base []int) []int {
	order := append([]int(nil), base...)
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && c.keys[order[end]] == c.keys[order[start]] {
			end++
		}
		band := order[start:end]
		c.rng.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
		start = end
	}
	return order
}

func (c *constructive) run(ctx context.Context) constructiveResult {
	base := c.order()
	var (
		best     attemptResult
		haveBest bool
		attempts int
	)
	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		order := base
		if n > 1 {
			order = c.perturb(base)
		}
		attempts = n
		res := c.attempt(ctx, n, order)
		if !haveBest || res.better(best) {
			best, haveBest = res, true
		}
		c.logger.Debug("scheduling attempt finished",
			zap.Int("attempt", n),
			zap.Int("placed", res.tt.Placed()),
			zap.Int("conflicts", len(res.conflicts)),
			zap.Float64("cost", res.cost),
		)
		if res.cancelled {
			return constructiveResult{best: best, attempts: attempts, cancelled: true}
		}
		if len(res.conflicts) == 0 {
			break
		}
	}
	return constructiveResult{best: best, attempts: attempts}
}

func (c *constructive) attempt(ctx context.Context, n int, order []int) attemptResult {
	tt := NewTimetable(c.cfg.Grid, c.blocks)
	conflicts := make([]models.Conflict, 0)
	planDone := make(map[string]int, len(c.planTotals))
	cancelled := false

	for visited, index := range order {
		if ctx.Err() != nil {
			cancelled = true
			for _, rest := range order[visited:] {
				conflicts = append(conflicts, models.Conflict{
					BlockID: c.blocks[rest].ID,
					Reason:  models.ReasonNotAttempted,
					Message: "run cancelled before the block was attempted",
				})
			}
			break
		}

		block := c.blocks[index]
		switch {
		case len(c.candidates[index]) == 0:
			conflicts = append(conflicts, c.staticConflict(block))
		case c.place(tt, block):
		case c.repair(tt, block):
		default:
			conflicts = append(conflicts, c.diagnose(tt, block))
		}

		planDone[block.PlanID]++
		c.reporter.Push(models.ProgressEvent{
			Phase:           models.PhaseScheduling,
			Percentage:      schedulingPercentage(n, c.cfg.MaxAttempts, visited+1, len(order)),
			Attempt:         n,
			MaxAttempts:     c.cfg.MaxAttempts,
			PlanID:          block.PlanID,
			PlanIndex:       block.PlanIndex + 1,
			TotalPlans:      c.totalPlans,
			PlanBlocksDone:  planDone[block.PlanID],
			PlanBlocksTotal: c.planTotals[block.PlanID],
			BlocksScheduled: tt.Placed(),
			TotalBlocks:     len(c.blocks),
		})
	}

	positions := make(map[string]int, len(c.blocks))
	for _, b := range c.blocks {
		positions[b.ID] = b.Index
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return positions[conflicts[i].BlockID] < positions[conflicts[j].BlockID]
	})

	return attemptResult{
		attempt:   n,
		tt:        tt,
		conflicts: conflicts,
		cost:      c.engine.Cost(tt).Total,
		cancelled: cancelled,
	}
}

// place assigns the block to its cheapest feasible candidate.
func (c *constructive) place(tt *Timetable, block models.Block) bool {
	cand, ok := c.best(tt, block)
	if !ok {
		return false
	}
	tt.Assign(block.Index, cand.assignment(block))
	return true
}

// best picks the feasible candidate with the lowest cost delta. Ties go to the
// lighter plan day, then to enumeration order.
func (c *constructive) best(tt *Timetable, block models.Block) (candidate, bool) {
	staff, _ := c.engine.Staff(block.StaffID)
	var (
		chosen    candidate
		found     bool
		bestDelta float64
		bestLoad  int
	)
	for _, cand := range c.candidates[block.Index] {
		slots := c.cfg.Grid.Run(cand.day, cand.start, block.Duration)
		if !c.engine.IsFeasible(block, slots, cand.facility, staff, tt) {
			continue
		}
		delta := c.engine.PlacementDelta(tt, block, cand.assignment(block))
		load := tt.PlanDayLoad(block.PlanID, cand.day)
		if !found || delta < bestDelta-costEpsilon || (delta <= bestDelta+costEpsilon && load < bestLoad) {
			chosen, found, bestDelta, bestLoad = cand, true, delta, load
		}
	}
	return chosen, found
}

type repairOption struct {
	cand     candidate
	blockers []int
}

// repair displaces up to BacktrackLimit blocks so the block fits, then re-places
// the displaced blocks elsewhere. The timetable is restored when that fails.
func (c *constructive) repair(tt *Timetable, block models.Block) bool {
	if c.cfg.BacktrackLimit <= 0 {
		return false
	}
	staff, _ := c.engine.Staff(block.StaffID)

	var options []repairOption
	for _, cand := range c.candidates[block.Index] {
		slots := c.cfg.Grid.Run(cand.day, cand.start, block.Duration)
		blockers := c.engine.blockers(block, slots, cand.facility, staff, tt)
		if len(blockers) == 0 || len(blockers) > c.cfg.BacktrackLimit {
			continue
		}
		options = append(options, repairOption{cand: cand, blockers: blockers})
	}
	sort.SliceStable(options, func(i, j int) bool {
		return len(options[i].blockers) < len(options[j].blockers)
	})
	if len(options) > maxRepairCandidates {
		options = options[:maxRepairCandidates]
	}

	for _, opt := range options {
		saved := make(map[int]models.Assignment, len(opt.blockers))
		for _, b := range opt.blockers {
			if a, ok := tt.Unassign(b); ok {
				saved[b] = a
			}
		}
		slots := c.cfg.Grid.Run(opt.cand.day, opt.cand.start, block.Duration)
		if c.engine.IsFeasible(block, slots, opt.cand.facility, staff, tt) {
			tt.Assign(block.Index, opt.cand.assignment(block))
			var replaced []int
			ok := true
			for _, b := range opt.blockers {
				if !c.place(tt, c.blocks[b]) {
					ok = false
					break
				}
				replaced = append(replaced, b)
			}
			if ok {
				c.logger.Debug("block placed by displacement",
					zap.String("block", block.ID),
					zap.Ints("displaced", opt.blockers),
				)
				return true
			}
			for _, b := range replaced {
				tt.Unassign(b)
			}
			tt.Unassign(block.Index)
		}
		for _, b := range opt.blockers {
			if a, ok := saved[b]; ok {
				tt.Assign(b, a)
			}
		}
	}
	return false
}

// staticConflict explains a block that has no statically valid position at all.
func (c *constructive) staticConflict(block models.Block) models.Conflict {
	grid := c.cfg.Grid
	conflict := models.Conflict{BlockID: block.ID}
	staff, _ := c.engine.Staff(block.StaffID)

	typed, admitted, largest := 0, 0, 0
	for _, f := range c.facilities {
		if ok, _ := block.SessionType.Accepts(f.Type); !ok {
			continue
		}
		typed++
		if !block.Admits(f) {
			continue
		}
		admitted++
		if f.Capacity > largest {
			largest = f.Capacity
		}
	}

	switch {
	case block.Duration > grid.PeriodsPerDay:
		conflict.Reason = models.ReasonDuration
		conflict.Message = fmt.Sprintf("%s needs %d consecutive periods but a day has %d", block.SessionType, block.Duration, grid.PeriodsPerDay)
	case typed == 0:
		conflict.Reason = models.ReasonNoFacilityType
		conflict.Message = fmt.Sprintf("no %s facility exists", block.FacilityType)
	case admitted == 0:
		conflict.Reason = models.ReasonFacilityRestricted
		if len(block.PreferredFacilities) > 0 {
			conflict.Message = fmt.Sprintf("none of the preferred facilities %v can host %s", block.PreferredFacilities, block.SessionType)
		} else {
			conflict.Message = fmt.Sprintf("every %s facility is reserved for specialist courses", block.FacilityType)
		}
	case largest < block.GroupSize:
		conflict.Reason = models.ReasonCapacity
		conflict.Message = fmt.Sprintf("no %s facility seats %d students (largest holds %d)", block.FacilityType, block.GroupSize, largest)
	case !c.staffHasRun(block, staff):
		conflict.Reason = models.ReasonStaffUnavailable
		conflict.Message = fmt.Sprintf("staff %s has no %d-period window available", block.StaffID, block.Duration)
	case (staff.MaxWeeklyLoad > 0 && block.Duration > staff.MaxWeeklyLoad) || (staff.MaxDailyLoad > 0 && block.Duration > staff.MaxDailyLoad):
		conflict.Reason = models.ReasonStaffOverloaded
		conflict.Message = fmt.Sprintf("a %d-period session exceeds the load limit of staff %s", block.Duration, block.StaffID)
	default:
		conflict.Reason = models.ReasonNoCommonSlot
		conflict.Message = fmt.Sprintf("no %s facility is available while staff %s is", block.FacilityType, block.StaffID)
	}
	return conflict
}

func (c *constructive) staffHasRun(block models.Block, staff models.Staff) bool {
	grid := c.cfg.Grid
	for day := 0; day < grid.Days; day++ {
		for start := 0; start+block.Duration <= grid.PeriodsPerDay; start++ {
			if allCovered(staff.Availability, grid.Run(day, start, block.Duration)) {
				return true
			}
		}
	}
	return false
}

// diagnoseOrder breaks ties between equally frequent reasons.
var diagnoseOrder = []models.ConflictReason{
	models.ReasonStaffBusy,
	models.ReasonFacilityBusy,
	models.ReasonCohortClash,
	models.ReasonStaffOverloaded,
}

// diagnose explains why every candidate of the block is taken, naming the blocks
// that occupy them.
func (c *constructive) diagnose(tt *Timetable, block models.Block) models.Conflict {
	staff, _ := c.engine.Staff(block.StaffID)
	counts := make(map[models.ConflictReason]int)
	related := make(map[int]bool)
	for _, cand := range c.candidates[block.Index] {
		slots := c.cfg.Grid.Run(cand.day, cand.start, block.Duration)
		v := c.engine.Check(block, slots, cand.facility, staff, tt)
		if v.OK() {
			continue
		}
		counts[v.Reason]++
		for _, b := range c.engine.blockers(block, slots, cand.facility, staff, tt) {
			related[b] = true
		}
	}

	reason := models.ReasonStaffBusy
	top := -1
	for _, r := range diagnoseOrder {
		if counts[r] > top {
			reason, top = r, counts[r]
		}
	}

	indexes := make([]int, 0, len(related))
	for b := range related {
		indexes = append(indexes, b)
	}
	sort.Ints(indexes)
	ids := make([]string, len(indexes))
	for i, b := range indexes {
		ids[i] = c.blocks[b].ID
	}

	var message string
	switch reason {
	case models.ReasonStaffBusy:
		message = fmt.Sprintf("staff %s is already teaching in every slot available to the block", block.StaffID)
	case models.ReasonFacilityBusy:
		message = fmt.Sprintf("every %s facility with %d seats is booked in the slots available to staff %s", block.FacilityType, block.GroupSize, block.StaffID)
	case models.ReasonCohortClash:
		message = fmt.Sprintf("study plan %s already has sessions in every remaining slot", block.PlanID)
	default:
		message = fmt.Sprintf("staff %s would exceed the load limit", block.StaffID)
	}
	if len(ids) > 0 {
		message += "; blocked by " + strings.Join(ids, ", ")
	}
	return models.Conflict{
		BlockID:       block.ID,
		Reason:        reason,
		Message:       message,
		RelatedBlocks: ids,
	}
}
