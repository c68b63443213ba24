package scheduler

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// optimizer improves a feasible timetable by local search. For each visited block
// it applies the best improving relocation or swap, if any. Every accepted move
// keeps all hard constraints and strictly lowers the cost.
type optimizer struct {
	engine     *ConstraintEngine
	candidates [][]candidate
	budget     int
	reporter   *Reporter
	logger     *zap.Logger
	base       models.ProgressEvent
}

func newOptimizer(engine *ConstraintEngine, candidates [][]candidate, budget int, reporter *Reporter, logger *zap.Logger) *optimizer {
	return &optimizer{
		engine:     engine,
		candidates: candidates,
		budget:     budget,
		reporter:   reporter,
		logger:     logger,
	}
}

type move struct {
	delta float64
	apply func(tt *Timetable)
}

// run performs rounds until one accepts no move or the budget is spent.
func (o *optimizer) run(ctx context.Context, tt *Timetable) (rounds, moves int, cancelled bool) {
	for round := 1; round <= o.budget; round++ {
		if ctx.Err() != nil {
			return rounds, moves, true
		}
		accepted := o.round(tt)
		rounds = round
		moves += accepted

		cost := o.engine.Cost(tt).Total
		event := o.base
		event.Phase = models.PhaseOptimizing
		event.Percentage = optimizingPercentage(round, o.budget)
		event.Round = round
		event.Cost = cost
		event.BlocksScheduled = tt.Placed()
		event.Message = fmt.Sprintf("round %d accepted %d moves", round, accepted)
		o.reporter.Push(event)

		o.logger.Debug("optimizer round finished",
			zap.Int("round", round),
			zap.Int("accepted", accepted),
			zap.Float64("cost", cost),
		)
		if accepted == 0 {
			break
		}
	}
	return rounds, moves, false
}

// round visits placed blocks by descending local cost and applies the best
// improving move found for each.
func (o *optimizer) round(tt *Timetable) int {
	order := tt.PlacedIndexes()
	local := make(map[int]float64, len(order))
	for _, index := range order {
		local[index] = o.engine.localCost(tt, index)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if local[order[i]] != local[order[j]] {
			return local[order[i]] > local[order[j]]
		}
		return order[i] < order[j]
	})

	accepted := 0
	for _, index := range order {
		if m, ok := o.bestMove(tt, index); ok {
			m.apply(tt)
			accepted++
		}
	}
	return accepted
}

func (o *optimizer) bestMove(tt *Timetable, index int) (move, bool) {
	current, ok := tt.Assignment(index)
	if !ok {
		return move{}, false
	}
	block := tt.blocks[index]
	staff, _ := o.engine.Staff(block.StaffID)
	grid := tt.Grid()

	best := move{delta: -costEpsilon}
	found := false

	for _, cand := range o.candidates[index] {
		if cand.day == current.Day && cand.start == current.Start && cand.facility.ID == current.FacilityID {
			continue
		}
		slots := grid.Run(cand.day, cand.start, block.Duration)
		if !o.engine.IsFeasible(block, slots, cand.facility, staff, tt) {
			continue
		}
		next := cand.assignment(block)
		delta := o.relocationDelta(tt, index, current, next)
		if delta < best.delta {
			best = move{delta: delta, apply: func(tt *Timetable) { tt.Assign(index, next) }}
			found = true
		}
	}

	for _, other := range o.swapPartners(tt, block) {
		delta, ok := o.swapDelta(tt, index, other)
		if ok && delta < best.delta {
			partner := other
			best = move{delta: delta, apply: func(tt *Timetable) { o.swap(tt, index, partner) }}
			found = true
		}
	}
	return best, found
}

func (o *optimizer) relocationDelta(tt *Timetable, index int, current, next models.Assignment) float64 {
	var scope costScope
	scope.addBlock(tt.blocks[index], current.Day, next.Day)
	before := o.engine.scopedCost(tt, scope)
	tt.Assign(index, next)
	after := o.engine.scopedCost(tt, scope)
	tt.Assign(index, current)
	return after - before
}

// swapPartners lists placed blocks of equal duration that share the plan or the
// staff member with the block.
func (o *optimizer) swapPartners(tt *Timetable, block models.Block) []int {
	var partners []int
	for _, other := range tt.PlacedIndexes() {
		if other == block.Index {
			continue
		}
		b := tt.blocks[other]
		if b.Duration != block.Duration {
			continue
		}
		if b.PlanID == block.PlanID || b.StaffID == block.StaffID {
			partners = append(partners, other)
		}
	}
	return partners
}

// swapped returns the assignments the two blocks would take after exchanging
// their positions.
func swapped(a, b models.Assignment) (models.Assignment, models.Assignment) {
	na, nb := a, b
	na.Day, na.Start, na.FacilityID = b.Day, b.Start, b.FacilityID
	nb.Day, nb.Start, nb.FacilityID = a.Day, a.Start, a.FacilityID
	return na, nb
}

// swapDelta evaluates exchanging the positions of two blocks. It returns false
// when the exchange would break a hard constraint.
func (o *optimizer) swapDelta(tt *Timetable, i, j int) (float64, bool) {
	ai, _ := tt.Assignment(i)
	aj, _ := tt.Assignment(j)
	if ai.Day == aj.Day && ai.Start == aj.Start && ai.FacilityID == aj.FacilityID {
		return 0, false
	}
	ni, nj := swapped(ai, aj)

	var scope costScope
	scope.addBlock(tt.blocks[i], ai.Day, aj.Day)
	scope.addBlock(tt.blocks[j], ai.Day, aj.Day)
	before := o.engine.scopedCost(tt, scope)

	tt.Unassign(i)
	tt.Unassign(j)
	restore := func() {
		tt.Unassign(i)
		tt.Unassign(j)
		tt.Assign(i, ai)
		tt.Assign(j, aj)
	}

	if !o.fits(tt, i, ni) {
		restore()
		return 0, false
	}
	tt.Assign(i, ni)
	if !o.fits(tt, j, nj) {
		restore()
		return 0, false
	}
	tt.Assign(j, nj)

	after := o.engine.scopedCost(tt, scope)
	restore()
	return after - before, true
}

func (o *optimizer) fits(tt *Timetable, index int, a models.Assignment) bool {
	block := tt.blocks[index]
	staff, _ := o.engine.Staff(block.StaffID)
	facility, ok := o.engine.Facility(a.FacilityID)
	if !ok {
		return false
	}
	slots := tt.Grid().Run(a.Day, a.Start, block.Duration)
	return o.engine.IsFeasible(block, slots, facility, staff, tt)
}

func (o *optimizer) swap(tt *Timetable, i, j int) {
	ai, _ := tt.Assignment(i)
	aj, _ := tt.Assignment(j)
	ni, nj := swapped(ai, aj)
	tt.Unassign(i)
	tt.Unassign(j)
	tt.Assign(i, ni)
	tt.Assign(j, nj)
}
