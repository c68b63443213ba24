package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Config holds every tunable of a run. Start from DefaultConfig.
type Config struct {
	Grid           models.Grid
	MaxAttempts    int
	RoundBudget    int
	Weights        Weights
	Seed           int64
	BacktrackLimit int
	AllowPartial   bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Grid:           models.Grid{Days: 5, PeriodsPerDay: 8},
		MaxAttempts:    5,
		RoundBudget:    50,
		Weights:        DefaultWeights(),
		Seed:           1,
		BacktrackLimit: 2,
		AllowPartial:   true,
	}
}

// Validate reports configuration the engine cannot run with.
func (c Config) Validate() error {
	if c.Grid.Days < 1 || c.Grid.Days > 7 {
		return fmt.Errorf("days per week must be between 1 and 7, got %d", c.Grid.Days)
	}
	if c.Grid.PeriodsPerDay < 1 {
		return fmt.Errorf("periods per day must be positive, got %d", c.Grid.PeriodsPerDay)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.RoundBudget < 0 {
		return fmt.Errorf("optimizer round budget must not be negative, got %d", c.RoundBudget)
	}
	if c.BacktrackLimit < 0 {
		return fmt.Errorf("backtrack limit must not be negative, got %d", c.BacktrackLimit)
	}
	return c.Weights.Validate()
}

// Input is everything one run needs, loaded before scheduling starts.
type Input struct {
	Plans      []models.StudyPlan
	Staff      []models.Staff
	Facilities []models.Facility
}

// ErrInvalidSchedule is returned when a schedule handed back for re-optimization
// does not belong to the input or breaks a hard constraint.
var ErrInvalidSchedule = errors.New("schedule does not match input")

// Engine runs the block generator, constructive scheduler and optimizer.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New validates the configuration and builds an engine.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Run produces a schedule for the input. Only data errors are returned as errors;
// search failures and cancellation are reported through the schedule status.
func (e *Engine) Run(ctx context.Context, in Input, reporter *Reporter) (*models.Schedule, error) {
	if reporter == nil {
		reporter = NewReporter()
	}
	reporter.Push(models.ProgressEvent{
		Phase:      models.PhaseInitializing,
		TotalPlans: len(in.Plans),
		Message:    "validating input",
	})

	blocks, err := GenerateBlocks(e.cfg.Grid, in.Plans, in.Staff, in.Facilities)
	if err != nil {
		reporter.Push(models.ProgressEvent{Phase: models.PhaseFailed, Percentage: 100, Message: err.Error()})
		return nil, err
	}

	constraints := NewConstraintEngine(e.cfg.Grid, e.cfg.Weights, in.Staff, in.Facilities)
	reporter.Push(models.ProgressEvent{
		Phase:       models.PhaseInitializing,
		Percentage:  initializingEnd,
		TotalPlans:  len(in.Plans),
		TotalBlocks: len(blocks),
		Message:     fmt.Sprintf("generated %d blocks", len(blocks)),
	})

	builder := newConstructive(e.cfg, constraints, blocks, in.Facilities, len(in.Plans), reporter, e.logger)
	result := builder.run(ctx)

	best := result.best
	schedule := &models.Schedule{
		Grid:      e.cfg.Grid,
		Blocks:    blocks,
		Attempts:  result.attempts,
		Conflicts: best.conflicts,
	}
	tt := best.tt

	switch {
	case result.cancelled:
		schedule.Status = models.ScheduleCancelled
	case len(best.conflicts) == 0:
		schedule.Status = models.ScheduleFeasible
	case e.cfg.AllowPartial && tt.Placed() > 0:
		schedule.Status = models.SchedulePartial
	default:
		schedule.Status = models.ScheduleFailed
	}

	if schedule.Status == models.ScheduleFeasible || schedule.Status == models.SchedulePartial {
		opt := newOptimizer(constraints, builder.candidates, e.cfg.RoundBudget, reporter, e.logger)
		opt.base = models.ProgressEvent{Attempt: result.attempts, MaxAttempts: e.cfg.MaxAttempts, TotalPlans: len(in.Plans), TotalBlocks: len(blocks)}
		rounds, moves, cancelled := opt.run(ctx, tt)
		schedule.OptimizerRounds = rounds
		schedule.MovesAccepted = moves
		if cancelled {
			schedule.Status = models.ScheduleCancelled
		}
	}

	e.finish(schedule, tt, constraints, in, reporter)
	return schedule, nil
}

// Optimize runs only the local search over an existing schedule of the same input.
func (e *Engine) Optimize(ctx context.Context, in Input, previous *models.Schedule, reporter *Reporter) (*models.Schedule, error) {
	if reporter == nil {
		reporter = NewReporter()
	}
	blocks, err := GenerateBlocks(e.cfg.Grid, in.Plans, in.Staff, in.Facilities)
	if err != nil {
		return nil, err
	}
	constraints := NewConstraintEngine(e.cfg.Grid, e.cfg.Weights, in.Staff, in.Facilities)
	tt, err := loadTimetable(e.cfg.Grid, blocks, constraints, previous)
	if err != nil {
		return nil, err
	}

	builder := newConstructive(e.cfg, constraints, blocks, in.Facilities, len(in.Plans), reporter, e.logger)
	opt := newOptimizer(constraints, builder.candidates, e.cfg.RoundBudget, reporter, e.logger)
	opt.base = models.ProgressEvent{TotalPlans: len(in.Plans), TotalBlocks: len(blocks)}
	rounds, moves, cancelled := opt.run(ctx, tt)

	schedule := &models.Schedule{
		Grid:            e.cfg.Grid,
		Blocks:          blocks,
		Attempts:        previous.Attempts,
		Conflicts:       previous.Conflicts,
		Status:          previous.Status,
		OptimizerRounds: rounds,
		MovesAccepted:   moves,
	}
	if cancelled {
		schedule.Status = models.ScheduleCancelled
	}
	e.finish(schedule, tt, constraints, in, reporter)
	return schedule, nil
}

func (e *Engine) finish(schedule *models.Schedule, tt *Timetable, constraints *ConstraintEngine, in Input, reporter *Reporter) {
	schedule.Assignments = tt.Assignments()
	schedule.Cost = constraints.Cost(tt)
	if schedule.Conflicts == nil {
		schedule.Conflicts = []models.Conflict{}
	}

	if violations := Verify(schedule, in.Staff, in.Facilities); len(violations) > 0 {
		e.logger.Error("schedule failed verification", zap.Strings("violations", violations))
		schedule.Status = models.ScheduleFailed
	}

	event := models.ProgressEvent{
		Attempt:         schedule.Attempts,
		MaxAttempts:     e.cfg.MaxAttempts,
		TotalPlans:      len(in.Plans),
		BlocksScheduled: tt.Placed(),
		TotalBlocks:     len(schedule.Blocks),
		Round:           schedule.OptimizerRounds,
		Cost:            schedule.Cost.Total,
		Message:         fmt.Sprintf("%s: %d/%d blocks placed, %d conflicts", schedule.Status, tt.Placed(), len(schedule.Blocks), len(schedule.Conflicts)),
	}
	switch schedule.Status {
	case models.ScheduleCancelled:
		schedule.Phase = models.PhaseCancelled
	case models.ScheduleFailed:
		schedule.Phase = models.PhaseFailed
		event.Percentage = 100
	default:
		schedule.Phase = models.PhaseCompleted
		event.Percentage = 100
	}
	event.Phase = schedule.Phase
	reporter.Push(event)
	schedule.Events = reporter.History()

	e.logger.Info("schedule run finished",
		zap.String("status", string(schedule.Status)),
		zap.Int("blocks", len(schedule.Blocks)),
		zap.Int("placed", tt.Placed()),
		zap.Int("conflicts", len(schedule.Conflicts)),
		zap.Int("attempts", schedule.Attempts),
		zap.Int("optimizer_rounds", schedule.OptimizerRounds),
		zap.Int("moves_accepted", schedule.MovesAccepted),
		zap.Float64("cost", schedule.Cost.Total),
	)
}

// loadTimetable rebuilds the assignment state of a finished schedule and checks
// every assignment against the hard constraints.
func loadTimetable(grid models.Grid, blocks []models.Block, constraints *ConstraintEngine, schedule *models.Schedule) (*Timetable, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: no schedule", ErrInvalidSchedule)
	}
	byID := make(map[string]int, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b.Index
	}
	tt := NewTimetable(grid, blocks)
	for _, a := range schedule.Assignments {
		index, ok := byID[a.BlockID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown block %s", ErrInvalidSchedule, a.BlockID)
		}
		if _, placed := tt.Assignment(index); placed {
			return nil, fmt.Errorf("%w: block %s assigned more than once", ErrInvalidSchedule, a.BlockID)
		}
		block := blocks[index]
		staff, _ := constraints.Staff(block.StaffID)
		facility, ok := constraints.Facility(a.FacilityID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown facility %s", ErrInvalidSchedule, a.FacilityID)
		}
		slots := grid.Run(a.Day, a.Start, block.Duration)
		if v := constraints.Check(block, slots, facility, staff, tt); !v.OK() {
			return nil, fmt.Errorf("%w: block %s violates %s", ErrInvalidSchedule, a.BlockID, v.Reason)
		}
		tt.Assign(index, a)
	}
	return tt, nil
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
