package service

import (
	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/config"
)

// EngineConfigFrom maps application settings onto the engine configuration.
func EngineConfigFrom(cfg *config.Config) scheduler.Config {
	engine := scheduler.DefaultConfig()
	if cfg == nil {
		return engine
	}
	engine.Grid = models.Grid{Days: cfg.Grid.DaysPerWeek, PeriodsPerDay: cfg.Grid.PeriodsPerDay}
	engine.MaxAttempts = cfg.Scheduler.MaxAttempts
	engine.RoundBudget = cfg.Scheduler.RoundBudget
	engine.Seed = cfg.Scheduler.Seed
	engine.BacktrackLimit = cfg.Scheduler.BacktrackLimit
	engine.AllowPartial = cfg.Scheduler.AllowPartial
	engine.Weights = scheduler.Weights{
		models.CostStaffPreference:  cfg.Weights.StaffPreference,
		models.CostFragmentation:    cfg.Weights.Fragmentation,
		models.CostFacilityMismatch: cfg.Weights.FacilityMismatch,
		models.CostCapacityWaste:    cfg.Weights.CapacityWaste,
	}
	return engine
}

// ApplyOverrides returns base with the per-run overrides applied. A grid
// pinned by the dataset wins over the configured one.
func ApplyOverrides(base scheduler.Config, overrides dto.RunOverrides, grid *models.Grid) scheduler.Config {
	cfg := base
	if overrides.MaxAttempts != nil {
		cfg.MaxAttempts = *overrides.MaxAttempts
	}
	if overrides.RoundBudget != nil {
		cfg.RoundBudget = *overrides.RoundBudget
	}
	if overrides.Seed != nil {
		cfg.Seed = *overrides.Seed
	}
	if overrides.BacktrackLimit != nil {
		cfg.BacktrackLimit = *overrides.BacktrackLimit
	}
	if overrides.AllowPartial != nil {
		cfg.AllowPartial = *overrides.AllowPartial
	}
	if grid != nil {
		cfg.Grid = *grid
	}
	return cfg
}
