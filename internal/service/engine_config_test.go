package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/config"
)

func TestEngineConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Grid:      config.GridConfig{DaysPerWeek: 6, PeriodsPerDay: 10},
		Scheduler: config.SchedulerConfig{MaxAttempts: 7, RoundBudget: 20, Seed: 42, BacktrackLimit: 3, AllowPartial: false},
		Weights:   config.WeightsConfig{StaffPreference: 1, Fragmentation: 2, FacilityMismatch: 3, CapacityWaste: 4},
	}

	engine := EngineConfigFrom(cfg)
	assert.Equal(t, models.Grid{Days: 6, PeriodsPerDay: 10}, engine.Grid)
	assert.Equal(t, 7, engine.MaxAttempts)
	assert.Equal(t, 20, engine.RoundBudget)
	assert.Equal(t, int64(42), engine.Seed)
	assert.Equal(t, 3, engine.BacktrackLimit)
	assert.False(t, engine.AllowPartial)
	assert.Equal(t, 4.0, engine.Weights[models.CostCapacityWaste])

	assert.Equal(t, scheduler.DefaultConfig().MaxAttempts, EngineConfigFrom(nil).MaxAttempts)
}

func TestApplyOverrides(t *testing.T) {
	base := scheduler.DefaultConfig()
	seed := int64(99)
	allow := !base.AllowPartial
	grid := &models.Grid{Days: 3, PeriodsPerDay: 4}

	cfg := ApplyOverrides(base, dto.RunOverrides{MaxAttempts: intPtr(9), Seed: &seed, AllowPartial: &allow}, grid)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, seed, cfg.Seed)
	assert.Equal(t, allow, cfg.AllowPartial)
	assert.Equal(t, *grid, cfg.Grid)
	assert.Equal(t, base.RoundBudget, cfg.RoundBudget)

	unchanged := ApplyOverrides(base, dto.RunOverrides{}, nil)
	assert.Equal(t, base.Grid, unchanged.Grid)
	assert.Equal(t, base.MaxAttempts, unchanged.MaxAttempts)
}
