package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// ErrUnknownPlan is returned when a requested study plan does not exist.
var ErrUnknownPlan = errors.New("unknown study plan")

// DatasetRepository reads and writes complete scheduling inputs.
type DatasetRepository struct {
	db         *sqlx.DB
	plans      *StudyPlanRepository
	staff      *StaffRepository
	facilities *FacilityRepository
}

// NewDatasetRepository constructs a DatasetRepository over one database.
func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{
		db:         db,
		plans:      NewStudyPlanRepository(db),
		staff:      NewStaffRepository(db),
		facilities: NewFacilityRepository(db),
	}
}

// Load returns the requested plans together with all staff and facilities.
// Unknown plan ids are reported as an error.
func (r *DatasetRepository) Load(ctx context.Context, planIDs []string) (*models.Dataset, error) {
	plans, err := r.plans.List(ctx, planIDs)
	if err != nil {
		return nil, err
	}
	if len(planIDs) > 0 {
		found := make(map[string]struct{}, len(plans))
		for _, p := range plans {
			found[p.ID] = struct{}{}
		}
		for _, id := range planIDs {
			if _, ok := found[id]; !ok {
				return nil, fmt.Errorf("%w: study plan %s", ErrUnknownPlan, id)
			}
		}
	}
	staff, err := r.staff.List(ctx)
	if err != nil {
		return nil, err
	}
	facilities, err := r.facilities.List(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Dataset{Plans: plans, Staff: staff, Facilities: facilities}, nil
}

// Import upserts the whole dataset in one transaction.
func (r *DatasetRepository) Import(ctx context.Context, dataset *models.Dataset) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, plan := range dataset.Plans {
		if err := r.plans.Upsert(ctx, tx, plan, i); err != nil {
			return err
		}
	}
	for _, member := range dataset.Staff {
		if err := r.staff.Upsert(ctx, tx, member); err != nil {
			return err
		}
	}
	for _, facility := range dataset.Facilities {
		if err := r.facilities.Upsert(ctx, tx, facility); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
