package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type facilityRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Type         string         `db:"type"`
	Capacity     int            `db:"capacity"`
	Specialist   bool           `db:"specialist"`
	Availability types.JSONText `db:"availability"`
}

// FacilityRepository manages lecture halls and labs.
type FacilityRepository struct {
	db *sqlx.DB
}

// NewFacilityRepository constructs a FacilityRepository.
func NewFacilityRepository(db *sqlx.DB) *FacilityRepository {
	return &FacilityRepository{db: db}
}

// List returns every facility ordered by id.
func (r *FacilityRepository) List(ctx context.Context) ([]models.Facility, error) {
	const query = `SELECT id, name, type, capacity, specialist, availability FROM facilities ORDER BY id`
	var rows []facilityRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}

	facilities := make([]models.Facility, 0, len(rows))
	for _, row := range rows {
		availability, err := decodeWindows(row.Availability)
		if err != nil {
			return nil, fmt.Errorf("decode availability of facility %s: %w", row.ID, err)
		}
		facilities = append(facilities, models.Facility{
			ID:           row.ID,
			Name:         row.Name,
			Type:         models.FacilityType(row.Type),
			Capacity:     row.Capacity,
			Specialist:   row.Specialist,
			Availability: availability,
		})
	}
	return facilities, nil
}

// Upsert inserts or updates a facility.
func (r *FacilityRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, facility models.Facility) error {
	if exec == nil {
		exec = r.db
	}
	availability, err := encodeWindows(facility.Availability)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO facilities (id, name, type, capacity, specialist, availability)
VALUES (:id, :name, :type, :capacity, :specialist, :availability)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    type = EXCLUDED.type,
    capacity = EXCLUDED.capacity,
    specialist = EXCLUDED.specialist,
    availability = EXCLUDED.availability`
	row := facilityRow{
		ID:           facility.ID,
		Name:         facility.Name,
		Type:         string(facility.Type),
		Capacity:     facility.Capacity,
		Specialist:   facility.Specialist,
		Availability: availability,
	}
	if _, err := sqlx.NamedExecContext(ctx, exec, query, row); err != nil {
		return fmt.Errorf("upsert facility %s: %w", facility.ID, err)
	}
	return nil
}
