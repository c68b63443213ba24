package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type staffRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	MaxWeeklyLoad    int            `db:"max_weekly_load"`
	MaxDailyLoad     int            `db:"max_daily_load"`
	PreferenceWeight float64        `db:"preference_weight"`
	Availability     types.JSONText `db:"availability"`
	Preferred        types.JSONText `db:"preferred"`
}

// StaffRepository manages lecturers and teaching assistants.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs a StaffRepository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// List returns every staff member ordered by id.
func (r *StaffRepository) List(ctx context.Context) ([]models.Staff, error) {
	const query = `SELECT id, name, max_weekly_load, max_daily_load, preference_weight, availability, preferred FROM staff ORDER BY id`
	var rows []staffRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}

	staff := make([]models.Staff, 0, len(rows))
	for _, row := range rows {
		member := models.Staff{
			ID:               row.ID,
			Name:             row.Name,
			MaxWeeklyLoad:    row.MaxWeeklyLoad,
			MaxDailyLoad:     row.MaxDailyLoad,
			PreferenceWeight: row.PreferenceWeight,
		}
		var err error
		if member.Availability, err = decodeWindows(row.Availability); err != nil {
			return nil, fmt.Errorf("decode availability of staff %s: %w", row.ID, err)
		}
		if member.Preferred, err = decodeWindows(row.Preferred); err != nil {
			return nil, fmt.Errorf("decode preferred windows of staff %s: %w", row.ID, err)
		}
		staff = append(staff, member)
	}
	return staff, nil
}

// Upsert inserts or updates a staff member.
func (r *StaffRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, member models.Staff) error {
	if exec == nil {
		exec = r.db
	}
	availability, err := encodeWindows(member.Availability)
	if err != nil {
		return err
	}
	preferred, err := encodeWindows(member.Preferred)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO staff (id, name, max_weekly_load, max_daily_load, preference_weight, availability, preferred)
VALUES (:id, :name, :max_weekly_load, :max_daily_load, :preference_weight, :availability, :preferred)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    max_weekly_load = EXCLUDED.max_weekly_load,
    max_daily_load = EXCLUDED.max_daily_load,
    preference_weight = EXCLUDED.preference_weight,
    availability = EXCLUDED.availability,
    preferred = EXCLUDED.preferred`
	row := staffRow{
		ID:               member.ID,
		Name:             member.Name,
		MaxWeeklyLoad:    member.MaxWeeklyLoad,
		MaxDailyLoad:     member.MaxDailyLoad,
		PreferenceWeight: member.PreferenceWeight,
		Availability:     availability,
		Preferred:        preferred,
	}
	if _, err := sqlx.NamedExecContext(ctx, exec, query, row); err != nil {
		return fmt.Errorf("upsert staff %s: %w", member.ID, err)
	}
	return nil
}

func decodeWindows(raw types.JSONText) ([]models.Window, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var windows []models.Window
	if err := json.Unmarshal(raw, &windows); err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}
	return windows, nil
}

func encodeWindows(windows []models.Window) (types.JSONText, error) {
	if len(windows) == 0 {
		return types.JSONText(`[]`), nil
	}
	raw, err := json.Marshal(windows)
	if err != nil {
		return nil, fmt.Errorf("encode windows: %w", err)
	}
	return types.JSONText(raw), nil
}
