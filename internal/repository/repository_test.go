package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func TestStudyPlanRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudyPlanRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, position FROM study_plans WHERE id IN ($1, $2) ORDER BY position, id")).
		WithArgs("cs-1", "ee-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position"}).
			AddRow("cs-1", "Computer Science", 0).
			AddRow("ee-1", "Electrical", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT plan_id, id, name, group_size, sessions, position FROM courses WHERE plan_id IN ($1, $2) ORDER BY plan_id, position, id")).
		WithArgs("cs-1", "ee-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "id", "name", "group_size", "sessions", "position"}).
			AddRow("cs-1", "algo", "Algorithms", 60, types.JSONText(`[{"type":"lecture","weeklyCount":2,"duration":2,"staff":[{"staffId":"l1","groups":1}]}]`), 0).
			AddRow("cs-1", "calc", "Calculus", 60, types.JSONText(`[{"type":"lab","weeklyCount":1,"duration":2,"staff":[{"staffId":"t1"}],"preferredFacilities":["chem-lab"]}]`), 1))

	plans, err := repo.List(context.Background(), []string{"cs-1", "ee-1"})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	require.Len(t, plans[0].Courses, 2)
	assert.Equal(t, "algo", plans[0].Courses[0].ID)
	assert.Equal(t, models.SessionLecture, plans[0].Courses[0].Sessions[0].Type)
	assert.Equal(t, "l1", plans[0].Courses[0].Sessions[0].Staff[0].StaffID)
	assert.Equal(t, []string{"chem-lab"}, plans[0].Courses[1].Sessions[0].PreferredFacilities)
	assert.Empty(t, plans[1].Courses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyPlanRepositoryListEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, position FROM study_plans ORDER BY position, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position"}))

	plans, err := NewStudyPlanRepository(db).List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, plans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStaffRepositoryListDecodesWindows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, max_weekly_load, max_daily_load, preference_weight, availability, preferred FROM staff ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "max_weekly_load", "max_daily_load", "preference_weight", "availability", "preferred"}).
			AddRow("l1", "Ada", 10, 4, 1.5, types.JSONText(`[{"day":0,"start":0,"end":4}]`), types.JSONText(`[]`)))

	staff, err := NewStaffRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, []models.Window{{Day: 0, Start: 0, End: 4}}, staff[0].Availability)
	assert.Nil(t, staff[0].Preferred)
	assert.Equal(t, 1.5, staff[0].PreferenceWeight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO facilities").
		WithArgs("h1", "Hall 1", "hall", 120, false, types.JSONText(`[]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewFacilityRepository(db).Upsert(context.Background(), nil, models.Facility{ID: "h1", Name: "Hall 1", Type: models.FacilityHall, Capacity: 120})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepositoryListReadsSpecialistFlag(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, capacity, specialist, availability FROM facilities ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "capacity", "specialist", "availability"}).
			AddRow("chem-lab", "Chemistry Lab", "lab", 24, true, types.JSONText(`[]`)).
			AddRow("gen-lab", "General Lab", "lab", 30, false, types.JSONText(`[{"day":1,"start":0,"end":8}]`)))

	facilities, err := NewFacilityRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, facilities, 2)
	assert.True(t, facilities[0].Specialist)
	assert.False(t, facilities[1].Specialist)
	assert.Equal(t, []models.Window{{Day: 1, Start: 0, End: 8}}, facilities[1].Availability)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasetRepositoryImportRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDatasetRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO study_plans").
		WithArgs("cs-1", "Computer Science", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE plan_id = $1")).
		WithArgs("cs-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO courses").
		WithArgs("cs-1", "algo", "Algorithms", 30, sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO staff").
		WithArgs("l1", "Ada", 0, 0, 0.0, types.JSONText(`[]`), types.JSONText(`[]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO facilities").
		WithArgs("h1", "Hall 1", "hall", 30, false, types.JSONText(`[]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Import(context.Background(), &models.Dataset{
		Plans:      []models.StudyPlan{{ID: "cs-1", Name: "Computer Science", Courses: []models.Course{{ID: "algo", Name: "Algorithms", GroupSize: 30}}}},
		Staff:      []models.Staff{{ID: "l1", Name: "Ada"}},
		Facilities: []models.Facility{{ID: "h1", Name: "Hall 1", Type: models.FacilityHall, Capacity: 30}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasetRepositoryImportRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO staff").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := NewDatasetRepository(db).Import(context.Background(), &models.Dataset{Staff: []models.Staff{{ID: "l1", Name: "Ada"}}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasetRepositoryLoadUnknownPlan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, position FROM study_plans").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "position"}))

	_, err := NewDatasetRepository(db).Load(context.Background(), []string{"missing"})
	require.ErrorIs(t, err, ErrUnknownPlan)
	assert.NoError(t, mock.ExpectationsWereMet())
}
