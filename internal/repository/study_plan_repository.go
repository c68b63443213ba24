package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type studyPlanRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Position int    `db:"position"`
}

type courseRow struct {
	PlanID    string         `db:"plan_id"`
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	GroupSize int            `db:"group_size"`
	Sessions  types.JSONText `db:"sessions"`
	Position  int            `db:"position"`
}

// StudyPlanRepository manages study plans and their courses.
type StudyPlanRepository struct {
	db *sqlx.DB
}

// NewStudyPlanRepository constructs a StudyPlanRepository.
func NewStudyPlanRepository(db *sqlx.DB) *StudyPlanRepository {
	return &StudyPlanRepository{db: db}
}

func (r *StudyPlanRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns the requested plans in stored order, every plan when ids is empty.
// Courses keep their declaration order.
func (r *StudyPlanRepository) List(ctx context.Context, ids []string) ([]models.StudyPlan, error) {
	query := `SELECT id, name, position FROM study_plans`
	var args []interface{}
	if len(ids) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE id IN (?)`, ids)
		if err != nil {
			return nil, fmt.Errorf("build study plan query: %w", err)
		}
	}
	query += ` ORDER BY position, id`

	var planRows []studyPlanRow
	if err := r.db.SelectContext(ctx, &planRows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list study plans: %w", err)
	}
	if len(planRows) == 0 {
		return []models.StudyPlan{}, nil
	}

	planIDs := make([]string, len(planRows))
	for i, row := range planRows {
		planIDs[i] = row.ID
	}
	courseQuery, courseArgs, err := sqlx.In(`SELECT plan_id, id, name, group_size, sessions, position FROM courses WHERE plan_id IN (?) ORDER BY plan_id, position, id`, planIDs)
	if err != nil {
		return nil, fmt.Errorf("build course query: %w", err)
	}
	var courseRows []courseRow
	if err := r.db.SelectContext(ctx, &courseRows, r.db.Rebind(courseQuery), courseArgs...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	courses := make(map[string][]models.Course, len(planRows))
	for _, row := range courseRows {
		course := models.Course{ID: row.ID, Name: row.Name, GroupSize: row.GroupSize}
		if len(row.Sessions) > 0 {
			if err := json.Unmarshal(row.Sessions, &course.Sessions); err != nil {
				return nil, fmt.Errorf("decode sessions of course %s/%s: %w", row.PlanID, row.ID, err)
			}
		}
		courses[row.PlanID] = append(courses[row.PlanID], course)
	}

	plans := make([]models.StudyPlan, len(planRows))
	for i, row := range planRows {
		plans[i] = models.StudyPlan{ID: row.ID, Name: row.Name, Courses: courses[row.ID]}
	}
	return plans, nil
}

// Upsert writes a plan and replaces its course list.
func (r *StudyPlanRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, plan models.StudyPlan, position int) error {
	target := r.exec(exec)

	const planQuery = `
INSERT INTO study_plans (id, name, position)
VALUES (:id, :name, :position)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    position = EXCLUDED.position`
	if _, err := sqlx.NamedExecContext(ctx, target, planQuery, studyPlanRow{ID: plan.ID, Name: plan.Name, Position: position}); err != nil {
		return fmt.Errorf("upsert study plan %s: %w", plan.ID, err)
	}

	if _, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM courses WHERE plan_id = ?`), plan.ID); err != nil {
		return fmt.Errorf("clear courses of %s: %w", plan.ID, err)
	}

	const courseQuery = `
INSERT INTO courses (plan_id, id, name, group_size, sessions, position)
VALUES (:plan_id, :id, :name, :group_size, :sessions, :position)`
	for i, course := range plan.Courses {
		sessions, err := json.Marshal(course.Sessions)
		if err != nil {
			return fmt.Errorf("encode sessions of course %s: %w", course.ID, err)
		}
		row := courseRow{
			PlanID:    plan.ID,
			ID:        course.ID,
			Name:      course.Name,
			GroupSize: course.GroupSize,
			Sessions:  types.JSONText(sessions),
			Position:  i,
		}
		if _, err := sqlx.NamedExecContext(ctx, target, courseQuery, row); err != nil {
			return fmt.Errorf("insert course %s/%s: %w", plan.ID, course.ID, err)
		}
	}
	return nil
}
