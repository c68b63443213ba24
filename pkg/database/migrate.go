package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is portable between PostgreSQL and SQLite. Nested lists are stored as
// JSON text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS study_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		plan_id TEXT NOT NULL REFERENCES study_plans(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		group_size INTEGER NOT NULL,
		sessions TEXT NOT NULL DEFAULT '[]',
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (plan_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		max_weekly_load INTEGER NOT NULL DEFAULT 0,
		max_daily_load INTEGER NOT NULL DEFAULT 0,
		preference_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		availability TEXT NOT NULL DEFAULT '[]',
		preferred TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS facilities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		specialist BOOLEAN NOT NULL DEFAULT FALSE,
		availability TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_courses_plan ON courses(plan_id, position)`,
}

// Migrate creates the tables the repositories read from. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
