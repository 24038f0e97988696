package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all tracker migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and projects tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					role VARCHAR(32) NOT NULL DEFAULT 'USER',
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_is_deleted ON users(is_deleted);

				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					manager_version BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create project_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_memberships (
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id),
					role VARCHAR(32) NOT NULL CHECK (role IN ('PROJECT_MANAGER', 'DEVELOPER', 'QA')),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (project_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_project_memberships_user_id ON project_memberships(user_id);

				-- at most one manager per project
				CREATE UNIQUE INDEX IF NOT EXISTS idx_project_memberships_manager
					ON project_memberships(project_id) WHERE role = 'PROJECT_MANAGER';
			`,
		},
		{
			Version:     3,
			Description: "Create issues and work_logs tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS issues (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					assignee_id BIGINT REFERENCES users(id),
					title VARCHAR(255) NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_issues_project_id ON issues(project_id);

				CREATE TABLE IF NOT EXISTS work_logs (
					id BIGSERIAL PRIMARY KEY,
					issue_id BIGINT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id),
					duration_seconds BIGINT NOT NULL DEFAULT 0,
					start_date DATE NOT NULL,
					end_date DATE NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_work_logs_issue_id ON work_logs(issue_id);
			`,
		},
	}
}

// RunMigrations applies all pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tracker_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM tracker_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tracker_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
