package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all directory schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create role_bindings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_bindings (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL,
					identity TEXT NOT NULL,
					role_name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by TEXT,
					UNIQUE(org_id, identity, role_name)
				);

				CREATE INDEX idx_role_bindings_org_identity ON role_bindings(org_id, identity);
				CREATE INDEX idx_role_bindings_org_role ON role_bindings(org_id, role_name);
			`,
		},
		{
			Version:     2,
			Description: "Create acl_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS acl_entries (
					id BIGSERIAL PRIMARY KEY,
					org_id TEXT NOT NULL,
					role_name TEXT NOT NULL,
					path TEXT NOT NULL,
					actions JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(org_id, role_name, path)
				);

				CREATE INDEX idx_acl_entries_org_role ON acl_entries(org_id, role_name);
			`,
		},
		{
			Version:     3,
			Description: "Create api_keys table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id TEXT PRIMARY KEY,
					org_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					key_hash TEXT NOT NULL UNIQUE,
					key_prefix TEXT NOT NULL,
					name TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_api_keys_org_id ON api_keys(org_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations inside transactions,
// tracking applied versions in gatehouse_migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gatehouse_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM gatehouse_migrations ORDER BY version")
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

		logger.WithFields(map[string]interface{}{
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
			"INSERT INTO gatehouse_migrations (version, description) VALUES ($1, $2)",
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
