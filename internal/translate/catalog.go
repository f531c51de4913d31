package translate

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// catalogMigration is a single schema step for the installed package catalog.
type catalogMigration struct {
	Version     int
	Description string
	SQL         string
}

var catalogMigrations = []catalogMigration{
	{
		Version:     1,
		Description: "installed translation packages",
		SQL: `
		CREATE TABLE IF NOT EXISTS installed_packages (
			from_code    TEXT NOT NULL,
			to_code      TEXT NOT NULL,
			version      TEXT NOT NULL DEFAULT '',
			path         TEXT NOT NULL,
			installed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (from_code, to_code)
		);
		`,
	},
}

// migrateCatalog applies pending catalog migrations, tracked in the
// schema_version table.
func migrateCatalog(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current := 0
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range catalogMigrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO schema_version (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.Version, err)
		}
		logger.Debug("catalog migration applied", "version", m.Version, "description", m.Description)
	}
	return nil
}
