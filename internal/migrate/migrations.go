// Package migrate brings the SQLite schema up to date from embedded SQL files
// on every startup.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migrate applies every embedded migration newer than the recorded schema
// version, all inside a single transaction. Filenames are NNN_name.sql; the
// zero-padded prefix is both the ordering and the version.
func Migrate(db *sql.DB) error {
	names, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(path.Base(name), "%d_", &version); err != nil {
			return fmt.Errorf("migration filename %s: %w", name, err)
		}
		if version <= current {
			continue
		}
		stmts, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		slog.Info("applying migration", "name", path.Base(name), "version", version)
		if _, err := tx.Exec(string(stmts)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		current = version
	}
	return tx.Commit()
}
