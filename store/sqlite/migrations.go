/*
migrations.go - Append-only schema migrations for the sqlite backend

PURPOSE:
  A linearly versioned list of migration statements compiled into the
  binary. Two bookkeeping tables track the schema: vss_db_version holds
  the single current version row, vss_db_upgrades is a write-only log of
  every starting version an upgrade ran from.

RULES:
  - The migrations list is append-only. Existing entries MUST NOT change.
  - All pending statements run inside one transaction together with the
    version bump and the upgrade-log append.
  - A database ahead of the binary refuses to start; downgrades are not
    supported.
  - The data table is CREATE TABLE IF NOT EXISTS because operators may
    have provisioned it externally.

SEE ALSO:
  - sqlite.go: runs Migrate on open
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

const (
	getVersionStmt    = "SELECT db_version FROM vss_db_version;"
	updateVersionStmt = "UPDATE vss_db_version SET db_version = ?;"
	logMigrationStmt  = "INSERT INTO vss_db_upgrades VALUES(?);"
)

// APPEND-ONLY list of migration statements.
//
// Each statement is applied in order, exactly once per database.
var migrations = []string{
	"CREATE TABLE vss_db_version (db_version INTEGER);",
	"INSERT INTO vss_db_version VALUES(1);",
	// A write-only log of all the migrations performed on this database,
	// useful for debugging and testing.
	"CREATE TABLE vss_db_upgrades (upgrade_from INTEGER);",
	// Operators may have created this table themselves, so do not complain
	// if it already exists.
	`CREATE TABLE IF NOT EXISTS vss_db (
		user_token TEXT NOT NULL CHECK (user_token <> ''),
		store_id TEXT NOT NULL CHECK (store_id <> ''),
		key TEXT NOT NULL,
		value BLOB,
		version INTEGER NOT NULL,
		created_at TEXT,
		last_updated_at TEXT,
		PRIMARY KEY (user_token, store_id, key)
	);`,
}

// Migrate brings the schema up to the version this binary was built with.
// It returns the starting and ending schema versions.
func Migrate(db *sql.DB) (int, int, error) {
	return migrate(db, migrations)
}

func migrate(db *sql.DB, stmts []string) (int, int, error) {
	start := 0
	err := db.QueryRow(getVersionStmt).Scan(&start)
	switch {
	case err == nil:
	case isMissingTable(err):
		// Fresh database, start from migration 0.
		start = 0
	default:
		return 0, 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	if start == len(stmts) {
		return start, len(stmts), nil
	}
	if start > len(stmts) {
		return 0, 0, fmt.Errorf(
			"database schema version %d is newer than this binary supports (%d): downgrades are not allowed",
			start, len(stmts))
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts[start:] {
		if _, err := tx.Exec(stmt); err != nil {
			return 0, 0, fmt.Errorf("migration %d failed: %w", start+i, err)
		}
	}

	res, err := tx.Exec(logMigrationStmt, start)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to log migration: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return 0, 0, fmt.Errorf("migration log append affected %d rows: %v", n, err)
	}

	res, err = tx.Exec(updateVersionStmt, len(stmts))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to update schema version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return 0, 0, fmt.Errorf("schema version update affected %d rows: %v", n, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return start, len(stmts), nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
