package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dummyMigration = "SELECT 1 WHERE 1 = 0;"

func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func schemaVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var version int
	require.NoError(t, db.QueryRow(getVersionStmt).Scan(&version))
	return version
}

func upgradesList(t *testing.T, db *sql.DB) []int {
	t.Helper()
	rows, err := db.Query("SELECT upgrade_from FROM vss_db_upgrades;")
	require.NoError(t, err)
	defer rows.Close()

	var upgrades []int
	for rows.Next() {
		var from int
		require.NoError(t, rows.Scan(&from))
		upgrades = append(upgrades, from)
	}
	require.NoError(t, rows.Err())
	return upgrades
}

func TestMigrateFreshDatabase(t *testing.T) {
	db := openRaw(t, filepath.Join(t.TempDir(), "vss.db"))

	start, end, err := migrate(db, migrations)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, len(migrations), end)

	assert.Equal(t, len(migrations), schemaVersion(t, db))
	assert.Equal(t, []int{0}, upgradesList(t, db))
}

func TestMigrateIsNoopWhenCurrent(t *testing.T) {
	db := openRaw(t, filepath.Join(t.TempDir(), "vss.db"))

	_, _, err := migrate(db, migrations)
	require.NoError(t, err)

	start, end, err := migrate(db, migrations)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), start)
	assert.Equal(t, len(migrations), end)

	// Re-running must not grow the upgrade log.
	assert.Equal(t, []int{0}, upgradesList(t, db))
}

func TestMigrateAppendedStatementsIncrementLog(t *testing.T) {
	db := openRaw(t, filepath.Join(t.TempDir(), "vss.db"))

	_, _, err := migrate(db, migrations)
	require.NoError(t, err)

	extended := append(append([]string{}, migrations...), dummyMigration)
	start, end, err := migrate(db, extended)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), start)
	assert.Equal(t, len(migrations)+1, end)
	assert.Equal(t, []int{0, len(migrations)}, upgradesList(t, db))

	extended = append(extended, dummyMigration, dummyMigration)
	start, end, err = migrate(db, extended)
	require.NoError(t, err)
	assert.Equal(t, len(migrations)+1, start)
	assert.Equal(t, len(migrations)+3, end)
	assert.Equal(t, []int{0, len(migrations), len(migrations) + 1}, upgradesList(t, db))
	assert.Equal(t, len(migrations)+3, schemaVersion(t, db))
}

func TestMigrateRefusesDowngrade(t *testing.T) {
	db := openRaw(t, filepath.Join(t.TempDir(), "vss.db"))

	extended := append(append([]string{}, migrations...), dummyMigration)
	_, _, err := migrate(db, extended)
	require.NoError(t, err)

	_, _, err = migrate(db, migrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downgrades are not allowed")
}

func TestMigrateFailureRollsBackCompletely(t *testing.T) {
	db := openRaw(t, filepath.Join(t.TempDir(), "vss.db"))

	broken := append(append([]string{}, migrations...), "THIS IS NOT SQL;")
	_, _, err := migrate(db, broken)
	require.Error(t, err)

	// Nothing from the failed run may stick, not even the valid prefix.
	_, err = db.Exec("SELECT db_version FROM vss_db_version;")
	require.Error(t, err)
}
