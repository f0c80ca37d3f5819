package sqlite

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrator(db).Migrate())
	return db
}

func TestMigrator_CreatesAllTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{
		"entities", "drafts", "runs", "locks", "idempotency_records",
		"checks_snapshots", "deploy_observations", "verify_verdicts",
		"closure_records", "remediation_records", "events", "stop_decisions",
	} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}

func TestMigrator_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, NewMigrator(db).Migrate())
	require.NoError(t, NewMigrator(db).Migrate())

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, 1, version)
}
