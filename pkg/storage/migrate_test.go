package storage

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	migrations := []Migration{
		{Version: 1, Description: "widgets", SQL: `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`},
		{Version: 2, Description: "widget names", SQL: `ALTER TABLE widgets ADD COLUMN name TEXT`},
	}

	require.NoError(t, RunMigrations(ctx, db, "widgets", migrations, nil))
	// applying again is a no-op
	require.NoError(t, RunMigrations(ctx, db, "widgets", migrations, nil))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE component = $1", "widgets").Scan(&count))
	assert.Equal(t, 2, count)

	_, err = db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'a')")
	assert.NoError(t, err)
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	err = RunMigrations(context.Background(), db, "broken", []Migration{
		{Version: 1, Description: "bad", SQL: `CREATE TABLE oops (`},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken migration 1")

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Zero(t, count)
}
