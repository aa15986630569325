package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperrors"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setupSQLiteLogger(t *testing.T) *DBLogger {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, err := NewDBLogger(db, time.Second)
	require.NoError(t, err)
	return logger
}

func testEntry(id string, at time.Time, action Action, actor string) *Entry {
	return &Entry{
		ID:          id,
		ActorUserID: actor,
		Action:      action,
		EntityType:  EntityRole,
		EntityID:    "role-1",
		Severity:    SeverityInfo,
		CreatedAt:   at,
	}
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db, time.Second)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Equal(t, "db", logger.Name())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil, time.Second)
		assert.Error(t, err)
		assert.Nil(t, logger)
	})

	t.Run("table creation fails", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("permission denied"))

		_, err := NewDBLogger(db, time.Second)
		assert.ErrorContains(t, err, "failed to ensure audit_logs table")
	})
}

func TestDBLogger_WriteError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(db, time.Second)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

	err = logger.Write(context.Background(), testEntry("01A", testNow, ActionRoleCreate, "u"))
	assert.ErrorContains(t, err, "failed to insert audit log")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_ListAuditLogsQueryShape(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(db, time.Second)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs WHERE 1=1 AND actor_user_id = \$1 AND action IN \(\$2, \$3\)`).
		WithArgs("owner", "ROLE_CREATE", "ROLE_DELETE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("owner", "ROLE_CREATE", "ROLE_DELETE", DefaultPageSize, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	page, err := logger.ListAuditLogs(context.Background(), Filter{
		ActorUserID: "owner",
		Actions:     []Action{ActionRoleCreate, ActionRoleDelete},
	})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_ReadsFromReader(t *testing.T) {
	primary, primaryMock := setupMockDB(t)
	replica, replicaMock := setupMockDB(t)
	primaryMock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(primary, time.Second, WithReader(func() *sql.DB { return replica }))
	require.NoError(t, err)

	primaryMock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, logger.Write(context.Background(), testEntry("01A", testNow, ActionRoleCreate, "u")))

	replicaMock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	replicaMock.ExpectQuery(`ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	replicaMock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT actor_user_id\)`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "actors"}).AddRow(0, 0))
	replicaMock.ExpectQuery(`GROUP BY action`).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}))
	replicaMock.ExpectQuery(`GROUP BY severity`).
		WillReturnRows(sqlmock.NewRows([]string{"severity", "count"}))

	_, err = logger.ListAuditLogs(context.Background(), Filter{})
	require.NoError(t, err)
	_, err = logger.Stats(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.NoError(t, primaryMock.ExpectationsWereMet())
	assert.NoError(t, replicaMock.ExpectationsWereMet())
}

func TestDBLogger_ListAuditLogsStoreError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	logger, err := NewDBLogger(db, time.Second)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("timeout"))

	_, err = logger.ListAuditLogs(context.Background(), Filter{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindStoreUnavailable))
}

func TestDBLogger_SQLiteRoundTrip(t *testing.T) {
	logger := setupSQLiteLogger(t)
	ctx := context.Background()

	first := testEntry("01HZZZZZZZZZZZZZZZZZZZZZA1", testNow, ActionRoleCreate, "owner")
	first.Details = map[string]interface{}{"name": "Manager", "level": float64(2)}
	first.IPAddress = "127.0.0.1"
	second := testEntry("01HZZZZZZZZZZZZZZZZZZZZZA2", testNow.Add(time.Minute), ActionRoleDelete, "owner")
	second.Severity = SeverityWarning
	third := testEntry("01HZZZZZZZZZZZZZZZZZZZZZA3", testNow.Add(2*time.Minute), ActionUserCreate, "manager")
	third.EntityType = EntityUser

	for _, e := range []*Entry{first, second, third} {
		require.NoError(t, logger.Write(ctx, e))
	}

	t.Run("newest first", func(t *testing.T) {
		page, err := logger.ListAuditLogs(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Entries, 3)
		assert.Equal(t, third.ID, page.Entries[0].ID)
		assert.Equal(t, first.ID, page.Entries[2].ID)
		assert.False(t, page.HasMore())
	})

	t.Run("filters", func(t *testing.T) {
		page, err := logger.ListAuditLogs(ctx, Filter{ActorUserID: "owner", Severity: SeverityWarning})
		require.NoError(t, err)
		require.Len(t, page.Entries, 1)
		assert.Equal(t, second.ID, page.Entries[0].ID)

		start := testNow.Add(30 * time.Second)
		page, err = logger.ListAuditLogs(ctx, Filter{Start: &start, EntityType: EntityRole})
		require.NoError(t, err)
		require.Len(t, page.Entries, 1)
		assert.Equal(t, second.ID, page.Entries[0].ID)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := logger.ListAuditLogs(ctx, Filter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Entries, 2)
		assert.Equal(t, second.ID, page.Entries[0].ID)
		assert.False(t, page.HasMore())
	})

	t.Run("get", func(t *testing.T) {
		got, err := logger.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Manager", got.Details["name"])
		assert.Equal(t, "127.0.0.1", got.IPAddress)
		assert.True(t, testNow.Equal(got.CreatedAt))

		_, err = logger.Get(ctx, "missing")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := logger.Stats(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalEntries)
		assert.Equal(t, int64(2), stats.UniqueActors)
		assert.Equal(t, int64(1), stats.ByAction[ActionRoleDelete])
		assert.Equal(t, int64(2), stats.BySeverity[SeverityInfo])
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		assert.Error(t, logger.Write(ctx, first))
	})

	t.Run("cleanup", func(t *testing.T) {
		removed, err := logger.Cleanup(ctx, RetentionPolicy{RetentionDays: 1}, testNow.Add(24*time.Hour+90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		page, err := logger.ListAuditLogs(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, page.Entries, 1)
		assert.Equal(t, third.ID, page.Entries[0].ID)
	})
}
