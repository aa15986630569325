package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/storage"
)

// DBLogger writes audit entries to the audit_logs table and serves queries
// over it. The SQL is portable between PostgreSQL and SQLite.
type DBLogger struct {
	db      *sql.DB
	reader  func() *sql.DB
	timeout time.Duration
}

// DBLoggerOption configures a DBLogger
type DBLoggerOption func(*DBLogger)

// WithReader serves ListAuditLogs, Get and Stats from the connection pick
// returns on each call, typically a read replica. Writes and retention
// cleanup stay on the primary.
func WithReader(pick func() *sql.DB) DBLoggerOption {
	return func(l *DBLogger) {
		if pick != nil {
			l.reader = pick
		}
	}
}

// NewDBLogger creates a new database-backed audit sink and store
func NewDBLogger(db *sql.DB, timeout time.Duration, opts ...DBLoggerOption) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db, timeout: timeout}
	logger.reader = func() *sql.DB { return logger.db }
	for _, opt := range opts {
		opt(logger)
	}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id VARCHAR(26) PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		actor_user_id VARCHAR(64) NOT NULL,
		action VARCHAR(64) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id VARCHAR(64) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		details TEXT,
		ip_address VARCHAR(45),
		client_context TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
	`

	_, err := l.db.Exec(query)
	return err
}

func (l *DBLogger) Name() string { return "db" }

// Write inserts a single entry
func (l *DBLogger) Write(ctx context.Context, entry *Entry) error {
	ctx, cancel := storage.WithTimeout(ctx, l.timeout)
	defer cancel()

	var detailsJSON []byte
	if len(entry.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			id, created_at, actor_user_id, action, entity_type, entity_id,
			severity, details, ip_address, client_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := l.db.ExecContext(ctx, query,
		entry.ID, entry.CreatedAt.UTC(), entry.ActorUserID, string(entry.Action),
		string(entry.EntityType), entry.EntityID, string(entry.Severity),
		nullableString(string(detailsJSON)), nullableString(entry.IPAddress), nullableString(entry.ClientContext),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// buildWhere renders the filter as a WHERE clause with positional args
func buildWhere(filter Filter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.ActorUserID != "" {
		where += fmt.Sprintf(" AND actor_user_id = $%d", argCount)
		args = append(args, filter.ActorUserID)
		argCount++
	}

	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, string(a))
			argCount++
		}
		where += " AND action IN (" + strings.Join(placeholders, ", ") + ")"
	}

	if filter.EntityType != "" {
		where += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, string(filter.EntityType))
		argCount++
	}

	if filter.EntityID != "" {
		where += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, filter.EntityID)
		argCount++
	}

	if filter.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", argCount)
		args = append(args, string(filter.Severity))
		argCount++
	}

	if filter.Start != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, filter.Start.UTC())
		argCount++
	}

	if filter.End != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, filter.End.UTC())
	}

	return where, args
}

// ListAuditLogs returns one page of matching entries, newest first
func (l *DBLogger) ListAuditLogs(ctx context.Context, filter Filter) (*Page, error) {
	ctx, cancel := storage.WithTimeout(ctx, l.timeout)
	defer cancel()

	filter = filter.Normalize()
	where, args := buildWhere(filter)

	page := &Page{Limit: filter.Limit, Offset: filter.Offset, Entries: []*Entry{}}

	db := l.reader()
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&page.Total); err != nil {
		return nil, storage.Classify("audit.DBLogger.ListAuditLogs", err, "failed to count audit logs")
	}

	query := `SELECT id, created_at, actor_user_id, action, entity_type, entity_id,
		severity, details, ip_address, client_context FROM audit_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Classify("audit.DBLogger.ListAuditLogs", err, "failed to search audit logs")
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Classify("audit.DBLogger.ListAuditLogs", err, "error iterating audit logs")
	}

	return page, nil
}

// Get retrieves a single entry by ID
func (l *DBLogger) Get(ctx context.Context, id string) (*Entry, error) {
	ctx, cancel := storage.WithTimeout(ctx, l.timeout)
	defer cancel()

	row := l.reader().QueryRowContext(ctx, `SELECT id, created_at, actor_user_id, action, entity_type, entity_id,
		severity, details, ip_address, client_context FROM audit_logs WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, storage.Classify("audit.DBLogger.Get", err, "audit entry "+id)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var action, entityType, severity string
	var details, ip, clientContext sql.NullString

	if err := row.Scan(
		&entry.ID, &entry.CreatedAt, &entry.ActorUserID, &action, &entityType, &entry.EntityID,
		&severity, &details, &ip, &clientContext,
	); err != nil {
		return nil, err
	}

	entry.Action = Action(action)
	entry.EntityType = EntityType(entityType)
	entry.Severity = Severity(severity)
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.IPAddress = ip.String
	entry.ClientContext = clientContext.String

	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}

	return &entry, nil
}

// Stats summarizes entries in the optional time range
func (l *DBLogger) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	ctx, cancel := storage.WithTimeout(ctx, l.timeout)
	defer cancel()

	stats := &Stats{
		ByAction:   make(map[Action]int64),
		BySeverity: make(map[Severity]int64),
	}
	where, args := buildWhere(Filter{Start: start, End: end})

	db := l.reader()
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT actor_user_id) FROM audit_logs"+where, args...,
	).Scan(&stats.TotalEntries, &stats.UniqueActors)
	if err != nil {
		return nil, storage.Classify("audit.DBLogger.Stats", err, "failed to count audit logs")
	}

	if err := l.groupCount(ctx, db, "action", where, args, func(k string, n int64) { stats.ByAction[Action(k)] = n }); err != nil {
		return nil, err
	}
	if err := l.groupCount(ctx, db, "severity", where, args, func(k string, n int64) { stats.BySeverity[Severity(k)] = n }); err != nil {
		return nil, err
	}

	return stats, nil
}

func (l *DBLogger) groupCount(ctx context.Context, db *sql.DB, column, where string, args []interface{}, put func(string, int64)) error {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs%s GROUP BY %s", column, where, column), args...)
	if err != nil {
		return storage.Classify("audit.DBLogger.Stats", err, "failed to group audit logs by "+column)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		put(key, count)
	}
	return rows.Err()
}

// Close is a no-op; the connection is shared
func (l *DBLogger) Close() error {
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
