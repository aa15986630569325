package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/storage"
)

// RetentionPolicy bounds how long audit entries are kept
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy keeps entries for roughly seven years
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 7 * 365}
}

// Collect pages through store and returns every entry matching filter,
// newest first. filter.Limit is used as the page size.
func Collect(ctx context.Context, store Store, filter Filter) ([]*Entry, error) {
	filter = filter.Normalize()
	filter.Offset = 0

	var all []*Entry
	for {
		page, err := store.ListAuditLogs(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		if !page.HasMore() || len(page.Entries) == 0 {
			return all, nil
		}
		filter.Offset += len(page.Entries)
	}
}

// ExportStore collects every matching entry and renders it in format
func ExportStore(ctx context.Context, store Store, filter Filter, format ExportFormat) ([]byte, error) {
	entries, err := Collect(ctx, store, filter)
	if err != nil {
		return nil, err
	}
	return Export(entries, format)
}

// Cleanup removes entries older than the retention period relative to now
func (l *DBLogger) Cleanup(ctx context.Context, policy RetentionPolicy, now time.Time) (int64, error) {
	ctx, cancel := storage.WithTimeout(ctx, l.timeout)
	defer cancel()

	cutoff := now.UTC().AddDate(0, 0, -policy.RetentionDays)

	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, storage.Classify("audit.DBLogger.Cleanup", err, "failed to delete expired audit logs")
	}

	return result.RowsAffected()
}
