// Package postgres opens the durable store and the shared Redis cache.
//
// ConnectionManager wraps a primary *sql.DB (lib/pq, or mattn/go-sqlite3 for
// embedded use) and round-robins reads across optional replicas.
// NewRedisClient returns a verified go-redis client used by the permission
// cache and by AcquireLock, which keeps the invitation sweeper to one
// instance at a time.
package postgres
