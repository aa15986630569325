// Package storage holds the persistence plumbing shared by the IAM stores.
//
// # Overview
//
// The rbac, invitations and audit packages each own their SQL. This package
// gives them a common configuration shape and a single place that turns
// driver-level failures into apperrors kinds:
//
//   - sql.ErrNoRows                      -> NOT_FOUND
//   - unique constraint violations       -> ALREADY_EXISTS
//   - deadlines, bad connections, others -> STORE_UNAVAILABLE
//
// Both lib/pq (PostgreSQL) and mattn/go-sqlite3 are recognized, so the same
// stores run against an in-memory SQLite database in tests.
//
// # Timeouts
//
// Every store call is wrapped with WithTimeout so a slow or partitioned
// database surfaces as STORE_UNAVAILABLE instead of hanging the caller:
//
//	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
//	defer cancel()
//
// # Related Packages
//
//   - pkg/storage/postgres: connection management for PostgreSQL and Redis
//   - pkg/apperrors: error kinds
package storage
