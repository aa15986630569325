// Package audit records every security-relevant mutation made by the IAM
// core: role and user changes and invitation transitions.
//
// # Recording
//
// Services depend on the Emitter interface. The Recorder implementation
// stamps each entry with a ULID and a UTC timestamp, then writes it to a
// Sink. Writes are best effort from the caller's point of view: Record never
// returns an error and never blocks the mutation that triggered it. A failed
// write is logged at ERROR, counted in warden_audit_write_failures_total and
// published on Recorder.Failures.
//
//	recorder := audit.NewRecorder(dbLogger,
//		audit.WithLogger(logger),
//		audit.WithMetrics(metrics),
//	)
//	recorder.Record(ctx, actorID, audit.ActionRoleCreate, audit.EntityRole, roleID,
//		map[string]interface{}{"name": "Manager"}, audit.SeverityInfo)
//
// # Sinks
//
//   - DBLogger: the audit_logs table (PostgreSQL or SQLite), also a Store
//   - FileLogger: JSON lines with size-based rotation
//   - S3Sink: one immutable object per entry
//   - MultiLogger: fan-out to several sinks
//   - MemoryStore: in-process, for tests
//
// # Querying
//
// Store.ListAuditLogs returns pages ordered newest first. Collect walks every
// page and Export renders entries as JSON, NDJSON or CSV.
package audit
