// Package config loads warden configuration from an optional YAML file and
// environment variables.
//
// Defaults are applied first, then the file named by WARDEN_CONFIG_FILE (or
// passed to Load), then any WARDEN_* variable that is set. The result is
// validated before it is returned.
//
// Store and Redis:
//
//	WARDEN_STORE_DRIVER="postgres"  # postgres, sqlite3
//	WARDEN_STORE_URL="postgres://localhost/warden?sslmode=disable"
//	WARDEN_STORE_TIMEOUT="5s"
//	WARDEN_REDIS_URL="redis://localhost:6379"
//
// Permission cache:
//
//	WARDEN_CACHE_BACKEND="lru"  # lru, redis
//	WARDEN_CACHE_TTL="5m"
//	WARDEN_CACHE_SIZE="10000"
//
// Invitations:
//
//	WARDEN_INVITATION_TTL="168h"
//	WARDEN_SWEEP_SCHEDULE="*/15 * * * *"
//
// Audit:
//
//	WARDEN_AUDIT_SINKS="db,file,s3"
//	WARDEN_AUDIT_FILE_PATH="/var/log/warden/audit"
//	WARDEN_AUDIT_S3_BUCKET="warden-audit"
//
// Observability:
//
//	WARDEN_LOG_LEVEL="info"  # debug, info, warn, error
//	WARDEN_OTEL_ENABLED="true"
//	WARDEN_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys in YAML:
//
//	storage:
//	  driver: postgres
//	  url: postgres://localhost/warden
//	cache:
//	  backend: redis
//	  ttl: 1m
//	audit:
//	  sinks: [db, s3]
//	  s3:
//	    bucket: warden-audit
package config
