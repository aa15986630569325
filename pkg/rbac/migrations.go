package rbac

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

// MigrationComponent names the rbac schema in schema_migrations
const MigrationComponent = "rbac"

// GetMigrations returns all rbac migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					level INTEGER NOT NULL,
					permissions TEXT NOT NULL DEFAULT '[]',
					custom_permissions_allowed BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					created_by VARCHAR(64) NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_roles_level ON roles(level);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					email VARCHAR(320) NOT NULL UNIQUE,
					role_id VARCHAR(36) NOT NULL REFERENCES roles(id),
					status VARCHAR(16) NOT NULL,
					custom_permissions TEXT NOT NULL DEFAULT '[]',
					preferences TEXT NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
				CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
			`,
		},
	}
}

// RunMigrations applies pending rbac migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return storage.RunMigrations(ctx, db, MigrationComponent, GetMigrations(), logger)
}
