package invitations

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

// MigrationComponent names the invitations schema in schema_migrations
const MigrationComponent = "invitations"

// GetMigrations returns all invitation migrations
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(320) NOT NULL,
					role_id VARCHAR(36) NOT NULL,
					invited_by VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP NULL,
					accepted_by VARCHAR(64) NULL,
					cancelled_at TIMESTAMP NULL,
					cancelled_by VARCHAR(64) NULL,
					resend_count INTEGER NOT NULL DEFAULT 0,
					last_sent_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending_email
					ON invitations(email) WHERE status = 'pending';
				CREATE INDEX IF NOT EXISTS idx_invitations_status_expires ON invitations(status, expires_at);
				CREATE INDEX IF NOT EXISTS idx_invitations_created_at ON invitations(created_at);
			`,
		},
	}
}

// RunMigrations applies pending invitation migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	return storage.RunMigrations(ctx, db, MigrationComponent, GetMigrations(), logger)
}
