package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func (r *runner) newMigrateCommand() *Command {
	cmd := leaf("migrate", "Apply database migrations")
	seed := cmd.Flags.Bool("seed", false, "Create missing built-in roles after migrating")
	actor := cmd.Flags.String("actor", defaultActor(), "Actor recorded on seeded roles")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			if err := a.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(r.out, "Migrations applied")

			if !*seed {
				return nil
			}
			created, err := rbac.SeedBuiltInRoles(ctx, a.Roles, *actor)
			if err != nil {
				return fmt.Errorf("seeding built-in roles failed: %w", err)
			}
			for _, role := range created {
				fmt.Fprintf(r.out, "Created role %s (%s)\n", role.Name, role.ID)
			}
			fmt.Fprintf(r.out, "Seeded %d built-in roles\n", len(created))
			return nil
		})
	}
	return cmd
}
