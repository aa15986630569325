package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func (r *runner) newRoleCommand() *Command {
	return group("role", "Create, inspect and change roles",
		r.newRoleCreateCommand(),
		r.newRoleGetCommand(),
		r.newRoleListCommand(),
		r.newRoleUpdateCommand(),
		r.newRoleDeleteCommand(),
		r.newRoleSeedCommand(),
		r.newRolePermissionsCommand(),
	)
}

func (r *runner) newRoleCreateCommand() *Command {
	cmd := leaf("role create", "Create a role")
	name := cmd.Flags.String("name", "", "Role name")
	description := cmd.Flags.String("description", "", "Role description")
	level := cmd.Flags.Int("level", int(rbac.LevelViewer), "Role level (1 = owner ... 4 = viewer)")
	permissions := cmd.Flags.String("permissions", "", "Comma-separated permissions, e.g. leases:read,leases:renew")
	custom := cmd.Flags.Bool("custom", false, "Allow per-user custom permissions")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			role, err := a.Roles.Create(ctx, *actor, rbac.CreateRoleRequest{
				Name:                     *name,
				Description:              *description,
				Level:                    rbac.RoleLevel(*level),
				Permissions:              splitList(*permissions),
				CustomPermissionsAllowed: *custom,
			})
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, role)
			}
			printRole(r.out, role)
			return nil
		})
	}
	return cmd
}

func (r *runner) newRoleGetCommand() *Command {
	cmd := leaf("role get", "Show a role by id or name")
	id := cmd.Flags.String("id", "", "Role id")
	name := cmd.Flags.String("name", "", "Role name")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if (*id == "") == (*name == "") {
			return fmt.Errorf("exactly one of -id or -name is required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			var role *rbac.Role
			var err error
			if *id != "" {
				role, err = a.Roles.Get(ctx, *id)
			} else {
				role, err = a.Roles.GetByName(ctx, *name)
			}
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, role)
			}
			printRole(r.out, role)
			return nil
		})
	}
	return cmd
}

func (r *runner) newRoleListCommand() *Command {
	cmd := leaf("role list", "List roles ordered by level")
	contains := cmd.Flags.String("name", "", "Only roles whose name contains this text")
	level := cmd.Flags.Int("level", 0, "Only roles at this level")
	limit := cmd.Flags.Int("limit", 0, "Maximum roles to return")
	offset := cmd.Flags.Int("offset", 0, "Roles to skip")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			roles, err := a.Roles.List(ctx, rbac.RoleFilter{
				NameContains: *contains,
				Level:        rbac.RoleLevel(*level),
				Limit:        *limit,
				Offset:       *offset,
			})
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, roles)
			}
			return printRoles(r.out, roles)
		})
	}
	return cmd
}

func (r *runner) newRoleUpdateCommand() *Command {
	cmd := leaf("role update", "Change a role; only the given flags are applied")
	id := cmd.Flags.String("id", "", "Role id")
	name := cmd.Flags.String("name", "", "New name")
	description := cmd.Flags.String("description", "", "New description")
	level := cmd.Flags.Int("level", 0, "New level")
	permissions := cmd.Flags.String("permissions", "", "Replacement comma-separated permission list")
	custom := cmd.Flags.Bool("custom", false, "Allow per-user custom permissions")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}

		var update rbac.RoleUpdate
		cmd.Flags.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				update.Name = name
			case "description":
				update.Description = description
			case "level":
				l := rbac.RoleLevel(*level)
				update.Level = &l
			case "permissions":
				perms := splitList(*permissions)
				if perms == nil {
					perms = []string{}
				}
				update.Permissions = &perms
			case "custom":
				update.CustomPermissionsAllowed = custom
			}
		})

		return r.with(func(ctx context.Context, a *app.App) error {
			role, err := a.Roles.Update(ctx, *actor, *id, update)
			if err != nil {
				return err
			}
			printRole(r.out, role)
			return nil
		})
	}
	return cmd
}

func (r *runner) newRoleDeleteCommand() *Command {
	cmd := leaf("role delete", "Delete a role no user holds")
	id := cmd.Flags.String("id", "", "Role id")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			if err := a.Roles.Delete(ctx, *actor, *id); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Deleted role %s\n", *id)
			return nil
		})
	}
	return cmd
}

func (r *runner) newRoleSeedCommand() *Command {
	cmd := leaf("role seed", "Create any missing built-in role")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			created, err := rbac.SeedBuiltInRoles(ctx, a.Roles, *actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Seeded %d built-in roles\n", len(created))
			return nil
		})
	}
	return cmd
}

func (r *runner) newRolePermissionsCommand() *Command {
	cmd := leaf("role permissions", "List the permission catalog")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			perms := a.Catalog.List()
			if *asJSON {
				return writeJSON(r.out, perms)
			}
			for _, p := range perms {
				fmt.Fprintf(r.out, "%-28s %s\n", p.Name, p.Description)
			}
			return nil
		})
	}
	return cmd
}
