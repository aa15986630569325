package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func (r *runner) newUserCommand() *Command {
	return group("user", "Provision users and change their access",
		r.newUserCreateCommand(),
		r.newUserGetCommand(),
		r.newUserAssignCommand(),
		r.newUserStatusCommand(),
		r.newUserGrantCommand(true),
		r.newUserGrantCommand(false),
	)
}

func (r *runner) newUserCreateCommand() *Command {
	cmd := leaf("user create", "Create a user on an existing role")
	id := cmd.Flags.String("id", "", "User id (generated when empty)")
	email := cmd.Flags.String("email", "", "Email address")
	role := cmd.Flags.String("role", "", "Role id")
	status := cmd.Flags.String("status", string(rbac.UserActive), "Initial status")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			user, err := a.Users.CreateUser(ctx, *actor, rbac.CreateUserRequest{
				ID:     *id,
				Email:  *email,
				RoleID: *role,
				Status: rbac.UserStatus(*status),
			})
			if err != nil {
				return err
			}
			printUser(r.out, user)
			return nil
		})
	}
	return cmd
}

func (r *runner) newUserGetCommand() *Command {
	cmd := leaf("user get", "Show a user and their effective permissions")
	id := cmd.Flags.String("id", "", "User id")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			user, err := a.Users.Get(ctx, *id)
			if err != nil {
				return err
			}
			res, err := a.Cache.Resolve(ctx, *id)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, res)
			}
			printUser(r.out, user)
			fmt.Fprintf(r.out, "  effective permissions (%d):\n", len(res.Permissions))
			for _, p := range res.Permissions {
				fmt.Fprintf(r.out, "    %s\n", p)
			}
			return nil
		})
	}
	return cmd
}

func (r *runner) newUserAssignCommand() *Command {
	cmd := leaf("user assign", "Move a user to a role")
	id := cmd.Flags.String("id", "", "User id")
	role := cmd.Flags.String("role", "", "Role id")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" || *role == "" {
			return fmt.Errorf("-id and -role are required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			user, err := a.Users.AssignRole(ctx, *actor, *id, *role)
			if err != nil {
				return err
			}
			printUser(r.out, user)
			return nil
		})
	}
	return cmd
}

func (r *runner) newUserStatusCommand() *Command {
	cmd := leaf("user status", "Activate, deactivate or suspend a user")
	id := cmd.Flags.String("id", "", "User id")
	status := cmd.Flags.String("status", "", "active, inactive, pending or suspended")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" || *status == "" {
			return fmt.Errorf("-id and -status are required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			user, err := a.Users.SetStatus(ctx, *actor, *id, rbac.UserStatus(*status))
			if err != nil {
				return err
			}
			printUser(r.out, user)
			return nil
		})
	}
	return cmd
}

// newUserGrantCommand builds "grant" or, with grant false, "revoke"
func (r *runner) newUserGrantCommand(grant bool) *Command {
	name, description := "grant", "Grant custom permissions to a user"
	if !grant {
		name, description = "revoke", "Revoke custom permissions from a user"
	}
	cmd := leaf("user "+name, description)
	id := cmd.Flags.String("id", "", "User id")
	permissions := cmd.Flags.String("permissions", "", "Comma-separated permissions")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		perms := splitList(*permissions)
		if *id == "" || len(perms) == 0 {
			return fmt.Errorf("-id and -permissions are required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			var user *rbac.User
			var err error
			if grant {
				user, err = a.Users.GrantCustomPermissions(ctx, *actor, *id, perms)
			} else {
				user, err = a.Users.RevokeCustomPermissions(ctx, *actor, *id, perms)
			}
			if err != nil {
				return err
			}
			printUser(r.out, user)
			return nil
		})
	}
	return cmd
}
