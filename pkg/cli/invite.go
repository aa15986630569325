package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/invitations"
)

func (r *runner) newInviteCommand() *Command {
	return group("invite", "Send and resolve invitations",
		r.newInviteSendCommand(),
		r.newInviteTransitionCommand("resend", "Refresh the expiry of a pending invitation"),
		r.newInviteTransitionCommand("cancel", "Withdraw a pending invitation"),
		r.newInviteAcceptCommand(),
		r.newInviteGetCommand(),
		r.newInviteListCommand(),
		r.newInviteSweepCommand(),
	)
}

func (r *runner) newInviteSendCommand() *Command {
	cmd := leaf("invite send", "Invite an email address to join with a role")
	email := cmd.Flags.String("email", "", "Email address")
	role := cmd.Flags.String("role", "", "Role id")
	actor := cmd.Flags.String("actor", defaultActor(), "Inviting user id")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			inv, err := a.Invitations.Send(ctx, *email, *role, *actor)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, inv)
			}
			printInvitation(r.out, inv)
			return nil
		})
	}
	return cmd
}

// newInviteTransitionCommand builds resend and cancel, which share flags
func (r *runner) newInviteTransitionCommand(name, description string) *Command {
	cmd := leaf("invite "+name, description)
	id := cmd.Flags.String("id", "", "Invitation id")
	actor := cmd.Flags.String("actor", defaultActor(), "Acting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			var inv *invitations.Invitation
			var err error
			if name == "resend" {
				inv, err = a.Invitations.Resend(ctx, *id, *actor)
			} else {
				inv, err = a.Invitations.Cancel(ctx, *id, *actor)
			}
			if err != nil {
				return err
			}
			printInvitation(r.out, inv)
			return nil
		})
	}
	return cmd
}

func (r *runner) newInviteAcceptCommand() *Command {
	cmd := leaf("invite accept", "Accept an invitation on behalf of a user")
	id := cmd.Flags.String("id", "", "Invitation id")
	user := cmd.Flags.String("user", "", "Accepting user id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" || *user == "" {
			return fmt.Errorf("-id and -user are required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			inv, err := a.Invitations.Accept(ctx, *id, *user)
			if err != nil {
				return err
			}
			printInvitation(r.out, inv)
			return nil
		})
	}
	return cmd
}

func (r *runner) newInviteGetCommand() *Command {
	cmd := leaf("invite get", "Show an invitation")
	id := cmd.Flags.String("id", "", "Invitation id")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			inv, err := a.Invitations.Get(ctx, *id)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, inv)
			}
			printInvitation(r.out, inv)
			return nil
		})
	}
	return cmd
}

func (r *runner) newInviteListCommand() *Command {
	cmd := leaf("invite list", "List invitations, newest first")
	email := cmd.Flags.String("email", "", "Only invitations to this address")
	status := cmd.Flags.String("status", "", "pending, accepted, expired or cancelled")
	role := cmd.Flags.String("role", "", "Only invitations for this role id")
	invitedBy := cmd.Flags.String("invited-by", "", "Only invitations sent by this user")
	limit := cmd.Flags.Int("limit", 0, "Maximum invitations to return")
	offset := cmd.Flags.Int("offset", 0, "Invitations to skip")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		filter := invitations.Filter{
			Email:     *email,
			Status:    invitations.Status(*status),
			RoleID:    *role,
			InvitedBy: *invitedBy,
			Limit:     *limit,
			Offset:    *offset,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return fmt.Errorf("invalid status %q", *status)
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			invs, err := a.Invitations.List(ctx, filter)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, invs)
			}
			return printInvitations(r.out, invs)
		})
	}
	return cmd
}

func (r *runner) newInviteSweepCommand() *Command {
	cmd := leaf("invite sweep", "Expire every past-due invitation now")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return r.with(func(ctx context.Context, a *app.App) error {
			n, err := a.Invitations.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Expired %d invitations\n", n)
			return nil
		})
	}
	return cmd
}
