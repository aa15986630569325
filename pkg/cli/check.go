package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// ErrDenied is returned by check when access is denied, so scripts can rely
// on the exit status
var ErrDenied = errors.New("access denied")

func (r *runner) newCheckCommand() *Command {
	cmd := leaf("check", "Check whether a user holds a permission or level")
	user := cmd.Flags.String("user", "", "User id")
	permission := cmd.Flags.String("permission", "", "Permission as resource:action")
	level := cmd.Flags.Int("level", 0, "Require at least this role level instead")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("-user is required")
		}
		if (*permission == "") == (*level == 0) {
			return fmt.Errorf("exactly one of -permission or -level is required")
		}

		return r.with(func(ctx context.Context, a *app.App) error {
			if *level != 0 {
				required := rbac.RoleLevel(*level)
				if !a.Authorizer.RoleLevelAtLeast(ctx, *user, required) {
					fmt.Fprintf(r.out, "denied: %s is not at level %s or above\n", *user, required)
					return ErrDenied
				}
				fmt.Fprintf(r.out, "allowed: %s is at level %s or above\n", *user, required)
				return nil
			}

			resource, action, ok := strings.Cut(*permission, ":")
			if !ok {
				return fmt.Errorf("permission %q must be resource:action", *permission)
			}
			d := a.Authorizer.Authorize(ctx, *user, resource, action)
			if !d.Allowed {
				fmt.Fprintf(r.out, "denied: %s (%s)\n", d.Permission, d.Reason)
				if d.Err != nil {
					return fmt.Errorf("%w: %v", ErrDenied, d.Err)
				}
				return ErrDenied
			}
			fmt.Fprintf(r.out, "allowed: %s\n", d.Permission)
			return nil
		})
	}
	return cmd
}
