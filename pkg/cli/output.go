package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// defaultActor is recorded on mutations when -actor is not given
func defaultActor() string {
	if actor := os.Getenv("WARDEN_ACTOR"); actor != "" {
		return actor
	}
	return "wardenctl"
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList parses a comma-separated flag value
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printRoles(out io.Writer, roles []*rbac.Role) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLEVEL\tPERMISSIONS\tCUSTOM")
	for _, role := range roles {
		fmt.Fprintf(tw, "%s\t%s\t%d (%s)\t%d\t%t\n",
			role.ID, role.Name, role.Level, role.Level, len(role.Permissions), role.CustomPermissionsAllowed)
	}
	return tw.Flush()
}

func printRole(out io.Writer, role *rbac.Role) {
	fmt.Fprintf(out, "Role %s (%s)\n", role.Name, role.ID)
	fmt.Fprintf(out, "  level:       %d (%s)\n", role.Level, role.Level)
	if role.Description != "" {
		fmt.Fprintf(out, "  description: %s\n", role.Description)
	}
	fmt.Fprintf(out, "  custom:      %t\n", role.CustomPermissionsAllowed)
	fmt.Fprintf(out, "  permissions: %s\n", strings.Join(role.Permissions, ", "))
}

func printUser(out io.Writer, user *rbac.User) {
	fmt.Fprintf(out, "User %s <%s>\n", user.ID, user.Email)
	fmt.Fprintf(out, "  role:   %s\n", user.RoleID)
	fmt.Fprintf(out, "  status: %s\n", user.Status)
	if len(user.CustomPermissions) > 0 {
		fmt.Fprintf(out, "  custom: %s\n", strings.Join(user.CustomPermissions, ", "))
	}
}

func printInvitations(out io.Writer, invs []*invitations.Invitation) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tSTATUS\tEXPIRES\tRESENT")
	for _, inv := range invs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			inv.ID, inv.Email, inv.RoleID, inv.Status, formatTime(inv.ExpiresAt), inv.ResendCount)
	}
	return tw.Flush()
}

func printInvitation(out io.Writer, inv *invitations.Invitation) {
	fmt.Fprintf(out, "Invitation %s\n", inv.ID)
	fmt.Fprintf(out, "  email:   %s\n", inv.Email)
	fmt.Fprintf(out, "  role:    %s\n", inv.RoleID)
	fmt.Fprintf(out, "  status:  %s\n", inv.Status)
	fmt.Fprintf(out, "  expires: %s\n", formatTime(inv.ExpiresAt))
	if inv.AcceptedBy != "" {
		fmt.Fprintf(out, "  accepted by %s\n", inv.AcceptedBy)
	}
}
