package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/audit"
)

func (r *runner) newAuditCommand() *Command {
	return group("audit", "Query and export the audit trail",
		r.newAuditListCommand(),
		r.newAuditExportCommand(),
	)
}

// auditFilterFlags registers the shared filter flags on cmd
func auditFilterFlags(cmd *Command) func() (audit.Filter, error) {
	actor := cmd.Flags.String("actor", "", "Only entries by this actor")
	actions := cmd.Flags.String("action", "", "Comma-separated actions, e.g. ROLE_UPDATE,INVITATION_ACCEPT")
	entityType := cmd.Flags.String("entity-type", "", "role, user or invitation")
	entityID := cmd.Flags.String("entity-id", "", "Only entries about this entity")
	severity := cmd.Flags.String("severity", "", "INFO, WARNING or ERROR")
	since := cmd.Flags.Duration("since", 0, "Only entries newer than this, e.g. 24h")

	return func() (audit.Filter, error) {
		filter := audit.Filter{
			ActorUserID: *actor,
			EntityType:  audit.EntityType(*entityType),
			EntityID:    *entityID,
			Severity:    audit.Severity(*severity),
		}
		for _, a := range splitList(*actions) {
			filter.Actions = append(filter.Actions, audit.Action(a))
		}
		if filter.Severity != "" && !filter.Severity.Valid() {
			return filter, fmt.Errorf("invalid severity %q", *severity)
		}
		if *since > 0 {
			start := time.Now().UTC().Add(-*since)
			filter.Start = &start
		}
		return filter, nil
	}
}

func queryStore(a *app.App) (audit.Store, error) {
	if a.AuditLog == nil {
		return nil, fmt.Errorf("audit queries need the db audit sink")
	}
	return a.AuditLog, nil
}

func (r *runner) newAuditListCommand() *Command {
	cmd := leaf("audit list", "List audit entries, newest first")
	buildFilter := auditFilterFlags(cmd)
	limit := cmd.Flags.Int("limit", 0, "Page size")
	offset := cmd.Flags.Int("offset", 0, "Entries to skip")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}
		filter.Limit = *limit
		filter.Offset = *offset

		return r.with(func(ctx context.Context, a *app.App) error {
			store, err := queryStore(a)
			if err != nil {
				return err
			}
			page, err := store.ListAuditLogs(ctx, filter)
			if err != nil {
				return err
			}
			if *asJSON {
				return writeJSON(r.out, page)
			}

			tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSEVERITY\tACTION\tACTOR\tENTITY")
			for _, e := range page.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s/%s\n",
					formatTime(e.CreatedAt), e.Severity, e.Action, e.ActorUserID, e.EntityType, e.EntityID)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "%d of %d entries\n", len(page.Entries), page.Total)
			return nil
		})
	}
	return cmd
}

func (r *runner) newAuditExportCommand() *Command {
	cmd := leaf("audit export", "Export every matching audit entry")
	buildFilter := auditFilterFlags(cmd)
	format := cmd.Flags.String("format", string(audit.ExportFormatJSON), "json, ndjson or csv")
	output := cmd.Flags.String("out", "", "Write to this file instead of stdout")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		filter, err := buildFilter()
		if err != nil {
			return err
		}

		return r.with(func(ctx context.Context, a *app.App) error {
			store, err := queryStore(a)
			if err != nil {
				return err
			}
			data, err := audit.ExportStore(ctx, store, filter, audit.ExportFormat(*format))
			if err != nil {
				return err
			}
			if *output == "" {
				_, err = r.out.Write(data)
				return err
			}
			if err := os.WriteFile(*output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(r.out, "Wrote %d bytes to %s\n", len(data), *output)
			return nil
		})
	}
	return cmd
}
