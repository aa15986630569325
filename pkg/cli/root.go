package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Command represents a CLI command. A command with subcommands dispatches
// to them; a leaf command runs Run.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// Opener connects to the configured backends for one command run
type Opener func(ctx context.Context) (*app.App, error)

// ConfigOpener loads configuration from path (or WARDEN_CONFIG_FILE when
// path is empty) and wires the application with logs on stderr
func ConfigOpener(path string) Opener {
	return func(ctx context.Context) (*app.App, error) {
		if path == "" {
			path = os.Getenv("WARDEN_CONFIG_FILE")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		logger := observability.NewLogger(cfg.Observability.Level(), os.Stderr)
		return app.New(ctx, cfg, app.WithLogger(logger))
	}
}

// runner is shared by every command in one tree
type runner struct {
	open Opener
	out  io.Writer
}

// with opens the application, runs fn and closes it
func (r *runner) with(fn func(ctx context.Context, a *app.App) error) error {
	ctx := context.Background()
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// NewRootCommand creates the root command. Output goes to out, os.Stdout
// when nil.
func NewRootCommand(open Opener, out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}
	r := &runner{open: open, out: out}

	root := &Command{
		Name:        "wardenctl",
		Description: "wardenctl - roles, permissions and invitations for warden",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("wardenctl", flag.ContinueOnError),
		out:         out,
	}

	// Add subcommands
	root.add(r.newMigrateCommand())
	root.add(r.newRoleCommand())
	root.add(r.newUserCommand())
	root.add(r.newInviteCommand())
	root.add(r.newCheckCommand())
	root.add(r.newAuditCommand())

	return root
}

func (c *Command) add(sub *Command) {
	if c.Subcommands == nil {
		c.Subcommands = make(map[string]*Command)
	}
	sub.out = c.out
	for _, nested := range sub.Subcommands {
		nested.out = c.out
	}
	c.Subcommands[sub.Name] = sub
}

// group creates a command that only dispatches
func group(name, description string, subs ...*Command) *Command {
	g := &Command{Name: name, Description: description, Subcommands: make(map[string]*Command)}
	for _, sub := range subs {
		g.Subcommands[sub.Name] = sub
	}
	return g
}

// leaf creates a runnable command with its own flag set
func leaf(path, description string) *Command {
	name := path
	if i := strings.LastIndex(path, " "); i >= 0 {
		name = path[i+1:]
	}
	return &Command{
		Name:        name,
		Description: description,
		Flags:       flag.NewFlagSet(path, flag.ContinueOnError),
	}
}

// Execute runs the command against os.Args
func (c *Command) Execute() error {
	return c.Dispatch(os.Args[1:])
}

// Dispatch runs the subcommand named by args[0], or Run for a leaf
func (c *Command) Dispatch(args []string) error {
	if len(c.Subcommands) == 0 {
		if c.Run == nil {
			return fmt.Errorf("command %s cannot run", c.Name)
		}
		return c.Run(args)
	}

	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if sub, ok := c.Subcommands[args[0]]; ok {
		return sub.Dispatch(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
