package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal"
	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/config"
	"github.com/tinyland-inc/picowarden/pkg/settings"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/console"
)

func NewCommandsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Inspect chat commands",
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every command the bot would load",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			return listCommands(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a commands file and report commands that fail to load",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := internal.LoadConfig()
				if err != nil {
					return err
				}
				path = cfg.CommandsFile()
			}
			return validateFile(cmd.Context(), cmd.OutOrStdout(), path)
		},
	}

	cmd.AddCommand(listCmd, validateCmd)
	return cmd
}

func listCommands(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Settings.Backend = settings.BackendMemory
	app, err := internal.NewApp(ctx, cfg, func(mb *bus.MessageBus) ([]transport.Transport, error) {
		return []transport.Transport{console.New(mb, console.Options{Out: io.Discard})}, nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = app.Settings.Close() }()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tACCESS\tDESCRIPTION")
	for _, d := range app.Registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name(d), d.Category, access(d), d.Description)
	}
	return w.Flush()
}

func name(d commands.Descriptor) string {
	if len(d.Aliases) == 0 {
		return d.Name
	}
	return d.Name + " (" + strings.Join(d.Aliases, ", ") + ")"
}

func access(d commands.Descriptor) string {
	var parts []string
	switch {
	case d.RequiresOwner:
		parts = append(parts, "owner")
	case d.RequiresAdmin:
		parts = append(parts, "admin")
	default:
		parts = append(parts, "anyone")
	}
	if d.GroupOnly {
		parts = append(parts, "groups")
	}
	return strings.Join(parts, ", ")
}

func validateFile(ctx context.Context, out io.Writer, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r := commands.NewRegistry(commands.NewFileSource(path))
	report := r.Reload(ctx)
	for _, name := range report.Loaded {
		fmt.Fprintf(out, "✓ %s\n", name)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "✗ %s: %v\n", f.Name, f.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%s: %d command(s) failed to load", path, len(report.Failed))
	}
	fmt.Fprintf(out, "%s: %d command(s) OK\n", path, len(report.Loaded))
	return nil
}
