package console

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal"
	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/settings"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	consoletransport "github.com/tinyland-inc/picowarden/pkg/transport/console"
)

func NewConsoleCommand() *cobra.Command {
	var (
		debug     bool
		as        string
		ephemeral bool
	)

	cmd := &cobra.Command{
		Use:     "console",
		Aliases: []string{"c"},
		Short:   "Talk to the bot from the terminal",
		Long: `Runs the bot against a local console chat. Type commands as you would in a
chat app. ":group" and ":direct" switch between a simulated group and a direct
chat, ":quit" exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return consoleCmd(cmd, debug, as, ephemeral)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&as, "as", "", "Sender id to type as (default: the configured owner)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep settings in memory instead of the configured backend")

	return cmd
}

func consoleCmd(cmd *cobra.Command, debug bool, as string, ephemeral bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	internal.SetupLogging(cfg, debug)
	if ephemeral {
		cfg.Settings.Backend = settings.BackendMemory
	}
	if as == "" {
		as = string(cfg.Bot.Owner)
	}

	var ct *consoletransport.Transport
	factory := func(mb *bus.MessageBus) ([]transport.Transport, error) {
		ct = consoletransport.New(mb, consoletransport.Options{
			SenderID: as,
			Out:      cmd.OutOrStdout(),
		})
		return []transport.Transport{ct}, nil
	}

	ctx := context.Background()
	app, err := internal.NewApp(ctx, cfg, factory)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Stop(ctx)
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	fmt.Fprintf(cmd.OutOrStdout(), "%s picowarden console (%d commands, %s mode). Try %smenu\n\n",
		internal.Logo, app.Registry.Len(), app.Dispatcher.Mode(), app.Dispatcher.Prefix())

	home, _ := os.UserHomeDir()
	rl, err := consoletransport.NewReadline(filepath.Join(home, ".picowarden", "history"))
	if err != nil {
		return fmt.Errorf("error initializing readline: %w", err)
	}
	defer rl.Close()

	return ct.Serve(ctx, rl)
}
