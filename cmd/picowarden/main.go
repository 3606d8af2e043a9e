package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal"
	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal/commands"
	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal/console"
	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal/gateway"
	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal/version"
)

func NewPicowardenCommand() *cobra.Command {
	short := fmt.Sprintf("%s picowarden - group chat moderation bot v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:          "picowarden",
		Short:        short,
		Example:      "picowarden gateway",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&internal.ConfigPath, "config", "",
		"Config file (default: ~/.picowarden/config.json)")

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		console.NewConsoleCommand(),
		commands.NewCommandsCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewPicowardenCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
