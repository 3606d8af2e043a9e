package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picowarden/cmd/picowarden/internal"
)

const shutdownTimeout = 15 * time.Second

func gatewayCmd(cmd *cobra.Command, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	internal.SetupLogging(cfg, debug)
	if debug {
		fmt.Fprintln(cmd.OutOrStdout(), "🔍 Debug mode enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := internal.NewApp(ctx, cfg, internal.ConfiguredTransports(cfg.Channels))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := app.Start(ctx); err != nil {
		_ = app.Stop(context.Background())
		return fmt.Errorf("error starting transports: %w", err)
	}
	fmt.Fprintf(out, "✓ Transports: %v\n", app.Transport.Names())
	fmt.Fprintf(out, "✓ Commands loaded: %d\n", app.Registry.Len())
	fmt.Fprintf(out, "✓ Mode: %s\n", app.Dispatcher.Mode())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(out, "\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Gateway stopped")
	return nil
}
