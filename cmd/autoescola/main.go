package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/example/autoescola/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger := logging.Base()
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autoescola",
		Short:         "Driving lesson marketplace server",
		Long:          "Runs the autoescola API and its maintenance tasks. Settings come from AUTOESCOLA_* variables, an optional .env file and the YAML file named by AUTOESCOLA_CONFIG.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd(), newSlotsCmd())
	return root
}
