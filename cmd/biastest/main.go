package main

import (
	"fmt"
	"os"

	"biastest/internal/config"
	"biastest/internal/logging"

	"github.com/spf13/cobra"
)

// env carries what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
}

func main() {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:           "biastest",
		Short:         "Signal-injection bias studies on a resonance workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.NewLogger(logging.ParseLevel(cfg.Log.Level))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(
		newToysCmd(e),
		newReportCmd(e),
		newPullsCmd(e),
		newTimeStatsCmd(e),
		newLedgerCmd(e),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
