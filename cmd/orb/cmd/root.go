package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orb",
	Short: "Opening-range breakout trading engine",
	Long: `orb trades the opening-range breakout: it waits for price to clear the
band established in the first minutes of the session, then works three
bracket legs with staggered stops and targets until they exit.

It provides commands for:
  - Running live or simulated trading sessions
  - Computing FIFO-matched realized PnL and its statistics
  - Inspecting and controlling the shared trading state (kill switch)`,

	SilenceUsage: true,
}

var configPath string

// Execute runs the CLI. The process exits 0 on any completed session;
// only configuration and credential errors are non-zero.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to config file (YAML)")
}
