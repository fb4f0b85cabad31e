package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bot-trade",
	Short: "Paper-trading ledger for crypto trade signals",
	Long: `bot-trade simulates leveraged positions opened from trade signals.

It provides tools for:
  - Running the scan loop against live Binance prices
  - Replaying recorded ticks through the ledger
  - Printing the performance report of the paper account
  - Querying the trade journal
  - Resetting the paper account

Without --config the built-in defaults are used.`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (.yaml, .json or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}
