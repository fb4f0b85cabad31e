package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arnaudstdr/bot-trade/journal"
	"github.com/arnaudstdr/bot-trade/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the paper-trading performance report",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l, err := openLedger(cfg, fileStore(cfg), journal.Nop{}, zerolog.Nop())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Performance(l.Snapshot(), l.Statistics()))
	return nil
}
