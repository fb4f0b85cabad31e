package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the paper account",
	Long: `Discard every open and closed position and restore the initial balance.
The journal is left untouched.

Example:
  bot-trade reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var resetConfirm bool

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm the reset")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirm {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	j, err := openJournal(cmd.Context(), cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	l, err := openLedger(cfg, fileStore(cfg), j, log)
	if err != nil {
		return err
	}
	if err := l.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Paper account reset to %s USDT (%s)\n",
		l.Account().FreeBalance.StringFixed(2), cfg.Paper.StateFile)
	return nil
}
