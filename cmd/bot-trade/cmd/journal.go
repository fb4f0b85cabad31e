package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arnaudstdr/bot-trade/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display closed trades from the SQLite or PostgreSQL journal.

Subcommands:
  trade  - Get details of a specific position by ID
  today  - List positions closed today
  day    - List positions closed on a specific day

Days are taken in paper.timezone.

Examples:
  bot-trade journal trade BTCUSDT_01HX...
  bot-trade journal today
  bot-trade journal day 2024-05-01 --db data/journal.sqlite`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <position-id>",
	Short: "Get details of a specific position",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List positions closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listJournalDay(cmd, "")
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List positions closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listJournalDay(cmd, args[0])
	},
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "SQLite journal path (overrides the configured journal)")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, closeFn, err := openReader(cmd.Context(), cfg.Journal, journalDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer closeFn()

	rec, err := r.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

// listJournalDay prints trades closed on day, or today when day is empty.
func listJournalDay(cmd *cobra.Command, day string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if day == "" {
		day = time.Now().In(loc).Format("2006-01-02")
	}
	start, end, err := dayBounds(loc, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	r, closeFn, err := openReader(cmd.Context(), cfg.Journal, journalDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer closeFn()

	recs, err := r.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No trades closed on %s\n", day)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}
