package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arnaudstdr/bot-trade/feed"
	"github.com/arnaudstdr/bot-trade/journal"
	"github.com/arnaudstdr/bot-trade/ledger"
	"github.com/arnaudstdr/bot-trade/pkg/id"
	"github.com/arnaudstdr/bot-trade/report"
	"github.com/arnaudstdr/bot-trade/store"
)

var replayCmd = &cobra.Command{
	Use:   "replay <ticks.csv>",
	Short: "Replay recorded ticks through the ledger",
	Long: `Feed a CSV of ticks through a ledger and print the performance report.

Rows are time,symbol,price with optional scripted events:
  time,symbol,price,OPEN,LONG|SHORT,takeProfit,stopLoss[,confidence,riskReward]
  time,symbol,price,RESET

By default the replay starts from an empty account held in memory. With
--persist it continues from, and writes to, the configured state file and
journal.

Examples:
  bot-trade replay testdata/ticks.csv
  bot-trade replay testdata/ticks.csv --org runs/2024-05-01.org`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayPersist bool
	replayOrgPath string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayPersist, "persist", false, "use the configured state file and journal")
	replayCmd.Flags().StringVar(&replayOrgPath, "org", "", "write an Org-mode run summary to this file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	var (
		st ledger.Store    = store.NewMemory()
		j  journal.Journal = journal.Nop{}
	)
	if replayPersist {
		st = fileStore(cfg)
		if j, err = openJournal(cmd.Context(), cfg.Journal); err != nil {
			return fmt.Errorf("create journal: %w", err)
		}
		defer j.Close()
	}

	l, err := ledger.New(cfg.Paper.LedgerConfig(), st, j, log)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	res, err := feed.ReplayFile(cmd.Context(), args[0], l, log)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replayed %d ticks: %d opened, %d declined, %d closed\n\n",
		res.Ticks, res.Opened, res.Declined, res.Closed)
	fmt.Fprint(out, report.Performance(l.Snapshot(), l.Statistics()))

	if replayOrgPath != "" {
		run := replayRun(args[0], cfg.Paper.LedgerConfig(), res, l.Statistics())
		if err := run.WriteOrgFile(replayOrgPath); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
		fmt.Fprintf(out, "\nRun summary written to %s\n", replayOrgPath)
	}
	return nil
}

func replayRun(dataset string, cfg ledger.Config, res feed.ReplayResult, st ledger.Stats) journal.ReplayRun {
	run := journal.ReplayRun{
		RunID:               id.New(time.Now()),
		Created:             time.Now(),
		Dataset:             filepath.Base(dataset),
		Leverage:            cfg.Leverage,
		PositionSizePercent: cfg.PositionSizePercent,
		Start:               res.Start,
		End:                 res.End,
		Ticks:               res.Ticks,
		Opened:              res.Opened,
		Declined:            res.Declined,
		Trades:              st.TotalTrades,
		Wins:                st.Wins,
		Losses:              st.Losses,
		StartBalance:        st.InitialBalance,
		EndValue:            st.TotalPortfolioValue,
		NetPnl:              st.TotalPortfolioValue.Sub(st.InitialBalance),
		ReturnPct:           st.ROI,
		WinRate:             st.WinRate,
		BestTrade:           st.BestTrade,
		WorstTrade:          st.WorstTrade,
	}
	if st.OpenPositions > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("%d positions still open at the last tick", st.OpenPositions))
	}
	if res.Declined > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("%d signals declined by the ledger", res.Declined))
	}
	return run
}
