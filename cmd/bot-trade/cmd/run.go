package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arnaudstdr/bot-trade/bus"
	"github.com/arnaudstdr/bot-trade/feed"
	"github.com/arnaudstdr/bot-trade/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan loop",
	Long: `Run the paper-trading scan loop until interrupted.

Each scan prices every configured symbol, marks open positions to market
and opens positions for the signals received since the previous scan.
Signals arrive on the Redis signals channel when bus.enabled is set.

Example:
  bot-trade run --config bot-trade.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	j, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	l, err := openLedger(cfg, fileStore(cfg), j, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var prices feed.PriceSource
	switch cfg.Feed.Type {
	case "static":
		prices = staticPrices(cfg.Feed.Prices)
	default:
		b := feed.NewBinance(cfg.Feed.URL, cfg.Scan.Symbols, log)
		b.SetMaxPriceAge(time.Duration(cfg.Feed.MaxPriceAgeSec) * time.Second)
		g.Go(func() error { return b.Run(gctx) })
		prices = b
	}

	r, err := runner.New(cfg, l, prices, newNotifier(cfg, log), log)
	if err != nil {
		return err
	}

	var signals <-chan bus.Incoming
	if cfg.Bus.Enabled {
		b := bus.New(cfg.Bus, log)
		defer b.Close()
		if err := b.Ping(ctx); err != nil {
			return err
		}
		if signals, err = b.Signals(gctx); err != nil {
			return err
		}
		r.SetPublisher(b)
	}

	g.Go(func() error { return r.Run(gctx, signals) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
