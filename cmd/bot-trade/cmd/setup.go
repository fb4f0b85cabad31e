package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arnaudstdr/bot-trade/config"
	"github.com/arnaudstdr/bot-trade/feed"
	"github.com/arnaudstdr/bot-trade/journal"
	"github.com/arnaudstdr/bot-trade/ledger"
	"github.com/arnaudstdr/bot-trade/logging"
	"github.com/arnaudstdr/bot-trade/notify"
	"github.com/arnaudstdr/bot-trade/store"
)

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile == "" {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log, os.Stderr)
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "postgres":
		return journal.NewPostgres(ctx, cfg.DSN)
	case "none", "":
		return journal.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

// openReader opens a queryable journal. dbPath, when set, forces SQLite.
func openReader(ctx context.Context, cfg config.JournalConfig, dbPath string) (journal.Reader, func() error, error) {
	if dbPath != "" {
		cfg = config.JournalConfig{Type: "sqlite", DBPath: dbPath}
	}
	switch cfg.Type {
	case "sqlite":
		j, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return j, j.Close, nil
	case "postgres":
		j, err := journal.NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return j, j.Close, nil
	default:
		return nil, nil, fmt.Errorf("journal type %q cannot be queried; use sqlite or postgres", cfg.Type)
	}
}

func openLedger(cfg *config.Config, st ledger.Store, j journal.Journal, log zerolog.Logger) (*ledger.Ledger, error) {
	l, err := ledger.New(cfg.Paper.LedgerConfig(), st, j, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	l.SetClock(func() time.Time { return time.Now().In(loc) })
	return l, nil
}

func fileStore(cfg *config.Config) *store.File {
	return store.NewFile(cfg.Paper.StateFile)
}

func newNotifier(cfg *config.Config, log zerolog.Logger) *notify.Notifier {
	senders := []notify.Sender{notify.NewLogSender(log)}
	if cfg.Notify.PushoverToken != "" {
		senders = append(senders, notify.NewPushoverSender(cfg.Notify.PushoverToken, cfg.Notify.PushoverUser))
	}
	return notify.NewNotifier(senders, cfg.Notify.RatePerMinute, log)
}

func staticPrices(prices map[string]float64) feed.Static {
	out := make(feed.Static, len(prices))
	for sym, p := range prices {
		out[sym] = decimal.NewFromFloat(p)
	}
	return out
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
