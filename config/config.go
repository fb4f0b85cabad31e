package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // paper.timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/arnaudstdr/bot-trade/ledger"
)

// Config is the complete bot configuration. It is read once at startup
// and never mutated afterwards.
type Config struct {
	Paper   PaperConfig   `json:"paper" yaml:"paper" toml:"paper"`
	Journal JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
	Scan    ScanConfig    `json:"scan" yaml:"scan" toml:"scan"`
	Feed    FeedConfig    `json:"feed" yaml:"feed" toml:"feed"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify" toml:"notify"`
	Bus     BusConfig     `json:"bus" yaml:"bus" toml:"bus"`
}

// RuleConfig toggles a percentage rule. Percent is whole percent (1.5 = 1.5%).
type RuleConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Percent float64 `json:"percent" yaml:"percent" toml:"percent"`
}

// PaperConfig contains the simulated account and position rules
type PaperConfig struct {
	InitialBalance       float64    `json:"initial_balance" yaml:"initial_balance" toml:"initial_balance"`
	PositionSizePercent  float64    `json:"position_size_percent" yaml:"position_size_percent" toml:"position_size_percent"`
	MaxOpenPositions     int        `json:"max_open_positions" yaml:"max_open_positions" toml:"max_open_positions"`
	Leverage             int        `json:"leverage" yaml:"leverage" toml:"leverage"`
	SimulateLiquidation  bool       `json:"simulate_liquidation" yaml:"simulate_liquidation" toml:"simulate_liquidation"`
	LiquidationThreshold float64    `json:"liquidation_threshold" yaml:"liquidation_threshold" toml:"liquidation_threshold"`
	TrailingStop         RuleConfig `json:"trailing_stop" yaml:"trailing_stop" toml:"trailing_stop"`
	FixedTP              RuleConfig `json:"fixed_tp" yaml:"fixed_tp" toml:"fixed_tp"`
	TrailingTP           RuleConfig `json:"trailing_tp" yaml:"trailing_tp" toml:"trailing_tp"`
	StateFile            string     `json:"state_file" yaml:"state_file" toml:"state_file"`
	Timezone             string     `json:"timezone" yaml:"timezone" toml:"timezone"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type" toml:"type"` // csv, sqlite, postgres or none
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty" toml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty" toml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty" toml:"dsn,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // console or json
}

// ScanConfig drives the periodic scan cycle
type ScanConfig struct {
	Symbols              []string           `json:"symbols" yaml:"symbols" toml:"symbols"`
	Schedule             string             `json:"schedule" yaml:"schedule" toml:"schedule"` // standard 5-field cron spec
	TradingHours         TradingHoursConfig `json:"trading_hours" yaml:"trading_hours" toml:"trading_hours"`
	OnePositionPerSymbol bool               `json:"one_position_per_symbol" yaml:"one_position_per_symbol" toml:"one_position_per_symbol"`
	MinConfidence        float64            `json:"min_confidence" yaml:"min_confidence" toml:"min_confidence"`
	MinRiskReward        float64            `json:"min_risk_reward" yaml:"min_risk_reward" toml:"min_risk_reward"`
}

// TradingHoursConfig limits when new positions may be opened. Hours are
// local to paper.timezone; the window is [start, end).
type TradingHoursConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Start   int      `json:"start" yaml:"start" toml:"start"`
	End     int      `json:"end" yaml:"end" toml:"end"`
	Days    []string `json:"days" yaml:"days" toml:"days"` // mon..sun
}

type FeedConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"` // binance or static
	URL  string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	// Streamed prices older than this are not used; 0 disables the check.
	MaxPriceAgeSec int                `json:"max_price_age_sec" yaml:"max_price_age_sec" toml:"max_price_age_sec"`
	Prices         map[string]float64 `json:"prices,omitempty" yaml:"prices,omitempty" toml:"prices,omitempty"`
}

type NotifyConfig struct {
	PushoverToken string `json:"pushover_token,omitempty" yaml:"pushover_token,omitempty" toml:"pushover_token,omitempty"`
	PushoverUser  string `json:"pushover_user,omitempty" yaml:"pushover_user,omitempty" toml:"pushover_user,omitempty"`
	RatePerMinute int    `json:"rate_per_minute" yaml:"rate_per_minute" toml:"rate_per_minute"`
}

type BusConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr           string `json:"addr" yaml:"addr" toml:"addr"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB             int    `json:"db" yaml:"db" toml:"db"`
	SignalsChannel string `json:"signals_channel" yaml:"signals_channel" toml:"signals_channel"`
	EventsChannel  string `json:"events_channel" yaml:"events_channel" toml:"events_channel"`
}

// LoadFromFile loads configuration from a file on top of Default(). The
// format follows the extension: .toml, .yaml/.yml, otherwise JSON with a
// YAML fallback. A .env file in the working directory and BOTTRADE_*
// variables are applied last, then the result is validated.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config (TOML): %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (YAML): %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			if yerr := yaml.Unmarshal(data, cfg); yerr != nil {
				return nil, fmt.Errorf("parse config (tried JSON and YAML): %w", err)
			}
		}
	}

	loadDotEnv()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (TOML, YAML or JSON by extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid. Paper rules are the
// ledger's own.
func (c *Config) Validate() error {
	p := c.Paper
	// The ledger accepts a zero balance for old state files; a new config may not.
	if p.InitialBalance <= 0 {
		return fmt.Errorf("paper.initial_balance must be positive")
	}
	if err := p.LedgerConfig().Validate(); err != nil {
		return fmt.Errorf("paper: %w", err)
	}
	if p.StateFile == "" {
		return fmt.Errorf("paper.state_file is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("paper.timezone: %w", err)
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn required for postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be one of csv, sqlite, postgres, none")
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}

	if len(c.Scan.Symbols) == 0 {
		return fmt.Errorf("scan.symbols must not be empty")
	}
	if _, err := cron.ParseStandard(c.Scan.Schedule); err != nil {
		return fmt.Errorf("scan.schedule: %w", err)
	}
	th := c.Scan.TradingHours
	if th.Enabled {
		if th.Start < 0 || th.End > 24 || th.Start >= th.End {
			return fmt.Errorf("scan.trading_hours requires 0 <= start < end <= 24")
		}
		if _, err := th.Weekdays(); err != nil {
			return fmt.Errorf("scan.trading_hours.days: %w", err)
		}
	}

	switch c.Feed.Type {
	case "binance":
		if c.Feed.URL == "" {
			return fmt.Errorf("feed.url required for binance feed")
		}
	case "static":
	default:
		return fmt.Errorf("feed.type must be 'binance' or 'static'")
	}
	if c.Feed.MaxPriceAgeSec < 0 {
		return fmt.Errorf("feed.max_price_age_sec must not be negative")
	}

	if (c.Notify.PushoverToken == "") != (c.Notify.PushoverUser == "") {
		return fmt.Errorf("notify.pushover_token and notify.pushover_user must be set together")
	}
	if c.Notify.RatePerMinute < 1 {
		return fmt.Errorf("notify.rate_per_minute must be at least 1")
	}

	if c.Bus.Enabled && (c.Bus.Addr == "" || c.Bus.SignalsChannel == "" || c.Bus.EventsChannel == "") {
		return fmt.Errorf("bus addr, signals_channel and events_channel required when enabled")
	}
	return nil
}

// Location resolves paper.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Paper.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Paper.Timezone)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Weekdays parses Days ("mon", "Tuesday", ...).
func (th TradingHoursConfig) Weekdays() ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(th.Days))
	for _, d := range th.Days {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdays[key]
		if !ok {
			return nil, fmt.Errorf("unknown day %q", d)
		}
		out = append(out, wd)
	}
	return out, nil
}

// LedgerConfig converts the paper section into the ledger's decimal config.
func (p PaperConfig) LedgerConfig() ledger.Config {
	rule := func(r RuleConfig) ledger.Rule {
		return ledger.Rule{Enabled: r.Enabled, Percent: decimal.NewFromFloat(r.Percent)}
	}
	return ledger.Config{
		InitialBalance:       decimal.NewFromFloat(p.InitialBalance),
		PositionSizePercent:  decimal.NewFromFloat(p.PositionSizePercent),
		MaxOpenPositions:     p.MaxOpenPositions,
		Leverage:             p.Leverage,
		SimulateLiquidation:  p.SimulateLiquidation,
		LiquidationThreshold: decimal.NewFromFloat(p.LiquidationThreshold),
		TrailingStop:         rule(p.TrailingStop),
		FixedTakeProfit:      rule(p.FixedTP),
		TrailingTakeProfit:   rule(p.TrailingTP),
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Paper: PaperConfig{
			InitialBalance:       1000,
			PositionSizePercent:  2,
			MaxOpenPositions:     3,
			Leverage:             5,
			SimulateLiquidation:  true,
			LiquidationThreshold: 0.8,
			TrailingStop:         RuleConfig{Enabled: true, Percent: 1.5},
			FixedTP:              RuleConfig{Enabled: true, Percent: 2},
			TrailingTP:           RuleConfig{Enabled: false, Percent: 2},
			StateFile:            "data/paper_trading_history.json",
			Timezone:             "Europe/Paris",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "data/trades.csv",
			EquityFile: "data/equity.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Scan: ScanConfig{
			Symbols:  []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "XRP/USDT", "ADA/USDT"},
			Schedule: "*/15 * * * *",
			TradingHours: TradingHoursConfig{
				Enabled: true,
				Start:   9,
				End:     20,
				Days:    []string{"mon", "tue", "wed", "thu", "fri"},
			},
			OnePositionPerSymbol: true,
			MinConfidence:        65,
			MinRiskReward:        1.5,
		},
		Feed: FeedConfig{
			Type:           "binance",
			URL:            "wss://stream.binance.com:9443/ws",
			MaxPriceAgeSec: 300,
		},
		Notify: NotifyConfig{
			RatePerMinute: 30,
		},
		Bus: BusConfig{
			Addr:           "localhost:6379",
			SignalsChannel: "bottrade:signals",
			EventsChannel:  "bottrade:events",
		},
	}
}
