// Package ledger is the paper-trading position ledger: a simulated account,
// its open and closed leveraged positions, and the rules that move
// positions from one list to the other as prices change.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func (d Direction) Valid() bool { return d == Long || d == Short }

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TP_HIT"
	ReasonStopLoss   CloseReason = "SL_HIT"
	ReasonLiquidated CloseReason = "LIQUIDATED"
)

var (
	ErrInvalidSignal         = errors.New("invalid signal")
	ErrInvalidConfig         = errors.New("invalid ledger config")
	ErrConflictingTakeProfit = errors.New("fixed and trailing take-profit cannot both be enabled")
)

// Signal is a validated trade idea handed to Open.
type Signal struct {
	Direction       Direction
	EntryPrice      decimal.Decimal
	TakeProfit      decimal.Decimal
	StopLoss        decimal.Decimal
	ConfidenceScore float64
	RiskRewardRatio float64
}

func (s Signal) validate() error {
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.Direction)
	}
	if !s.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price must be > 0, got %s", ErrInvalidSignal, s.EntryPrice)
	}
	return nil
}

// Rule is a toggled percentage rule. Percent is a whole percentage, 1.5 means 1.5%.
type Rule struct {
	Enabled bool
	Percent decimal.Decimal
}

func (r Rule) fraction() decimal.Decimal { return r.Percent.Div(hundred) }

// Config is the read-only ledger configuration.
type Config struct {
	InitialBalance       decimal.Decimal
	PositionSizePercent  decimal.Decimal
	MaxOpenPositions     int
	Leverage             int
	SimulateLiquidation  bool
	LiquidationThreshold decimal.Decimal // fraction of margin, 0.8 = 80%

	TrailingStop       Rule
	FixedTakeProfit    Rule
	TrailingTakeProfit Rule
}

func (c Config) Validate() error {
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("%w: initial balance must be >= 0", ErrInvalidConfig)
	}
	if !c.PositionSizePercent.IsPositive() || c.PositionSizePercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: position size percent must be in (0, 100]", ErrInvalidConfig)
	}
	if c.MaxOpenPositions < 1 {
		return fmt.Errorf("%w: max open positions must be >= 1", ErrInvalidConfig)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("%w: leverage must be >= 1", ErrInvalidConfig)
	}
	if c.SimulateLiquidation && (!c.LiquidationThreshold.IsPositive() || c.LiquidationThreshold.GreaterThan(one)) {
		return fmt.Errorf("%w: liquidation threshold must be in (0, 1]", ErrInvalidConfig)
	}
	for name, r := range map[string]Rule{
		"trailing stop":        c.TrailingStop,
		"fixed take-profit":    c.FixedTakeProfit,
		"trailing take-profit": c.TrailingTakeProfit,
	} {
		if r.Enabled && !r.Percent.IsPositive() {
			return fmt.Errorf("%w: %s percent must be > 0", ErrInvalidConfig, name)
		}
	}
	if c.FixedTakeProfit.Enabled && c.TrailingTakeProfit.Enabled {
		return ErrConflictingTakeProfit
	}
	return nil
}

// Account is the cash side of the ledger.
type Account struct {
	FreeBalance    decimal.Decimal
	InitialBalance decimal.Decimal
}

// Snapshot is the full persisted ledger state.
type Snapshot struct {
	Account    Account
	Open       []Position
	Closed     []Position
	LastUpdate time.Time
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Account: s.Account, LastUpdate: s.LastUpdate}
	out.Open = clonePositions(s.Open)
	out.Closed = clonePositions(s.Closed)
	return out
}

// Store persists full ledger snapshots. Load reports false when nothing
// has been saved yet.
type Store interface {
	Load() (Snapshot, bool, error)
	Save(Snapshot) error
}

// Listener is notified after a position is opened or closed. Calls happen
// after the ledger lock is released and receive copies.
type Listener interface {
	PositionOpened(Position)
	PositionClosed(Position)
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)
