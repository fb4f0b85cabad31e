// Package journal keeps an append-only record of closed positions and
// portfolio equity, independent of the ledger state file.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is written once per closed position.
type TradeRecord struct {
	PositionID         string
	Symbol             string
	Direction          string
	Leverage           int
	Margin             decimal.Decimal
	EntryPrice         decimal.Decimal
	ExitPrice          decimal.Decimal
	OpenTime           time.Time
	CloseTime          time.Time
	RealizedPnl        decimal.Decimal
	PnlPercentOnMargin decimal.Decimal
	Reason             string
}

// EquitySnapshot is the portfolio valuation after a ledger mutation.
type EquitySnapshot struct {
	Time          time.Time
	FreeBalance   decimal.Decimal
	OpenCapital   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	TotalValue    decimal.Decimal
	OpenPositions int
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Reader is implemented by the queryable backends (SQLite, PostgreSQL).
type Reader interface {
	GetTrade(positionID string) (TradeRecord, error)
	ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error)
	ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
