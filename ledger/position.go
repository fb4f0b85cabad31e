package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one simulated leveraged trade. Open positions carry
// unrealized figures; closed positions carry the close fields and the
// realized figures.
type Position struct {
	ID        string
	Symbol    string
	Direction Direction

	EntryPrice       decimal.Decimal
	CurrentPrice     decimal.Decimal
	TakeProfit       decimal.Decimal
	StopLoss         decimal.Decimal
	LiquidationPrice *decimal.Decimal

	Margin     decimal.Decimal
	Leverage   int
	Notional   decimal.Decimal
	SizeInBase decimal.Decimal

	// Best prices seen, tracked only with trailing take-profit.
	HighestPriceSeen *decimal.Decimal
	LowestPriceSeen  *decimal.Decimal

	UnrealizedPnl                decimal.Decimal
	UnrealizedPnlPercent         decimal.Decimal
	UnrealizedPnlPercentOnMargin decimal.Decimal

	Status      Status
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   *decimal.Decimal
	CloseReason CloseReason

	RealizedPnl                decimal.Decimal
	RealizedPnlPercent         decimal.Decimal
	RealizedPnlPercentOnMargin decimal.Decimal
	DurationHours              float64

	ConfidenceScore float64
	RiskRewardRatio float64
}

func (p Position) IsOpen() bool { return p.Status == StatusOpen }

// Pnl returns the realized P&L of a closed position or the unrealized
// P&L of an open one.
func (p Position) Pnl() decimal.Decimal {
	if p.IsOpen() {
		return p.UnrealizedPnl
	}
	return p.RealizedPnl
}

func (p Position) PnlPercentOnMargin() decimal.Decimal {
	if p.IsOpen() {
		return p.UnrealizedPnlPercentOnMargin
	}
	return p.RealizedPnlPercentOnMargin
}

// Clone returns a copy that shares no pointers with p.
func (p Position) Clone() Position {
	out := p
	out.LiquidationPrice = cloneDecimal(p.LiquidationPrice)
	out.HighestPriceSeen = cloneDecimal(p.HighestPriceSeen)
	out.LowestPriceSeen = cloneDecimal(p.LowestPriceSeen)
	out.ExitPrice = cloneDecimal(p.ExitPrice)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func clonePositions(in []Position) []Position {
	if in == nil {
		return nil
	}
	out := make([]Position, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
