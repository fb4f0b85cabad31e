package ledger

import "github.com/shopspring/decimal"

// PnL is a position's profit or loss at a given price.
type PnL struct {
	USDT            decimal.Decimal
	PercentOnPrice  decimal.Decimal // unleveraged move of the underlying
	PercentOnMargin decimal.Decimal // leveraged return on the margin
}

// ComputePnL values p at price. The same formula serves mark-to-market and close.
func ComputePnL(p Position, price decimal.Decimal) PnL {
	move := price.Sub(p.EntryPrice)
	if p.Direction == Short {
		move = move.Neg()
	}

	out := PnL{USDT: move.Mul(p.SizeInBase)}
	if p.EntryPrice.IsPositive() {
		out.PercentOnPrice = move.Div(p.EntryPrice).Mul(hundred)
	}
	if p.Margin.IsPositive() {
		out.PercentOnMargin = out.USDT.Div(p.Margin).Mul(hundred)
	}
	return out
}
