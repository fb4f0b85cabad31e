package ledger

import "github.com/shopspring/decimal"

func hitLiquidation(p *Position, price decimal.Decimal) bool {
	if p.LiquidationPrice == nil {
		return false
	}
	if p.Direction == Long {
		return price.LessThanOrEqual(*p.LiquidationPrice)
	}
	return price.GreaterThanOrEqual(*p.LiquidationPrice)
}

func hitTakeProfit(p *Position, price decimal.Decimal) bool {
	if p.Direction == Long {
		return price.GreaterThanOrEqual(p.TakeProfit)
	}
	return price.LessThanOrEqual(p.TakeProfit)
}

func hitStopLoss(p *Position, price decimal.Decimal) bool {
	if p.Direction == Long {
		return price.LessThanOrEqual(p.StopLoss)
	}
	return price.GreaterThanOrEqual(p.StopLoss)
}

// favorable reports whether candidate is strictly better than current for
// the position's side: higher for a long, lower for a short.
func favorable(d Direction, candidate, current decimal.Decimal) bool {
	if d == Long {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}

// offset moves price by frac toward profit (sign +1) or toward loss (sign -1)
// for the given side.
func offset(d Direction, price, frac decimal.Decimal, sign int) decimal.Decimal {
	if d == Short {
		sign = -sign
	}
	if sign > 0 {
		return price.Mul(one.Add(frac))
	}
	return price.Mul(one.Sub(frac))
}

func trailStop(p *Position, price decimal.Decimal, r Rule) {
	if !r.Enabled {
		return
	}
	if c := offset(p.Direction, price, r.fraction(), -1); favorable(p.Direction, c, p.StopLoss) {
		p.StopLoss = c
	}
}

func updateTakeProfit(p *Position, price decimal.Decimal, fixed, trailing Rule) {
	switch {
	case fixed.Enabled:
		p.TakeProfit = offset(p.Direction, p.EntryPrice, fixed.fraction(), +1)

	case trailing.Enabled:
		best := p.EntryPrice
		slot := &p.HighestPriceSeen
		if p.Direction == Short {
			slot = &p.LowestPriceSeen
		}
		if *slot != nil {
			best = **slot
		}
		if !favorable(p.Direction, price, best) {
			return
		}
		*slot = ptr(price)
		if c := offset(p.Direction, price, trailing.fraction(), +1); favorable(p.Direction, c, p.TakeProfit) {
			p.TakeProfit = c
		}
	}
}

func liquidationPrice(d Direction, entry decimal.Decimal, leverage int, threshold decimal.Decimal) decimal.Decimal {
	frac := threshold.Div(decimal.NewFromInt(int64(leverage)))
	return offset(d, entry, frac, -1)
}
