package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Stats summarizes the portfolio. Trade figures are zero until the first close.
type Stats struct {
	FreeBalance         decimal.Decimal
	InitialBalance      decimal.Decimal
	OpenPositions       int
	OpenCapital         decimal.Decimal
	UnrealizedPnl       decimal.Decimal
	TotalPortfolioValue decimal.Decimal
	ROI                 decimal.Decimal

	TotalTrades           int
	Wins                  int
	Losses                int
	WinRate               decimal.Decimal
	TotalPnl              decimal.Decimal
	TotalPnlPercent       decimal.Decimal
	AvgWin                decimal.Decimal
	AvgLoss               decimal.Decimal
	BestTrade             decimal.Decimal
	WorstTrade            decimal.Decimal
	AvgTradeDurationHours float64

	PerSymbol []SymbolStats
}

type SymbolStats struct {
	Symbol  string
	Trades  int
	Wins    int
	WinRate decimal.Decimal
	Pnl     decimal.Decimal
}

// ComputeStatistics is a pure function of s.
func ComputeStatistics(s Snapshot) Stats {
	st := Stats{
		FreeBalance:    s.Account.FreeBalance,
		InitialBalance: s.Account.InitialBalance,
		OpenPositions:  len(s.Open),
	}

	for _, p := range s.Open {
		st.OpenCapital = st.OpenCapital.Add(p.Margin)
		st.UnrealizedPnl = st.UnrealizedPnl.Add(p.UnrealizedPnl)
	}
	st.TotalPortfolioValue = st.FreeBalance.Add(st.OpenCapital).Add(st.UnrealizedPnl)
	if st.InitialBalance.IsPositive() {
		st.ROI = percentOf(st.TotalPortfolioValue.Sub(st.InitialBalance), st.InitialBalance)
	}

	if len(s.Closed) == 0 {
		return st
	}

	var (
		sumWin, sumLoss decimal.Decimal
		hours           float64
		bySymbol        = map[string]*SymbolStats{}
	)
	st.TotalTrades = len(s.Closed)
	st.BestTrade = s.Closed[0].RealizedPnl
	st.WorstTrade = s.Closed[0].RealizedPnl

	for _, p := range s.Closed {
		pnl := p.RealizedPnl
		st.TotalPnl = st.TotalPnl.Add(pnl)
		hours += p.DurationHours

		sym := bySymbol[p.Symbol]
		if sym == nil {
			sym = &SymbolStats{Symbol: p.Symbol}
			bySymbol[p.Symbol] = sym
		}
		sym.Trades++
		sym.Pnl = sym.Pnl.Add(pnl)

		if pnl.IsPositive() {
			st.Wins++
			sumWin = sumWin.Add(pnl)
			sym.Wins++
		} else {
			st.Losses++
			sumLoss = sumLoss.Add(pnl)
		}

		if pnl.GreaterThan(st.BestTrade) {
			st.BestTrade = pnl
		}
		if pnl.LessThan(st.WorstTrade) {
			st.WorstTrade = pnl
		}
	}

	st.WinRate = percentOf(decimal.NewFromInt(int64(st.Wins)), decimal.NewFromInt(int64(st.TotalTrades)))
	if st.InitialBalance.IsPositive() {
		st.TotalPnlPercent = percentOf(st.TotalPnl, st.InitialBalance)
	}
	if st.Wins > 0 {
		st.AvgWin = sumWin.Div(decimal.NewFromInt(int64(st.Wins)))
	}
	if st.Losses > 0 {
		st.AvgLoss = sumLoss.Div(decimal.NewFromInt(int64(st.Losses)))
	}
	st.AvgTradeDurationHours = hours / float64(st.TotalTrades)

	st.PerSymbol = make([]SymbolStats, 0, len(bySymbol))
	for _, sym := range bySymbol {
		sym.WinRate = percentOf(decimal.NewFromInt(int64(sym.Wins)), decimal.NewFromInt(int64(sym.Trades)))
		st.PerSymbol = append(st.PerSymbol, *sym)
	}
	sort.Slice(st.PerSymbol, func(i, j int) bool {
		a, b := st.PerSymbol[i], st.PerSymbol[j]
		if !a.Pnl.Equal(b.Pnl) {
			return a.Pnl.GreaterThan(b.Pnl)
		}
		return a.Symbol < b.Symbol
	})

	return st
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	return part.Div(whole).Mul(hundred)
}
