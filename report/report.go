// Package report renders ledger state as plain text for notifications and
// the report command.
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arnaudstdr/bot-trade/ledger"
)

// Opened renders the notification for a freshly opened position.
func Opened(p ledger.Position, acct ledger.Account, openCount, maxOpen int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PAPER TRADING - position opened\n\n")
	fmt.Fprintf(&b, "%s %s%s\n\n", p.Direction, p.Symbol, leverageSuffix(p.Leverage))
	fmt.Fprintf(&b, "Entry: $%s\n", p.EntryPrice.StringFixed(4))
	fmt.Fprintf(&b, "TP: $%s\n", p.TakeProfit.StringFixed(4))
	fmt.Fprintf(&b, "SL: $%s\n", p.StopLoss.StringFixed(4))
	if p.LiquidationPrice != nil {
		fmt.Fprintf(&b, "Liquidation: $%s\n", p.LiquidationPrice.StringFixed(4))
	}
	fmt.Fprintf(&b, "Position size: $%s\n", p.Notional.StringFixed(2))
	fmt.Fprintf(&b, "Margin: $%s\n", p.Margin.StringFixed(2))
	fmt.Fprintf(&b, "R/R: 1:%.2f\n\n", p.RiskRewardRatio)
	fmt.Fprintf(&b, "Balance: $%s\n", acct.FreeBalance.StringFixed(2))
	fmt.Fprintf(&b, "Open positions: %d/%d\n", openCount, maxOpen)

	return b.String()
}

// Closed renders the notification for a closed position. st should be
// computed after the close.
func Closed(p ledger.Position, st ledger.Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s PAPER TRADING - position closed\n\n", closeTag(p))
	fmt.Fprintf(&b, "%s %s%s\n", p.Direction, p.Symbol, leverageSuffix(p.Leverage))
	fmt.Fprintf(&b, "Reason: %s\n\n", p.CloseReason)
	fmt.Fprintf(&b, "Entry: $%s\n", p.EntryPrice.StringFixed(4))
	if p.ExitPrice != nil {
		fmt.Fprintf(&b, "Exit: $%s\n", p.ExitPrice.StringFixed(4))
	}
	fmt.Fprintf(&b, "Duration: %.1fh\n\n", p.DurationHours)

	fmt.Fprintf(&b, "P&L: $%s", p.RealizedPnl.StringFixed(2))
	if p.Leverage > 1 {
		fmt.Fprintf(&b, " (%s%% on margin)\n", signed(p.RealizedPnlPercentOnMargin))
	} else {
		fmt.Fprintf(&b, " (%s%%)\n", signed(p.RealizedPnlPercent))
	}
	fmt.Fprintf(&b, "Portfolio: $%s (ROI: %s%%)\n\n", st.TotalPortfolioValue.StringFixed(2), st.ROI.StringFixed(2))
	fmt.Fprintf(&b, "Total trades: %d\n", st.TotalTrades)
	fmt.Fprintf(&b, "Win rate: %s%%\n", st.WinRate.StringFixed(1))

	return b.String()
}

// LastTrades is how many closed positions the report lists.
const LastTrades = 10

// Performance renders the full performance report.
func Performance(s ledger.Snapshot, st ledger.Stats) string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(&b, "%s\nPAPER TRADING PERFORMANCE REPORT\n%s\n", rule, rule)

	section(&b, "SUMMARY")
	line(&b, "Initial balance:      $%s", st.InitialBalance.StringFixed(2))
	line(&b, "Free balance:         $%s", st.FreeBalance.StringFixed(2))
	line(&b, "Capital in positions: $%s", st.OpenCapital.StringFixed(2))
	line(&b, "Unrealized P&L:       $%s", signed(st.UnrealizedPnl))
	line(&b, "Portfolio value:      $%s", st.TotalPortfolioValue.StringFixed(2))
	line(&b, "ROI:                  %s%%", signed(st.ROI))
	line(&b, "")
	line(&b, "Realized P&L:         $%s (%s%%)", signed(st.TotalPnl), signed(st.TotalPnlPercent))
	line(&b, "Open positions:       %d", st.OpenPositions)
	endSection(&b)

	if st.TotalTrades == 0 {
		fmt.Fprintf(&b, "\nNo closed trades yet\n\n%s\n", rule)
		return b.String()
	}

	lossRate := decimal.NewFromInt(100).Sub(st.WinRate)
	section(&b, "TRADING STATISTICS")
	line(&b, "Total trades:  %d", st.TotalTrades)
	line(&b, "Winners:       %d (%s%%)", st.Wins, st.WinRate.StringFixed(1))
	line(&b, "Losers:        %d (%s%%)", st.Losses, lossRate.StringFixed(1))
	line(&b, "Average win:   $%s", st.AvgWin.StringFixed(2))
	line(&b, "Average loss:  $%s", st.AvgLoss.StringFixed(2))
	line(&b, "Best trade:    $%s", st.BestTrade.StringFixed(2))
	line(&b, "Worst trade:   $%s", st.WorstTrade.StringFixed(2))
	line(&b, "Avg duration:  %.1fh", st.AvgTradeDurationHours)
	endSection(&b)

	if len(s.Open) > 0 {
		section(&b, "OPEN POSITIONS")
		for _, p := range s.Open {
			line(&b, "%s %-5s %-12s Entry: $%s | P&L: $%s (%s%%)",
				mark(p.UnrealizedPnl), p.Direction, p.Symbol, p.EntryPrice.StringFixed(4),
				signed(p.UnrealizedPnl), signed(p.UnrealizedPnlPercent))
		}
		endSection(&b)
	}

	section(&b, "LAST CLOSED TRADES")
	closed := s.Closed
	if len(closed) > LastTrades {
		closed = closed[len(closed)-LastTrades:]
	}
	for i := len(closed) - 1; i >= 0; i-- {
		p := closed[i]
		reason := strings.ReplaceAll(string(p.CloseReason), "_", " ")
		line(&b, "%s %-5s %-12s %-12s P&L: $%s (%s%%)",
			mark(p.RealizedPnl), p.Direction, p.Symbol, reason,
			signed(p.RealizedPnl), signed(p.RealizedPnlPercent))
	}
	endSection(&b)

	section(&b, "BY SYMBOL")
	for _, sym := range st.PerSymbol {
		line(&b, "%s %-12s Trades: %2d | Win rate: %5s%% | P&L: $%s",
			mark(sym.Pnl), sym.Symbol, sym.Trades, sym.WinRate.StringFixed(1), signed(sym.Pnl))
	}
	endSection(&b)

	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n+- %s %s\n", title, strings.Repeat("-", 76-len(title)))
}

func endSection(b *strings.Builder) {
	fmt.Fprintf(b, "+%s\n", strings.Repeat("-", 79))
}

func line(b *strings.Builder, format string, args ...interface{}) {
	fmt.Fprintf(b, "| "+format+"\n", args...)
}

func leverageSuffix(lev int) string {
	if lev > 1 {
		return fmt.Sprintf(" (leverage %dx)", lev)
	}
	return ""
}

func closeTag(p ledger.Position) string {
	if p.CloseReason == ledger.ReasonLiquidated {
		return "[LIQUIDATED]"
	}
	if p.RealizedPnl.IsPositive() {
		return "[WIN]"
	}
	return "[LOSS]"
}

func mark(pnl decimal.Decimal) string {
	if pnl.IsPositive() {
		return "+"
	}
	return "-"
}

// signed formats d with two decimals and an explicit sign.
func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.IsNegative() {
		return "+" + s
	}
	return s
}
