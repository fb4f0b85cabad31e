package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// positionJSON is the on-disk position layout. Keys match state files
// written by earlier versions of the bot, which predate leverage.
type positionJSON struct {
	ID               string           `json:"id"`
	Symbol           string           `json:"symbol"`
	Type             Direction        `json:"type"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	CurrentPrice     decimal.Decimal  `json:"current_price"`
	TP               decimal.Decimal  `json:"tp"`
	SL               decimal.Decimal  `json:"sl"`
	SizeUSDT         decimal.Decimal  `json:"size_usdt"`
	MarginUSDT       *decimal.Decimal `json:"margin_usdt,omitempty"`
	SizeCrypto       decimal.Decimal  `json:"size_crypto"`
	Leverage         int              `json:"leverage,omitempty"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price"`
	HighestPrice     *decimal.Decimal `json:"highest_price,omitempty"`
	LowestPrice      *decimal.Decimal `json:"lowest_price,omitempty"`
	OpenedAt         stamp            `json:"opened_at"`
	Confidence       float64          `json:"confidence"`
	RiskReward       float64          `json:"risk_reward"`

	PnlUSDT            decimal.Decimal `json:"pnl_usdt"`
	PnlPercent         decimal.Decimal `json:"pnl_percent"`
	PnlPercentOnMargin decimal.Decimal `json:"pnl_percent_on_margin"`

	Status        Status           `json:"status"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	ClosedAt      *stamp           `json:"closed_at,omitempty"`
	CloseReason   CloseReason      `json:"close_reason,omitempty"`
	DurationHours float64          `json:"duration_hours,omitempty"`
}

func (p Position) MarshalJSON() ([]byte, error) {
	w := positionJSON{
		ID:               p.ID,
		Symbol:           p.Symbol,
		Type:             p.Direction,
		EntryPrice:       p.EntryPrice,
		CurrentPrice:     p.CurrentPrice,
		TP:               p.TakeProfit,
		SL:               p.StopLoss,
		SizeUSDT:         p.Notional,
		MarginUSDT:       ptr(p.Margin),
		SizeCrypto:       p.SizeInBase,
		Leverage:         p.Leverage,
		LiquidationPrice: p.LiquidationPrice,
		HighestPrice:     p.HighestPriceSeen,
		LowestPrice:      p.LowestPriceSeen,
		OpenedAt:         stamp(p.OpenedAt),
		Confidence:       p.ConfidenceScore,
		RiskReward:       p.RiskRewardRatio,
		Status:           p.Status,
	}
	if p.IsOpen() {
		w.PnlUSDT = p.UnrealizedPnl
		w.PnlPercent = p.UnrealizedPnlPercent
		w.PnlPercentOnMargin = p.UnrealizedPnlPercentOnMargin
	} else {
		w.PnlUSDT = p.RealizedPnl
		w.PnlPercent = p.RealizedPnlPercent
		w.PnlPercentOnMargin = p.RealizedPnlPercentOnMargin
		w.ExitPrice = p.ExitPrice
		if p.ClosedAt != nil {
			c := stamp(*p.ClosedAt)
			w.ClosedAt = &c
		}
		w.CloseReason = p.CloseReason
		w.DurationHours = p.DurationHours
	}
	return json.Marshal(w)
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var w positionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*p = Position{
		ID:               w.ID,
		Symbol:           w.Symbol,
		Direction:        w.Type,
		EntryPrice:       w.EntryPrice,
		CurrentPrice:     w.CurrentPrice,
		TakeProfit:       w.TP,
		StopLoss:         w.SL,
		LiquidationPrice: w.LiquidationPrice,
		Notional:         w.SizeUSDT,
		SizeInBase:       w.SizeCrypto,
		Leverage:         w.Leverage,
		HighestPriceSeen: w.HighestPrice,
		LowestPriceSeen:  w.LowestPrice,
		OpenedAt:         time.Time(w.OpenedAt),
		ConfidenceScore:  w.Confidence,
		RiskRewardRatio:  w.RiskReward,
		Status:           w.Status,
	}
	if !p.Direction.Valid() {
		return fmt.Errorf("position %q: unknown type %q", w.ID, w.Type)
	}
	// Pre-leverage files only carry size_usdt, which was the margin.
	if w.MarginUSDT != nil {
		p.Margin = *w.MarginUSDT
	} else {
		p.Margin = w.SizeUSDT
	}
	if p.Leverage < 1 {
		p.Leverage = 1
	}
	if p.Status == "" {
		p.Status = StatusOpen
		if w.ClosedAt != nil || w.CloseReason != "" {
			p.Status = StatusClosed
		}
	}

	if p.IsOpen() {
		p.UnrealizedPnl = w.PnlUSDT
		p.UnrealizedPnlPercent = w.PnlPercent
		p.UnrealizedPnlPercentOnMargin = w.PnlPercentOnMargin
		return nil
	}

	p.RealizedPnl = w.PnlUSDT
	p.RealizedPnlPercent = w.PnlPercent
	p.RealizedPnlPercentOnMargin = w.PnlPercentOnMargin
	p.ExitPrice = w.ExitPrice
	if w.ClosedAt != nil {
		c := time.Time(*w.ClosedAt)
		p.ClosedAt = &c
	}
	p.CloseReason = w.CloseReason
	p.DurationHours = w.DurationHours
	return nil
}

type snapshotJSON struct {
	Balance         decimal.Decimal `json:"balance"`
	InitialBalance  decimal.Decimal `json:"initial_balance"`
	OpenPositions   []Position      `json:"open_positions"`
	ClosedPositions []Position      `json:"closed_positions"`
	LastUpdate      stamp           `json:"last_update"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotJSON{
		Balance:         s.Account.FreeBalance,
		InitialBalance:  s.Account.InitialBalance,
		OpenPositions:   s.Open,
		ClosedPositions: s.Closed,
		LastUpdate:      stamp(s.LastUpdate),
	}
	if w.OpenPositions == nil {
		w.OpenPositions = []Position{}
	}
	if w.ClosedPositions == nil {
		w.ClosedPositions = []Position{}
	}
	return json.Marshal(w)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Snapshot{
		Account:    Account{FreeBalance: w.Balance, InitialBalance: w.InitialBalance},
		Open:       w.OpenPositions,
		Closed:     w.ClosedPositions,
		LastUpdate: time.Time(w.LastUpdate),
	}
	return nil
}

// stamp accepts RFC 3339 as well as the offset-less ISO timestamps found in
// older state files, which are read as UTC.
type stamp time.Time

var stampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t stamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *stamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*t = stamp(time.Time{})
		return nil
	}
	var err error
	for _, layout := range stampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, raw); err == nil {
			*t = stamp(parsed)
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q: %w", raw, err)
}
