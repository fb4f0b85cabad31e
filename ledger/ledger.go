package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arnaudstdr/bot-trade/journal"
	"github.com/arnaudstdr/bot-trade/pkg/id"
)

// Ledger owns the account and every position. All exported methods are
// safe for concurrent use; reads return copies.
type Ledger struct {
	mu       sync.RWMutex
	cfg      Config
	acct     Account
	open     []*Position
	closed   []*Position
	updated  time.Time
	store    Store
	journal  journal.Journal
	listener Listener
	now      func() time.Time
	log      zerolog.Logger
}

// New builds a ledger from cfg and restores any state previously saved in st.
// A nil journal discards records.
func New(cfg Config, st Store, j journal.Journal, log zerolog.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("ledger: nil store")
	}
	if j == nil {
		j = journal.Nop{}
	}

	l := &Ledger{
		cfg:     cfg,
		store:   st,
		journal: j,
		now:     time.Now,
		log:     log.With().Str("component", "ledger").Logger(),
		acct: Account{
			FreeBalance:    cfg.InitialBalance,
			InitialBalance: cfg.InitialBalance,
		},
	}

	snap, ok, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("ledger: load state: %w", err)
	}
	if ok {
		l.restore(snap)
		l.log.Info().
			Str("balance", l.acct.FreeBalance.StringFixed(2)).
			Int("open", len(l.open)).
			Int("closed", len(l.closed)).
			Msg("state restored")
	}
	return l, nil
}

func (l *Ledger) restore(s Snapshot) {
	l.acct = s.Account
	if l.acct.InitialBalance.IsZero() {
		l.acct.InitialBalance = l.cfg.InitialBalance
		if l.acct.FreeBalance.IsZero() && len(s.Open) == 0 && len(s.Closed) == 0 {
			l.acct.FreeBalance = l.cfg.InitialBalance
		}
	}
	l.open = l.open[:0]
	for _, p := range s.Open {
		p := p.Clone()
		l.open = append(l.open, &p)
	}
	l.closed = l.closed[:0]
	for _, p := range s.Closed {
		p := p.Clone()
		l.closed = append(l.closed, &p)
	}
	l.updated = s.LastUpdate
}

// SetListener registers the open/close observer.
func (l *Ledger) SetListener(li Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = li
}

// SetClock replaces the wall clock, mostly for tests and replays.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Ledger) Config() Config { return l.cfg }

// Open creates a position from sig. A declined open returns a nil position
// and a reason; the error reports invalid signals and persistence failures.
// On a persistence failure the position stays open in memory.
func (l *Ledger) Open(sig Signal, symbol string) (*Position, string, error) {
	if err := sig.validate(); err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(symbol) == "" {
		return nil, "", fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}

	l.mu.Lock()

	if len(l.open) >= l.cfg.MaxOpenPositions {
		l.mu.Unlock()
		return nil, fmt.Sprintf("maximum open positions reached (%d)", l.cfg.MaxOpenPositions), nil
	}
	if !l.acct.FreeBalance.IsPositive() {
		l.mu.Unlock()
		return nil, "insufficient balance", nil
	}

	now := l.now()
	margin := l.acct.FreeBalance.Mul(l.cfg.PositionSizePercent).Div(hundred)
	notional := margin.Mul(decimal.NewFromInt(int64(l.cfg.Leverage)))

	p := &Position{
		ID:              id.ForPosition(symbol, now),
		Symbol:          symbol,
		Direction:       sig.Direction,
		EntryPrice:      sig.EntryPrice,
		CurrentPrice:    sig.EntryPrice,
		TakeProfit:      sig.TakeProfit,
		StopLoss:        sig.StopLoss,
		Margin:          margin,
		Leverage:        l.cfg.Leverage,
		Notional:        notional,
		SizeInBase:      notional.Div(sig.EntryPrice),
		Status:          StatusOpen,
		OpenedAt:        now,
		ConfidenceScore: sig.ConfidenceScore,
		RiskRewardRatio: sig.RiskRewardRatio,
	}
	if l.cfg.Leverage > 1 && l.cfg.SimulateLiquidation {
		p.LiquidationPrice = ptr(liquidationPrice(p.Direction, p.EntryPrice, p.Leverage, l.cfg.LiquidationThreshold))
	}
	if l.cfg.TrailingTakeProfit.Enabled {
		if p.Direction == Long {
			p.HighestPriceSeen = ptr(p.EntryPrice)
		} else {
			p.LowestPriceSeen = ptr(p.EntryPrice)
		}
	}

	l.acct.FreeBalance = l.acct.FreeBalance.Sub(margin)
	l.open = append(l.open, p)

	l.log.Info().
		Str("id", p.ID).
		Str("symbol", symbol).
		Str("direction", string(p.Direction)).
		Str("entry", p.EntryPrice.String()).
		Str("margin", margin.StringFixed(2)).
		Int("leverage", p.Leverage).
		Msg("position opened")

	err := l.persistLocked(now)
	l.recordEquityLocked(now)

	out := p.Clone()
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener.PositionOpened(out.Clone())
	}
	return &out, "", err
}

// OnPriceUpdate marks every open position of symbol to price, closing those
// whose liquidation, take-profit or stop-loss level is crossed. It returns
// the number of positions closed. Non-positive prices are ignored.
func (l *Ledger) OnPriceUpdate(symbol string, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		l.log.Warn().Str("symbol", symbol).Str("price", price.String()).Msg("ignoring non-positive price")
		return 0, nil
	}

	l.mu.Lock()

	now := l.now()
	var closed []Position
	matched := 0
	survivors := make([]*Position, 0, len(l.open))

	for _, p := range l.open {
		if p.Symbol != symbol {
			survivors = append(survivors, p)
			continue
		}
		matched++
		if reason, exit, done := l.evaluateLocked(p, price); done {
			l.closeLocked(p, exit, reason, now)
			closed = append(closed, p.Clone())
			continue
		}
		survivors = append(survivors, p)
	}
	l.open = survivors

	var err error
	if matched > 0 {
		err = l.persistLocked(now)
		l.recordEquityLocked(now)
	}

	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		for _, p := range closed {
			listener.PositionClosed(p)
		}
	}
	return len(closed), err
}

// evaluateLocked applies liquidation, trailing stop, take-profit and the
// TP/SL crossing, in that order. Survivors get their mark and P&L updated.
func (l *Ledger) evaluateLocked(p *Position, price decimal.Decimal) (CloseReason, decimal.Decimal, bool) {
	if hitLiquidation(p, price) {
		return ReasonLiquidated, *p.LiquidationPrice, true
	}

	trailStop(p, price, l.cfg.TrailingStop)
	updateTakeProfit(p, price, l.cfg.FixedTakeProfit, l.cfg.TrailingTakeProfit)

	switch {
	case hitTakeProfit(p, price):
		return ReasonTakeProfit, price, true
	case hitStopLoss(p, price):
		return ReasonStopLoss, price, true
	}

	pnl := ComputePnL(*p, price)
	p.CurrentPrice = price
	p.UnrealizedPnl = pnl.USDT
	p.UnrealizedPnlPercent = pnl.PercentOnPrice
	p.UnrealizedPnlPercentOnMargin = pnl.PercentOnMargin
	return "", decimal.Zero, false
}

// closeLocked finalizes p at exit and credits the account. It is the only
// place the balance is credited and must run once per position.
func (l *Ledger) closeLocked(p *Position, exit decimal.Decimal, reason CloseReason, now time.Time) {
	pnl := ComputePnL(*p, exit)

	p.CurrentPrice = exit
	p.ExitPrice = ptr(exit)
	p.ClosedAt = &now
	p.CloseReason = reason
	p.Status = StatusClosed
	p.RealizedPnl = pnl.USDT
	p.RealizedPnlPercent = pnl.PercentOnPrice
	p.RealizedPnlPercentOnMargin = pnl.PercentOnMargin
	p.UnrealizedPnl = decimal.Zero
	p.UnrealizedPnlPercent = decimal.Zero
	p.UnrealizedPnlPercentOnMargin = decimal.Zero
	p.DurationHours = now.Sub(p.OpenedAt).Hours()

	if reason == ReasonLiquidated {
		p.RealizedPnl = p.Margin.Neg()
		p.RealizedPnlPercent = hundred.Neg()
		p.RealizedPnlPercentOnMargin = hundred.Neg()
	} else {
		l.acct.FreeBalance = l.acct.FreeBalance.Add(p.Margin).Add(p.RealizedPnl)
	}

	l.closed = append(l.closed, p)

	l.log.Info().
		Str("id", p.ID).
		Str("symbol", p.Symbol).
		Str("reason", string(reason)).
		Str("exit", exit.String()).
		Str("pnl", p.RealizedPnl.StringFixed(2)).
		Msg("position closed")

	if err := l.journal.RecordTrade(journal.TradeRecord{
		PositionID:         p.ID,
		Symbol:             p.Symbol,
		Direction:          string(p.Direction),
		Leverage:           p.Leverage,
		Margin:             p.Margin,
		EntryPrice:         p.EntryPrice,
		ExitPrice:          exit,
		OpenTime:           p.OpenedAt,
		CloseTime:          now,
		RealizedPnl:        p.RealizedPnl,
		PnlPercentOnMargin: p.RealizedPnlPercentOnMargin,
		Reason:             string(reason),
	}); err != nil {
		l.log.Error().Err(err).Str("id", p.ID).Msg("journal trade")
	}
}

func (l *Ledger) hasSymbolLocked(symbol string) bool {
	for _, p := range l.open {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

func (l *Ledger) snapshotLocked() Snapshot {
	s := Snapshot{
		Account:    l.acct,
		Open:       make([]Position, 0, len(l.open)),
		Closed:     make([]Position, 0, len(l.closed)),
		LastUpdate: l.updated,
	}
	for _, p := range l.open {
		s.Open = append(s.Open, p.Clone())
	}
	for _, p := range l.closed {
		s.Closed = append(s.Closed, p.Clone())
	}
	return s
}

// persistLocked writes the full state. Failures are logged and returned;
// memory is never rolled back.
func (l *Ledger) persistLocked(now time.Time) error {
	l.updated = now
	if err := l.store.Save(l.snapshotLocked()); err != nil {
		l.log.Error().Err(err).Msg("persist state")
		return fmt.Errorf("ledger: persist state: %w", err)
	}
	return nil
}

func (l *Ledger) recordEquityLocked(now time.Time) {
	st := ComputeStatistics(l.snapshotLocked())
	if err := l.journal.RecordEquity(journal.EquitySnapshot{
		Time:          now,
		FreeBalance:   st.FreeBalance,
		OpenCapital:   st.OpenCapital,
		UnrealizedPnl: st.UnrealizedPnl,
		TotalValue:    st.TotalPortfolioValue,
		OpenPositions: st.OpenPositions,
	}); err != nil {
		l.log.Error().Err(err).Msg("journal equity")
	}
}

// Snapshot returns a deep copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) Account() Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acct
}

func (l *Ledger) OpenPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p.Clone())
	}
	return out
}

func (l *Ledger) ClosedPositions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.closed))
	for _, p := range l.closed {
		out = append(out, p.Clone())
	}
	return out
}

func (l *Ledger) HasOpenPosition(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hasSymbolLocked(symbol)
}

// OpenPositionBySymbol returns the first open position on symbol.
func (l *Ledger) OpenPositionBySymbol(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.open {
		if p.Symbol == symbol {
			return p.Clone(), true
		}
	}
	return Position{}, false
}

// Statistics computes portfolio statistics from the current state.
func (l *Ledger) Statistics() Stats {
	return ComputeStatistics(l.Snapshot())
}

// Reset discards every position and restores the configured initial balance.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.acct = Account{FreeBalance: l.cfg.InitialBalance, InitialBalance: l.cfg.InitialBalance}
	l.open = nil
	l.closed = nil

	now := l.now()
	l.log.Warn().Str("balance", l.acct.FreeBalance.StringFixed(2)).Msg("ledger reset")
	err := l.persistLocked(now)
	l.recordEquityLocked(now)
	return err
}
