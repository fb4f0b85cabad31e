package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arnaudstdr/bot-trade/journal"
)

type memStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saved bool
	saves int
	fail  error
}

func (m *memStore) Load() (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), m.saved, nil
}

func (m *memStore) Save(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.fail != nil {
		return m.fail
	}
	m.snap = s.Clone()
	m.saved = true
	return nil
}

type testJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (j *testJournal) RecordTrade(r journal.TradeRecord) error {
	j.trades = append(j.trades, r)
	return nil
}

func (j *testJournal) RecordEquity(s journal.EquitySnapshot) error {
	j.equity = append(j.equity, s)
	return nil
}

func (j *testJournal) Close() error { return nil }

type recorder struct {
	opened []Position
	closed []Position
}

func (r *recorder) PositionOpened(p Position) { r.opened = append(r.opened, p) }
func (r *recorder) PositionClosed(p Position) { r.closed = append(r.closed, p) }

var errDiskFull = errors.New("disk full")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// baseConfig has every rule off; tests switch on what they exercise.
func baseConfig() Config {
	return Config{
		InitialBalance:       d("1000"),
		PositionSizePercent:  d("2"),
		MaxOpenPositions:     3,
		Leverage:             5,
		SimulateLiquidation:  true,
		LiquidationThreshold: d("0.8"),
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(dur time.Duration) { c.t = c.t.Add(dur) }

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *memStore, *testJournal, *clock) {
	t.Helper()

	st := &memStore{}
	j := &testJournal{}
	l, err := New(cfg, st, j, zerolog.Nop())
	require.NoError(t, err)

	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l.SetClock(c.now)
	return l, st, j, c
}

func longSignal(entry, tp, sl string) Signal {
	return Signal{Direction: Long, EntryPrice: d(entry), TakeProfit: d(tp), StopLoss: d(sl), ConfidenceScore: 70, RiskRewardRatio: 2}
}

func shortSignal(entry, tp, sl string) Signal {
	return Signal{Direction: Short, EntryPrice: d(entry), TakeProfit: d(tp), StopLoss: d(sl), ConfidenceScore: 65, RiskRewardRatio: 1.5}
}

func mustOpen(t *testing.T, l *Ledger, sig Signal, symbol string) Position {
	t.Helper()
	p, reason, err := l.Open(sig, symbol)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.NotNil(t, p)
	return *p
}
