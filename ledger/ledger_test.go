package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSizesLeveragedLong(t *testing.T) {
	t.Parallel()

	l, st, j, _ := newTestLedger(t, baseConfig())

	p := mustOpen(t, l, longSignal("100000", "104000", "98000"), "BTC/USDT")

	requireDec(t, "20", p.Margin)
	requireDec(t, "100", p.Notional)
	requireDec(t, "0.001", p.SizeInBase)
	require.NotNil(t, p.LiquidationPrice)
	requireDec(t, "84000", *p.LiquidationPrice)
	requireDec(t, "104000", p.TakeProfit)
	requireDec(t, "98000", p.StopLoss)
	assert.Equal(t, 5, p.Leverage)
	assert.Equal(t, StatusOpen, p.Status)
	assert.Nil(t, p.ClosedAt)
	assert.Nil(t, p.ExitPrice)
	assert.Contains(t, p.ID, "BTCUSDT_")

	requireDec(t, "980", l.Account().FreeBalance)
	assert.Equal(t, 1, st.saves)
	require.Len(t, st.snap.Open, 1)
	require.Len(t, j.equity, 1)
	requireDec(t, "1000", j.equity[0].TotalValue)
}

func TestOpenWithoutLiquidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		leverage int
		simulate bool
	}{
		{"leverage one", 1, true},
		{"simulation off", 5, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			cfg.Leverage = tt.leverage
			cfg.SimulateLiquidation = tt.simulate
			l, _, _, _ := newTestLedger(t, cfg)

			p := mustOpen(t, l, longSignal("100", "110", "90"), "ETH/USDT")
			assert.Nil(t, p.LiquidationPrice)
		})
	}
}

func TestOpenShortLiquidationPrice(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())

	p := mustOpen(t, l, shortSignal("100000", "96000", "102000"), "BTC/USDT")
	require.NotNil(t, p.LiquidationPrice)
	requireDec(t, "116000", *p.LiquidationPrice)
}

func TestOpenMarginShrinksWithBalance(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())

	first := mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	second := mustOpen(t, l, longSignal("100", "110", "90"), "B/USDT")

	requireDec(t, "20", first.Margin)
	requireDec(t, "19.6", second.Margin)
	requireDec(t, "960.4", l.Account().FreeBalance)
}

func TestOpenDeclines(t *testing.T) {
	t.Parallel()

	t.Run("capacity", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig()
		cfg.MaxOpenPositions = 1
		l, st, _, _ := newTestLedger(t, cfg)

		mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
		p, reason, err := l.Open(longSignal("100", "110", "90"), "B/USDT")
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, "maximum open positions reached (1)", reason)
		assert.Equal(t, 1, st.saves)
		assert.Len(t, l.OpenPositions(), 1)
	})

	t.Run("balance", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig()
		cfg.InitialBalance = d("0")
		l, _, _, _ := newTestLedger(t, cfg)

		p, reason, err := l.Open(longSignal("100", "110", "90"), "A/USDT")
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, "insufficient balance", reason)
	})

	t.Run("capacity checked first", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig()
		cfg.MaxOpenPositions = 1
		cfg.PositionSizePercent = d("100")
		l, _, _, _ := newTestLedger(t, cfg)

		mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
		requireDec(t, "0", l.Account().FreeBalance)

		_, reason, err := l.Open(longSignal("100", "110", "90"), "B/USDT")
		require.NoError(t, err)
		assert.Equal(t, "maximum open positions reached (1)", reason)
	})
}

func TestOpenRejectsInvalidSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sig    Signal
		symbol string
	}{
		{"zero entry", longSignal("0", "1", "1"), "A/USDT"},
		{"negative entry", shortSignal("-5", "1", "1"), "A/USDT"},
		{"unknown direction", Signal{Direction: "FLAT", EntryPrice: d("1")}, "A/USDT"},
		{"empty symbol", longSignal("100", "110", "90"), " "},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, st, _, _ := newTestLedger(t, baseConfig())
			p, _, err := l.Open(tt.sig, tt.symbol)
			assert.ErrorIs(t, err, ErrInvalidSignal)
			assert.Nil(t, p)
			assert.Zero(t, st.saves)
			requireDec(t, "1000", l.Account().FreeBalance)
		})
	}
}

func TestOpenPersistenceFailureKeepsPosition(t *testing.T) {
	t.Parallel()

	l, st, _, _ := newTestLedger(t, baseConfig())
	st.fail = errDiskFull

	p, reason, err := l.Open(longSignal("100", "110", "90"), "A/USDT")
	require.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, reason)
	require.NotNil(t, p)
	assert.Len(t, l.OpenPositions(), 1)
	requireDec(t, "980", l.Account().FreeBalance)
}

func TestScenarioFixedTakeProfitHit(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.FixedTakeProfit = Rule{Enabled: true, Percent: d("2")}
	cfg.TrailingStop = Rule{Enabled: true, Percent: d("1.5")}
	l, _, j, c := newTestLedger(t, cfg)

	mustOpen(t, l, longSignal("100000", "110000", "98000"), "BTC/USDT")
	c.advance(90 * time.Minute)

	n, err := l.OnPriceUpdate("BTC/USDT", d("102000"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	closed := l.ClosedPositions()
	require.Len(t, closed, 1)
	p := closed[0]
	assert.Equal(t, ReasonTakeProfit, p.CloseReason)
	assert.Equal(t, StatusClosed, p.Status)
	require.NotNil(t, p.ExitPrice)
	requireDec(t, "102000", *p.ExitPrice)
	requireDec(t, "2", p.RealizedPnl)
	requireDec(t, "10", p.RealizedPnlPercentOnMargin)
	requireDec(t, "2", p.RealizedPnlPercent)
	assert.InDelta(t, 1.5, p.DurationHours, 1e-9)
	require.NotNil(t, p.ClosedAt)

	requireDec(t, "1002", l.Account().FreeBalance)
	assert.Empty(t, l.OpenPositions())

	require.Len(t, j.trades, 1)
	assert.Equal(t, "TP_HIT", j.trades[0].Reason)
	requireDec(t, "2", j.trades[0].RealizedPnl)
}

func TestScenarioShortLiquidatedAtLiquidationPrice(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Leverage = 50
	l, _, _, _ := newTestLedger(t, cfg)

	p := mustOpen(t, l, shortSignal("100000", "90000", "105000"), "BTC/USDT")
	require.NotNil(t, p.LiquidationPrice)
	requireDec(t, "101600", *p.LiquidationPrice)

	n, err := l.OnPriceUpdate("BTC/USDT", d("101700"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := l.ClosedPositions()[0]
	assert.Equal(t, ReasonLiquidated, got.CloseReason)
	requireDec(t, "101600", *got.ExitPrice)
	requireDec(t, "-20", got.RealizedPnl)
	requireDec(t, "-100", got.RealizedPnlPercent)
	requireDec(t, "-100", got.RealizedPnlPercentOnMargin)
	requireDec(t, "980", l.Account().FreeBalance, "margin is forfeited")
}

func TestLiquidationClampsGappedLoss(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100000", "110000", "50000"), "BTC/USDT")

	// Far below the 84000 liquidation price.
	n, err := l.OnPriceUpdate("BTC/USDT", d("60000"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := l.ClosedPositions()[0]
	assert.Equal(t, ReasonLiquidated, got.CloseReason)
	requireDec(t, "84000", *got.ExitPrice)
	assert.True(t, got.RealizedPnl.Equal(got.Margin.Neg()))
	requireDec(t, "-100", got.RealizedPnlPercent)
}

func TestScenarioTrailingStop(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.TrailingStop = Rule{Enabled: true, Percent: d("1.5")}
	l, _, _, _ := newTestLedger(t, cfg)

	mustOpen(t, l, longSignal("100000", "120000", "98000"), "BTC/USDT")

	n, err := l.OnPriceUpdate("BTC/USDT", d("101000"))
	require.NoError(t, err)
	require.Zero(t, n)
	requireDec(t, "99485", l.OpenPositions()[0].StopLoss)

	n, err = l.OnPriceUpdate("BTC/USDT", d("99486"))
	require.NoError(t, err)
	require.Zero(t, n)
	requireDec(t, "99485", l.OpenPositions()[0].StopLoss, "stop never loosens")

	n, err = l.OnPriceUpdate("BTC/USDT", d("99485"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := l.ClosedPositions()[0]
	assert.Equal(t, ReasonStopLoss, got.CloseReason)
	requireDec(t, "99485", *got.ExitPrice)
	requireDec(t, "-0.515", got.RealizedPnl)
}

func TestTrailingStopMonotonic(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	cfg.TrailingStop = Rule{Enabled: true, Percent: d("1")}

	tests := []struct {
		name   string
		sig    Signal
		prices []string
	}{
		{
			name:   "long",
			sig:    longSignal("100", "1000", "90"),
			prices: []string{"101", "105", "104.5", "108", "107.5", "110"},
		},
		{
			name:   "short",
			sig:    shortSignal("100", "1", "110"),
			prices: []string{"99", "95", "95.5", "92", "92.5", "90"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, _, _, _ := newTestLedger(t, cfg)
			prev := mustOpen(t, l, tt.sig, "X/USDT").StopLoss

			for _, px := range tt.prices {
				n, err := l.OnPriceUpdate("X/USDT", d(px))
				require.NoError(t, err)
				require.Zero(t, n, "closed at %s", px)

				next := l.OpenPositions()[0].StopLoss
				if tt.sig.Direction == Long {
					assert.True(t, next.GreaterThanOrEqual(prev), "stop moved down at %s", px)
				} else {
					assert.True(t, next.LessThanOrEqual(prev), "stop moved up at %s", px)
				}
				prev = next
			}
		})
	}
}

func TestFixedTakeProfitPinnedToEntry(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	cfg.FixedTakeProfit = Rule{Enabled: true, Percent: d("3")}
	l, _, _, _ := newTestLedger(t, cfg)

	mustOpen(t, l, shortSignal("200", "150", "260"), "SOL/USDT")

	for _, px := range []string{"201", "199", "210", "195"} {
		n, err := l.OnPriceUpdate("SOL/USDT", d(px))
		require.NoError(t, err)
		require.Zero(t, n)
		requireDec(t, "194", l.OpenPositions()[0].TakeProfit)
	}

	n, err := l.OnPriceUpdate("SOL/USDT", d("194"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, ReasonTakeProfit, l.ClosedPositions()[0].CloseReason)
}

func TestTrailingTakeProfitRatchets(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	cfg.TrailingTakeProfit = Rule{Enabled: true, Percent: d("2")}
	l, _, _, _ := newTestLedger(t, cfg)

	p := mustOpen(t, l, longSignal("100", "101", "90"), "ETH/USDT")
	require.NotNil(t, p.HighestPriceSeen)
	requireDec(t, "100", *p.HighestPriceSeen)
	assert.Nil(t, p.LowestPriceSeen)

	steps := []struct {
		price, tp, best string
	}{
		{"100.5", "102.51", "100.5"},
		{"100.2", "102.51", "100.5"},
		{"101", "103.02", "101"},
		{"100.8", "103.02", "101"},
	}
	for _, s := range steps {
		n, err := l.OnPriceUpdate("ETH/USDT", d(s.price))
		require.NoError(t, err)
		require.Zero(t, n)

		got := l.OpenPositions()[0]
		requireDec(t, s.tp, got.TakeProfit, "at %s", s.price)
		requireDec(t, s.best, *got.HighestPriceSeen, "at %s", s.price)
	}
}

func TestTrailingTakeProfitShort(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	cfg.TrailingTakeProfit = Rule{Enabled: true, Percent: d("2")}
	l, _, _, _ := newTestLedger(t, cfg)

	mustOpen(t, l, shortSignal("100", "99", "110"), "ETH/USDT")

	_, err := l.OnPriceUpdate("ETH/USDT", d("99.5"))
	require.NoError(t, err)

	got := l.OpenPositions()[0]
	requireDec(t, "97.51", got.TakeProfit)
	requireDec(t, "99.5", *got.LowestPriceSeen)
}

func TestTakeProfitCheckedBeforeStopLoss(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	l, _, _, _ := newTestLedger(t, cfg)

	// Inverted levels so one price satisfies both.
	mustOpen(t, l, longSignal("100", "95", "105"), "X/USDT")

	n, err := l.OnPriceUpdate("X/USDT", d("100"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, ReasonTakeProfit, l.ClosedPositions()[0].CloseReason)
}

func TestOnPriceUpdateSurvivorMarked(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, shortSignal("100000", "90000", "105000"), "BTC/USDT")

	n, err := l.OnPriceUpdate("BTC/USDT", d("99000"))
	require.NoError(t, err)
	require.Zero(t, n)

	p := l.OpenPositions()[0]
	requireDec(t, "99000", p.CurrentPrice)
	requireDec(t, "1", p.UnrealizedPnl)
	requireDec(t, "1", p.UnrealizedPnlPercent)
	requireDec(t, "5", p.UnrealizedPnlPercentOnMargin)
}

func TestOnPriceUpdateOtherSymbolsUntouched(t *testing.T) {
	t.Parallel()

	l, st, j, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	mustOpen(t, l, longSignal("50", "55", "45"), "B/USDT")
	saves, equity := st.saves, len(j.equity)

	n, err := l.OnPriceUpdate("A/USDT", d("111"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open := l.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "B/USDT", open[0].Symbol)
	requireDec(t, "50", open[0].CurrentPrice)
	assert.Equal(t, saves+1, st.saves, "persists once per call")
	assert.Equal(t, equity+1, len(j.equity))

	n, err = l.OnPriceUpdate("C/USDT", d("1"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, saves+1, st.saves)
}

func TestOnPriceUpdateClosesSeveralInOnePass(t *testing.T) {
	t.Parallel()

	l, st, _, _ := newTestLedger(t, baseConfig())
	rec := &recorder{}
	l.SetListener(rec)

	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	mustOpen(t, l, longSignal("100", "105", "90"), "A/USDT")
	mustOpen(t, l, longSignal("100", "130", "90"), "A/USDT")
	saves := st.saves

	n, err := l.OnPriceUpdate("A/USDT", d("112"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, l.OpenPositions(), 1)
	assert.Len(t, rec.opened, 3)
	require.Len(t, rec.closed, 2)
	for _, p := range rec.closed {
		assert.Equal(t, ReasonTakeProfit, p.CloseReason)
	}
	assert.Equal(t, saves+1, st.saves)
}

func TestOnPriceUpdateIgnoresNonPositivePrice(t *testing.T) {
	t.Parallel()

	l, st, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	saves := st.saves

	for _, px := range []string{"0", "-1"} {
		n, err := l.OnPriceUpdate("A/USDT", d(px))
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Equal(t, saves, st.saves)
	requireDec(t, "100", l.OpenPositions()[0].CurrentPrice)
}

func TestOnPriceUpdatePersistenceFailure(t *testing.T) {
	t.Parallel()

	l, st, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	st.fail = errDiskFull

	n, err := l.OnPriceUpdate("A/USDT", d("120"))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, n)
	assert.Len(t, l.ClosedPositions(), 1, "memory is kept")
}

func TestMarginConservation(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SimulateLiquidation = false
	l, _, _, _ := newTestLedger(t, cfg)

	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	mustOpen(t, l, shortSignal("50", "45", "55"), "B/USDT")
	requireDec(t, "1000", l.Statistics().TotalPortfolioValue)

	_, err := l.OnPriceUpdate("A/USDT", d("104"))
	require.NoError(t, err)
	requireDec(t, "4", l.Statistics().UnrealizedPnl)
	requireDec(t, "1004", l.Statistics().TotalPortfolioValue)

	_, err = l.OnPriceUpdate("A/USDT", d("110"))
	require.NoError(t, err)
	_, err = l.OnPriceUpdate("B/USDT", d("56"))
	require.NoError(t, err)

	closed := l.ClosedPositions()
	require.Len(t, closed, 2)
	requireDec(t, "10", closed[0].RealizedPnl)
	requireDec(t, "-11.76", closed[1].RealizedPnl)

	realized := closed[0].RealizedPnl.Add(closed[1].RealizedPnl)
	acct := l.Account()
	assert.True(t, acct.FreeBalance.Equal(acct.InitialBalance.Add(realized)))
	assert.Empty(t, l.OpenPositions())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100000", "110000", "90000"), "BTC/USDT")

	s := l.Snapshot()
	*s.Open[0].LiquidationPrice = d("1")
	s.Open[0].StopLoss = d("1")

	p := l.OpenPositions()[0]
	requireDec(t, "84000", *p.LiquidationPrice)
	requireDec(t, "90000", p.StopLoss)
}

func TestLookupBySymbol(t *testing.T) {
	t.Parallel()

	l, _, _, _ := newTestLedger(t, baseConfig())
	assert.False(t, l.HasOpenPosition("A/USDT"))

	opened := mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	assert.True(t, l.HasOpenPosition("A/USDT"))
	assert.False(t, l.HasOpenPosition("B/USDT"))

	p, ok := l.OpenPositionBySymbol("A/USDT")
	require.True(t, ok)
	assert.Equal(t, opened.ID, p.ID)

	_, ok = l.OpenPositionBySymbol("B/USDT")
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	t.Parallel()

	l, st, _, _ := newTestLedger(t, baseConfig())
	mustOpen(t, l, longSignal("100", "110", "90"), "A/USDT")
	_, err := l.OnPriceUpdate("A/USDT", d("111"))
	require.NoError(t, err)

	require.NoError(t, l.Reset())
	assert.Empty(t, l.OpenPositions())
	assert.Empty(t, l.ClosedPositions())
	requireDec(t, "1000", l.Account().FreeBalance)
	assert.Empty(t, st.snap.Closed)
}

func TestNewRestoresState(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	first, err := New(baseConfig(), st, nil, zerolog.Nop())
	require.NoError(t, err)
	p, _, err := first.Open(longSignal("100", "110", "90"), "A/USDT")
	require.NoError(t, err)

	second, err := New(baseConfig(), st, nil, zerolog.Nop())
	require.NoError(t, err)
	open := second.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, p.ID, open[0].ID)
	requireDec(t, "980", second.Account().FreeBalance)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.FixedTakeProfit = Rule{Enabled: true, Percent: d("2")}
	cfg.TrailingTakeProfit = Rule{Enabled: true, Percent: d("2")}

	_, err := New(cfg, &memStore{}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrConflictingTakeProfit)
}
