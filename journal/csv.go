package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var (
	csvTradeHeader  = []string{"position_id", "symbol", "direction", "leverage", "margin", "entry_price", "exit_price", "open_time", "close_time", "realized_pnl", "pnl_percent_on_margin", "reason"}
	csvEquityHeader = []string{"time", "free_balance", "open_capital", "unrealized_pnl", "total_value", "open_positions"}
)

// NewCSV opens both files in append mode and writes headers to empty files,
// so restarts keep extending the same journal.
func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := openAppend(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := openAppend(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	j := &CSVJournal{
		trades: csv.NewWriter(tf),
		equity: csv.NewWriter(ef),
		tf:     tf,
		ef:     ef,
	}

	if err := writeHeaderIfEmpty(tf, j.trades, csvTradeHeader); err != nil {
		j.Close()
		return nil, err
	}
	if err := writeHeaderIfEmpty(ef, j.equity, csvEquityHeader); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func writeHeaderIfEmpty(f *os.File, w *csv.Writer, header []string) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() > 0 {
		return nil
	}
	if err := w.Write(header); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.PositionID,
		t.Symbol,
		t.Direction,
		strconv.Itoa(t.Leverage),
		t.Margin.String(),
		t.EntryPrice.String(),
		t.ExitPrice.String(),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		t.RealizedPnl.String(),
		t.PnlPercentOnMargin.StringFixed(2),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		e.FreeBalance.String(),
		e.OpenCapital.String(),
		e.UnrealizedPnl.String(),
		e.TotalValue.String(),
		strconv.Itoa(e.OpenPositions),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}
