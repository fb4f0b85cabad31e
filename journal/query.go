package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTradeNotFound is returned by GetTrade for unknown position ids.
var ErrTradeNotFound = errors.New("trade not found")

const tradeColumns = `position_id, symbol, direction, leverage, margin, entry_price, exit_price, open_time, close_time, realized_pnl, pnl_percent_on_margin, reason`

const equityColumns = `time, free_balance, open_capital, unrealized_pnl, total_value, open_positions`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.PositionID,
		&rec.Symbol,
		&rec.Direction,
		&rec.Leverage,
		&rec.Margin,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPnl,
		&rec.PnlPercentOnMargin,
		&rec.Reason,
	)
	return rec, err
}

func scanEquity(s scanner) (EquitySnapshot, error) {
	var rec EquitySnapshot
	err := s.Scan(
		&rec.Time,
		&rec.FreeBalance,
		&rec.OpenCapital,
		&rec.UnrealizedPnl,
		&rec.TotalValue,
		&rec.OpenPositions,
	)
	return rec, err
}

// GetTrade returns a single trade record by position id.
func (j *SQLite) GetTrade(positionID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE position_id = ?`, positionID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("%w: %q", ErrTradeNotFound, positionID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity snapshots taken within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT `+equityColumns+`
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		rec, err := scanEquity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
