package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// opTimeout bounds every statement; the Journal interface carries no context.
const opTimeout = 5 * time.Second

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies the connection and applies Schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(pingCtx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (j *Postgres) RecordTrade(t TradeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := j.pool.Exec(ctx, `
		INSERT INTO trades
		(`+tradeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (position_id) DO UPDATE SET
			exit_price = EXCLUDED.exit_price,
			close_time = EXCLUDED.close_time,
			realized_pnl = EXCLUDED.realized_pnl,
			pnl_percent_on_margin = EXCLUDED.pnl_percent_on_margin,
			reason = EXCLUDED.reason`,
		t.PositionID, t.Symbol, t.Direction, t.Leverage, t.Margin, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPnl, t.PnlPercentOnMargin, t.Reason,
	)
	return err
}

func (j *Postgres) RecordEquity(e EquitySnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := j.pool.Exec(ctx, `
		INSERT INTO equity
		(`+equityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Time.UTC(), e.FreeBalance, e.OpenCapital, e.UnrealizedPnl, e.TotalValue, e.OpenPositions,
	)
	return err
}

func (j *Postgres) GetTrade(positionID string) (TradeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := j.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE position_id = $1`, positionID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("%w: %q", ErrTradeNotFound, positionID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

func (j *Postgres) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := j.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= $1 AND close_time < $2
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
	return out, rows.Err()
}

func (j *Postgres) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := j.pool.Query(ctx, `
		SELECT `+equityColumns+`
		FROM equity
		WHERE time >= $1 AND time < $2
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
	return out, rows.Err()
}

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}
