package journal

// Schema is shared by the SQLite and PostgreSQL backends. Money columns are
// TEXT/NUMERIC so decimals round-trip without float rounding.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	leverage INTEGER NOT NULL,
	margin TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	open_time TIMESTAMP NOT NULL,
	close_time TIMESTAMP NOT NULL,
	realized_pnl TEXT NOT NULL,
	pnl_percent_on_margin TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);

CREATE TABLE IF NOT EXISTS equity (
	time TIMESTAMP NOT NULL,
	free_balance TEXT NOT NULL,
	open_capital TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	total_value TEXT NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
