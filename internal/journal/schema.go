package journal

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	action TEXT NOT NULL,
	price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	balance TEXT NOT NULL,
	stop_loss TEXT NOT NULL,
	order_id INTEGER NOT NULL,
	ts DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, ts);

CREATE TABLE IF NOT EXISTS errors (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	stage TEXT NOT NULL,
	message TEXT NOT NULL,
	ts DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_errors_symbol_ts ON errors(symbol, ts);
`
