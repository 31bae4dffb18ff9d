package journal

const schema = `
CREATE TABLE IF NOT EXISTS legs (
	session_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	leg INTEGER NOT NULL,
	qty INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (session_id, leg)
);

CREATE INDEX IF NOT EXISTS idx_legs_symbol ON legs(symbol);
CREATE INDEX IF NOT EXISTS idx_legs_exit_time ON legs(exit_time);
`
