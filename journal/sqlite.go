package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the file-backed Journal implementation.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordLeg inserts one closed leg. Re-recording a (session, leg) pair is
// an error; a leg closes exactly once.
func (j *SQLite) RecordLeg(r LegRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO legs
		(session_id, symbol, leg, qty, entry_price, exit_price, entry_time, exit_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Symbol, r.Leg, r.Qty, r.EntryPrice,
		r.ExitPrice, r.EntryTime, r.ExitTime, r.RealizedPL, string(r.Reason),
	)
	if err != nil {
		return fmt.Errorf("record leg: %w", err)
	}
	return nil
}

// SessionLegs returns the closed legs of one session in leg order.
func (j *SQLite) SessionLegs(sessionID string) ([]LegRecord, error) {
	rows, err := j.db.Query(`
		SELECT session_id, symbol, leg, qty, entry_price, exit_price, entry_time, exit_time, realized_pl, reason
		FROM legs
		WHERE session_id = ?
		ORDER BY leg ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanLegs(rows)
}

// LegsClosedBetween returns legs whose exit_time is within [start, end),
// oldest first.
func (j *SQLite) LegsClosedBetween(start, end time.Time) ([]LegRecord, error) {
	rows, err := j.db.Query(`
		SELECT session_id, symbol, leg, qty, entry_price, exit_price, entry_time, exit_time, realized_pl, reason
		FROM legs
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	return scanLegs(rows)
}

func scanLegs(rows *sql.Rows) ([]LegRecord, error) {
	defer rows.Close()

	var out []LegRecord
	for rows.Next() {
		var rec LegRecord
		var reason string
		if err := rows.Scan(
			&rec.SessionID,
			&rec.Symbol,
			&rec.Leg,
			&rec.Qty,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.EntryTime,
			&rec.ExitTime,
			&rec.RealizedPL,
			&reason,
		); err != nil {
			return nil, err
		}
		rec.Reason = ExitReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
