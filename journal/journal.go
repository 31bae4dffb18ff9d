// Package journal persists one record per closed leg to SQLite, so every
// exit survives a process restart and is queryable after the fact.
package journal

import "time"

// ExitReason explains why a leg was closed.
type ExitReason string

const (
	ReasonTarget      ExitReason = "target"
	ReasonStop        ExitReason = "stop"
	ReasonTrail       ExitReason = "trail"
	ReasonMarketClose ExitReason = "market_close"
	ReasonSwing       ExitReason = "swing"
)

// LegRecord is one closed leg of a session.
type LegRecord struct {
	SessionID  string
	Symbol     string
	Leg        int
	Qty        int64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	RealizedPL float64
	Reason     ExitReason
}

// Journal records closed legs. The engine writes; the CLI reads.
type Journal interface {
	RecordLeg(LegRecord) error
	Close() error
}
