package engine

import (
	"time"

	"orb/journal"
	"orb/market"
)

// State is the lifecycle position of a trading session.
type State int

const (
	StateAwaitingEntry State = iota
	StateOrdersSubmitted
	StateMonitoring
	StateSwingHold
	StateClosed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateAwaitingEntry:
		return "awaiting_entry"
	case StateOrdersSubmitted:
		return "orders_submitted"
	case StateMonitoring:
		return "monitoring"
	case StateSwingHold:
		return "swing_hold"
	case StateClosed:
		return "closed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Leg is one of the three bracket orders of a session. Exit fields are
// written exactly once; Close is a no-op on an already-closed leg.
type Leg struct {
	Index      int // 1-based
	OrderID    string
	ClientID   string
	Qty        int64
	EntryPrice float64
	Stop       float64
	Target     float64

	ExitPrice  float64
	ExitTime   time.Time
	ExitReason journal.ExitReason

	closed        bool
	exitPending   bool
	pendingReason journal.ExitReason
}

// Open reports whether the leg still holds a position.
func (l *Leg) Open() bool { return !l.closed }

// Close records the exit once. Returns false if the leg was already closed.
func (l *Leg) Close(price float64, at time.Time, reason journal.ExitReason) bool {
	if l.closed {
		return false
	}
	l.closed = true
	l.exitPending = false
	l.ExitPrice = price
	l.ExitTime = at
	l.ExitReason = reason
	return true
}

// RaiseStop ratchets the stop toward break-even. For a long session the
// stop only ever moves up; for a short, only down.
func (l *Leg) RaiseStop(to float64, dir Direction) {
	if dir == Long {
		if to > l.Stop {
			l.Stop = to
		}
		return
	}
	if to < l.Stop {
		l.Stop = to
	}
}

// Session is the per-instrument trading session owned by one engine
// goroutine. Nothing here is shared; cross-instrument state lives in the
// shared store.
type Session struct {
	ID     string
	Symbol string
	State  State

	Direction Direction

	OpenTime  time.Time // today's session open
	CloseTime time.Time // today's session close
	EnteredAt time.Time // when the brackets were submitted

	Range market.OpeningRange
	Legs  [Legs]*Leg

	ratcheted bool
}

// OpenLegs returns the legs still holding a position.
func (s *Session) OpenLegs() []*Leg {
	var open []*Leg
	for _, l := range s.Legs {
		if l != nil && l.Open() {
			open = append(open, l)
		}
	}
	return open
}

// legQuantities splits total across the legs, remainder on the last.
func legQuantities(total int64) [Legs]int64 {
	each := total / Legs
	var out [Legs]int64
	for i := 0; i < Legs; i++ {
		out[i] = each
	}
	out[Legs-1] += total - each*Legs
	return out
}
