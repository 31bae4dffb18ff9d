package engine

import (
	"time"

	"orb/broker"
	"orb/metrics"

	"github.com/sirupsen/logrus"
)

// Report is the terminal summary of one session.
type Report struct {
	SessionID string
	Symbol    string
	State     State
	Entered   bool
	Pnl       float64 // realized, slippage-adjusted
	PnlRatio  float64 // Pnl / position value
	Legs      []LegResult
	Fills     []broker.Fill // entry+exit per closed leg, for FIFO accounting
}

// LegResult is one leg's outcome in the report.
type LegResult struct {
	Index      int
	Qty        int64
	EntryPrice float64
	ExitPrice  float64
	ExitTime   time.Time
	Reason     string
	Pnl        float64
}

// legPnl is the leg's realized profit with slippage applied symmetrically:
// the entry fills worse than quoted and the exit fills worse than quoted,
// on whichever side "worse" is for the session's direction.
func (e *Engine) legPnl(leg *Leg, dir Direction) float64 {
	s := e.params.SlippageRate
	if dir == Short {
		entry := leg.EntryPrice * (1 - s)
		exit := leg.ExitPrice * (1 + s)
		return (entry - exit) * float64(leg.Qty)
	}
	entry := leg.EntryPrice * (1 + s)
	exit := leg.ExitPrice * (1 - s)
	return (exit - entry) * float64(leg.Qty)
}

// report assembles the session summary and its fill stream.
func (e *Engine) report(sess *Session) *Report {
	r := &Report{
		SessionID: sess.ID,
		Symbol:    sess.Symbol,
		State:     sess.State,
	}

	entrySide, exitSide := broker.Buy, broker.Sell
	if sess.Direction == Short {
		entrySide, exitSide = broker.Sell, broker.Buy
	}

	for _, leg := range sess.Legs {
		if leg == nil {
			continue
		}
		r.Entered = true
		if leg.Open() {
			continue
		}

		pnl := e.legPnl(leg, sess.Direction)
		r.Pnl += pnl
		r.Legs = append(r.Legs, LegResult{
			Index:      leg.Index,
			Qty:        leg.Qty,
			EntryPrice: leg.EntryPrice,
			ExitPrice:  leg.ExitPrice,
			ExitTime:   leg.ExitTime,
			Reason:     string(leg.ExitReason),
			Pnl:        pnl,
		})
		r.Fills = append(r.Fills,
			broker.Fill{
				OrderID: leg.OrderID,
				Symbol:  sess.Symbol,
				Side:    entrySide,
				Qty:     leg.Qty,
				Price:   leg.EntryPrice,
				Time:    sess.EnteredAt,
			},
			broker.Fill{
				OrderID: leg.OrderID,
				Symbol:  sess.Symbol,
				Side:    exitSide,
				Qty:     leg.Qty,
				Price:   leg.ExitPrice,
				Time:    leg.ExitTime,
			},
		)
	}

	if e.params.PositionValue > 0 {
		r.PnlRatio = r.Pnl / e.params.PositionValue
	}
	return r
}

// record publishes the terminal result to metrics, counters and the log.
func (e *Engine) record(sess *Session, r *Report, log *logrus.Entry) {
	metrics.SessionPnl.Set(r.Pnl)
	e.store.IncrementCounter("sessions.completed", 1)

	log.WithFields(logrus.Fields{
		"state":     sess.State.String(),
		"entered":   r.Entered,
		"pnl":       r.Pnl,
		"pnl_ratio": r.PnlRatio,
		"legs":      len(r.Legs),
	}).Info("session closed")
}
