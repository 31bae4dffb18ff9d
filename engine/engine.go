// Package engine drives one trading session per instrument through the
// opening-range breakout lifecycle: wait for an entry signal, submit three
// bracket legs, monitor them to their exits, and report the realized
// result. One engine goroutine owns one session; engines share the broker
// clients and the state store.
package engine

import (
	"context"
	"fmt"
	"time"

	"orb/broker"
	"orb/journal"
	"orb/logger"
	"orb/market"
	"orb/pkg/id"
	"orb/state"

	"github.com/sirupsen/logrus"
)

// EODSource provides daily history when the brokerage bars call fails;
// satisfied by the fundamentals client. May be nil.
type EODSource interface {
	HistoricalEOD(ctx context.Context, symbol string, from, to time.Time) ([]market.Candle, error)
}

// Engine runs one session for one instrument.
type Engine struct {
	params Params
	broker broker.Broker
	eod    EODSource
	store  *state.Store
	clock  market.Clock
	trades journal.Journal // may be nil
	log    *logrus.Entry
}

func New(p Params, b broker.Broker, eod EODSource, store *state.Store, clock market.Clock, trades journal.Journal, log *logger.Logger) (*Engine, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("engine params: %w", err)
	}
	return &Engine{
		params: p,
		broker: b,
		eod:    eod,
		store:  store,
		clock:  clock,
		trades: trades,
		log:    log.WithComponent("engine").WithField("symbol", p.Symbol),
	}, nil
}

// Run executes one complete session and returns its report. The returned
// error is non-nil only for terminal failures (rejected submission,
// cancelled context); an abandoned entry is a normal zero-trade report.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	sess := &Session{
		Symbol:    e.params.Symbol,
		State:     StateAwaitingEntry,
		Direction: e.params.Direction,
	}

	clk, err := e.broker.GetClock(ctx)
	if err != nil {
		return nil, fmt.Errorf("session clock: %w", err)
	}
	if !clk.IsOpen {
		e.log.WithField("next_open", clk.NextOpen).Info("market closed, waiting for open")
		if err := e.clock.Sleep(ctx, clk.NextOpen.Sub(e.clock.Now())); err != nil {
			return nil, err
		}
		if clk, err = e.broker.GetClock(ctx); err != nil {
			return nil, fmt.Errorf("session clock: %w", err)
		}
	}
	sess.OpenTime = sessionOpen(clk)
	sess.CloseTime = clk.NextClose
	sess.ID = id.NewAt(e.clock.Now())

	e.store.RegisterStrategy(sess.Symbol)
	defer e.store.UnregisterStrategy(sess.Symbol)

	log := e.log.WithField("session_id", sess.ID)
	log.WithFields(logrus.Fields{
		"direction": e.params.Direction,
		"hold_mode": e.params.HoldMode,
		"open":      sess.OpenTime,
		"close":     sess.CloseTime,
	}).Info("session started")

	if err := e.awaitEntry(ctx, sess, log); err != nil {
		return nil, err
	}
	if sess.State == StateAbandoned {
		log.Info("session abandoned before entry")
		report := e.report(sess)
		e.record(sess, report, log)
		return report, nil
	}

	if err := e.submitLegs(ctx, sess, log); err != nil {
		return nil, err
	}
	if sess.State == StateAbandoned {
		log.Info("session abandoned during submission")
		report := e.report(sess)
		e.record(sess, report, log)
		return report, nil
	}

	if err := e.monitor(ctx, sess, log); err != nil {
		return nil, err
	}

	if sess.State == StateSwingHold {
		if err := e.swingHold(ctx, sess, log); err != nil {
			return nil, err
		}
	}

	sess.State = StateClosed
	report := e.report(sess)
	e.record(sess, report, log)
	return report, nil
}

// sessionOpen recovers today's open from the calendar response. When the
// market is already open the API only reports the next open (tomorrow), so
// derive today's from the regular session length.
func sessionOpen(clk broker.SessionClock) time.Time {
	const regularSession = 6*time.Hour + 30*time.Minute
	if !clk.IsOpen {
		return clk.NextOpen
	}
	return clk.NextClose.Add(-regularSession)
}
