package engine

import (
	"context"
	"errors"

	"orb/indicators"
	"orb/journal"
	"orb/market"
	"orb/metrics"
	"orb/resilient"

	"github.com/sirupsen/logrus"
)

// monitor watches the open legs until they are all closed or the session
// close deadline arrives. Each tick uses a single price snapshot so the
// three legs' stop/target decisions are mutually consistent.
func (e *Engine) monitor(ctx context.Context, sess *Session, log *logrus.Entry) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.store.TradingAllowed() {
			log.WithField("reason", e.store.StopReason()).Warn("trading halted, closing all legs")
			e.closeAll(ctx, sess, journal.ReasonMarketClose, log)
			if len(sess.OpenLegs()) == 0 {
				return nil
			}
			if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
				return err
			}
			continue
		}

		if !e.clock.Now().Before(sess.CloseTime) {
			open := sess.OpenLegs()
			if len(open) == 0 {
				return nil
			}
			if e.params.HoldMode == Swing {
				log.WithField("open_legs", len(open)).Info("session close, holding legs into swing")
				sess.State = StateSwingHold
				return nil
			}
			log.WithField("open_legs", len(open)).Info("session close, flattening")
			e.closeAll(ctx, sess, journal.ReasonMarketClose, log)
			if len(sess.OpenLegs()) == 0 {
				return nil
			}
			if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
				return err
			}
			continue
		}

		tick, err := e.broker.GetLatestPrice(ctx, sess.Symbol)
		if err != nil {
			log.WithError(err).Warn("price fetch failed, retrying next tick")
			if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
				return err
			}
			continue
		}
		price := tick.Price

		trail, haveTrail := e.trailLevels(ctx, sess, log)

		for _, leg := range sess.OpenLegs() {
			if leg.exitPending {
				e.closeLeg(ctx, sess, leg, price, leg.pendingReason, log)
				continue
			}

			if reason, due := e.legExitDue(sess, leg, price, trail, haveTrail); due {
				e.closeLeg(ctx, sess, leg, price, reason, log)
			}
		}

		e.ratchet(sess, log)

		if len(sess.OpenLegs()) == 0 {
			return nil
		}
		if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
			return err
		}
	}
}

// legExitDue decides whether the leg must be closed at this tick's price.
func (e *Engine) legExitDue(sess *Session, leg *Leg, price float64, trail [3]float64, haveTrail bool) (journal.ExitReason, bool) {
	long := sess.Direction == Long

	hitTarget := price >= leg.Target
	hitStop := price <= leg.Stop
	if !long {
		hitTarget = price <= leg.Target
		hitStop = price >= leg.Stop
	}
	if hitTarget {
		return journal.ReasonTarget, true
	}
	if hitStop {
		return journal.ReasonStop, true
	}

	if haveTrail {
		below := func(level float64) bool {
			if long {
				return price < level
			}
			return price > level
		}
		// slow EMA closes everything; fast/medium cover legs 1 and 2
		if below(trail[2]) {
			return journal.ReasonTrail, true
		}
		if leg.Index == 1 && below(trail[0]) {
			return journal.ReasonTrail, true
		}
		if leg.Index <= 2 && below(trail[1]) {
			return journal.ReasonTrail, true
		}
	}
	return "", false
}

// trailLevels computes the fast/medium/slow EMAs of the 5-minute chart
// when trailing exits are enabled. Bad data just disables the trail for
// this tick; the fixed brackets still protect the position.
func (e *Engine) trailLevels(ctx context.Context, sess *Session, log *logrus.Entry) ([3]float64, bool) {
	var out [3]float64
	if !e.params.EMATrail {
		return out, false
	}

	now := e.clock.Now()
	bars, err := e.broker.GetBars(ctx, sess.Symbol, market.Min5, market.Range{
		Start: now.AddDate(0, 0, -5),
		End:   now,
	})
	if err != nil {
		log.WithError(err).Warn("trail bars unavailable")
		return out, false
	}

	for i, period := range []int{e.params.TrailFast, e.params.TrailMedium, e.params.TrailSlow} {
		v, err := indicators.EMA(bars, period)
		if err != nil {
			log.WithError(err).Warn("trail ema unavailable")
			return out, false
		}
		out[i] = v
	}
	return out, true
}

// closeAll requests an exit for every open leg at the current market.
func (e *Engine) closeAll(ctx context.Context, sess *Session, reason journal.ExitReason, log *logrus.Entry) {
	price := 0.0
	if tick, err := e.broker.GetLatestPrice(ctx, sess.Symbol); err == nil {
		price = tick.Price
	} else {
		log.WithError(err).Warn("price unavailable for forced close, using entry")
	}

	for _, leg := range sess.OpenLegs() {
		p := price
		if p == 0 {
			p = leg.EntryPrice
		}
		e.closeLeg(ctx, sess, leg, p, reason, log)
	}
}

// closeLeg cancels the leg's bracket and closes its position. A
// BreakerOpen outcome marks the exit pending so the next tick retries it;
// the request is never silently dropped. Exit fields are set exactly once.
func (e *Engine) closeLeg(ctx context.Context, sess *Session, leg *Leg, price float64, reason journal.ExitReason, log *logrus.Entry) {
	if !leg.Open() {
		return
	}

	if err := e.broker.CancelOrder(ctx, leg.OrderID); err != nil {
		if errors.Is(err, resilient.ErrBreakerOpen) {
			leg.exitPending = true
			leg.pendingReason = reason
			log.WithField("leg", leg.Index).Warn("breaker open, exit deferred to next tick")
			return
		}
		// bracket may already be gone (sibling executed); position close decides
		log.WithError(err).WithField("leg", leg.Index).Warn("bracket cancel failed")
	}

	if err := e.broker.ClosePosition(ctx, sess.Symbol, leg.Qty); err != nil {
		if errors.Is(err, resilient.ErrBreakerOpen) {
			leg.exitPending = true
			leg.pendingReason = reason
			log.WithField("leg", leg.Index).Warn("breaker open, exit deferred to next tick")
			return
		}
		log.WithError(err).WithField("leg", leg.Index).Error("position close failed, retrying next tick")
		leg.exitPending = true
		leg.pendingReason = reason
		return
	}

	if !leg.Close(price, e.clock.Now(), reason) {
		return
	}
	metrics.LegExits.WithLabelValues(string(reason)).Inc()
	e.store.IncrementCounter("legs.closed", 1)

	log.WithFields(logrus.Fields{
		"leg":    leg.Index,
		"price":  price,
		"reason": reason,
		"pnl":    e.legPnl(leg, sess.Direction),
	}).Info("leg closed")

	if e.trades != nil {
		if err := e.trades.RecordLeg(journal.LegRecord{
			SessionID:  sess.ID,
			Symbol:     sess.Symbol,
			Leg:        leg.Index,
			Qty:        leg.Qty,
			EntryPrice: leg.EntryPrice,
			ExitPrice:  leg.ExitPrice,
			EntryTime:  sess.EnteredAt,
			ExitTime:   leg.ExitTime,
			RealizedPL: e.legPnl(leg, sess.Direction),
			Reason:     reason,
		}); err != nil {
			log.WithError(err).Error("journal write failed")
		}
	}
}

// ratchet raises the remaining stops to break-even after the first
// profitable close. Stops only ever tighten; the ratchet never lowers one.
func (e *Engine) ratchet(sess *Session, log *logrus.Entry) {
	if sess.ratcheted {
		return
	}

	profited := false
	for _, leg := range sess.Legs {
		if leg == nil || leg.Open() {
			continue
		}
		if e.legPnl(leg, sess.Direction) > 0 {
			profited = true
			break
		}
	}
	if !profited {
		return
	}

	sess.ratcheted = true
	for _, leg := range sess.OpenLegs() {
		before := leg.Stop
		leg.RaiseStop(leg.EntryPrice, sess.Direction)
		if leg.Stop != before {
			log.WithFields(logrus.Fields{
				"leg":  leg.Index,
				"from": before,
				"to":   leg.Stop,
			}).Info("stop ratcheted to break-even")
		}
	}
}
