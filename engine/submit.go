package engine

import (
	"context"
	"fmt"

	"orb/broker"
	"orb/market"
	"orb/metrics"

	"github.com/sirupsen/logrus"
)

// submitLegs turns the confirmed signal into three bracket orders. The
// entry is all-or-nothing: if any leg is refused, every already-submitted
// leg is cancelled (best effort) and the whole entry fails, so the session
// never runs with partial exposure.
func (e *Engine) submitLegs(ctx context.Context, sess *Session, log *logrus.Entry) error {
	if !e.store.TradingAllowed() {
		log.WithField("reason", e.store.StopReason()).Warn("trading halted, not submitting")
		sess.State = StateAbandoned
		return nil
	}
	sess.State = StateOrdersSubmitted

	limit := e.entryLimit(sess)
	total := int64(e.params.PositionValue / limit)
	if total < Legs {
		return fmt.Errorf("position value %.2f buys %d shares at %.2f, need at least %d",
			e.params.PositionValue, total, limit, Legs)
	}
	quantities := legQuantities(total)
	stops, targets := e.sessionRates(ctx, sess, log)

	side := broker.Buy
	if sess.Direction == Short {
		side = broker.Sell
	}

	for i := 0; i < Legs; i++ {
		if !e.store.TradingAllowed() {
			e.cancelSubmitted(ctx, sess, log)
			sess.State = StateAbandoned
			log.Warn("trading halted mid-submission, entry rolled back")
			return nil
		}

		leg := &Leg{
			Index:      i + 1,
			ClientID:   fmt.Sprintf("%s-leg-%d", sess.ID, i+1),
			Qty:        quantities[i],
			EntryPrice: limit,
			Stop:       exitPrice(limit, stops[i], sess.Direction, false),
			Target:     exitPrice(limit, targets[i], sess.Direction, true),
		}

		order, err := e.broker.SubmitOrder(ctx, broker.OrderSpec{
			ClientID:    leg.ClientID,
			Symbol:      sess.Symbol,
			Side:        side,
			Qty:         leg.Qty,
			Type:        broker.Limit,
			LimitPrice:  limit,
			TimeInForce: "day",
			Bracket:     &broker.Bracket{TakeProfit: leg.Target, StopLoss: leg.Stop},
		})
		if err != nil {
			e.cancelSubmitted(ctx, sess, log)
			return fmt.Errorf("submit leg %d: %w", i+1, err)
		}

		leg.OrderID = order.ID
		sess.Legs[i] = leg
		metrics.Orders.WithLabelValues(string(side)).Inc()
		e.store.IncrementCounter("orders.submitted", 1)

		log.WithFields(logrus.Fields{
			"leg":      leg.Index,
			"order_id": leg.OrderID,
			"qty":      leg.Qty,
			"limit":    limit,
			"stop":     leg.Stop,
			"target":   leg.Target,
		}).Info("bracket leg submitted")
	}

	sess.EnteredAt = e.clock.Now()
	sess.State = StateMonitoring
	return nil
}

// entryLimit is the breakout level pushed out by the limit-rate offset
// (never less than the fixed dollar floor), tick-rounded.
func (e *Engine) entryLimit(sess *Session) float64 {
	if sess.Direction == Short {
		ref := sess.Range.Low
		offset := e.params.LimitRate * ref
		if offset < minLimitOffset {
			offset = minLimitOffset
		}
		return market.RoundTick(ref - offset)
	}
	ref := sess.Range.High
	offset := e.params.LimitRate * ref
	if offset < minLimitOffset {
		offset = minLimitOffset
	}
	return market.RoundTick(ref + offset)
}

// exitPrice places a stop or target the given rate away from entry, on the
// side dictated by direction, tick-rounded.
func exitPrice(entry, rate float64, dir Direction, profit bool) float64 {
	up := profit
	if dir == Short {
		up = !profit
	}
	if up {
		return market.RoundTick(entry * (1 + rate))
	}
	return market.RoundTick(entry * (1 - rate))
}

// cancelSubmitted rolls back the legs already accepted by the broker.
// Failures here are logged, not returned: the entry is failing anyway.
func (e *Engine) cancelSubmitted(ctx context.Context, sess *Session, log *logrus.Entry) {
	for i, leg := range sess.Legs {
		if leg == nil || leg.OrderID == "" {
			continue
		}
		if err := e.broker.CancelOrder(ctx, leg.OrderID); err != nil {
			log.WithError(err).WithField("order_id", leg.OrderID).Error("cancel of submitted leg failed")
		}
		sess.Legs[i] = nil
	}
}
