package engine

import (
	"context"

	"orb/indicators"
	"orb/journal"

	"github.com/sirupsen/logrus"
)

// swingHold carries legs across sessions. A leg is force-closed when the
// daily price falls through the medium-term EMA or after the maximum
// holding period, whichever comes first.
func (e *Engine) swingHold(ctx context.Context, sess *Session, log *logrus.Entry) error {
	maxHold := sess.EnteredAt.AddDate(0, 0, e.params.SwingMaxDays)
	log.WithField("max_hold_until", maxHold).Info("swing hold started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.store.TradingAllowed() {
			log.WithField("reason", e.store.StopReason()).Warn("trading halted, closing swing legs")
			e.closeAll(ctx, sess, journal.ReasonSwing, log)
			if len(sess.OpenLegs()) == 0 {
				return nil
			}
			if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
				return err
			}
			continue
		}

		if !e.clock.Now().Before(maxHold) {
			log.Info("maximum holding period reached")
			e.closeAll(ctx, sess, journal.ReasonSwing, log)
			if len(sess.OpenLegs()) == 0 {
				return nil
			}
			if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
				return err
			}
			continue
		}

		due, price, err := e.swingExitDue(ctx, sess)
		if err != nil {
			log.WithError(err).Warn("swing evaluation failed, retrying next tick")
		} else if due {
			log.WithField("price", price).Info("price through medium ema, closing swing legs")
			for _, leg := range sess.OpenLegs() {
				e.closeLeg(ctx, sess, leg, price, journal.ReasonSwing, log)
			}
		} else {
			// retry any exit still pending from a breaker-open tick
			for _, leg := range sess.OpenLegs() {
				if leg.exitPending {
					e.closeLeg(ctx, sess, leg, price, leg.pendingReason, log)
				}
			}
		}

		if len(sess.OpenLegs()) == 0 {
			return nil
		}
		if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
			return err
		}
	}
}

// swingExitDue reports whether the daily close has fallen through the
// medium-term EMA (risen through, for shorts).
func (e *Engine) swingExitDue(ctx context.Context, sess *Session) (bool, float64, error) {
	tick, err := e.broker.GetLatestPrice(ctx, sess.Symbol)
	if err != nil {
		return false, 0, err
	}

	daily, err := e.dailyBars(ctx, sess.Symbol, e.params.TrailMedium+10)
	if err != nil {
		return false, tick.Price, err
	}
	ema, err := indicators.EMA(daily, e.params.TrailMedium)
	if err != nil {
		return false, tick.Price, err
	}

	if sess.Direction == Short {
		return tick.Price > ema, tick.Price, nil
	}
	return tick.Price < ema, tick.Price, nil
}
