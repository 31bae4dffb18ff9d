package engine

import (
	"context"
	"fmt"

	"orb/indicators"
	"orb/market"

	"github.com/sirupsen/logrus"
)

// awaitEntry polls until the entry predicates all hold, the entry window
// expires, or trading is halted. It leaves the session in AwaitingEntry
// (ready to submit) or Abandoned.
func (e *Engine) awaitEntry(ctx context.Context, sess *Session, log *logrus.Entry) error {
	deadline := sess.OpenTime.Add(e.params.EntryCutoff)
	rangeEnd := sess.OpenTime.Add(e.params.OpeningRange)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.store.TradingAllowed() {
			log.WithField("reason", e.store.StopReason()).Warn("trading halted, abandoning entry")
			sess.State = StateAbandoned
			return nil
		}

		now := e.clock.Now()
		if now.After(deadline) {
			log.Info("entry window expired")
			sess.State = StateAbandoned
			return nil
		}

		if now.Before(rangeEnd) {
			if err := e.clock.Sleep(ctx, rangeEnd.Sub(now)); err != nil {
				return err
			}
			continue
		}

		if !sess.Range.Valid() {
			r, err := e.openingRange(ctx, sess)
			if err != nil {
				log.WithError(err).Warn("opening range unavailable, retrying")
				if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
					return err
				}
				continue
			}
			sess.Range = r
			log.WithFields(logrus.Fields{"high": r.High, "low": r.Low}).Info("opening range established")
		}

		ok, err := e.entrySignal(ctx, sess, log)
		if err != nil {
			log.WithError(err).Warn("entry evaluation failed, retrying next tick")
		} else if ok {
			return nil
		}

		if err := e.clock.Sleep(ctx, e.params.PollInterval); err != nil {
			return err
		}
	}
}

// openingRange aggregates the first minutes of the session into the
// breakout reference band.
func (e *Engine) openingRange(ctx context.Context, sess *Session) (market.OpeningRange, error) {
	bars, err := e.broker.GetBars(ctx, sess.Symbol, market.Min1, market.Range{
		Start: sess.OpenTime,
		End:   sess.OpenTime.Add(e.params.OpeningRange),
	})
	if err != nil {
		return market.OpeningRange{}, err
	}
	if len(bars) == 0 {
		return market.OpeningRange{}, fmt.Errorf("no bars in opening range")
	}

	r := market.OpeningRange{High: bars[0].High, Low: bars[0].Low}
	for _, b := range bars[1:] {
		if b.High > r.High {
			r.High = b.High
		}
		if b.Low < r.Low {
			r.Low = b.Low
		}
	}
	return r, nil
}

// entrySignal evaluates the enabled predicates against a fresh price.
func (e *Engine) entrySignal(ctx context.Context, sess *Session, log *logrus.Entry) (bool, error) {
	tick, err := e.broker.GetLatestPrice(ctx, sess.Symbol)
	if err != nil {
		return false, err
	}

	if !e.breakout(sess, tick.Price) {
		return false, nil
	}

	if e.params.TrendCheck {
		ok, err := e.trendConfirmed(ctx, sess, tick.Price)
		if err != nil {
			return false, err
		}
		if !ok {
			log.WithField("price", tick.Price).Debug("breakout without trend confirmation")
			return false, nil
		}
	}

	log.WithField("price", tick.Price).Info("entry signal confirmed")
	return true, nil
}

// breakout reports whether price has cleared the opening-range extreme.
func (e *Engine) breakout(sess *Session, price float64) bool {
	if sess.Direction == Short {
		return price < sess.Range.Low
	}
	return price > sess.Range.High
}

// trendConfirmed checks the daily chart: fast SMA beyond slow SMA and
// price beyond the 50-day EMA, both mirrored for shorts.
func (e *Engine) trendConfirmed(ctx context.Context, sess *Session, price float64) (bool, error) {
	daily, err := e.dailyBars(ctx, sess.Symbol, e.params.TrendSlowSMA+10)
	if err != nil {
		return false, err
	}

	fast, err := indicators.SMA(daily, e.params.TrendFastSMA)
	if err != nil {
		return false, err
	}
	slow, err := indicators.SMA(daily, e.params.TrendSlowSMA)
	if err != nil {
		return false, err
	}
	ema50, err := indicators.EMA(daily, 50)
	if err != nil {
		return false, err
	}

	if sess.Direction == Short {
		return fast < slow && price < ema50, nil
	}
	return fast > slow && price > ema50, nil
}

// dailyBars fetches daily history from the brokerage, falling back to the
// fundamentals endpoint when the brokerage data call fails. Results go
// through the shared TTL cache: daily bars don't move intraday, and the
// trend predicates re-evaluate every poll tick.
func (e *Engine) dailyBars(ctx context.Context, symbol string, days int) ([]market.Candle, error) {
	key := fmt.Sprintf("daily_bars.%s.%d", symbol, days)
	if e.params.CacheTTL > 0 {
		if cached, ok := e.store.CacheGet(key); ok {
			if bars, ok := cached.([]market.Candle); ok {
				return bars, nil
			}
		}
	}

	now := e.clock.Now()
	// weekends and holidays thin the calendar out
	from := now.AddDate(0, 0, -days*2)

	bars, err := e.broker.GetBars(ctx, symbol, market.Day1, market.Range{Start: from, End: now})
	if err != nil || len(bars) == 0 {
		if e.eod == nil {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("no daily bars for %s", symbol)
		}
		if bars, err = e.eod.HistoricalEOD(ctx, symbol, from, now); err != nil {
			return nil, err
		}
	}

	if e.params.CacheTTL > 0 {
		e.store.CacheSet(key, bars, e.params.CacheTTL)
	}
	return bars, nil
}

// sessionRates returns the per-leg stop and target rates, recomputed from
// realized daily volatility when dynamic sizing is enabled. A failed
// volatility measurement falls back to the configured static bands.
func (e *Engine) sessionRates(ctx context.Context, sess *Session, log *logrus.Entry) (stops, targets [Legs]float64) {
	stops, targets = e.params.StopRates, e.params.TargetRates
	if !e.params.DynamicRates {
		return stops, targets
	}

	daily, err := e.dailyBars(ctx, sess.Symbol, e.params.VolLookback)
	if err == nil {
		var vol float64
		vol, err = indicators.DailyVolatility(daily, e.params.VolLookback)
		if err == nil {
			for i := 0; i < Legs; i++ {
				stops[i] = vol * e.params.VolStopMult[i]
				targets[i] = vol * e.params.VolTargetMult[i]
			}
			log.WithFields(logrus.Fields{
				"volatility": vol,
				"stops":      stops,
				"targets":    targets,
			}).Info("dynamic rates computed")
			return stops, targets
		}
	}

	log.WithError(err).Warn("volatility unavailable, using static rates")
	return e.params.StopRates, e.params.TargetRates
}
