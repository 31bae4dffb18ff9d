package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/broker"
	"orb/journal"
	"orb/logger"
	"orb/market"
	"orb/resilient"
	"orb/state"
)

// fakeBroker scripts prices and records every order-side call. GetLatestPrice
// walks the script one entry per call; the last price repeats.
type fakeBroker struct {
	mu sync.Mutex

	open      time.Time
	close     time.Time
	clock     market.Clock
	prices    []float64
	priceIdx  int
	onPrice   func(i int) // called before returning the i-th price
	bars      map[market.Timeframe][]market.Candle
	submitted []broker.OrderSpec
	submitErr func(legIdx int) error
	closeErrs []error // consumed one per ClosePosition call
	canceled  []string
	closes    []int64
	nextID    int
}

func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	return broker.Account{ID: "acct", PortfolioValue: 100000, Cash: 50000, Currency: "USD"}, nil
}

func (f *fakeBroker) GetClock(ctx context.Context) (broker.SessionClock, error) {
	return broker.SessionClock{
		Now:       f.clock.Now(),
		IsOpen:    true,
		NextOpen:  f.open.Add(24 * time.Hour),
		NextClose: f.close,
	}, nil
}

func (f *fakeBroker) GetBars(ctx context.Context, symbol string, tf market.Timeframe, r market.Range) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bars[tf], nil
}

func (f *fakeBroker) GetLatestPrice(ctx context.Context, symbol string) (market.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.priceIdx
	if f.onPrice != nil {
		f.onPrice(i)
	}
	if i >= len(f.prices) {
		i = len(f.prices) - 1
	} else {
		f.priceIdx++
	}
	return market.Tick{Symbol: symbol, Price: f.prices[i], Time: f.clock.Now()}, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, spec broker.OrderSpec) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		if err := f.submitErr(len(f.submitted)); err != nil {
			return broker.Order{}, err
		}
	}
	f.submitted = append(f.submitted, spec)
	f.nextID++
	return broker.Order{
		ID:       spec.ClientID + "-bkr",
		ClientID: spec.ClientID,
		Symbol:   spec.Symbol,
		Side:     spec.Side,
		Qty:      spec.Qty,
		Status:   broker.StatusAccepted,
	}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string, qty int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.closeErrs) > 0 {
		err := f.closeErrs[0]
		f.closeErrs = f.closeErrs[1:]
		if err != nil {
			return err
		}
	}
	f.closes = append(f.closes, qty)
	return nil
}

func (f *fakeBroker) ListOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	return nil, nil
}

func (f *fakeBroker) ListPositions(ctx context.Context) ([]broker.Position, error) {
	return nil, nil
}

func (f *fakeBroker) ListFills(ctx context.Context, since, until time.Time) ([]broker.Fill, error) {
	return nil, nil
}

// fakeJournal records legs in memory.
type fakeJournal struct {
	mu   sync.Mutex
	legs []journal.LegRecord
}

func (f *fakeJournal) RecordLeg(r journal.LegRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.legs = append(f.legs, r)
	return nil
}

func (f *fakeJournal) Close() error { return nil }

var sessionStart = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func rangeBars(high, low float64) []market.Candle {
	return []market.Candle{
		{Open: low + 0.1, High: high, Low: low, Close: high - 0.1, Time: sessionStart},
		{Open: high - 0.1, High: high - 0.05, Low: low + 0.05, Close: low + 0.2, Time: sessionStart.Add(5 * time.Minute)},
	}
}

func testParams() Params {
	return Params{
		Symbol:        "AAPL",
		PositionValue: 10000,
		Direction:     Long,
		HoldMode:      DayTrade,
		OpeningRange:  15 * time.Minute,
		EntryCutoff:   150 * time.Minute,
		PollInterval:  30 * time.Second,
		LimitRate:     0.006,
		StopRates:     [3]float64{0.015, 0.02, 0.025},
		TargetRates:   [3]float64{0.02, 0.04, 0.08},
		VolStopMult:   [3]float64{0.8, 1.2, 1.5},
		VolTargetMult: [3]float64{3, 5, 8},
		VolLookback:   20,
		TrailFast:     15,
		TrailMedium:   21,
		TrailSlow:     51,
		TrendFastSMA:  20,
		TrendSlowSMA:  50,
		SwingMaxDays:  90,
	}
}

type fixture struct {
	engine  *Engine
	broker  *fakeBroker
	store   *state.Store
	clock   *market.SimClock
	journal *fakeJournal
}

func newFixture(t *testing.T, p Params, fb *fakeBroker) *fixture {
	t.Helper()
	clk := market.NewSimClock(sessionStart)
	fb.clock = clk
	if fb.open.IsZero() {
		fb.open = sessionStart
		fb.close = sessionStart.Add(6*time.Hour + 30*time.Minute)
	}
	st := state.New(clk, logger.Discard(), filepath.Join(t.TempDir(), "state.json"))
	fj := &fakeJournal{}

	eng, err := New(p, fb, nil, st, clk, fj, logger.Discard())
	require.NoError(t, err)
	return &fixture{engine: eng, broker: fb, store: st, clock: clk, journal: fj}
}

func TestRun_HappyPathWithRatchet(t *testing.T) {
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		// awaiting: 99.0 (inside range), 99.50 (breakout)
		// monitoring: 101 (hold), 102.5 (leg1 target), 99.5 (ratcheted stops)
		prices: []float64{99.0, 99.50, 101.0, 102.5, 99.5},
	}
	f := newFixture(t, testParams(), fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fb.submitted, 3)
	// limit = 99.40 + 0.006*99.40 = 99.9964 -> 100.00; 10000/100 = 100 shares
	assert.Equal(t, 100.00, fb.submitted[0].LimitPrice)
	assert.Equal(t, int64(33), fb.submitted[0].Qty)
	assert.Equal(t, int64(33), fb.submitted[1].Qty)
	assert.Equal(t, int64(34), fb.submitted[2].Qty)
	for _, spec := range fb.submitted {
		assert.Equal(t, broker.Buy, spec.Side)
		require.NotNil(t, spec.Bracket)
	}
	assert.Equal(t, 102.00, fb.submitted[0].Bracket.TakeProfit)
	assert.Equal(t, 98.50, fb.submitted[0].Bracket.StopLoss)
	assert.Equal(t, 104.00, fb.submitted[1].Bracket.TakeProfit)
	assert.Equal(t, 98.00, fb.submitted[1].Bracket.StopLoss)
	assert.Equal(t, 108.00, fb.submitted[2].Bracket.TakeProfit)
	assert.Equal(t, 97.50, fb.submitted[2].Bracket.StopLoss)

	assert.Equal(t, StateClosed, report.State)
	require.Len(t, report.Legs, 3)
	assert.Equal(t, "target", report.Legs[0].Reason)
	assert.Equal(t, "stop", report.Legs[1].Reason)
	assert.Equal(t, "stop", report.Legs[2].Reason)
	assert.Equal(t, 102.5, report.Legs[0].ExitPrice)
	assert.Equal(t, 99.5, report.Legs[1].ExitPrice, "ratcheted stop at entry triggered below 100")

	// zero slippage: 2.5*33 - 0.5*33 - 0.5*34 = 49.0
	assert.InDelta(t, 49.0, report.Pnl, 1e-9)
	assert.InDelta(t, 0.0049, report.PnlRatio, 1e-9)
	assert.Len(t, report.Fills, 6)

	assert.Len(t, f.journal.legs, 3)
	assert.False(t, f.store.IsStrategyActive("AAPL"), "strategy unregistered at session end")
	assert.Equal(t, int64(3), f.store.Counter("orders.submitted"))
	assert.Equal(t, int64(3), f.store.Counter("legs.closed"))
}

func TestRun_RatchetNeverLowersStop(t *testing.T) {
	leg := &Leg{Stop: 101.0, EntryPrice: 100.0}
	leg.RaiseStop(leg.EntryPrice, Long)
	assert.Equal(t, 101.0, leg.Stop, "ratchet must not lower an already-higher stop")

	leg = &Leg{Stop: 99.0, EntryPrice: 100.0}
	leg.RaiseStop(leg.EntryPrice, Long)
	assert.Equal(t, 100.0, leg.Stop)

	short := &Leg{Stop: 99.0, EntryPrice: 100.0}
	short.RaiseStop(short.EntryPrice, Short)
	assert.Equal(t, 99.0, short.Stop, "short ratchet only moves down")
}

func TestRun_EmergencyStopDuringAwaitingEntry(t *testing.T) {
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		prices: []float64{99.0, 99.0, 99.50},
	}
	f := newFixture(t, testParams(), fb)
	fb.onPrice = func(i int) {
		if i == 1 {
			f.store.EmergencyStop("manual")
		}
	}

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAbandoned, report.State)
	assert.False(t, report.Entered)
	assert.Empty(t, fb.submitted, "halted session must never reach submission")
}

func TestRun_EntryWindowExpires(t *testing.T) {
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		prices: []float64{99.0}, // never breaks out
	}
	f := newFixture(t, testParams(), fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAbandoned, report.State)
	assert.Empty(t, fb.submitted)
	assert.True(t, f.clock.Now().After(sessionStart.Add(150*time.Minute)))
}

func TestRun_TrendCheckBlocksEntry(t *testing.T) {
	p := testParams()
	p.TrendCheck = true

	daily := make([]market.Candle, 70)
	for i := range daily {
		// downtrend: later closes lower, so fast SMA < slow SMA
		daily[i] = market.Candle{Open: 200 - float64(i), Close: 200 - float64(i),
			High: 201 - float64(i), Low: 198 - float64(i),
			Time: sessionStart.AddDate(0, 0, i-70)}
	}
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
			market.Day1: daily,
		},
		prices: []float64{99.50}, // breakout every tick, trend still says no
	}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAbandoned, report.State)
	assert.Empty(t, fb.submitted)
}

func TestRun_SubmissionFailureRollsBack(t *testing.T) {
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		prices: []float64{99.50},
	}
	fb.submitErr = func(legIdx int) error {
		if legIdx == 2 {
			return broker.Rejected("insufficient buying power")
		}
		return nil
	}
	f := newFixture(t, testParams(), fb)

	_, err := f.engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, broker.IsFatal(err))

	require.Len(t, fb.submitted, 2)
	assert.Len(t, fb.canceled, 2, "both accepted legs cancelled, no partial exposure")
}

func TestRun_BreakerOpenExitRetriedNextTick(t *testing.T) {
	p := testParams()
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		// breakout, then leg1 target twice: first close attempt hits the
		// open breaker, the retry lands; 99.5 then stops out the rest
		prices: []float64{99.50, 102.5, 102.6, 99.5},
	}
	// CancelOrder succeeds; first ClosePosition is rejected by the breaker
	fb.closeErrs = []error{resilient.ErrBreakerOpen}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Legs, 3)
	assert.Equal(t, "target", report.Legs[0].Reason)
	assert.Equal(t, 102.6, report.Legs[0].ExitPrice, "deferred exit filled at the retry tick's price")
	assert.Len(t, fb.closes, 3, "every leg closed exactly once")
}

func TestRun_ShortSessionMirrorsComparisons(t *testing.T) {
	p := testParams()
	p.Direction = Short
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(101.20, 100.60),
		},
		// 100.70 inside range; 100.50 breaks below; target leg1 then stops
		prices: []float64{100.70, 100.50, 98.0, 100.1},
	}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fb.submitted, 3)
	assert.Equal(t, broker.Sell, fb.submitted[0].Side)
	// limit = 100.60 - 0.006*100.60 = 99.9964 -> 100.00
	assert.Equal(t, 100.00, fb.submitted[0].LimitPrice)
	// short brackets mirror: target below entry, stop above
	assert.Equal(t, 98.00, fb.submitted[0].Bracket.TakeProfit)
	assert.Equal(t, 101.50, fb.submitted[0].Bracket.StopLoss)

	require.Len(t, report.Legs, 3)
	assert.Equal(t, "target", report.Legs[0].Reason)
	assert.True(t, report.Legs[0].Pnl > 0)
}

func TestRun_DynamicRatesFromVolatility(t *testing.T) {
	p := testParams()
	p.DynamicRates = true

	daily := make([]market.Candle, 25)
	for i := range daily {
		// every day closes 2% below its open
		daily[i] = market.Candle{Open: 100, Close: 98, High: 101, Low: 97,
			Time: sessionStart.AddDate(0, 0, i-25)}
	}
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
			market.Day1: daily,
		},
		prices: []float64{99.50, 120.0}, // enter, then blow through every target
	}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fb.submitted, 3)

	// vol = 2/98; stops = vol*{0.8,1.2,1.5}, targets = vol*{3,5,8} on 100.00
	vol := 2.0 / 98.0
	assert.InDelta(t, market.RoundTick(100*(1-vol*0.8)), fb.submitted[0].Bracket.StopLoss, 1e-9)
	assert.InDelta(t, market.RoundTick(100*(1+vol*3)), fb.submitted[0].Bracket.TakeProfit, 1e-9)
	assert.InDelta(t, market.RoundTick(100*(1-vol*1.5)), fb.submitted[2].Bracket.StopLoss, 1e-9)
	assert.InDelta(t, market.RoundTick(100*(1+vol*8)), fb.submitted[2].Bracket.TakeProfit, 1e-9)
	assert.Equal(t, StateClosed, report.State)
}

func TestRun_SlippageAppliedSymmetrically(t *testing.T) {
	p := testParams()
	p.SlippageRate = 0.001
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
		},
		prices: []float64{99.50, 120.0},
	}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	// all three legs exit at 120: pnl = (120*0.999 - 100*1.001) * 100
	want := (120*0.999 - 100*1.001) * 100
	assert.InDelta(t, want, report.Pnl, 1e-9)
}

func TestRun_SwingHoldClosesBelowMediumEMA(t *testing.T) {
	p := testParams()
	p.HoldMode = Swing

	daily := make([]market.Candle, 40)
	for i := range daily {
		// daily closes far above the live price, so the swing exit fires
		daily[i] = market.Candle{Open: 110, Close: 110, High: 111, Low: 109,
			Time: sessionStart.AddDate(0, 0, i-40)}
	}
	fb := &fakeBroker{
		bars: map[market.Timeframe][]market.Candle{
			market.Min1: rangeBars(99.40, 98.80),
			market.Day1: daily,
		},
		// breakout at 99.50, then 101 forever: no target, no stop, so the
		// legs survive to the session close and into swing hold
		prices: []float64{99.50, 101.0},
	}
	f := newFixture(t, p, fb)

	report, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateClosed, report.State)
	require.Len(t, report.Legs, 3)
	for _, leg := range report.Legs {
		assert.Equal(t, "swing", leg.Reason)
		assert.Equal(t, 101.0, leg.ExitPrice)
	}
	assert.True(t, f.clock.Now().After(fb.close), "legs held past the session close")
}

func TestLeg_CloseIsIdempotent(t *testing.T) {
	leg := &Leg{Index: 1, Qty: 33, EntryPrice: 100}
	at := sessionStart.Add(time.Hour)

	require.True(t, leg.Close(106.0, at, journal.ReasonTarget))
	assert.False(t, leg.Close(90.0, at.Add(time.Minute), journal.ReasonStop))

	assert.Equal(t, 106.0, leg.ExitPrice, "exit fields written exactly once")
	assert.Equal(t, at, leg.ExitTime)
	assert.Equal(t, journal.ReasonTarget, leg.ExitReason)
}

func TestLegQuantities(t *testing.T) {
	assert.Equal(t, [3]int64{33, 33, 34}, legQuantities(100))
	assert.Equal(t, [3]int64{1, 1, 1}, legQuantities(3))
	assert.Equal(t, [3]int64{1, 1, 2}, legQuantities(4))
}

func TestExitPrice(t *testing.T) {
	assert.Equal(t, 97.00, exitPrice(100.00, 0.03, Long, false))
	assert.Equal(t, 106.00, exitPrice(100.00, 0.06, Long, true))
	assert.Equal(t, 103.00, exitPrice(100.00, 0.03, Short, false))
	assert.Equal(t, 94.00, exitPrice(100.00, 0.06, Short, true))
}
