package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/logger"
	"orb/market"
)

func newStore(t *testing.T) (*Store, *market.SimClock) {
	t.Helper()
	clk := market.NewSimClock(time.Date(2023, 12, 6, 9, 30, 0, 0, time.UTC))
	return New(clk, logger.Discard(), ""), clk
}

func TestGetSetDefault(t *testing.T) {
	s, _ := newStore(t)

	assert.Equal(t, "fallback", s.Get("missing", "fallback"))
	s.Set("opening_range", 30)
	assert.Equal(t, 30, s.Get("opening_range", 0))
}

func TestIncrementCounter(t *testing.T) {
	s, _ := newStore(t)

	assert.Equal(t, int64(1), s.IncrementCounter("brokerage.get_bars", 1))
	assert.Equal(t, int64(6), s.IncrementCounter("brokerage.get_bars", 5))
	assert.Equal(t, int64(6), s.Counter("brokerage.get_bars"))

	s.ResetCounter("brokerage.get_bars")
	assert.Equal(t, int64(0), s.Counter("brokerage.get_bars"))
}

func TestCacheExpiresLazily(t *testing.T) {
	s, clk := newStore(t)

	s.CacheSet("market_data.AAPL", 150.0, 5*time.Minute)

	v, ok := s.CacheGet("market_data.AAPL")
	require.True(t, ok)
	assert.Equal(t, 150.0, v)

	clk.Advance(6 * time.Minute)
	_, ok = s.CacheGet("market_data.AAPL")
	assert.False(t, ok)

	// Expired entry was removed, not just hidden.
	s.cacheMu.Lock()
	_, still := s.cache["market_data.AAPL"]
	s.cacheMu.Unlock()
	assert.False(t, still)
}

func TestEmergencyStopClearsStrategies(t *testing.T) {
	s, _ := newStore(t)

	s.RegisterStrategy("orb-AAPL")
	s.RegisterStrategy("orb-MSFT")
	require.True(t, s.TradingAllowed())
	require.True(t, s.IsStrategyActive("orb-AAPL"))

	s.EmergencyStop("manual")
	assert.False(t, s.TradingAllowed())
	assert.Empty(t, s.ActiveStrategies())
	assert.Equal(t, "manual", s.StopReason())

	// Idempotent: a second stop does not change the reason.
	s.EmergencyStop("other")
	assert.Equal(t, "manual", s.StopReason())

	s.ResumeTrading("ops")
	assert.True(t, s.TradingAllowed())
}

func TestListenersRunAfterUpdate(t *testing.T) {
	s, _ := newStore(t)

	var got []string
	s.Subscribe("emergency", func(key string, value any) {
		got = append(got, key)
	})
	s.Subscribe("*", func(key string, value any) {
		got = append(got, "any:"+key)
	})

	s.Set("poll_interval", time.Minute)
	s.EmergencyStop("listener test")

	assert.Equal(t, []string{"any:poll_interval", "emergency_stop", "any:emergency_stop"}, got)
}

func TestSnapshotIsDetached(t *testing.T) {
	s, _ := newStore(t)

	s.IncrementCounter("calls", 3)
	s.RegisterStrategy("orb-AAPL")
	s.SetHealth("brokerage", HealthHealthy)

	snap := s.Snapshot()
	snap.Counters["calls"] = 999
	snap.Health["brokerage"] = HealthUnhealthy

	assert.Equal(t, int64(3), s.Counter("calls"))
	assert.Equal(t, HealthHealthy, s.EndpointHealth("brokerage"))
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system_state.json")
	clk := market.NewSimClock(time.Date(2023, 12, 6, 9, 30, 0, 0, time.UTC))

	s1 := New(clk, logger.Discard(), path)
	s1.SetAccount("paper")
	s1.EmergencyStop("drawdown limit")

	s2 := New(clk, logger.Discard(), path)
	assert.False(t, s2.TradingAllowed())
	assert.Equal(t, "paper", s2.Account())
	assert.Equal(t, "drawdown limit", s2.StopReason())

	snap1, snap2 := s1.Snapshot(), s2.Snapshot()
	assert.Equal(t, snap1.TradingEnabled, snap2.TradingEnabled)
	assert.Equal(t, snap1.EmergencyStop, snap2.EmergencyStop)
	assert.Equal(t, snap1.Account, snap2.Account)
}
