package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orb/logger"
	"orb/market"
	"orb/state"
)

func newCaller(t *testing.T, cfg Config) (*Caller, *market.SimClock, *state.Store) {
	t.Helper()
	clk := market.NewSimClock(time.Date(2023, 12, 6, 10, 0, 0, 0, time.UTC))
	store := state.New(clk, logger.Discard(), "")
	if cfg.Endpoint == "" {
		cfg.Endpoint = "brokerage"
	}
	return New(cfg, clk, store, logger.Discard()), clk, store
}

func TestDoRetriesRateLimitedThenSucceeds(t *testing.T) {
	c, _, store := newCaller(t, Config{MaxRetries: 5})

	calls := 0
	err := c.Do(context.Background(), "get_bars", func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return RateLimited(errors.New("429 too many requests"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	// One logical operation regardless of internal attempts.
	assert.Equal(t, int64(1), store.Counter("brokerage.get_bars"))
	assert.Equal(t, state.HealthHealthy, store.EndpointHealth("brokerage"))
}

func TestDoPermanentFailureNotRetried(t *testing.T) {
	c, _, _ := newCaller(t, Config{})

	calls := 0
	err := c.Do(context.Background(), "submit_order", func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("403 forbidden"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindPermanent, KindOf(err))
}

func TestDoExhaustsTransientRetries(t *testing.T) {
	c, _, _ := newCaller(t, Config{MaxRetries: 2})

	calls := 0
	err := c.Do(context.Background(), "get_account", func(ctx context.Context) error {
		calls++
		return Transient(errors.New("connection reset"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls) // first attempt + 2 retries
}

func TestBreakerOpensAfterThresholdAndBlocksCalls(t *testing.T) {
	c, clk, _ := newCaller(t, Config{
		MaxRetries:       0,
		FailureThreshold: 3,
		OpenDuration:     time.Minute,
	})

	boom := func(ctx context.Context) error { return Transient(errors.New("boom")) }

	for i := 0; i < 3; i++ {
		require.Error(t, c.Do(context.Background(), "op", boom))
	}
	assert.Equal(t, StateOpen, c.Breaker().State())

	// While open, fn must never run.
	calls := 0
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 0, calls)

	// After the cooldown one trial is allowed; success closes the breaker.
	clk.Advance(61 * time.Second)
	err = c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, c.Breaker().State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2023, 12, 6, 10, 0, 0, 0, time.UTC)
	current := now
	b := NewBreaker(2, time.Minute, func() time.Time { return current })

	b.Failure()
	b.Failure()
	require.Equal(t, StateOpen, b.State())

	current = current.Add(2 * time.Minute)
	require.NoError(t, b.Allow()) // half-open trial
	// A second concurrent caller fails fast during the trial.
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	b.Failure()
	assert.Equal(t, StateOpen, b.State())

	// Timer restarted: still blocked before the new cooldown elapses.
	current = current.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)

	current = current.Add(31 * time.Second)
	require.NoError(t, b.Allow())
	b.Success()
	assert.Equal(t, StateClosed, b.State())
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, KindRateLimited, KindOf(FromStatus(429, "")))
	assert.Equal(t, KindTransient, KindOf(FromStatus(503, "")))
	assert.Equal(t, KindPermanent, KindOf(FromStatus(422, "invalid order")))
}
