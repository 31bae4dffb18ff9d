// Package resilient wraps every external API call with bounded retry,
// exponential backoff and a per-endpoint circuit breaker. The strategy
// scripts each carried their own ad hoc retry loop; here one Caller is
// applied uniformly to every endpoint.
package resilient

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"orb/logger"
	"orb/market"
	"orb/metrics"
	"orb/state"
)

// Config parameterizes one endpoint's Caller.
type Config struct {
	Endpoint         string  // brokerage, fundamentals, screener
	MaxRetries       int     // retries after the first attempt
	BaseDelay        time.Duration
	BackoffBase      float64 // delay = BaseDelay * BackoffBase^attempt
	RateLimitFactor  float64 // extra multiplier when the failure was a 429
	FailureThreshold int
	OpenDuration     time.Duration
}

func (c *Config) defaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2.0
	}
	if c.RateLimitFactor == 0 {
		c.RateLimitFactor = 2.0
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = time.Minute
	}
}

// healthWindow is how many recent logical outcomes feed the endpoint
// health status.
const healthWindow = 20

// Caller executes logical operations against one credentialed endpoint.
// One logical call may be several HTTP attempts; the breaker, the state
// store counters and the metrics all see it as a single operation.
type Caller struct {
	cfg     Config
	breaker *Breaker
	clock   market.Clock
	store   *state.Store
	log     *logger.Logger

	mu       sync.Mutex
	outcomes []bool // ring of recent logical results
	next     int
	filled   int
}

// New creates a Caller for one endpoint.
func New(cfg Config, clock market.Clock, store *state.Store, log *logger.Logger) *Caller {
	cfg.defaults()
	c := &Caller{
		cfg:      cfg,
		clock:    clock,
		store:    store,
		log:      log,
		outcomes: make([]bool, healthWindow),
	}
	c.breaker = NewBreaker(cfg.FailureThreshold, cfg.OpenDuration, clock.Now)
	c.breaker.OnStateChange(func(s BreakerState) {
		metrics.BreakerState.WithLabelValues(cfg.Endpoint).Set(float64(s))
	})
	return c
}

// Breaker exposes the endpoint's breaker for status reporting.
func (c *Caller) Breaker() *Breaker { return c.breaker }

// Do runs fn as one logical operation: counted once, retried on transient
// failures, reported to the breaker on its final outcome. Permanent
// failures surface immediately.
func (c *Caller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	c.store.IncrementCounter(c.cfg.Endpoint+"."+op, 1)

	if err := c.breaker.Allow(); err != nil {
		metrics.APICalls.WithLabelValues(c.cfg.Endpoint, op, "breaker_open").Inc()
		return fmt.Errorf("%s %s: %w", c.cfg.Endpoint, op, err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			c.breaker.Success()
			c.recordOutcome(true)
			metrics.APICalls.WithLabelValues(c.cfg.Endpoint, op, "ok").Inc()
			return nil
		}

		kind := KindOf(lastErr)
		if kind == KindPermanent {
			c.recordOutcome(false)
			metrics.APICalls.WithLabelValues(c.cfg.Endpoint, op, "permanent").Inc()
			return fmt.Errorf("%s %s: %w", c.cfg.Endpoint, op, lastErr)
		}

		if attempt >= c.cfg.MaxRetries {
			break
		}

		delay := time.Duration(float64(c.cfg.BaseDelay) * math.Pow(c.cfg.BackoffBase, float64(attempt)))
		if kind == KindRateLimited {
			delay = time.Duration(float64(delay) * c.cfg.RateLimitFactor)
		}
		c.log.WithEndpoint(c.cfg.Endpoint).WithError(lastErr).
			Debug(fmt.Sprintf("%s attempt %d failed, retrying in %s", op, attempt+1, delay))

		if err := c.clock.Sleep(ctx, delay); err != nil {
			c.breaker.Failure()
			c.recordOutcome(false)
			metrics.APICalls.WithLabelValues(c.cfg.Endpoint, op, "canceled").Inc()
			return fmt.Errorf("%s %s: %w", c.cfg.Endpoint, op, err)
		}
	}

	c.breaker.Failure()
	c.recordOutcome(false)
	metrics.APICalls.WithLabelValues(c.cfg.Endpoint, op, "exhausted").Inc()
	return fmt.Errorf("%s %s: %w: %w", c.cfg.Endpoint, op, ErrRetriesExhausted, lastErr)
}

func (c *Caller) recordOutcome(ok bool) {
	c.mu.Lock()
	c.outcomes[c.next] = ok
	c.next = (c.next + 1) % healthWindow
	if c.filled < healthWindow {
		c.filled++
	}
	good := 0
	for i := 0; i < c.filled; i++ {
		if c.outcomes[i] {
			good++
		}
	}
	ratio := float64(good) / float64(c.filled)
	c.mu.Unlock()

	h := state.HealthUnhealthy
	switch {
	case ratio >= 0.9:
		h = state.HealthHealthy
	case ratio >= 0.5:
		h = state.HealthDegraded
	}
	c.store.SetHealth(c.cfg.Endpoint, h)
}
