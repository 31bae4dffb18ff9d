// Package state is the process-wide shared state store. It replaces the
// module-level mutable globals the strategy scripts used to share (mode
// flags, API handles, order status) with one store and a documented
// locking discipline: every sub-structure (flags, counters, cache,
// strategies, health) has its own lock, and no operation holds two locks
// at once.
package state

import (
	"sort"
	"strings"
	"sync"
	"time"

	"orb/logger"
	"orb/market"
)

// Health classifies an endpoint's recent behavior.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Listener is invoked synchronously after a successful update, outside any
// store lock.
type Listener func(key string, value any)

type cacheEntry struct {
	value    any
	inserted time.Time
	ttl      time.Duration
}

type listener struct {
	pattern string
	fn      Listener
}

// Store holds flags, counters, a TTL cache, the active strategy set,
// per-endpoint health and the kill switch. One instance per process.
type Store struct {
	clock market.Clock
	log   *logger.Logger

	flagsMu        sync.Mutex
	testMode       bool
	tradingEnabled bool
	emergencyStop  bool
	stopReason     string
	account        string
	sessionStart   time.Time
	values         map[string]any

	countersMu sync.Mutex
	counters   map[string]int64

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	stratMu    sync.Mutex
	strategies map[string]struct{}

	healthMu sync.Mutex
	health   map[string]Health

	listMu    sync.Mutex
	listeners []listener

	persistPath string
}

// New creates a Store. If persistPath is non-empty, the kill switch and
// account selector are restored from it and saved back on every change.
func New(clock market.Clock, log *logger.Logger, persistPath string) *Store {
	s := &Store{
		clock:          clock,
		log:            log,
		tradingEnabled: true,
		account:        "live",
		sessionStart:   clock.Now().UTC(),
		values:         make(map[string]any),
		counters:       make(map[string]int64),
		cache:          make(map[string]cacheEntry),
		strategies:     make(map[string]struct{}),
		health:         make(map[string]Health),
		persistPath:    persistPath,
	}
	if persistPath != "" {
		s.loadPersisted()
	}
	return s
}

// Get returns the value stored under key, or def when absent.
func (s *Store) Get(key string, def any) any {
	s.flagsMu.Lock()
	defer s.flagsMu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set stores value under key and notifies matching listeners.
func (s *Store) Set(key string, value any) {
	s.flagsMu.Lock()
	s.values[key] = value
	s.flagsMu.Unlock()

	s.notify(key, value)
}

// IncrementCounter adds delta to the named counter and returns the new
// value. The resilient client calls this once per logical operation.
func (s *Store) IncrementCounter(name string, delta int64) int64 {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters[name] += delta
	return s.counters[name]
}

// Counter returns the current value of the named counter.
func (s *Store) Counter(name string) int64 {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	return s.counters[name]
}

// ResetCounter zeroes the named counter.
func (s *Store) ResetCounter(name string) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters[name] = 0
}

// CacheSet stores value under key for ttl.
func (s *Store) CacheSet(key string, value any, ttl time.Duration) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[key] = cacheEntry{value: value, inserted: s.clock.Now(), ttl: ttl}
}

// CacheGet returns the cached value for key. An expired entry reads as a
// miss and is removed; there is no background sweep.
func (s *Store) CacheGet(key string) (any, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	e, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if s.clock.Now().Sub(e.inserted) > e.ttl {
		delete(s.cache, key)
		return nil, false
	}
	return e.value, true
}

// RegisterStrategy marks a strategy id as running.
func (s *Store) RegisterStrategy(id string) {
	s.stratMu.Lock()
	defer s.stratMu.Unlock()
	s.strategies[id] = struct{}{}
}

// UnregisterStrategy removes a strategy id.
func (s *Store) UnregisterStrategy(id string) {
	s.stratMu.Lock()
	defer s.stratMu.Unlock()
	delete(s.strategies, id)
}

// IsStrategyActive reports whether the strategy id is registered.
func (s *Store) IsStrategyActive(id string) bool {
	s.stratMu.Lock()
	defer s.stratMu.Unlock()
	_, ok := s.strategies[id]
	return ok
}

// ActiveStrategies returns the sorted registered strategy ids.
func (s *Store) ActiveStrategies() []string {
	s.stratMu.Lock()
	ids := make([]string, 0, len(s.strategies))
	for id := range s.strategies {
		ids = append(ids, id)
	}
	s.stratMu.Unlock()
	sort.Strings(ids)
	return ids
}

// SetHealth records an endpoint's health status.
func (s *Store) SetHealth(endpoint string, h Health) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.health[endpoint] = h
}

// EndpointHealth returns an endpoint's health status.
func (s *Store) EndpointHealth(endpoint string) Health {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	if h, ok := s.health[endpoint]; ok {
		return h
	}
	return HealthUnknown
}

// EmergencyStop trips the kill switch: trading is disabled, the active
// strategy set is cleared, and the change is persisted. Idempotent. Engines
// observe this before every order-submitting or position-closing call.
func (s *Store) EmergencyStop(reason string) {
	s.flagsMu.Lock()
	if s.emergencyStop {
		s.flagsMu.Unlock()
		return
	}
	s.emergencyStop = true
	s.tradingEnabled = false
	s.stopReason = reason
	s.flagsMu.Unlock()

	s.stratMu.Lock()
	s.strategies = make(map[string]struct{})
	s.stratMu.Unlock()

	if s.log != nil {
		s.log.WithComponent("state").Error("emergency stop: " + reason)
	}
	s.persist()
	s.notify("emergency_stop", true)
}

// ResumeTrading releases the kill switch.
func (s *Store) ResumeTrading(authorizedBy string) {
	s.flagsMu.Lock()
	s.emergencyStop = false
	s.tradingEnabled = true
	s.stopReason = ""
	s.flagsMu.Unlock()

	if s.log != nil {
		s.log.WithComponent("state").Info("trading resumed by " + authorizedBy)
	}
	s.persist()
	s.notify("emergency_stop", false)
}

// TradingAllowed reports whether new orders may be submitted.
func (s *Store) TradingAllowed() bool {
	s.flagsMu.Lock()
	defer s.flagsMu.Unlock()
	return s.tradingEnabled && !s.emergencyStop
}

// StopReason returns the reason the kill switch was last tripped.
func (s *Store) StopReason() string {
	s.flagsMu.Lock()
	defer s.flagsMu.Unlock()
	return s.stopReason
}

// SetTestMode flags the process as running against a simulated clock.
func (s *Store) SetTestMode(on bool) {
	s.flagsMu.Lock()
	s.testMode = on
	s.flagsMu.Unlock()
}

// SetAccount selects the credentialed account (live, paper, paper_short).
func (s *Store) SetAccount(account string) {
	s.flagsMu.Lock()
	s.account = account
	s.flagsMu.Unlock()
	s.persist()
}

// Account returns the selected account.
func (s *Store) Account() string {
	s.flagsMu.Lock()
	defer s.flagsMu.Unlock()
	return s.account
}

// Subscribe registers fn against a key pattern ("*" matches everything,
// otherwise substring match). Listeners run synchronously after updates.
func (s *Store) Subscribe(pattern string, fn Listener) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.listeners = append(s.listeners, listener{pattern: pattern, fn: fn})
}

func (s *Store) notify(key string, value any) {
	s.listMu.Lock()
	subs := make([]listener, len(s.listeners))
	copy(subs, s.listeners)
	s.listMu.Unlock()

	for _, l := range subs {
		if l.pattern == "*" || strings.Contains(key, l.pattern) {
			l.fn(key, value)
		}
	}
}

// Snapshot is a deep copy of the store; callers can't mutate live state
// through it.
type Snapshot struct {
	TestMode         bool              `json:"test_mode"`
	TradingEnabled   bool              `json:"trading_enabled"`
	EmergencyStop    bool              `json:"emergency_stop"`
	StopReason       string            `json:"stop_reason,omitempty"`
	Account          string            `json:"account"`
	SessionStart     time.Time         `json:"session_start"`
	Counters         map[string]int64  `json:"counters"`
	ActiveStrategies []string          `json:"active_strategies"`
	Health           map[string]Health `json:"health"`
}

// Snapshot copies the store sub-structure by sub-structure, never holding
// more than one lock at a time.
func (s *Store) Snapshot() Snapshot {
	s.flagsMu.Lock()
	snap := Snapshot{
		TestMode:       s.testMode,
		TradingEnabled: s.tradingEnabled,
		EmergencyStop:  s.emergencyStop,
		StopReason:     s.stopReason,
		Account:        s.account,
		SessionStart:   s.sessionStart,
	}
	s.flagsMu.Unlock()

	s.countersMu.Lock()
	snap.Counters = make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		snap.Counters[k] = v
	}
	s.countersMu.Unlock()

	snap.ActiveStrategies = s.ActiveStrategies()

	s.healthMu.Lock()
	snap.Health = make(map[string]Health, len(s.health))
	for k, v := range s.health {
		snap.Health[k] = v
	}
	s.healthMu.Unlock()

	return snap
}
