// Package metrics exposes the Prometheus series the system updates while
// trading:
//
//	orb_api_calls_total{endpoint,op,outcome} – logical API calls by result
//	orb_breaker_state{endpoint}              – 0 closed, 1 half-open, 2 open
//	orb_orders_total{side}                   – bracket legs submitted
//	orb_leg_exits_total{reason}              – leg closes by reason
//	orb_session_pnl_usd                      – realized PnL of the last session
//
// The shared state store's counters remain the source of truth for call
// accounting; these series mirror them for scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_api_calls_total",
			Help: "Logical API calls by endpoint, operation and outcome",
		},
		[]string{"endpoint", "op", "outcome"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orb_breaker_state",
			Help: "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open)",
		},
		[]string{"endpoint"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_orders_total",
			Help: "Bracket order legs submitted",
		},
		[]string{"side"},
	)

	LegExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_leg_exits_total",
			Help: "Leg closes by reason (target, stop, trail, market_close, swing)",
		},
		[]string{"reason"},
	)

	SessionPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_session_pnl_usd",
			Help: "Realized PnL of the most recently closed session",
		},
	)
)

func init() {
	prometheus.MustRegister(APICalls, BreakerState, Orders, LegExits, SessionPnl)
}
