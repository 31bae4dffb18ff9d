// Package broker defines the capability interface the engine needs from a
// brokerage. The exact wire format is owned by the implementation; callers
// only see these types and the error taxonomy in errors.go.
package broker

import (
	"context"
	"time"

	"orb/market"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the execution style of an order.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
)

// Bracket attaches the two mutually cancelling exit orders to an entry.
type Bracket struct {
	TakeProfit float64
	StopLoss   float64
}

// OrderSpec describes one order to submit. Prices are already tick-rounded
// by the caller.
type OrderSpec struct {
	ClientID    string
	Symbol      string
	Side        Side
	Qty         int64
	Type        OrderType
	LimitPrice  float64
	TimeInForce string
	Bracket     *Bracket
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID          string
	ClientID    string
	Symbol      string
	Side        Side
	Qty         int64
	FilledQty   int64
	FilledAvg   float64
	Status      OrderStatus
	SubmittedAt time.Time
	FilledAt    time.Time
}

// Position is an open holding.
type Position struct {
	Symbol      string
	Qty         int64
	AvgEntry    float64
	MarketValue float64
}

// Account is the trading account summary.
type Account struct {
	ID             string
	PortfolioValue float64
	Cash           float64
	Currency       string
}

// SessionClock is the exchange calendar view for today.
type SessionClock struct {
	Now       time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// Fill is one execution, the unit the FIFO PnL engine consumes.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Qty     int64
	Price   float64
	Time    time.Time
}

// Broker is the brokerage capability surface. Every call blocks on the
// network and honors ctx; implementations route all of them through one
// resilient call wrapper.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetClock(ctx context.Context) (SessionClock, error)
	GetBars(ctx context.Context, symbol string, tf market.Timeframe, r market.Range) ([]market.Candle, error)
	GetLatestPrice(ctx context.Context, symbol string) (market.Tick, error)
	SubmitOrder(ctx context.Context, spec OrderSpec) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ClosePosition(ctx context.Context, symbol string, qty int64) error
	ListOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	ListPositions(ctx context.Context) ([]Position, error)
	ListFills(ctx context.Context, since, until time.Time) ([]Fill, error)
}
