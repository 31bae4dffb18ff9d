package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"orb/broker"
)

func (c *Client) SubmitOrder(ctx context.Context, spec broker.OrderSpec) (broker.Order, error) {
	req := apiOrderRequest{
		Symbol:        spec.Symbol,
		Qty:           strconv.FormatInt(spec.Qty, 10),
		Side:          string(spec.Side),
		Type:          string(spec.Type),
		TimeInForce:   spec.TimeInForce,
		ClientOrderID: spec.ClientID,
	}
	if spec.Type == broker.Limit {
		req.LimitPrice = formatFloat(spec.LimitPrice)
	}
	if spec.Bracket != nil {
		req.OrderClass = "bracket"
		req.TakeProfit = &takeProfit{LimitPrice: formatFloat(spec.Bracket.TakeProfit)}
		req.StopLoss = &stopLoss{StopPrice: formatFloat(spec.Bracket.StopLoss)}
	}

	var out apiOrder
	err := c.call.Do(ctx, "submit_order", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/v2/orders", nil, req, &out)
	})
	if err != nil {
		return broker.Order{}, err
	}
	return toOrder(out), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.call.Do(ctx, "cancel_order", func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil, nil, nil)
	})
}

func (c *Client) ClosePosition(ctx context.Context, symbol string, qty int64) error {
	query := url.Values{}
	if qty > 0 {
		query.Set("qty", strconv.FormatInt(qty, 10))
	}
	return c.call.Do(ctx, "close_position", func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/v2/positions/"+symbol, query, nil, nil)
	})
}

func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	query := url.Values{}
	query.Set("status", "open")
	if symbol != "" {
		query.Set("symbols", symbol)
	}

	var out []apiOrder
	err := c.call.Do(ctx, "list_open_orders", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/orders", query, nil, &out)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]broker.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, toOrder(o))
	}
	return orders, nil
}

func (c *Client) ListPositions(ctx context.Context) ([]broker.Position, error) {
	var out []apiPosition
	err := c.call.Do(ctx, "list_positions", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/positions", nil, nil, &out)
	})
	if err != nil {
		return nil, err
	}

	positions := make([]broker.Position, 0, len(out))
	for _, p := range out {
		positions = append(positions, broker.Position{
			Symbol:      p.Symbol,
			Qty:         parseInt(p.Qty),
			AvgEntry:    parseFloat(p.AvgEntry),
			MarketValue: parseFloat(p.MarketValue),
		})
	}
	return positions, nil
}

func (c *Client) ListFills(ctx context.Context, since, until time.Time) ([]broker.Fill, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("after", since.Format(time.RFC3339))
	}
	if !until.IsZero() {
		query.Set("until", until.Format(time.RFC3339))
	}

	var out []apiActivity
	err := c.call.Do(ctx, "list_fills", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/account/activities/FILL", query, nil, &out)
	})
	if err != nil {
		return nil, err
	}

	fills := make([]broker.Fill, 0, len(out))
	for _, a := range out {
		t, err := time.Parse(time.RFC3339, a.TransactionTime)
		if err != nil {
			return nil, fmt.Errorf("parse fill time %q: %w", a.TransactionTime, err)
		}
		fills = append(fills, broker.Fill{
			OrderID: a.OrderID,
			Symbol:  a.Symbol,
			Side:    broker.Side(a.Side),
			Qty:     parseInt(a.Qty),
			Price:   parseFloat(a.Price),
			Time:    t,
		})
	}
	return fills, nil
}

func toOrder(o apiOrder) broker.Order {
	ord := broker.Order{
		ID:        o.ID,
		ClientID:  o.ClientOrderID,
		Symbol:    o.Symbol,
		Side:      broker.Side(o.Side),
		Qty:       parseInt(o.Qty),
		FilledQty: parseInt(o.FilledQty),
		FilledAvg: parseFloat(o.FilledAvg),
		Status:    broker.OrderStatus(o.Status),
	}
	if t, err := time.Parse(time.RFC3339, o.SubmittedAt); err == nil {
		ord.SubmittedAt = t
	}
	if t, err := time.Parse(time.RFC3339, o.FilledAt); err == nil {
		ord.FilledAt = t
	}
	return ord
}
