package alpaca

import (
	"context"
	"net/http"
	"time"

	"orb/broker"
)

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var out apiAccount
	err := c.call.Do(ctx, "get_account", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/account", nil, nil, &out)
	})
	if err != nil {
		return broker.Account{}, err
	}
	return broker.Account{
		ID:             out.ID,
		PortfolioValue: parseFloat(out.PortfolioValue),
		Cash:           parseFloat(out.Cash),
		Currency:       out.Currency,
	}, nil
}

func (c *Client) GetClock(ctx context.Context) (broker.SessionClock, error) {
	var out apiClock
	err := c.call.Do(ctx, "get_clock", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/v2/clock", nil, nil, &out)
	})
	if err != nil {
		return broker.SessionClock{}, err
	}

	now, _ := time.Parse(time.RFC3339, out.Timestamp)
	nextOpen, _ := time.Parse(time.RFC3339, out.NextOpen)
	nextClose, _ := time.Parse(time.RFC3339, out.NextClose)
	return broker.SessionClock{
		Now:       now,
		IsOpen:    out.IsOpen,
		NextOpen:  nextOpen,
		NextClose: nextClose,
	}, nil
}
