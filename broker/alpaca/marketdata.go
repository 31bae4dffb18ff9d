package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"orb/market"
)

func (c *Client) GetBars(ctx context.Context, symbol string, tf market.Timeframe, r market.Range) ([]market.Candle, error) {
	query := url.Values{}
	query.Set("timeframe", string(tf))
	if !r.Start.IsZero() {
		query.Set("start", r.Start.Format(time.RFC3339))
	}
	if !r.End.IsZero() {
		query.Set("end", r.End.Format(time.RFC3339))
	}

	var out apiBars
	err := c.call.Do(ctx, "get_bars", func(ctx context.Context) error {
		path := fmt.Sprintf("/v2/stocks/%s/bars", symbol)
		return c.do(ctx, http.MethodGet, path, query, nil, &out)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(out.Bars))
	for _, b := range out.Bars {
		t, err := time.Parse(time.RFC3339, b.T)
		if err != nil {
			return nil, fmt.Errorf("parse bar time %q: %w", b.T, err)
		}
		candles = append(candles, market.Candle{
			Open:   b.O,
			High:   b.H,
			Low:    b.L,
			Close:  b.C,
			Time:   t,
			Volume: b.V,
		})
	}
	return candles, nil
}

func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (market.Tick, error) {
	var out apiTrade
	err := c.call.Do(ctx, "get_latest_price", func(ctx context.Context) error {
		path := fmt.Sprintf("/v2/stocks/%s/trades/latest", symbol)
		return c.do(ctx, http.MethodGet, path, nil, nil, &out)
	})
	if err != nil {
		return market.Tick{}, err
	}

	t, _ := time.Parse(time.RFC3339, out.Trade.T)
	return market.Tick{Symbol: symbol, Price: out.Trade.P, Time: t}, nil
}
