// Package fundamentals is the client for the EOD/fundamentals data
// endpoint. It has its own token, connection pool and circuit breaker, so
// an outage here never trips the brokerage breaker.
package fundamentals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"orb/logger"
	"orb/market"
	"orb/resilient"
	"orb/state"
)

// DefaultURL is the hosted API root.
const DefaultURL = "https://eodhd.com/api"

// Config holds the endpoint credentials and resource limits.
type Config struct {
	BaseURL  string
	Token    string
	PoolSize int
	Timeout  time.Duration
}

// Client fetches historical series, earnings dates and company profiles.
// It is read-only data plumbing; nothing here submits orders.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	sem        chan struct{}
	call       *resilient.Caller
}

func New(cfg Config, rc resilient.Config, clock market.Clock, store *state.Store, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if rc.Endpoint == "" {
		rc.Endpoint = "fundamentals"
	}

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		sem:  make(chan struct{}, cfg.PoolSize),
		call: resilient.New(rc, clock, store, log),
	}
}

// EODBar is one daily bar from the historical endpoint.
type EODBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Earnings is one upcoming report date.
type Earnings struct {
	Symbol     string `json:"code"`
	ReportDate string `json:"report_date"`
	Before     bool   `json:"before_market_open"`
}

// Profile is the company summary used for screening context.
type Profile struct {
	Symbol    string  `json:"code"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	Industry  string  `json:"industry"`
	MarketCap float64 `json:"market_cap"`
}

// HistoricalEOD returns daily bars for [from, to], oldest first.
func (c *Client) HistoricalEOD(ctx context.Context, symbol string, from, to time.Time) ([]market.Candle, error) {
	query := url.Values{}
	query.Set("from", from.Format("2006-01-02"))
	query.Set("to", to.Format("2006-01-02"))
	query.Set("period", "d")
	query.Set("fmt", "json")

	var out []EODBar
	err := c.call.Do(ctx, "historical_eod", func(ctx context.Context) error {
		return c.do(ctx, "/eod/"+symbol, query, &out)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(out))
	for _, b := range out {
		t, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("parse eod date %q: %w", b.Date, err)
		}
		candles = append(candles, market.Candle{
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Time:   t,
			Volume: b.Volume,
		})
	}
	return candles, nil
}

// UpcomingEarnings returns report dates on or after today for symbol.
// Sessions holding into an earnings report is a risk the engine checks
// before entering swing hold.
func (c *Client) UpcomingEarnings(ctx context.Context, symbol string) ([]Earnings, error) {
	query := url.Values{}
	query.Set("symbols", symbol)
	query.Set("fmt", "json")

	var out struct {
		Earnings []Earnings `json:"earnings"`
	}
	err := c.call.Do(ctx, "upcoming_earnings", func(ctx context.Context) error {
		return c.do(ctx, "/calendar/earnings", query, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Earnings, nil
}

// GetProfile returns the company summary for symbol.
func (c *Client) GetProfile(ctx context.Context, symbol string) (Profile, error) {
	query := url.Values{}
	query.Set("filter", "General")
	query.Set("fmt", "json")

	var out struct {
		Code         string  `json:"Code"`
		Name         string  `json:"Name"`
		Exchange     string  `json:"Exchange"`
		Sector       string  `json:"Sector"`
		Industry     string  `json:"Industry"`
		MarketCapMln float64 `json:"MarketCapitalizationMln"`
	}
	err := c.call.Do(ctx, "get_profile", func(ctx context.Context) error {
		return c.do(ctx, "/fundamentals/"+symbol, query, &out)
	})
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Symbol:    out.Code,
		Name:      out.Name,
		Exchange:  out.Exchange,
		Sector:    out.Sector,
		Industry:  out.Industry,
		MarketCap: out.MarketCapMln * 1e6,
	}, nil
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// do performs one GET attempt; the token rides in the query string as the
// API requires.
func (c *Client) do(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return resilient.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resilient.FromStatus(resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resilient.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
