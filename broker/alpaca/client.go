// Package alpaca implements broker.Broker against an Alpaca-style
// brokerage REST API. One Client exists per credentialed endpoint for the
// process lifetime and is shared by every session; it is immutable after
// construction.
package alpaca

import (
	"bytes"
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

const (
	// LiveURL is the live trading environment.
	LiveURL = "https://api.alpaca.markets"
	// PaperURL is the paper trading environment.
	PaperURL = "https://paper-api.alpaca.markets"
)

// Config holds the endpoint credentials and resource limits.
type Config struct {
	BaseURL  string
	Key      string
	Secret   string
	PoolSize int           // bounded persistent connections; acquisition blocks when saturated
	Timeout  time.Duration // per HTTP attempt
}

// Client is the brokerage endpoint. All operations are routed through a
// single resilient caller; the connection pool caps resource usage when
// many instruments run concurrently.
type Client struct {
	baseURL    string
	key        string
	secret     string
	httpClient *http.Client
	sem        chan struct{}
	call       *resilient.Caller
}

// New builds a Client. The retry/breaker parameters come from rc; the
// caller reports every operation to the shared state store.
func New(cfg Config, rc resilient.Config, clock market.Clock, store *state.Store, log *logger.Logger) *Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if rc.Endpoint == "" {
		rc.Endpoint = "brokerage"
	}

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		key:     cfg.Key,
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		sem:  make(chan struct{}, cfg.PoolSize),
		call: resilient.New(rc, clock, store, log),
	}
}

// acquire takes a pool slot, blocking (bounded by ctx) when all
// connections are in use.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// do performs one HTTP attempt and classifies the outcome for the retry
// wrapper. Raw network errors are left unwrapped (transient by default).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return resilient.Permanent(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return resilient.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	req.Header.Set("Content-Type", "application/json")

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
		return classifyStatus(resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resilient.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
