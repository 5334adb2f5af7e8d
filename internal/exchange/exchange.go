// Package exchange fetches market data from CoinMarketCap, Coinbase and WhatToMine.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cryptofather/crypto-bot/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultCoinMarketCapURL = "https://pro-api.coinmarketcap.com/v1"
	DefaultCoinbaseURL      = "https://api.coinbase.com/v2"
	DefaultWhatToMineURL    = "https://whattomine.com/coins"

	upstreamCoinMarketCap = "coinmarketcap"
	upstreamCoinbase      = "coinbase"
	upstreamWhatToMine    = "whattomine"
)

// StatusError is returned for non 2xx responses that carry no more specific error.
type StatusError struct {
	Upstream   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Upstream, e.StatusCode)
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit limits outbound requests to limit per second with the given burst.
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		}
	}
}

func WithCoinMarketCapURL(baseURL string) Option {
	return func(c *Client) {
		c.coinMarketCapURL = baseURL
	}
}

func WithCoinbaseURL(baseURL string) Option {
	return func(c *Client) {
		c.coinbaseURL = baseURL
	}
}

func WithWhatToMineURL(baseURL string) Option {
	return func(c *Client) {
		c.whatToMineURL = baseURL
	}
}

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiToken   string

	coinMarketCapURL string
	coinbaseURL      string
	whatToMineURL    string
}

// NewClient creates a market data client. apiToken is the CoinMarketCap pro API key.
func NewClient(apiToken string, opts ...Option) *Client {
	c := &Client{
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		limiter:          rate.NewLimiter(rate.Limit(1), 5),
		apiToken:         apiToken,
		coinMarketCapURL: DefaultCoinMarketCapURL,
		coinbaseURL:      DefaultCoinbaseURL,
		whatToMineURL:    DefaultWhatToMineURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate limited GET and returns the status code and body.
func (c *Client) get(ctx context.Context, upstream, endpoint string, query url.Values, header http.Header) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%s rate limit: %w", upstream, err)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstreamError(upstream)
		return 0, nil, fmt.Errorf("request %s: %w", upstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstreamError(upstream)
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", upstream, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ObserveUpstreamError(upstream)
		log.Warnf("Upstream %s returned status %d for %s", upstream, resp.StatusCode, req.URL.Path)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) getJSON(ctx context.Context, upstream, endpoint string, query url.Values, v interface{}) error {
	status, body, err := c.get(ctx, upstream, endpoint, query, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Upstream: upstream, StatusCode: status}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", upstream, err)
	}
	return nil
}
