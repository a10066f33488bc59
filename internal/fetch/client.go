// Package fetch talks to the remote asset API. It is the collaborator
// side of the sync pipeline: any failure here is transient from the
// scheduler's point of view and subject to its retry policy.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// Client is a rate-limited HTTP client for the asset API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *logrus.Entry

	// rateLimiter admits one request per configured interval.
	rateLimiter chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

// New creates an asset API client.
func New(cfg *config.FetcherConfig, logger *logrus.Logger) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken:   cfg.AuthToken,
		logger:      logger.WithField("component", "fetcher"),
		rateLimiter: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	// Prime the limiter so the first request goes out immediately.
	client.rateLimiter <- struct{}{}
	go client.rateLimitWorker(cfg.RateLimitInterval)

	return client
}

func (c *Client) rateLimitWorker(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case c.rateLimiter <- struct{}{}:
			default:
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the rate limiter's refill goroutine. Safe to call more
// than once; in-flight requests are unaffected.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) waitForSlot(ctx context.Context) error {
	select {
	case <-c.rateLimiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchAssetCollection retrieves the user's full holdings as raw,
// undecoded records; the normalizer owns making sense of them.
func (c *Client) FetchAssetCollection(ctx context.Context) ([]models.RawAsset, error) {
	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}

	var raws []models.RawAsset
	if err := c.getJSON(ctx, "/v1/assets", nil, &raws); err != nil {
		return nil, fmt.Errorf("failed to fetch asset collection: %w", err)
	}

	c.logger.WithField("count", len(raws)).Debug("Fetched asset collection")
	return raws, nil
}

// FetchPrices retrieves live quotes for specific symbols.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if err := c.waitForSlot(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var prices []models.PriceUpdate
	if err := c.getJSON(ctx, "/v1/prices", params, &prices); err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	c.logger.WithField("count", len(prices)).Debug("Fetched price updates")
	return prices, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
