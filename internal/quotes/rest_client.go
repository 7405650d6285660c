// Package quotes implements the external price feed collaborator: the last
// quoted price per instrument, fetched over REST. A failed fetch is transient
// for the engine (the poller skips that tick), so all failures surface as
// ErrQuoteUnavailable.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"trade-signal-engine-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrQuoteUnavailable marks a transient quote fetch failure.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Quote is the last traded price of an instrument at fetch time.
type Quote struct {
	Symbol   string
	Price    float64
	QuotedAt time.Time
}

// QuoteSource defines the interface for the price feed.
type QuoteSource interface {
	LastPrice(ctx context.Context, symbol string) (Quote, error)
}

// RestClient is a rate-limited REST client for the quote provider.
// It implements QuoteSource.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ QuoteSource = (*RestClient)(nil)

// NewRestClient creates a new quote feed client.
func NewRestClient(cfg *config.Quotes, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		logger:  logger.Named("quotes"),
		limiter: limiter,
	}
}

// tickerPrice represents the provider's response for a single ticker price.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// LastPrice fetches the latest traded price for one instrument.
func (c *RestClient) LastPrice(ctx context.Context, symbol string) (Quote, error) {
	var ticker tickerPrice

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		SetHeader("Content-Type", "application/json")

	if _, err := c.doRequest(ctx, "GET", "/ticker/price", req); err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: unparseable price %q", ErrQuoteUnavailable, symbol, ticker.Price)
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("%w: %s: non-positive price %v", ErrQuoteUnavailable, symbol, price)
	}

	return Quote{Symbol: symbol, Price: price, QuotedAt: time.Now()}, nil
}

// Ping checks connectivity to the quote provider.
func (c *RestClient) Ping(ctx context.Context) error {
	req := c.client.R().SetContext(ctx)
	if _, err := c.doRequest(ctx, "GET", "/ping", req); err != nil {
		return fmt.Errorf("quote provider unreachable: %w", err)
	}
	return nil
}
