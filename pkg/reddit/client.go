package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "subarchive/pkg/errors"
	"subarchive/pkg/logger"
	"subarchive/pkg/metrics"
	"subarchive/pkg/ratelimit"
)

// Options configures a Client
type Options struct {
	BaseURL     string
	UserAgent   string
	AccessToken string
	Timeout     time.Duration
	PageSize    int
	Limiter     ratelimit.Limiter
	Logger      logger.Logger
	Metrics     *metrics.Collector
}

// Client talks to the upstream API. Every call waits on the shared limiter first.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	accessToken string
	pageSize    int
	limiter     ratelimit.Limiter
	logger      logger.Logger
	metrics     *metrics.Collector
}

// NewClient creates a new upstream client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "subarchive/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PageSize <= 0 || opts.PageSize > DefaultPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewFixedInterval(600 * time.Millisecond)
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		userAgent:   opts.UserAgent,
		accessToken: opts.AccessToken,
		pageSize:    opts.PageSize,
		limiter:     opts.Limiter,
		logger:      opts.Logger.WithField("component", "reddit"),
		metrics:     opts.Metrics,
	}
}

// WithHTTPClient swaps the transport, mostly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Limiter returns the limiter shared by all calls
func (c *Client) Limiter() ratelimit.Limiter {
	return c.limiter
}

// doRequest waits for a slot, sends a GET and feeds quota headers back to the limiter
func (c *Client) doRequest(ctx context.Context, endpoint, url string) (*http.Response, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if waited := time.Since(waitStart); waited > 0 {
		c.metrics.ObserveRateLimitWait(waited)
		if waited >= 5*time.Second {
			logger.LogRateLimit(c.logger, endpoint, waited)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeFatal, err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.metrics.ObserveRequest(endpoint, 0, duration)
		logger.LogUpstreamRequest(c.logger, endpoint, 0, duration)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeTransient, err, "network error")
	}

	if obs, ok := c.limiter.(ratelimit.Observer); ok {
		obs.Observe(resp.Header)
	}
	c.metrics.ObserveRequest(endpoint, resp.StatusCode, duration)
	logger.LogUpstreamRequest(c.logger, endpoint, resp.StatusCode, duration)

	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response into target
func (c *Client) getJSON(ctx context.Context, endpoint, url string, target interface{}) error {
	resp, err := c.doRequest(ctx, endpoint, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ErrorTypeTransient, err, "failed to read response body")
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.WarnWithFields("failed to parse JSON response", map[string]interface{}{
			"endpoint":     endpoint,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Malformed(err, "failed to parse "+endpoint+" response")
	}

	return nil
}

// checkResponseStatus maps HTTP status codes onto error kinds
func checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "upstream rejected credentials", Code: code}
	case code == http.StatusNotFound:
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "resource not found", Code: code}
	case errs.IsRetryableStatusCode(code):
		return errs.Transient(code, fmt.Sprintf("upstream returned %s", http.StatusText(code)))
	default:
		return &errs.Error{Type: errs.ErrorTypeFatal, Message: fmt.Sprintf("unexpected status code: %d", code), Code: code}
	}
}
