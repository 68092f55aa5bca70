// Package httpclient provides the rate limited, retrying HTTP client shared by
// pixels and downloads.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RatePerSec limits outgoing requests. Zero or less means unlimited.
	RatePerSec float64
	UserAgent  string
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 30 * time.Second,
		UserAgent:    "browsershell/1.0",
	}
}

// Client wraps resty over a retryablehttp transport with a rate limiter.
type Client struct {
	mu      sync.RWMutex
	resty   *resty.Client
	limiter *rate.Limiter
}

// New creates a client.
func New(opts Options) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	if opts.Timeout > 0 {
		restyClient.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", opts.UserAgent)
	}

	c := &Client{resty: restyClient}
	c.SetRateLimit(opts.RatePerSec)
	return c
}

// SetRateLimit changes the request rate. Zero or less removes the limit.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Request waits for the rate limiter and returns a request bound to ctx.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.resty.R().SetContext(ctx), nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// CheckResponse turns a non-2xx response into a *StatusError.
func CheckResponse(resp *resty.Response) error {
	if resp == nil || resp.IsSuccess() {
		return nil
	}
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL,
		Code:   resp.StatusCode(),
	}
}
