// Package httpx provides the rate-limited HTTP client base of spec
// §4.4: every upstream tool (Catalog, Features, LLM) composes one of
// these instead of inheriting from a shared base class — per-request
// timeout and retry/backoff, a sliding-window rate limiter with a
// minimum-interval floor, an optional process-wide semaphore for
// upstreams that misbehave under concurrency, and an optional circuit
// breaker for upstreams prone to cascading failure.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/osa030/moodplay/internal/errs"
)

// featuresSemaphore is the process-wide capacity-5 semaphore shared by
// every tool flagged UseGlobalSemaphore (spec §4.4: "the features
// service mis-behaves under concurrency").
var featuresSemaphore = make(chan struct{}, 5)

// Config configures a Client's resilience behavior.
type Config struct {
	BaseURL            string
	Timeout            time.Duration // default 30s; Features tools pass 180s.
	MaxRetries         int           // default 3.
	RequestsPerMinute  int           // sliding 60s window cap; 0 disables.
	MinRequestInterval time.Duration // floor between consecutive requests; 0 disables.
	UseGlobalSemaphore bool          // acquire the process-wide capacity-5 semaphore before each request.
	UseCircuitBreaker  bool          // wrap requests in a gobreaker, for upstreams prone to cascading failure.
	CircuitBreakerName string
}

// Client is the shared base every upstream tool composes.
type Client struct {
	rest    *resty.Client
	cfg     Config
	limiter *slidingWindowLimiter
	breaker *gobreaker.CircuitBreaker

	mu          sync.Mutex
	lastRequest time.Time
}

// New builds a Client per cfg on its own http.Transport (200 idle
// connections in total, 50 idle per host, HTTP/2, 30s idle-connection
// timeout). The transport is not shared between Client instances, and
// the total number of connections per host is not capped.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     30 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetTransport(transport)

	c := &Client{rest: rest, cfg: cfg}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = newSlidingWindowLimiter(cfg.RequestsPerMinute, time.Minute)
	}

	if cfg.UseCircuitBreaker {
		name := cfg.CircuitBreakerName
		if name == "" {
			name = cfg.BaseURL
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return c
}

// NewRequest builds a resty request scoped to ctx, ready for the
// caller to set path, params, and body before calling Do.
func (c *Client) NewRequest(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx)
}

// Do executes req via method+url with retry/backoff, rate limiting,
// the optional global semaphore, and the optional circuit breaker, and
// validates that requiredFields are present in the decoded JSON body
// (spec §4.4 "response validation"). requiredFields may be empty to
// skip that check.
func (c *Client) Do(ctx context.Context, method, url string, req *resty.Request, requiredFields ...string) (*resty.Response, error) {
	if c.cfg.UseGlobalSemaphore {
		select {
		case featuresSemaphore <- struct{}{}:
			defer func() { <-featuresSemaphore }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	c.waitMinInterval()

	exec := func() (*resty.Response, error) {
		return c.doWithRetry(method, url, req)
	}

	var resp *resty.Response
	var err error
	if c.breaker != nil {
		var result interface{}
		result, err = c.breaker.Execute(func() (interface{}, error) {
			r, e := exec()
			if e != nil {
				return nil, e
			}
			return r, nil
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, errs.APIError(http.StatusServiceUnavailable, "circuit breaker open", err.Error())
			}
			return nil, err
		}
		resp = result.(*resty.Response)
	} else {
		resp, err = exec()
	}
	if err != nil {
		return nil, err
	}

	if len(requiredFields) > 0 {
		if err := validateRequiredFields(resp, requiredFields); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (c *Client) waitMinInterval() {
	if c.cfg.MinRequestInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRequest.IsZero() {
		c.lastRequest = time.Now()
		return
	}
	wait := c.cfg.MinRequestInterval - time.Since(c.lastRequest)
	if wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

// doWithRetry mirrors the teacher's exponential-backoff retry loop,
// generalized to the spec's 429/5xx distinction: 5xx and timeouts use
// 0.5*2^attempt backoff; 429 honors Retry-After when present and <=
// 300s, otherwise 2*2^(attempt+1); a Retry-After > 300s fails fast.
func (c *Client) doWithRetry(method, url string, req *resty.Request) (*resty.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		resp, err := req.Execute(method, url)
		if err == nil && resp.StatusCode() < 400 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
			if !isRetryableTransportError(err) {
				return nil, errs.Wrap(err, "request failed")
			}
			sleepBackoff(attempt)
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp)
			if retryAfter > 300*time.Second {
				return nil, errs.RateLimited(int(retryAfter.Seconds()))
			}
			if retryAfter > 0 {
				time.Sleep(retryAfter)
			} else {
				time.Sleep(time.Duration(2*math.Pow(2, float64(attempt+1))) * time.Second)
			}
			lastErr = errs.RateLimited(int(retryAfter.Seconds()))
		case status >= 500:
			lastErr = errs.APIError(status, "server error", resp.String())
			sleepBackoff(attempt)
		default:
			return resp, errs.APIError(status, "request failed", resp.String())
		}
	}
	return nil, errs.Wrap(lastErr, "max retries exceeded")
}

func sleepBackoff(attempt int) {
	time.Sleep(time.Duration(0.5*math.Pow(2, float64(attempt))*1000) * time.Millisecond)
}

func parseRetryAfter(resp *resty.Response) time.Duration {
	raw := resp.Header().Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func isRetryableTransportError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "eof")
}

// validateRequiredFields reports a validation error if the response
// body, parsed as JSON, is missing any of fields at the top level.
func validateRequiredFields(resp *resty.Response, fields []string) error {
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return errs.Validation(fmt.Sprintf("response is not valid JSON: %v", err))
	}
	for _, field := range fields {
		if _, ok := body[field]; !ok {
			return errs.Validation(fmt.Sprintf("response missing required field %q", field))
		}
	}
	return nil
}

// JoinParams serializes a list-valued query parameter as a
// comma-joined string (spec §4.4 "parameter formatting").
func JoinParams(values []string) string {
	return strings.Join(values, ",")
}
