// Package external provides the anti-corruption layer between farewatch domain
// logic and third-party vendor APIs: fare search (Amadeus, SerpAPI), booking
// links and email delivery (SES, SendGrid, SMTP).
//
// Every outbound HTTP call from a provider goes through a BaseClient so that a
// misbehaving vendor trips its own circuit breaker and surfaces as a typed
// upstream error instead of stalling a trigger run.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"farewatch/internal/types"

	"github.com/sony/gobreaker/v2"
)

// userAgent is sent on every outbound provider request.
const userAgent = "FareWatch/1.0"

// traceHeader carries the inbound request ID to vendors that log it.
const traceHeader = "X-B3-TraceId"

// RetryPolicy bounds how often and how long a BaseClient retries 429 and 5xx
// responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy is used by providers without vendor-specific limits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// clamp bounds d to [MinWait, MaxWait].
func (p RetryPolicy) clamp(d time.Duration) time.Duration {
	return max(p.MinWait, min(d, p.MaxWait))
}

// BaseClient is the resilient HTTP transport shared by the provider clients.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces time.Sleep between attempts. Tests pass a no-op.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// providerBreaker opens after six consecutive failed calls to one vendor and
// lets a single probe through after thirty seconds.
func providerBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// NewBaseClient creates a BaseClient with its own breaker named after the
// vendor.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	return NewBaseClientWithBreaker(httpClient, providerBreaker(breakerName), retryPolicy, userAgent, opts...)
}

// NewBaseClientWithBreaker creates a BaseClient around an existing breaker,
// for clients that share one vendor quota.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	c := &BaseClient{
		client:      httpClient,
		breaker:     breaker,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errRetryableStatus marks a 429 or 5xx response as a breaker failure.
type errRetryableStatus int

func (e errRetryableStatus) Error() string {
	return fmt.Sprintf("upstream returned %d", int(e))
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Do sends req, retrying 429 and 5xx responses per the retry policy.
//
// Any other response, including 4xx, is returned to the caller, who must
// close the body. When retries run out, the breaker is open or the caller's
// context ends, Do returns a *types.AppError and no response.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set(traceHeader, traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	replay, err := snapshotBody(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
	}

	attempts := c.retryPolicy.MaxRetries + 1
	var (
		resp *http.Response
		last error
	)
	for attempt := range attempts {
		replay()
		resp, last = c.send(req)
		if last == nil {
			return resp, nil
		}
		if !c.shouldRetry(req.Context(), last) || attempt == attempts-1 {
			break
		}
		wait := c.computeBackoff(attempt, resp)
		drain(resp)
		c.sleepFn(wait)
	}

	appErr := c.mapError(resp, last)
	drain(resp)
	return nil, appErr
}

// send performs one attempt through the breaker. A retryable status comes
// back with both the response and an errRetryableStatus.
func (c *BaseClient) send(req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		r, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryableStatus(r.StatusCode) {
			return r, errRetryableStatus(r.StatusCode)
		}
		return r, nil
	})
}

func (c *BaseClient) shouldRetry(ctx context.Context, err error) bool {
	if breakerRejected(err) {
		return false
	}
	return ctx.Err() == nil
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// snapshotBody buffers the request body and returns a func that rewinds it
// before each attempt.
func snapshotBody(req *http.Request) (func(), error) {
	if req.Body == nil {
		return func() {}, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
	}, nil
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

// computeBackoff honors a Retry-After header in seconds or HTTP-date form.
// Without one it waits a random duration between MinWait and
// MinWait*2^attempt, capped at MaxWait.
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if wait, ok := retryAfter(resp); ok {
		return c.retryPolicy.clamp(wait)
	}

	p := c.retryPolicy
	ceiling := min(p.MinWait<<attempt, p.MaxWait)
	if ceiling <= p.MinWait {
		return p.MinWait
	}
	return p.MinWait + rand.N(ceiling-p.MinWait)
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// mapError classifies the final failure. Rate limiting and an open breaker
// are reported as upstream_rate_limited so the trigger worker retries later.
// A caller deadline is not the vendor's fault.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	switch {
	case breakerRejected(err):
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream service unavailable", err)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"upstream rate limit exceeded", err)
	case resp != nil && resp.StatusCode >= http.StatusInternalServerError:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"upstream request aborted", err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"upstream request failed", err)
	}
}
