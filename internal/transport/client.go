// Package transport executes one logical provider call: it issues attempts,
// classifies every outcome into the domain error taxonomy and decides whether
// to retry with capped exponential backoff.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/observability"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultMaxBodyBytes = 4 << 20
	errorSnippetLen     = 200
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimer makes the backoff sleep use timers from newTimer.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(c *Client) {
		c.newTimer = newTimer
	}
}

// WithJitter sets the jitter source; it must return values in [0,1].
func WithJitter(jitter func() float64) Option {
	return func(c *Client) {
		c.jitter = jitter
	}
}

// WithMaxBodyBytes bounds the response body size. Larger bodies fail the
// call without retry.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// Client implements domain.Transport over net/http.
type Client struct {
	httpClient   *http.Client
	metrics      *observability.Metrics
	newTimer     func() backoff.Timer
	jitter       func() float64
	maxBodyBytes int64
}

// NewClient creates a transport whose attempts time out after cfg.Timeout.
// metrics may be nil.
func NewClient(cfg *domain.ProviderConfig, metrics *observability.Metrics, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics:      metrics,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send runs the attempt loop for wire until success, a non-retryable
// failure, policy.MaxAttempts attempts, or the end of ctx.
func (c *Client) Send(
	ctx context.Context,
	wire *domain.WireRequest,
	policy domain.RetryPolicy,
	codec domain.Codec,
) (*domain.Reply, error) {
	if err := validate(wire, policy, codec); err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	provider := string(wire.Provider)

	var (
		attempts int
		reply    *domain.Reply
	)

	operation := func() error {
		attempts++
		start := time.Now()
		r, attemptErr := c.attempt(ctx, wire, codec)
		elapsed := time.Since(start)

		if attemptErr != nil {
			c.metrics.ObserveAttempt(provider, string(attemptErr.Kind), elapsed)
			logger.Warn("provider attempt failed",
				observability.Int("attempt", attempts),
				observability.String("kind", string(attemptErr.Kind)),
				observability.Int("status", attemptErr.StatusCode),
				observability.Duration("elapsed", elapsed),
				observability.Error(attemptErr))

			if !attemptErr.Kind.Retryable() {
				return backoff.Permanent(attemptErr)
			}
			return attemptErr
		}

		c.metrics.ObserveAttempt(provider, "success", elapsed)
		logger.Debug("provider attempt succeeded",
			observability.Int("attempt", attempts),
			observability.Duration("elapsed", elapsed))
		reply = r
		return nil
	}

	notify := func(err error, delay time.Duration) {
		c.metrics.ObserveRetryDelay(provider, delay)
		logger.Info("retrying provider call",
			observability.Int("next_attempt", attempts+1),
			observability.Int("max_attempts", policy.MaxAttempts),
			observability.Duration("delay", delay),
			observability.Error(err))
	}

	schedule := &deadlineBackOff{BackOff: policy.Schedule(c.jitter)}
	schedule.deadline, schedule.bounded = ctx.Deadline()

	//nolint:gosec // MaxAttempts is validated to be >= 1
	b := backoff.WithContext(
		backoff.WithMaxRetries(schedule, uint64(policy.MaxAttempts-1)),
		ctx,
	)

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	if err := backoff.RetryNotifyWithTimer(operation, b, notify, timer); err != nil {
		if schedule.cut {
			err = context.DeadlineExceeded
		}
		return nil, finalize(err, wire.Provider, attempts)
	}

	reply.Attempts = attempts
	reply.Response.Attempts = attempts
	reply.Response.Provider = wire.Provider

	return reply, nil
}

// attempt performs exactly one HTTP exchange.
func (c *Client) attempt(ctx context.Context, wire *domain.WireRequest, codec domain.Codec) (*domain.Reply, *domain.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wire.URL, bytes.NewReader(wire.Body))
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "failed to create request", err)
	}

	req.Header = wire.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "failed to read response body", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, domain.NewStatusError(domain.KindProviderRejected, resp.StatusCode,
			fmt.Sprintf("response body exceeds the %d byte limit", c.maxBodyBytes))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		base := ClassifyStatus(resp.StatusCode, body)
		return nil, domain.Refine(base, codec.DecodeError(base, body))
	}

	decoded, err := codec.DecodeResponse(body)
	if err != nil {
		var llmErr *domain.Error
		if errors.As(err, &llmErr) {
			out := *llmErr
			out.StatusCode = resp.StatusCode
			return nil, &out
		}
		return nil, domain.NewError(domain.KindMalformed, "failed to decode response", err)
	}

	return &domain.Reply{Body: body, Response: decoded}, nil
}

// ClassifyStatus maps a non-2xx HTTP status to an error kind.
func ClassifyStatus(status int, body []byte) *domain.Error {
	var kind domain.ErrorKind
	switch {
	case status == http.StatusTooManyRequests:
		kind = domain.KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = domain.KindAuth
	case status == http.StatusRequestTimeout:
		kind = domain.KindTransport
	case status >= http.StatusInternalServerError:
		kind = domain.KindServerError
	default:
		kind = domain.KindProviderRejected
	}

	return domain.NewStatusError(kind, status, snippet(body))
}

func validate(wire *domain.WireRequest, policy domain.RetryPolicy, codec domain.Codec) *domain.Error {
	if wire == nil {
		return domain.NewError(domain.KindTransport, "wire request cannot be nil", nil)
	}
	if codec == nil {
		return domain.NewError(domain.KindTransport, "codec cannot be nil", nil)
	}
	if policy.MaxAttempts < 1 {
		return domain.NewError(domain.KindTransport,
			fmt.Sprintf("max attempts must be at least 1, got %d", policy.MaxAttempts), nil)
	}

	u, err := url.Parse(wire.URL)
	if err != nil {
		return domain.NewError(domain.KindTransport, "invalid endpoint", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewError(domain.KindTransport, fmt.Sprintf("endpoint %q is not an absolute http(s) URL", wire.URL), nil)
	}

	return nil
}

// deadlineBackOff stops the schedule when the next delay would end after the
// caller's deadline. cut records that it did.
type deadlineBackOff struct {
	backoff.BackOff
	deadline time.Time
	bounded  bool
	cut      bool
}

func (d *deadlineBackOff) NextBackOff() time.Duration {
	next := d.BackOff.NextBackOff()
	if next == backoff.Stop || !d.bounded {
		return next
	}
	if time.Now().Add(next).After(d.deadline) {
		d.cut = true
		return backoff.Stop
	}
	return next
}

// finalize stamps the terminal error with call metadata. Context expiry
// surfaces as a transport failure.
func finalize(err error, provider domain.ProviderName, attempts int) error {
	var llmErr *domain.Error
	switch {
	case errors.Is(err, context.Canceled):
		llmErr = domain.NewError(domain.KindTransport, "call canceled", err)
	case !errors.As(err, &llmErr):
		llmErr = domain.NewError(domain.KindTransport, "call deadline exceeded", err)
	}

	out := *llmErr
	out.Provider = provider
	out.Attempts = attempts

	return &out
}

func snippet(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > errorSnippetLen {
		return s[:errorSnippetLen]
	}
	return s
}
