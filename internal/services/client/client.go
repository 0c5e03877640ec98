// Package client implements the rate-limited, retrying wrapper every outbound call to the
// data source goes through.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
	"github.com/ternarybob/harvestd/internal/models"
)

// Transport performs a single attempt of a logical upstream operation
type Transport interface {
	Do(ctx context.Context, operation string, params url.Values) (json.RawMessage, error)
}

// Limiter is the shared slot source acquired before every attempt
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Client wraps a Transport with the shared Limiter, failure classification and retries
type Client struct {
	transport  Transport
	limiter    Limiter
	policy     *RetryPolicy
	classify   Classifier
	logger     arbor.ILogger
	events     interfaces.EventService
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
	totalCalls atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(c *Client) {
		if policy != nil {
			c.policy = policy
		}
	}
}

// WithClassifier replaces DefaultClassifier
func WithClassifier(classify Classifier) Option {
	return func(c *Client) {
		if classify != nil {
			c.classify = classify
		}
	}
}

// WithEventService publishes outbound_call_failed events on every failed attempt
func WithEventService(events interfaces.EventService) Option {
	return func(c *Client) {
		c.events = events
	}
}

// WithMetrics records attempts and limiter waits
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client. transport and limiter are required.
func NewClient(transport Transport, limiter Limiter, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	c := &Client{
		transport: transport,
		limiter:   limiter,
		policy:    NewRetryPolicy(),
		classify:  DefaultClassifier,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = arbor.NewNoOpLogger()
	}
	if c.policy.MaxAttempts < 1 {
		c.policy.MaxAttempts = 1
	}

	return c, nil
}

// Call executes operation with params. A limiter slot is acquired before every attempt,
// retries included. Transient failures are retried with backoff up to the policy ceiling
// and then surface as a transient HarvestError carrying the last cause. Permanent failures
// surface immediately as a permanent HarvestError. Cancellation returns the context error.
func (c *Client) Call(ctx context.Context, operation string, params url.Values) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		waitStart := time.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		c.metrics.ObserveRateLimitWait(time.Since(waitStart))
		c.totalCalls.Add(1)

		resp, err := c.transport.Do(ctx, operation, params)
		if err == nil {
			c.metrics.ObserveCall(operation, "success")
			if attempt > 1 {
				c.logger.Debug().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Call succeeded after retry")
			}
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.ObserveCall(operation, "cancelled")
			return nil, ctxErr
		}

		lastErr = err
		kind := c.classify(err)
		c.reportFailure(ctx, operation, kind, attempt, err)

		if kind != models.ErrorKindTransient {
			return nil, permanentError(operation, err)
		}

		if attempt == c.policy.MaxAttempts {
			break
		}

		backoff := c.policy.Backoff(attempt)
		if ra := retryAfter(err); ra > backoff {
			backoff = ra
			if c.policy.MaxBackoff > 0 && backoff > c.policy.MaxBackoff {
				backoff = c.policy.MaxBackoff
			}
		}

		c.logger.Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	c.logger.Warn().
		Str("operation", operation).
		Int("max_attempts", c.policy.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return nil, models.NewTransientError(operation, c.policy.MaxAttempts, lastErr)
}

// TotalCalls returns the number of attempts issued since the client was created
func (c *Client) TotalCalls() int64 {
	return c.totalCalls.Load()
}

func (c *Client) reportFailure(ctx context.Context, operation string, kind models.ErrorKind, attempt int, err error) {
	code := errorCode(err)
	c.metrics.ObserveCall(operation, string(kind))

	c.logger.Warn().
		Str("operation", operation).
		Str("kind", string(kind)).
		Int("attempt", attempt).
		Int("code", code).
		Err(err).
		Msg("Outbound call failed")

	if c.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventOutboundCallFailed,
		Payload: interfaces.CallFailurePayload{
			Operation: operation,
			Kind:      string(kind),
			Attempt:   attempt,
			Code:      code,
			Error:     err.Error(),
		},
	}
	if pubErr := c.events.Publish(ctx, event); pubErr != nil {
		c.logger.Debug().Err(pubErr).Msg("Failed to publish call failure event")
	}
}

func permanentError(operation string, err error) error {
	if he, ok := err.(*models.HarvestError); ok && he.Kind == models.ErrorKindPermanent {
		if he.Operation != "" {
			return he
		}
		tagged := *he
		tagged.Operation = operation
		return &tagged
	}
	return models.NewPermanentError(operation, errorCode(err), err.Error(), err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
