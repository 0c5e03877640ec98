package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/metrics"
	"github.com/ternarybob/harvestd/internal/models"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type upstreamError struct {
	code      int
	temporary bool
}

func (e upstreamError) Error() string   { return "upstream error" }
func (e upstreamError) ErrorCode() int  { return e.code }
func (e upstreamError) Temporary() bool { return e.temporary }

type throttledError struct{ after time.Duration }

func (e throttledError) Error() string             { return "too many requests" }
func (e throttledError) Temporary() bool           { return true }
func (e throttledError) RetryAfter() time.Duration { return e.after }

// scriptedTransport returns the queued errors in order, then succeeds
type scriptedTransport struct {
	mu       sync.Mutex
	errs     []error
	attempts int
}

func (s *scriptedTransport) Do(ctx context.Context, operation string, params url.Values) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

type countingLimiter struct {
	mu       sync.Mutex
	acquired int
	err      error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.acquired++
	return nil
}

type mockEventService struct {
	mock.Mock
}

func (m *mockEventService) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return m.Called(eventType, handler).Error(0)
}

func (m *mockEventService) Publish(ctx context.Context, event interfaces.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEventService) PublishSync(ctx context.Context, event interfaces.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockEventService) Close() error {
	return m.Called().Error(0)
}

func newTestClient(t *testing.T, transport Transport, limiter Limiter, opts ...Option) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := NewClient(transport, limiter, opts...)
	require.NoError(t, err)

	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func TestCallRetriesTimeoutsThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{errs: []error{timeoutError{}, timeoutError{}}}
	limiter := &countingLimiter{}
	c, sleeps := newTestClient(t, transport, limiter)

	resp, err := c.Call(context.Background(), "wall.get", url.Values{})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp))
	assert.Equal(t, 3, transport.attempts)
	assert.Equal(t, 3, limiter.acquired, "a slot is acquired before every attempt")
	assert.Len(t, *sleeps, 2)
	assert.Equal(t, int64(3), c.TotalCalls())
}

func TestCallPermanentFailsImmediately(t *testing.T) {
	transport := &scriptedTransport{errs: []error{upstreamError{code: 15}}}
	limiter := &countingLimiter{}
	c, sleeps := newTestClient(t, transport, limiter)

	_, err := c.Call(context.Background(), "wall.getComments", url.Values{})

	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
	var he *models.HarvestError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "wall.getComments", he.Operation)
	assert.Equal(t, 15, he.Code)
	assert.Equal(t, 1, transport.attempts)
	assert.Empty(t, *sleeps)
}

func TestCallDoesNotMutateTaggedErrors(t *testing.T) {
	shared := models.NewPermanentError("", 0, "malformed response", io.ErrUnexpectedEOF)
	transport := &scriptedTransport{errs: []error{shared, shared}}
	c, _ := newTestClient(t, transport, &countingLimiter{})

	_, err := c.Call(context.Background(), "wall.get", url.Values{})
	require.Error(t, err)
	var he *models.HarvestError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "wall.get", he.Operation)

	_, err = c.Call(context.Background(), "wall.getComments", url.Values{})
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "wall.getComments", he.Operation)

	assert.Empty(t, shared.Operation)
	assert.Equal(t, 2, transport.attempts)
}

func TestCallExhaustsRetries(t *testing.T) {
	last := upstreamError{code: 6, temporary: true}
	transport := &scriptedTransport{errs: []error{timeoutError{}, timeoutError{}, last}}
	c, _ := newTestClient(t, transport, &countingLimiter{})

	_, err := c.Call(context.Background(), "wall.get", url.Values{})

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	var he *models.HarvestError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, 3, he.Attempts)
	assert.Equal(t, 6, he.Code)
	assert.ErrorIs(t, err, last, "the last underlying cause is preserved")
	assert.Equal(t, 3, transport.attempts)
}

func TestCallHonoursRetryAfter(t *testing.T) {
	transport := &scriptedTransport{errs: []error{throttledError{after: 5 * time.Second}}}
	policy := NewRetryPolicy()
	policy.Jitter = 0
	policy.InitialBackoff = 10 * time.Millisecond
	c, sleeps := newTestClient(t, transport, &countingLimiter{}, WithRetryPolicy(policy))

	_, err := c.Call(context.Background(), "wall.get", url.Values{})

	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 5*time.Second, (*sleeps)[0])
}

func TestCallCancelledDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{errs: []error{timeoutError{}, timeoutError{}}}
	c, err := NewClient(transport, &countingLimiter{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err = c.Call(ctx, "wall.get", url.Values{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.attempts, "no attempt after cancellation")
}

func TestCallLimiterErrorStopsCall(t *testing.T) {
	transport := &scriptedTransport{}
	c, _ := newTestClient(t, transport, &countingLimiter{err: context.Canceled})

	_, err := c.Call(context.Background(), "wall.get", url.Values{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, transport.attempts)
}

func TestCallPublishesFailureEvents(t *testing.T) {
	events := &mockEventService{}
	events.On("Publish", mock.Anything, mock.MatchedBy(func(e interfaces.Event) bool {
		p, ok := e.Payload.(interfaces.CallFailurePayload)
		return ok && e.Type == interfaces.EventOutboundCallFailed && p.Operation == "wall.get" && p.Kind == "transient"
	})).Return(nil).Twice()

	m := metrics.New()
	transport := &scriptedTransport{errs: []error{timeoutError{}, timeoutError{}}}
	c, _ := newTestClient(t, transport, &countingLimiter{}, WithEventService(events), WithMetrics(m))

	_, err := c.Call(context.Background(), "wall.get", url.Values{})
	require.NoError(t, err)

	events.AssertExpectations(t)
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	_, err := NewClient(nil, &countingLimiter{})
	assert.Error(t, err)
	_, err = NewClient(&scriptedTransport{}, nil)
	assert.Error(t, err)
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, models.ErrorKindTransient},
		{"net timeout", timeoutError{}, models.ErrorKindTransient},
		{"throttled", throttledError{}, models.ErrorKindTransient},
		{"temporary upstream", upstreamError{code: 6, temporary: true}, models.ErrorKindTransient},
		{"explicit upstream", upstreamError{code: 15}, models.ErrorKindPermanent},
		{"plain", errors.New("malformed"), models.ErrorKindPermanent},
		{"tagged", models.NewTransientError("op", 1, nil), models.ErrorKindTransient},
		{"tagged malformed body", models.NewPermanentError("op", 0, "malformed response", io.ErrUnexpectedEOF), models.ErrorKindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier(tt.err))
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := &RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(6), "capped at max backoff")

	p.Jitter = 0.25
	for i := 0; i < 20; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
