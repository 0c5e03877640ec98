package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakeClock advances only when a caller sleeps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newTestLimiter(t *testing.T, points int, window time.Duration) (*Limiter, *fakeClock, *[]time.Time) {
	t.Helper()
	l, err := NewLimiter(points, window, arbor.NewNoOpLogger())
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.clock = clk

	grants := &[]time.Time{}
	l.onGrant = func(at time.Time) { *grants = append(*grants, at) }
	return l, clk, grants
}

// assertCeiling checks that no rolling window of length window holds more than points grants
func assertCeiling(t *testing.T, grants []time.Time, points int, window time.Duration) {
	t.Helper()
	sorted := append([]time.Time(nil), grants...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for i := 0; i+points < len(sorted); i++ {
		gap := sorted[i+points].Sub(sorted[i])
		assert.GreaterOrEqual(t, gap, window, "grants %d..%d fit inside one window", i, i+points)
	}
}

func TestNewLimiterRejectsNonPositiveConfig(t *testing.T) {
	_, err := NewLimiter(0, time.Second, nil)
	assert.Error(t, err)

	_, err = NewLimiter(3, 0, nil)
	assert.Error(t, err)
}

func TestAcquireBurstThenWaits(t *testing.T) {
	l, clk, grants := newTestLimiter(t, 3, time.Second)
	start := clk.Now()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, start, clk.Now(), "first points acquisitions must not wait")
	assert.Equal(t, 0, l.Available())

	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, start.Add(time.Second), clk.Now(), "fourth acquisition waits for the oldest grant to age out")
	assert.Len(t, *grants, 4)
}

func TestAcquireNeverExceedsCeilingSequential(t *testing.T) {
	l, _, grants := newTestLimiter(t, 3, 500*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	require.Len(t, *grants, 25)
	assertCeiling(t, *grants, 3, 500*time.Millisecond)
}

func TestAcquireNeverExceedsCeilingConcurrent(t *testing.T) {
	l, err := NewLimiter(4, 100*time.Millisecond, arbor.NewNoOpLogger())
	require.NoError(t, err)

	var mu sync.Mutex
	var grants []time.Time
	l.onGrant = func(at time.Time) {
		mu.Lock()
		grants = append(grants, at)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				assert.NoError(t, l.Acquire(context.Background()))
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, grants, 18)
	assertCeiling(t, grants, 4, 100*time.Millisecond)
}

func TestAcquireHonoursContextCancellation(t *testing.T) {
	l, err := NewLimiter(1, time.Hour, arbor.NewNoOpLogger())
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAvailableRecoversAfterWindow(t *testing.T) {
	l, clk, _ := newTestLimiter(t, 2, time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 0, l.Available())

	require.NoError(t, clk.Sleep(ctx, time.Second))
	assert.Equal(t, 2, l.Available())
}
