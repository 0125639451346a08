package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
)

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	cfg.Enabled = true
	l := New(cfg, nil, nil)
	t.Cleanup(l.Close)
	return l
}

func TestAcquireEnforcesMinDelayGap(t *testing.T) {
	minDelay := 60 * time.Millisecond
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          minDelay,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://example.com/a"))
	var grants []time.Time
	grants = append(grants, time.Now())
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "https://example.com/b"))
		grants = append(grants, time.Now())
	}
	for i := 1; i < len(grants); i++ {
		gap := grants[i].Sub(grants[i-1])
		require.GreaterOrEqual(t, gap, minDelay-10*time.Millisecond,
			"grants %d and %d scheduled %v apart", i-1, i, gap)
	}
}

func TestMaxDelayCapsEffectiveGap(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          2 * time.Second,
		MaxDelay:          50 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "https://example.com/b"))
	elapsed := time.Since(start)
	require.Less(t, elapsed, time.Second,
		"second grant waited %v; the cap must override the larger gap", elapsed)
}

func TestDifferentDomainsRunInParallel(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          200 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://a.com/x"))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "https://b.com/x"))
	require.Less(t, time.Since(start), 100*time.Millisecond,
		"domain b must not wait behind domain a")
}

func TestAcquireQueueFullBackpressure(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          500 * time.Millisecond,
		QueueSize:         1,
		WaitTimeout:       5 * time.Second,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://slow.com/1"))

	// Saturate the single queue slot, then overflow it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Acquire(ctx, "https://slow.com/2")
	}()
	time.Sleep(50 * time.Millisecond)

	err := l.Acquire(ctx, "https://slow.com/3")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrQueueFull), "got %v", err)
	require.Equal(t, discovery.KindBackpressure, discovery.KindOf(err))
	wg.Wait()
}

func TestAcquireWaitTimeoutDistinguishable(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          2 * time.Second,
		QueueSize:         8,
		WaitTimeout:       80 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "https://slow.com/1"))

	err := l.Acquire(ctx, "https://slow.com/2")
	require.True(t, errors.Is(err, ErrWaitTimeout), "got %v", err)
	require.False(t, errors.Is(err, ErrQueueFull))
}

func TestAcquireHonorsCallerContext(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          2 * time.Second,
	})

	require.NoError(t, l.Acquire(context.Background(), "https://slow.com/1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "https://slow.com/2")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeDomainCollapsesAliases(t *testing.T) {
	l := newTestLimiter(t, Config{
		Presets: map[string]DomainPreset{
			"google.com": {
				RequestsPerMinute: 10,
				Aliases:           []string{"maps.google.com", "places.google.com"},
			},
		},
	})

	got, err := l.NormalizeDomain("https://maps.google.com/search?q=dentist")
	require.NoError(t, err)
	require.Equal(t, "google.com", got)

	got, err = l.NormalizeDomain("https://www.Example.COM/path")
	require.NoError(t, err)
	require.Equal(t, "example.com", got)

	// No preset: subdomains stay independent.
	got, err = l.NormalizeDomain("https://api.yelp.com/v3")
	require.NoError(t, err)
	require.Equal(t, "api.yelp.com", got)
}

func TestDisabledLimiterIsPassThrough(t *testing.T) {
	l := New(Config{Enabled: false}, nil, nil)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background(), "https://example.com"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestStateTracksWindowCounters(t *testing.T) {
	l := newTestLimiter(t, Config{
		RequestsPerMinute: 600,
		MinDelay:          time.Millisecond,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, "https://example.com"))
	}
	state, ok := l.State("example.com")
	require.True(t, ok)
	require.Equal(t, 3, state.RequestCount)
	require.False(t, state.LastRequest.IsZero())
	require.False(t, state.WindowStart.IsZero())
}

type recordingMirror struct {
	mu     sync.Mutex
	states []discovery.RateLimitState
	fail   bool
}

func (m *recordingMirror) PutRateLimitState(_ context.Context, s discovery.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mirror unavailable")
	}
	m.states = append(m.states, s)
	return nil
}

func (m *recordingMirror) GetRateLimitState(context.Context, string) (discovery.RateLimitState, bool, error) {
	return discovery.RateLimitState{}, false, nil
}

func (m *recordingMirror) PutKeyQuotaState(context.Context, discovery.KeyQuotaState) error {
	return nil
}

func (m *recordingMirror) GetKeyQuotaState(context.Context, string, string) (discovery.KeyQuotaState, bool, error) {
	return discovery.KeyQuotaState{}, false, nil
}

func TestMirrorWritesBestEffort(t *testing.T) {
	mirror := &recordingMirror{}
	l := New(Config{Enabled: true, RequestsPerMinute: 600, MinDelay: time.Millisecond}, mirror, nil)
	t.Cleanup(l.Close)

	require.NoError(t, l.Acquire(context.Background(), "https://example.com"))
	require.Eventually(t, func() bool {
		mirror.mu.Lock()
		defer mirror.mu.Unlock()
		return len(mirror.states) == 1
	}, time.Second, 10*time.Millisecond)

	// A failing mirror must not block grants.
	mirror.fail = true
	require.NoError(t, l.Acquire(context.Background(), "https://example.com"))
}
