package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRateLimitNeverRetryable(t *testing.T) {
	cases := []error{
		Errorf(KindRateLimit, "provider throttled"),
		errors.New("HTTP 429 Too Many Requests"),
		fmt.Errorf("fetch: %w", errors.New("rate limit exceeded")),
	}
	for _, err := range cases {
		require.True(t, IsRateLimit(err), "expected rate limit: %v", err)
		require.False(t, IsRetryable(err), "rate limit must not retry: %v", err)
	}
}

func TestIsRetryableTransientNetwork(t *testing.T) {
	cases := []error{
		syscall.ECONNRESET,
		syscall.ECONNREFUSED,
		fmt.Errorf("read tcp: %w", timeoutErr{}),
		errors.New("socket hang up"),
		context.DeadlineExceeded,
	}
	for _, err := range cases {
		require.True(t, IsRetryable(err), "expected retryable: %v", err)
	}
}

func TestIsRetryableOperationalOnly(t *testing.T) {
	require.True(t, IsRetryable(Errorf(KindDatabase, "pool exhausted")))
	require.False(t, IsRetryable(Errorf(KindValidation, "query required")))
	require.False(t, IsRetryable(Errorf(KindSourceBlocked, "captcha wall")))
	require.False(t, IsRetryable(Errorf(KindQuotaExceeded, "all keys spent")))
	require.False(t, IsRetryable(errors.New("nil pointer dereference")))
	require.False(t, IsRetryable(context.Canceled))
}

func TestKindOfUnwrapsNestedError(t *testing.T) {
	inner := Errorf(KindBrowser, "navigation crashed")
	wrapped := fmt.Errorf("source yelp: %w", inner)
	require.Equal(t, KindBrowser, KindOf(wrapped))
	require.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestLevelForTiers(t *testing.T) {
	cases := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{95, ConfidenceVeryHigh},
		{85, ConfidenceVeryHigh},
		{84.9, ConfidenceHigh},
		{70, ConfidenceHigh},
		{50, ConfidenceMedium},
		{30, ConfidenceLow},
		{29.9, ConfidenceVeryLow},
		{0, ConfidenceVeryLow},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LevelFor(tc.score), "score %v", tc.score)
	}
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := NewError(KindTimeout, errors.New("navigation took 15s"))
	require.Contains(t, err.Error(), "timeout")
	require.True(t, err.Operational)
}
