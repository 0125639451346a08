package emailpattern

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsCatchAllAcceptedProbe(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	var probed []string
	p.probe = func(_ context.Context, domain, addr string) (bool, error) {
		probed = append(probed, addr)
		return true, nil
	}

	require.True(t, p.IsCatchAll(context.Background(), "acme.com"))
	require.Len(t, probed, 1)
	require.True(t, strings.HasSuffix(probed[0], "@acme.com"))

	local := strings.TrimSuffix(probed[0], "@acme.com")
	require.Len(t, local, probeLocalLen, "probe local part must be random gibberish, not a real name")
}

func TestIsCatchAllRejectedProbe(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	p.probe = func(context.Context, string, string) (bool, error) { return false, nil }
	require.False(t, p.IsCatchAll(context.Background(), "acme.com"))
}

func TestIsCatchAllProbeErrorReportsFalse(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	p.probe = func(context.Context, string, string) (bool, error) {
		return false, errors.New("connect timeout")
	}
	require.False(t, p.IsCatchAll(context.Background(), "unreachable.test"))
}

func TestIsCatchAllCachesPerDomain(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	calls := 0
	p.probe = func(context.Context, string, string) (bool, error) {
		calls++
		return true, nil
	}

	ctx := context.Background()
	require.True(t, p.IsCatchAll(ctx, "acme.com"))
	require.True(t, p.IsCatchAll(ctx, "acme.com"))
	require.Equal(t, 1, calls, "second lookup must hit the cache")

	require.True(t, p.IsCatchAll(ctx, "other.com"))
	require.Equal(t, 2, calls, "cache is keyed per domain")
}

func TestIsCatchAllCacheExpires(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	calls := 0
	p.probe = func(context.Context, string, string) (bool, error) {
		calls++
		return false, nil
	}

	ctx := context.Background()
	require.False(t, p.IsCatchAll(ctx, "acme.com"))

	p.mu.Lock()
	entry := p.cache["acme.com"]
	entry.CheckedAt = time.Now().Add(-25 * time.Hour)
	p.cache["acme.com"] = entry
	p.mu.Unlock()

	require.False(t, p.IsCatchAll(ctx, "acme.com"))
	require.Equal(t, 2, calls, "stale entry must be re-probed")
}

func TestResetForcesReprobe(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	calls := 0
	p.probe = func(context.Context, string, string) (bool, error) {
		calls++
		return true, nil
	}

	ctx := context.Background()
	p.IsCatchAll(ctx, "acme.com")
	p.Reset()
	p.IsCatchAll(ctx, "acme.com")
	require.Equal(t, 2, calls)
}

func TestRandomLocalPartVaries(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		seen[randomLocalPart()] = struct{}{}
	}
	require.Greater(t, len(seen), 1)
}

func TestProberConfigIdentityDefaults(t *testing.T) {
	p := NewCatchAllProber(ProberConfig{}, nil)
	require.Equal(t, "leadscout.io", p.cfg.HelloDomain)
	require.Equal(t, "verify@leadscout.io", p.cfg.FromAddress)

	custom := NewCatchAllProber(ProberConfig{
		HelloDomain: "mail.example.com",
		FromAddress: "probe@example.com",
	}, nil)
	require.Equal(t, "mail.example.com", custom.cfg.HelloDomain)
	require.Equal(t, "probe@example.com", custom.cfg.FromAddress)
}
