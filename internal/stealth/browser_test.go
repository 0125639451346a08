package stealth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBrowserProxyFallbackAllocator(t *testing.T) {
	b, err := NewBrowser(Config{
		Enabled:             true,
		ProxyURL:            "http://127.0.0.1:3128",
		ProxyFallbackDirect: true,
	}, nil)
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.direct, "fallback requires a proxy-less allocator")

	noFallback, err := NewBrowser(Config{
		Enabled:  true,
		ProxyURL: "http://127.0.0.1:3128",
	}, nil)
	require.NoError(t, err)
	defer noFallback.Close()
	require.Nil(t, noFallback.direct)

	direct, err := NewBrowser(Config{Enabled: true, ProxyFallbackDirect: true}, nil)
	require.NoError(t, err)
	defer direct.Close()
	require.Nil(t, direct.direct, "no proxy means nothing to fall back from")
}
