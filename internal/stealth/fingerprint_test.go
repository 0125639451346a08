package stealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateFingerprintJointConsistency(t *testing.T) {
	for i := 0; i < 200; i++ {
		fp := GenerateFingerprint()
		mobileUA := strings.Contains(fp.UserAgent, "Mobile")

		require.Equal(t, mobileUA, fp.IsMobile, "user agent and mobile flag must agree: %s", fp.UserAgent)
		if fp.IsMobile {
			require.Greater(t, fp.TouchPoints, 0, "mobile fingerprints must advertise touch")
			require.LessOrEqual(t, fp.Viewport.Width, 500, "mobile viewport width: %d", fp.Viewport.Width)
		} else {
			require.Zero(t, fp.TouchPoints)
			require.GreaterOrEqual(t, fp.Viewport.Width, 1280)
		}

		switch {
		case strings.Contains(fp.UserAgent, "Windows"):
			require.Equal(t, "Win32", fp.Platform)
		case strings.Contains(fp.UserAgent, "Macintosh"):
			require.Equal(t, "MacIntel", fp.Platform)
		case strings.Contains(fp.UserAgent, "Android"):
			require.Equal(t, "Linux armv8l", fp.Platform)
		}

		require.NotEmpty(t, fp.WebGLVendor)
		require.NotEmpty(t, fp.WebGLRenderer)
		require.NotEmpty(t, fp.Languages)
		require.NotEmpty(t, fp.Timezone)
		require.Greater(t, fp.HardwareCores, 0)
	}
}

func TestGenerateFingerprintVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[GenerateFingerprint().UserAgent] = true
	}
	require.Greater(t, len(seen), 1, "rotation must produce different user agents")
}
