package stealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyProducesFixedHookSet(t *testing.T) {
	fp := GenerateFingerprint()
	actions := Apply(fp, InjectOptions{
		FingerprintRandomization: true,
		CanvasNoise:              true,
		AudioNoise:               true,
		WebRTCProtection:         true,
	})
	// user agent, device metrics, timezone, bootstrap script
	require.Len(t, actions, 4)
}

func TestBootstrapScriptIsDataDriven(t *testing.T) {
	// The override hooks are a fixed function body; configuration reaches it
	// only as a JSON argument. Guard against drifting back to interpolated
	// code generation.
	require.True(t, strings.HasPrefix(bootstrapScript, "(function(cfg)"))
	require.NotContains(t, bootstrapScript, "%s")
	require.NotContains(t, bootstrapScript, "%d")
	require.Contains(t, bootstrapScript, "Math.random()", "noise must be fresh per call, not a fixed offset")
}

func TestHumanBezierPathBounded(t *testing.T) {
	start := point{x: 10, y: 10}
	end := point{x: 500, y: 400}
	path := bezierPath(start, end, 30)
	require.Len(t, path, 30)

	last := path[len(path)-1]
	require.InDelta(t, end.x, last.x, 5, "path must terminate near the target")
	require.InDelta(t, end.y, last.y, 5)

	for _, p := range path {
		require.GreaterOrEqual(t, p.x, -5.0)
		require.GreaterOrEqual(t, p.y, -5.0)
		require.LessOrEqual(t, p.x, 510.0)
		require.LessOrEqual(t, p.y, 410.0)
	}
}
