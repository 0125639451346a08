package stealth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectBlockKinds(t *testing.T) {
	cases := []struct {
		name    string
		content string
		title   string
		want    BlockKind
	}{
		{
			name:    "recaptcha widget",
			content: `<div class="g-recaptcha" data-sitekey="x"></div>`,
			want:    BlockCaptcha,
		},
		{
			name:    "hcaptcha challenge",
			content: `please solve the captcha below <iframe src="hcaptcha.com"></iframe>`,
			want:    BlockCaptcha,
		},
		{
			name:    "rate limited",
			content: "Too many requests. Rate limit exceeded, try again later.",
			want:    BlockRateLimit,
		},
		{
			name:    "access denied",
			content: "<h1>Access Denied</h1> You don't have permission to access this resource.",
			want:    BlockAccessDenied,
		},
		{
			name:  "cloudflare interstitial",
			title: "Just a moment...",
			want:  BlockBotDetection,
		},
		{
			name:    "unusual traffic",
			content: "Our systems have detected unusual traffic from your computer network.",
			want:    BlockBotDetection,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectBlock(tc.content, tc.title)
			require.True(t, got.Blocked)
			require.Equal(t, tc.want, got.Kind)
			require.GreaterOrEqual(t, got.Confidence, 0.5)
			require.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestDetectBlockCleanPage(t *testing.T) {
	got := DetectBlock("<html><body><h1>Acme Dental</h1><p>Call us today.</p></body></html>", "Acme Dental")
	require.False(t, got.Blocked)
	require.Equal(t, BlockNone, got.Kind)
}

func TestDetectBlockCaptchaWinsOverBotDetection(t *testing.T) {
	content := "Checking your browser before accessing. Please verify you are human: g-recaptcha"
	got := DetectBlock(content, "")
	require.Equal(t, BlockCaptcha, got.Kind, "captcha classification is the actionable one")
}

func TestDetectBlockMultipleMarkersRaiseConfidence(t *testing.T) {
	single := DetectBlock("recaptcha", "")
	double := DetectBlock("recaptcha verify you are human", "")
	require.Greater(t, double.Confidence, single.Confidence)
}
