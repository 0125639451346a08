// Package stealth provides the anti-detection browsing layer used by sources
// that require rendered-page access.
package stealth

import (
	"math/rand/v2"
)

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fingerprint is the structured override configuration applied to a page
// before navigation. All fields are drawn together from one internally
// consistent profile: a mobile user agent always pairs with a mobile viewport
// and touch capability.
type Fingerprint struct {
	UserAgent     string   `json:"userAgent"`
	Platform      string   `json:"platform"`
	Viewport      Viewport `json:"viewport"`
	Locale        string   `json:"locale"`
	Timezone      string   `json:"timezone"`
	Languages     []string `json:"languages"`
	WebGLVendor   string   `json:"webglVendor"`
	WebGLRenderer string   `json:"webglRenderer"`
	HardwareCores int      `json:"hardwareConcurrency"`
	DeviceMemory  int      `json:"deviceMemory"`
	IsMobile      bool     `json:"isMobile"`
	TouchPoints   int      `json:"maxTouchPoints"`
}

type profile struct {
	userAgents []string
	platform   string
	viewports  []Viewport
	webgl      [][2]string
	mobile     bool
	touch      int
}

// Hardware profiles are kept jointly consistent: user agent, platform,
// viewport, and WebGL stack all come from the same pool entry.
var profiles = []profile{
	{
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		},
		platform: "Win32",
		viewports: []Viewport{
			{1920, 1080}, {1536, 864}, {1366, 768}, {2560, 1440},
		},
		webgl: [][2]string{
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 6600 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		},
	},
	{
		userAgents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		},
		platform: "MacIntel",
		viewports: []Viewport{
			{1440, 900}, {1680, 1050}, {2560, 1600},
		},
		webgl: [][2]string{
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M2, OpenGL 4.1)"},
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M1 Pro, OpenGL 4.1)"},
		},
	},
	{
		userAgents: []string{
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Mobile Safari/537.36",
		},
		platform: "Linux armv8l",
		viewports: []Viewport{
			{412, 915}, {384, 854}, {360, 800},
		},
		webgl: [][2]string{
			{"Qualcomm", "Adreno (TM) 740"},
			{"ARM", "Mali-G715-Immortalis MC11"},
		},
		mobile: true,
		touch:  5,
	},
}

var locales = []struct {
	locale    string
	languages []string
	timezone  string
}{
	{"en-US", []string{"en-US", "en"}, "America/New_York"},
	{"en-US", []string{"en-US", "en"}, "America/Chicago"},
	{"en-US", []string{"en-US", "en"}, "America/Los_Angeles"},
	{"en-US", []string{"en-US", "en"}, "America/Denver"},
}

// GenerateFingerprint draws a jointly consistent fingerprint from the
// profile pools.
func GenerateFingerprint() Fingerprint {
	p := profiles[rand.IntN(len(profiles))]
	loc := locales[rand.IntN(len(locales))]
	webgl := p.webgl[rand.IntN(len(p.webgl))]
	cores := []int{4, 8, 12, 16}[rand.IntN(4)]
	memory := []int{4, 8, 16}[rand.IntN(3)]
	if p.mobile {
		cores = []int{4, 8}[rand.IntN(2)]
		memory = []int{4, 8}[rand.IntN(2)]
	}
	return Fingerprint{
		UserAgent:     p.userAgents[rand.IntN(len(p.userAgents))],
		Platform:      p.platform,
		Viewport:      p.viewports[rand.IntN(len(p.viewports))],
		Locale:        loc.locale,
		Timezone:      loc.timezone,
		Languages:     append([]string(nil), loc.languages...),
		WebGLVendor:   webgl[0],
		WebGLRenderer: webgl[1],
		HardwareCores: cores,
		DeviceMemory:  memory,
		IsMobile:      p.mobile,
		TouchPoints:   p.touch,
	}
}
