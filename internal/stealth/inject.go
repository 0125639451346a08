package stealth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// InjectOptions toggles the individual override hooks.
type InjectOptions struct {
	FingerprintRandomization bool
	CanvasNoise              bool
	AudioNoise               bool
	WebRTCProtection         bool
}

// bootstrapScript is the fixed, reviewable set of override hooks. It is a
// single JS function taking one configuration object; the Go side only ever
// supplies data (JSON), never code. Canvas and audio reads receive fresh
// bounded noise on every call so repeated reads do not converge on a new
// stable fingerprint.
const bootstrapScript = `(function(cfg) {
	'use strict';
	const define = (obj, name, value) => {
		try {
			Object.defineProperty(obj, name, { get: () => value, configurable: true });
		} catch (e) { /* already locked down */ }
	};

	define(navigator, 'webdriver', undefined);
	define(navigator, 'platform', cfg.platform);
	define(navigator, 'languages', Object.freeze(cfg.languages.slice()));
	define(navigator, 'hardwareConcurrency', cfg.hardwareConcurrency);
	define(navigator, 'deviceMemory', cfg.deviceMemory);
	define(navigator, 'maxTouchPoints', cfg.maxTouchPoints);

	if (cfg.webgl) {
		const patchGL = (proto) => {
			const orig = proto.getParameter;
			proto.getParameter = function(param) {
				if (param === 37445) { return cfg.webgl.vendor; }
				if (param === 37446) { return cfg.webgl.renderer; }
				return orig.call(this, param);
			};
		};
		if (window.WebGLRenderingContext) { patchGL(WebGLRenderingContext.prototype); }
		if (window.WebGL2RenderingContext) { patchGL(WebGL2RenderingContext.prototype); }
	}

	if (cfg.canvasNoise) {
		const noisePixels = (data) => {
			for (let i = 0; i < data.length; i += 4) {
				if (Math.random() < 0.05) {
					const delta = (Math.random() < 0.5 ? -1 : 1);
					data[i] = Math.max(0, Math.min(255, data[i] + delta));
				}
			}
		};
		const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
		CanvasRenderingContext2D.prototype.getImageData = function(...args) {
			const image = origGetImageData.apply(this, args);
			noisePixels(image.data);
			return image;
		};
		const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
		HTMLCanvasElement.prototype.toDataURL = function(...args) {
			const ctx = this.getContext('2d');
			if (ctx && this.width > 0 && this.height > 0) {
				const image = origGetImageData.call(ctx, 0, 0, this.width, this.height);
				noisePixels(image.data);
				ctx.putImageData(image, 0, 0);
			}
			return origToDataURL.apply(this, args);
		};
	}

	if (cfg.audioNoise && window.AudioBuffer) {
		const origGetChannelData = AudioBuffer.prototype.getChannelData;
		AudioBuffer.prototype.getChannelData = function(...args) {
			const data = origGetChannelData.apply(this, args);
			for (let i = 0; i < data.length; i += 100) {
				data[i] = data[i] + (Math.random() * 2 - 1) * 1e-7;
			}
			return data;
		};
	}

	if (cfg.disableWebRTC) {
		const block = function() { throw new Error('not supported'); };
		if (window.RTCPeerConnection) { window.RTCPeerConnection = block; }
		if (window.webkitRTCPeerConnection) { window.webkitRTCPeerConnection = block; }
	}
})`

// scriptConfig is the wire form of the bootstrap configuration object.
type scriptConfig struct {
	Platform            string   `json:"platform"`
	Languages           []string `json:"languages"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        int      `json:"deviceMemory"`
	MaxTouchPoints      int      `json:"maxTouchPoints"`
	WebGL               *struct {
		Vendor   string `json:"vendor"`
		Renderer string `json:"renderer"`
	} `json:"webgl,omitempty"`
	CanvasNoise   bool `json:"canvasNoise"`
	AudioNoise    bool `json:"audioNoise"`
	DisableWebRTC bool `json:"disableWebRTC"`
}

// Apply returns the chromedp actions that install the fingerprint on a fresh
// page: user-agent/metrics via CDP emulation, everything else via the fixed
// bootstrap script evaluated before any document script runs.
func Apply(fp Fingerprint, opts InjectOptions) []chromedp.Action {
	cfg := scriptConfig{
		Platform:            fp.Platform,
		Languages:           fp.Languages,
		HardwareConcurrency: fp.HardwareCores,
		DeviceMemory:        fp.DeviceMemory,
		MaxTouchPoints:      fp.TouchPoints,
		CanvasNoise:         opts.CanvasNoise,
		AudioNoise:          opts.AudioNoise,
		DisableWebRTC:       opts.WebRTCProtection,
	}
	if opts.FingerprintRandomization {
		cfg.WebGL = &struct {
			Vendor   string `json:"vendor"`
			Renderer string `json:"renderer"`
		}{Vendor: fp.WebGLVendor, Renderer: fp.WebGLRenderer}
	}

	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			ua := emulation.SetUserAgentOverride(fp.UserAgent)
			if fp.Locale != "" {
				ua = ua.WithAcceptLanguage(fp.Locale)
			}
			if fp.Platform != "" {
				ua = ua.WithPlatform(fp.Platform)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			err := emulation.SetDeviceMetricsOverride(
				int64(fp.Viewport.Width), int64(fp.Viewport.Height), 1.0, fp.IsMobile,
			).Do(ctx)
			if err != nil {
				return fmt.Errorf("set device metrics: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if fp.Timezone == "" {
				return nil
			}
			if err := emulation.SetTimezoneOverride(fp.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			payload, err := json.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal fingerprint config: %w", err)
			}
			script := bootstrapScript + "(" + string(payload) + ");"
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("install bootstrap script: %w", err)
			}
			return nil
		}),
	}
}
