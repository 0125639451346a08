package stealth

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Config controls the stealth browser session.
type Config struct {
	Enabled                  bool
	MaxParallel              int
	NavigationTimeout        time.Duration
	UserAgentRotation        bool
	FingerprintRandomization bool
	HumanBehavior            bool
	TimingRandomization      bool
	CanvasNoise              bool
	AudioNoise               bool
	WebRTCProtection         bool
	// ChallengeWait bounds how long a bot_detection page may be given to
	// self-resolve before the source is declared unavailable.
	ChallengeWait time.Duration
	ProxyURL      string
	// ProxyFallbackDirect retries a failed proxied navigation once without
	// the proxy. Block detections are not retried.
	ProxyFallbackDirect bool
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 2
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 15 * time.Second
	}
	if c.ChallengeWait <= 0 {
		c.ChallengeWait = 5 * time.Second
	}
	return c
}

// Page is a rendered page snapshot.
type Page struct {
	URL      string
	HTML     string
	Title    string
	Duration time.Duration
}

// Browser owns a shared Chrome allocator and renders pages through the
// stealth pipeline: fresh fingerprint per navigation, override hooks, human
// behavior simulation, and block detection.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	// direct is a proxy-less allocator, present only when the config asks
	// for direct fallback.
	direct       context.Context
	directCancel context.CancelFunc
	logger       *zap.Logger
	defaultFP    Fingerprint
}

// NewBrowser starts the allocator. Call Close when done.
func NewBrowser(cfg Config, logger *zap.Logger) (*Browser, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	proxied := opts
	if cfg.ProxyURL != "" {
		proxied = append(proxied, chromedp.ProxyServer(cfg.ProxyURL))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), proxied...)

	b := &Browser{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
		defaultFP:   GenerateFingerprint(),
	}
	if cfg.ProxyURL != "" && cfg.ProxyFallbackDirect {
		b.direct, b.directCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return b, nil
}

// Close cancels the allocator contexts.
func (b *Browser) Close() {
	b.allocCancel()
	if b.directCancel != nil {
		b.directCancel()
	}
}

// Render navigates to rawURL with a stealth-configured tab and returns the
// rendered DOM. A detected block is returned as a SourceBlocked error after
// the bounded challenge wait (bot_detection only); CAPTCHAs are never solved.
func (b *Browser) Render(ctx context.Context, rawURL string) (Page, error) {
	if err := b.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer b.release()

	page, err := b.renderTab(ctx, b.allocator, rawURL)
	if err != nil && b.direct != nil && discovery.KindOf(err) == discovery.KindBrowser {
		b.logger.Warn("proxied render failed, retrying direct",
			zap.String("url", rawURL), zap.Error(err))
		return b.renderTab(ctx, b.direct, rawURL)
	}
	return page, err
}

func (b *Browser) renderTab(ctx context.Context, alloc context.Context, rawURL string) (Page, error) {
	taskCtx, taskCancel := chromedp.NewContext(alloc)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer cancel()

	// Bridge the caller's cancellation into the tab context.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	fp := b.fingerprint()
	start := time.Now()

	var html, title string
	actions := Apply(fp, InjectOptions{
		FingerprintRandomization: b.cfg.FingerprintRandomization,
		CanvasNoise:              b.cfg.CanvasNoise,
		AudioNoise:               b.cfg.AudioNoise,
		WebRTCProtection:         b.cfg.WebRTCProtection,
	})
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Page{}, discovery.NewError(discovery.KindBrowser, fmt.Errorf("navigate %s: %w", rawURL, err))
	}

	if b.cfg.HumanBehavior {
		if err := SimulateHuman(taskCtx, HumanConfig{TimingEnabled: b.cfg.TimingRandomization}, fp.Viewport); err != nil {
			b.logger.Debug("human simulation interrupted", zap.String("url", rawURL), zap.Error(err))
		}
	}

	if err := chromedp.Run(taskCtx,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return Page{}, discovery.NewError(discovery.KindBrowser, fmt.Errorf("snapshot %s: %w", rawURL, err))
	}

	if block := DetectBlock(html, title); block.Blocked {
		if block.Kind == BlockBotDetection {
			html, title, block = b.awaitChallenge(taskCtx, html, title)
		}
		if block.Blocked {
			return Page{}, discovery.Errorf(discovery.KindSourceBlocked,
				"blocked by %s (confidence %.2f) at %s", block.Kind, block.Confidence, rawURL)
		}
	}

	return Page{URL: rawURL, HTML: html, Title: title, Duration: time.Since(start)}, nil
}

// awaitChallenge gives a self-resolving interstitial a bounded chance to
// clear, polling the DOM once a second.
func (b *Browser) awaitChallenge(ctx context.Context, html, title string) (string, string, BlockResult) {
	deadline := time.Now().Add(b.cfg.ChallengeWait)
	block := DetectBlock(html, title)
	for block.Blocked && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return html, title, block
		case <-time.After(time.Second):
		}
		if err := chromedp.Run(ctx,
			chromedp.Title(&title),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return html, title, block
		}
		block = DetectBlock(html, title)
	}
	return html, title, block
}

func (b *Browser) fingerprint() Fingerprint {
	if b.cfg.UserAgentRotation || b.cfg.FingerprintRandomization {
		return GenerateFingerprint()
	}
	return b.defaultFP
}

func (b *Browser) acquire(ctx context.Context) error {
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	select {
	case <-b.limiter:
	default:
	}
}
