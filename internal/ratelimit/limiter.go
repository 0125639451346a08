// Package ratelimit paces outbound page fetches per domain, honoring
// robots.txt crawl-delays and per-domain presets. Requests to one domain are
// strictly serialized FIFO; different domains proceed fully in parallel.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Backpressure errors. ErrQueueFull means the per-domain queue is at capacity
// and the caller should shed load; ErrWaitTimeout means the caller queued but
// its turn did not come in time. Both are distinguishable from an ordinary
// context timeout.
var (
	ErrQueueFull   = errors.New("rate limiter: domain queue full")
	ErrWaitTimeout = errors.New("rate limiter: wait timeout")
)

// DomainPreset overrides pacing for one root domain.
type DomainPreset struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
	// Aliases are subdomains collapsed onto this root (e.g. a maps
	// subdomain sharing its parent's budget).
	Aliases []string `mapstructure:"aliases"`
}

// Config controls the limiter.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	MinDelay          time.Duration
	// MaxDelay caps the effective gap so a hostile robots.txt crawl-delay
	// cannot stall a domain indefinitely. Zero means no cap.
	MaxDelay      time.Duration
	QueueSize     int
	WaitTimeout   time.Duration
	RespectRobots bool
	UserAgent     string
	Presets       map[string]DomainPreset
	// MirrorTimeout bounds best-effort mirror writes. Default 500ms.
	MirrorTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 20
	}
	if c.MinDelay <= 0 {
		c.MinDelay = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 90 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "leadscout-bot/1.0"
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = 500 * time.Millisecond
	}
	return c
}

type waiter struct {
	ctx       context.Context
	done      chan struct{}
	abandoned atomic.Bool
}

func (w *waiter) gone() bool {
	return w.abandoned.Load() || w.ctx.Err() != nil
}

type domainLimiter struct {
	domain   string
	queue    chan *waiter
	pacer    *rate.Limiter
	minDelay time.Duration

	mu           sync.Mutex
	lastRequest  time.Time
	requestCount int
	windowStart  time.Time
}

// Limiter is the per-domain pacing gate. State is best-effort mirrored to a
// shared store so concurrently running instances approximate one limiter;
// mirror failures never block the local decision.
type Limiter struct {
	cfg     Config
	robots  *crawlDelayCache
	mirror  discovery.MirrorStore
	logger  *zap.Logger
	aliases map[string]string

	mu      sync.Mutex
	domains map[string]*domainLimiter
	closed  bool
}

// New builds a Limiter. mirror may be nil.
func New(cfg Config, mirror discovery.MirrorStore, logger *zap.Logger) *Limiter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	aliases := make(map[string]string)
	for root, preset := range cfg.Presets {
		for _, alias := range preset.Aliases {
			aliases[strings.ToLower(alias)] = strings.ToLower(root)
		}
	}
	var robots *crawlDelayCache
	if cfg.RespectRobots {
		robots = newCrawlDelayCache(cfg.UserAgent, logger)
	}
	return &Limiter{
		cfg:     cfg,
		robots:  robots,
		mirror:  mirror,
		logger:  logger,
		aliases: aliases,
		domains: make(map[string]*domainLimiter),
	}
}

// Acquire blocks the caller until a request to rawURL's domain is permitted.
// The effective minimum spacing between grants is max(minDelay, crawlDelay);
// a 60-second window additionally caps requests per minute. Waiters are
// served FIFO per domain.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) error {
	if !l.cfg.Enabled {
		return nil
	}
	domain, err := l.NormalizeDomain(rawURL)
	if err != nil {
		return discovery.NewError(discovery.KindValidation, err)
	}
	dl := l.domainFor(domain)
	if dl == nil {
		return fmt.Errorf("rate limiter closed")
	}

	w := &waiter{ctx: ctx, done: make(chan struct{})}
	select {
	case dl.queue <- w:
	default:
		return discovery.NewError(discovery.KindBackpressure, fmt.Errorf("%w: %s", ErrQueueFull, domain))
	}

	timer := time.NewTimer(l.cfg.WaitTimeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.abandoned.Store(true)
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
		w.abandoned.Store(true)
		return discovery.NewError(discovery.KindBackpressure, fmt.Errorf("%w: %s", ErrWaitTimeout, domain))
	}
}

// NormalizeDomain lowers the hostname, strips a leading www, and collapses
// configured subdomain aliases onto their preset root.
func (l *Limiter) NormalizeDomain(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if root, ok := l.aliases[host]; ok {
		return root, nil
	}
	return host, nil
}

// State snapshots a domain's pacing state, primarily for observability.
func (l *Limiter) State(domain string) (discovery.RateLimitState, bool) {
	l.mu.Lock()
	dl, ok := l.domains[domain]
	l.mu.Unlock()
	if !ok {
		return discovery.RateLimitState{}, false
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	return discovery.RateLimitState{
		Domain:       domain,
		LastRequest:  dl.lastRequest,
		RequestCount: dl.requestCount,
		WindowStart:  dl.windowStart,
		CrawlDelay:   l.crawlDelay(domain),
	}, true
}

// Reset tears down all per-domain state so tests can reuse a limiter.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, dl := range l.domains {
		close(dl.queue)
	}
	l.domains = make(map[string]*domainLimiter)
	if l.robots != nil {
		l.robots.reset()
	}
}

// Close stops all domain servers.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for _, dl := range l.domains {
		close(dl.queue)
	}
	l.domains = nil
}

func (l *Limiter) domainFor(domain string) *domainLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if dl, ok := l.domains[domain]; ok {
		return dl
	}
	rpm := l.cfg.RequestsPerMinute
	minDelay := l.cfg.MinDelay
	if preset, ok := l.cfg.Presets[domain]; ok {
		if preset.RequestsPerMinute > 0 {
			rpm = preset.RequestsPerMinute
		}
		if preset.MinDelay > 0 {
			minDelay = preset.MinDelay
		}
	}
	dl := &domainLimiter{
		domain:   domain,
		queue:    make(chan *waiter, l.cfg.QueueSize),
		pacer:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		minDelay: minDelay,
	}
	l.seedFromMirror(dl)
	go l.serve(dl)
	l.domains[domain] = dl
	return dl
}

// serve grants queued waiters one at a time, enforcing the pacing gap.
func (l *Limiter) serve(dl *domainLimiter) {
	for w := range dl.queue {
		if w.gone() {
			continue
		}
		l.pause(w.ctx, l.gap(dl))
		if err := dl.pacer.Wait(w.ctx); err != nil {
			continue
		}
		if w.gone() {
			continue
		}
		l.grant(dl)
		close(w.done)
	}
}

// gap returns how long to wait before the next grant for this domain.
func (l *Limiter) gap(dl *domainLimiter) time.Duration {
	delay := dl.minDelay
	if cd := l.crawlDelay(dl.domain); cd > delay {
		delay = cd
	}
	if l.cfg.MaxDelay > 0 && delay > l.cfg.MaxDelay {
		delay = l.cfg.MaxDelay
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.lastRequest.IsZero() {
		return 0
	}
	elapsed := time.Since(dl.lastRequest)
	if elapsed >= delay {
		return 0
	}
	return delay - elapsed
}

func (l *Limiter) grant(dl *domainLimiter) {
	now := time.Now()
	dl.mu.Lock()
	if now.Sub(dl.windowStart) >= time.Minute {
		dl.windowStart = now
		dl.requestCount = 0
	}
	dl.requestCount++
	dl.lastRequest = now
	state := discovery.RateLimitState{
		Domain:       dl.domain,
		LastRequest:  dl.lastRequest,
		RequestCount: dl.requestCount,
		WindowStart:  dl.windowStart,
	}
	dl.mu.Unlock()
	l.mirrorState(state)
}

func (l *Limiter) crawlDelay(domain string) time.Duration {
	if l.robots == nil {
		return 0
	}
	return l.robots.delayFor(domain)
}

func (l *Limiter) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (l *Limiter) seedFromMirror(dl *domainLimiter) {
	if l.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.MirrorTimeout)
	defer cancel()
	state, ok, err := l.mirror.GetRateLimitState(ctx, dl.domain)
	if err != nil || !ok {
		return
	}
	dl.mu.Lock()
	dl.lastRequest = state.LastRequest
	dl.requestCount = state.RequestCount
	dl.windowStart = state.WindowStart
	dl.mu.Unlock()
}

func (l *Limiter) mirrorState(state discovery.RateLimitState) {
	if l.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.MirrorTimeout)
	defer cancel()
	if err := l.mirror.PutRateLimitState(ctx, state); err != nil {
		l.logger.Debug("rate limit mirror write failed",
			zap.String("domain", state.Domain),
			zap.Error(err),
		)
	}
}
