package sources

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/stealth"
)

// DomainGate serializes requests per domain. Acquire blocks until the
// caller may proceed.
type DomainGate interface {
	Acquire(ctx context.Context, rawURL string) error
}

// Renderer produces a stealth-rendered page snapshot.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (stealth.Page, error)
}

// DirectoryConfig describes one plain-HTML listing site.
type DirectoryConfig struct {
	Descriptor discovery.DataSource
	BaseURL    string
	SearchPath string
	// QueryParam and LocationParam name the search URL parameters.
	QueryParam    string
	LocationParam string
	Rules         ExtractRules
	UserAgent     string
	// EmailSeed is the confidence attached to scraped emails.
	EmailSeed float64
}

// Directory scrapes a listing site with a plain HTTP collector. When block
// detection fires on the response, the fetch escalates once through the
// rendering path; without a renderer the source reports blocked.
type Directory struct {
	cfg       DirectoryConfig
	gate      DomainGate
	renderer  Renderer
	collector *colly.Collector
	logger    *zap.Logger
}

// NewDirectory builds a directory source. renderer may be nil.
func NewDirectory(cfg DirectoryConfig, gate DomainGate, renderer Renderer, logger *zap.Logger) *Directory {
	if cfg.QueryParam == "" {
		cfg.QueryParam = "q"
	}
	if cfg.EmailSeed == 0 {
		cfg.EmailSeed = 0.6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Directory{cfg: cfg, gate: gate, renderer: renderer, collector: c, logger: logger}
}

func (d *Directory) Descriptor() discovery.DataSource { return d.cfg.Descriptor }

func (d *Directory) BaseURL() string { return d.cfg.BaseURL }

func (d *Directory) Search(ctx context.Context, req discovery.SearchRequest) ([]discovery.BusinessCandidate, error) {
	target, err := d.searchURL(req)
	if err != nil {
		return nil, err
	}
	timeout := d.cfg.Descriptor.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.gate.Acquire(ctx, target); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", d.cfg.Descriptor.ID, err)
	}

	html, err := d.fetch(ctx, target, timeout)
	if err != nil {
		return nil, err
	}

	if block := stealth.DetectBlock(html, ""); block.Blocked {
		d.logger.Info("directory fetch blocked, escalating to rendered path",
			zap.String("source", d.cfg.Descriptor.ID),
			zap.String("kind", string(block.Kind)))
		html, err = d.renderFallback(ctx, target, block)
		if err != nil {
			return nil, err
		}
	}

	return extractCandidates(html, d.cfg.Rules, d.cfg.Descriptor.ID, d.cfg.EmailSeed)
}

func (d *Directory) fetch(ctx context.Context, target string, timeout time.Duration) (string, error) {
	collector := d.collector.Clone()
	collector.IgnoreRobotsTxt = false
	collector.SetRequestTimeout(timeout)
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()
	select {
	case <-ctx.Done():
		return "", discovery.NewError(discovery.KindTimeout, ctx.Err())
	case err := <-done:
		if err != nil {
			return "", discovery.NewError(discovery.KindConnection,
				fmt.Errorf("visit %s: %w", d.cfg.Descriptor.ID, err))
		}
		if fetchErr != nil {
			return "", discovery.NewError(discovery.KindConnection,
				fmt.Errorf("fetch %s: %w", d.cfg.Descriptor.ID, fetchErr))
		}
	}
	return string(body), nil
}

// renderFallback retries the blocked URL through the stealth browser. The
// second request hits the same domain, so the gate is acquired again.
func (d *Directory) renderFallback(ctx context.Context, target string, block stealth.BlockResult) (string, error) {
	if d.renderer == nil {
		return "", discovery.Errorf(discovery.KindSourceBlocked,
			"%s blocked (%s) and no renderer available", d.cfg.Descriptor.ID, block.Kind)
	}
	if err := d.gate.Acquire(ctx, target); err != nil {
		return "", fmt.Errorf("rate limit %s: %w", d.cfg.Descriptor.ID, err)
	}
	page, err := d.renderer.Render(ctx, target)
	if err != nil {
		return "", err
	}
	return page.HTML, nil
}

func (d *Directory) searchURL(req discovery.SearchRequest) (string, error) {
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %s: %w", d.cfg.BaseURL, err)
	}
	u = u.JoinPath(d.cfg.SearchPath)
	q := u.Query()
	q.Set(d.cfg.QueryParam, req.Query)
	if req.Location != "" && d.cfg.LocationParam != "" {
		q.Set(d.cfg.LocationParam, req.Location)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
