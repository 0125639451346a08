package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// RenderedConfig describes a JS-heavy site reachable only through the
// stealth browser.
type RenderedConfig struct {
	Descriptor    discovery.DataSource
	BaseURL       string
	SearchPath    string
	QueryParam    string
	LocationParam string
	Rules         ExtractRules
	EmailSeed     float64
}

// Rendered dispatches through the stealth browser: rate limiter first, then
// a full navigation with fingerprinting and human simulation.
type Rendered struct {
	cfg      RenderedConfig
	gate     DomainGate
	renderer Renderer
	logger   *zap.Logger
}

// NewRendered builds a rendered source.
func NewRendered(cfg RenderedConfig, gate DomainGate, renderer Renderer, logger *zap.Logger) *Rendered {
	if cfg.QueryParam == "" {
		cfg.QueryParam = "q"
	}
	if cfg.EmailSeed == 0 {
		cfg.EmailSeed = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rendered{cfg: cfg, gate: gate, renderer: renderer, logger: logger}
}

func (r *Rendered) Descriptor() discovery.DataSource { return r.cfg.Descriptor }

func (r *Rendered) BaseURL() string { return r.cfg.BaseURL }

func (r *Rendered) Search(ctx context.Context, req discovery.SearchRequest) ([]discovery.BusinessCandidate, error) {
	if r.renderer == nil {
		return nil, discovery.Errorf(discovery.KindBrowser,
			"%s requires the stealth browser, which is disabled", r.cfg.Descriptor.ID)
	}
	target, err := r.searchURL(req)
	if err != nil {
		return nil, err
	}
	timeout := r.cfg.Descriptor.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.gate.Acquire(ctx, target); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", r.cfg.Descriptor.ID, err)
	}

	page, err := r.renderer.Render(ctx, target)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("rendered search complete",
		zap.String("source", r.cfg.Descriptor.ID),
		zap.Duration("render", page.Duration))

	return extractCandidates(page.HTML, r.cfg.Rules, r.cfg.Descriptor.ID, r.cfg.EmailSeed)
}

func (r *Rendered) searchURL(req discovery.SearchRequest) (string, error) {
	u, err := url.Parse(r.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %s: %w", r.cfg.BaseURL, err)
	}
	u = u.JoinPath(r.cfg.SearchPath)
	q := u.Query()
	query := req.Query
	if req.Location != "" && r.cfg.LocationParam == "" {
		query = query + " " + req.Location
	}
	q.Set(r.cfg.QueryParam, query)
	if req.Location != "" && r.cfg.LocationParam != "" {
		q.Set(r.cfg.LocationParam, req.Location)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
