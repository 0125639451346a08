package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/keypool"
	"github.com/leadscout/leadscout/internal/retry"
)

const apiResponseLimit = 4 << 20

// KeyProvider is the slice of the key pool an API source needs.
type KeyProvider interface {
	NextKey(provider string) (string, bool)
	RecordUsage(ctx context.Context, provider, key string, n int)
}

var _ KeyProvider = (*keypool.Pool)(nil)

// apiEnvelope is the wire shape shared by the JSON search providers we
// integrate: a flat result list under "results".
type apiEnvelope struct {
	Results []apiResult `json:"results"`
}

type apiResult struct {
	Name        string   `json:"name"`
	Website     string   `json:"website"`
	Phone       string   `json:"phone"`
	Address     string   `json:"address"`
	Rating      *float64 `json:"rating"`
	ReviewCount int      `json:"review_count"`
	Email       string   `json:"email"`
}

// APIConfig describes one JSON search API.
type APIConfig struct {
	Descriptor discovery.DataSource
	// Endpoint receives query, location, and key as URL parameters.
	Endpoint string
	// KeyParam names the query parameter carrying the API key. Defaults to
	// "key".
	KeyParam string
	// EmailSeed is the confidence attached to emails this provider returns.
	EmailSeed float64
}

// API dispatches searches to a JSON API through the key pool and the retry
// policy. A provider with no key under quota is skipped without an attempt.
type API struct {
	cfg    APIConfig
	keys   KeyProvider
	client *http.Client
	logger *zap.Logger
}

// NewAPI builds an API source.
func NewAPI(cfg APIConfig, keys KeyProvider, client *http.Client, logger *zap.Logger) *API {
	if cfg.KeyParam == "" {
		cfg.KeyParam = "key"
	}
	if cfg.EmailSeed == 0 {
		cfg.EmailSeed = 0.8
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{cfg: cfg, keys: keys, client: client, logger: logger}
}

func (a *API) Descriptor() discovery.DataSource { return a.cfg.Descriptor }

func (a *API) Provider() string { return a.cfg.Descriptor.Provider }

// Search issues one API call per invocation. Rate-limit responses are not
// retried; they surface so the orchestrator falls through to other sources.
func (a *API) Search(ctx context.Context, req discovery.SearchRequest) ([]discovery.BusinessCandidate, error) {
	key, ok := a.keys.NextKey(a.Provider())
	if !ok {
		return nil, discovery.Errorf(discovery.KindQuotaExceeded,
			"provider %s has no key under quota", a.Provider())
	}

	timeout := a.cfg.Descriptor.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidates, err := retry.Execute(ctx, func(ctx context.Context) ([]discovery.BusinessCandidate, error) {
		return a.call(ctx, key, req)
	}, retry.Options{MaxRetries: 2})
	if err != nil {
		return nil, err
	}
	a.keys.RecordUsage(ctx, a.Provider(), key, 1)
	return candidates, nil
}

func (a *API) call(ctx context.Context, key string, req discovery.SearchRequest) ([]discovery.BusinessCandidate, error) {
	endpoint, err := a.buildURL(key, req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, discovery.NewError(discovery.KindConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, discovery.Errorf(discovery.KindRateLimit,
			"provider %s returned 429", a.Provider())
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, discovery.Errorf(discovery.KindQuotaExceeded,
			"provider %s rejected key: status %d", a.Provider(), resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, discovery.Errorf(discovery.KindConnection,
			"provider %s: status %d", a.Provider(), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, discovery.Errorf(discovery.KindValidation,
			"provider %s: status %d", a.Provider(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, apiResponseLimit))
	if err != nil {
		return nil, discovery.NewError(discovery.KindConnection, err)
	}
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", a.Provider(), err)
	}

	candidates := make([]discovery.BusinessCandidate, 0, len(envelope.Results))
	for _, r := range envelope.Results {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		c := discovery.BusinessCandidate{
			Name:        name,
			Website:     strings.TrimSpace(r.Website),
			Phone:       strings.TrimSpace(r.Phone),
			Address:     strings.TrimSpace(r.Address),
			Rating:      r.Rating,
			ReviewCount: r.ReviewCount,
			SourceID:    a.cfg.Descriptor.ID,
		}
		if email := strings.ToLower(strings.TrimSpace(r.Email)); email != "" {
			c.Email = email
			c.Seed = a.cfg.EmailSeed
		}
		candidates = append(candidates, c)
	}
	a.logger.Debug("api search complete",
		zap.String("source", a.cfg.Descriptor.ID),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (a *API) buildURL(key string, req discovery.SearchRequest) (string, error) {
	u, err := url.Parse(a.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %s: %w", a.cfg.Endpoint, err)
	}
	q := u.Query()
	q.Set("query", req.Query)
	if req.Location != "" {
		q.Set("location", req.Location)
	}
	q.Set(a.cfg.KeyParam, key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
