package ratelimit

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const (
	robotsRefreshInterval = time.Hour
	robotsMaxBody         = 1 << 20
	robotsFetchTimeout    = 10 * time.Second
)

type crawlDelayEntry struct {
	delay     time.Duration
	fetchedAt time.Time
}

// crawlDelayCache fetches each domain's robots.txt at most once per hour and
// caches the crawl-delay of the group matching the configured user agent
// (falling back to the wildcard group). Fetch failures cache a zero delay so
// a flaky robots endpoint cannot stall the limiter.
type crawlDelayCache struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]crawlDelayEntry
	// fetchURL is swapped in tests to point at a local server.
	fetchURL func(domain string) string
}

func newCrawlDelayCache(userAgent string, logger *zap.Logger) *crawlDelayCache {
	return &crawlDelayCache{
		client:    &http.Client{Timeout: robotsFetchTimeout},
		userAgent: userAgent,
		logger:    logger,
		entries:   make(map[string]crawlDelayEntry),
		fetchURL: func(domain string) string {
			return fmt.Sprintf("https://%s/robots.txt", domain)
		},
	}
}

func (c *crawlDelayCache) delayFor(domain string) time.Duration {
	domain = strings.ToLower(domain)
	c.mu.Lock()
	entry, ok := c.entries[domain]
	if ok && time.Since(entry.fetchedAt) < robotsRefreshInterval {
		c.mu.Unlock()
		return entry.delay
	}
	c.mu.Unlock()

	delay := c.fetch(domain)
	c.mu.Lock()
	c.entries[domain] = crawlDelayEntry{delay: delay, fetchedAt: time.Now()}
	c.mu.Unlock()
	return delay
}

func (c *crawlDelayCache) fetch(domain string) time.Duration {
	req, err := http.NewRequest(http.MethodGet, c.fetchURL(domain), nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("robots fetch failed; no crawl delay", zap.String("domain", domain), zap.Error(err))
		return 0
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBody))
	if err != nil {
		return 0
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		c.logger.Debug("robots parse failed", zap.String("domain", domain), zap.Error(err))
		return 0
	}
	group := data.FindGroup(c.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (c *crawlDelayCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]crawlDelayEntry)
}
