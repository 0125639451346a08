package emailpattern

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/smtp"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	probeTimeout   = 10 * time.Second
	probeLocalLen  = 14
	probeAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	catchAllMaxAge = 24 * time.Hour
)

// ProberConfig sets the identity the SMTP probe presents. Zero values get
// the leadscout defaults.
type ProberConfig struct {
	// HelloDomain is the HELO/EHLO identity.
	HelloDomain string
	// FromAddress is the MAIL FROM sender.
	FromAddress string
}

func (c ProberConfig) withDefaults() ProberConfig {
	if c.HelloDomain == "" {
		c.HelloDomain = "leadscout.io"
	}
	if c.FromAddress == "" {
		c.FromAddress = "verify@leadscout.io"
	}
	return c
}

// CatchAllResult caches one domain's probe outcome.
type CatchAllResult struct {
	Domain    string
	CatchAll  bool
	CheckedAt time.Time
}

// rcptProbe attempts RCPT TO for addr and reports acceptance. Abstracted so
// tests can avoid the network.
type rcptProbe func(ctx context.Context, domain, addr string) (accepted bool, err error)

// CatchAllProber detects domains that accept mail for any local part, which
// makes SMTP acceptance worthless as evidence of a real mailbox. Results are
// cached per domain; the cache is instance-local and resettable.
type CatchAllProber struct {
	cfg    ProberConfig
	probe  rcptProbe
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]CatchAllResult
}

// NewCatchAllProber builds a prober using a real SMTP dial.
func NewCatchAllProber(cfg ProberConfig, logger *zap.Logger) *CatchAllProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &CatchAllProber{
		cfg:    cfg.withDefaults(),
		logger: logger,
		cache:  make(map[string]CatchAllResult),
	}
	p.probe = p.smtpRcptProbe
	return p
}

// IsCatchAll probes domain with a random nonexistent local part. Acceptance
// of that address proves the domain is catch-all. Probe errors report false:
// an unreachable mail host must not depress every guessed email's ceiling.
func (p *CatchAllProber) IsCatchAll(ctx context.Context, domain string) bool {
	p.mu.Lock()
	cached, ok := p.cache[domain]
	p.mu.Unlock()
	if ok && time.Since(cached.CheckedAt) < catchAllMaxAge {
		return cached.CatchAll
	}

	addr := randomLocalPart() + "@" + domain
	accepted, err := p.probe(ctx, domain, addr)
	if err != nil {
		p.logger.Debug("catch-all probe failed", zap.String("domain", domain), zap.Error(err))
		accepted = false
	}

	p.mu.Lock()
	p.cache[domain] = CatchAllResult{Domain: domain, CatchAll: accepted, CheckedAt: time.Now()}
	p.mu.Unlock()
	return accepted
}

// Reset drops the probe cache.
func (p *CatchAllProber) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]CatchAllResult)
}

func randomLocalPart() string {
	b := make([]byte, probeLocalLen)
	for i := range b {
		b[i] = probeAlphabet[rand.IntN(len(probeAlphabet))]
	}
	return string(b)
}

// smtpRcptProbe resolves the domain's best MX host and runs HELO/MAIL/RCPT
// for addr over a raw SMTP session.
func (p *CatchAllProber) smtpRcptProbe(ctx context.Context, domain, addr string) (bool, error) {
	mxHost, err := lookupMX(ctx, domain)
	if err != nil {
		return false, err
	}

	dialer := &net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(mxHost, "25"))
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", mxHost, err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(probeTimeout))
	}

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		return false, fmt.Errorf("smtp handshake %s: %w", mxHost, err)
	}
	defer func() { _ = client.Quit() }()

	if err := client.Hello(p.cfg.HelloDomain); err != nil {
		return false, fmt.Errorf("helo: %w", err)
	}
	if err := client.Mail(p.cfg.FromAddress); err != nil {
		return false, fmt.Errorf("mail from: %w", err)
	}
	// A rejection here is the expected outcome for a non-catch-all domain,
	// not an error.
	if err := client.Rcpt(addr); err != nil {
		return false, nil
	}
	return true, nil
}

func lookupMX(ctx context.Context, domain string) (string, error) {
	records, err := net.DefaultResolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return "", fmt.Errorf("no mx for %s: %w", domain, err)
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.Pref < best.Pref {
			best = r
		}
	}
	return best.Host, nil
}

// HasMX reports whether the domain publishes any MX record, a cheap
// verification signal used by the confidence scorer.
func HasMX(ctx context.Context, domain string) bool {
	records, err := net.DefaultResolver.LookupMX(ctx, domain)
	return err == nil && len(records) > 0
}
