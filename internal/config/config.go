// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Workers   WorkersConfig             `mapstructure:"workers"`
	Retry     RetryConfig               `mapstructure:"retry"`
	RateLimit RateLimitConfig           `mapstructure:"ratelimit"`
	Stealth   StealthConfig             `mapstructure:"stealth"`
	Discovery DiscoveryConfig           `mapstructure:"discovery"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	DB        DBConfig                  `mapstructure:"db"`
	PubSub    PubSubConfig              `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkersConfig governs the dispatcher pool and queue depth.
type WorkersConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// RetryConfig tunes the shared retry policy for source calls.
type RetryConfig struct {
	MaxRetries       int `mapstructure:"max_retries"`
	BaseDelayMs      int `mapstructure:"base_delay_ms"`
	MaxDelayMs       int `mapstructure:"max_delay_ms"`
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	BreakerCooldownS int `mapstructure:"breaker_cooldown_seconds"`
}

// RateLimitConfig paces scraping per target domain.
type RateLimitConfig struct {
	Enabled           bool                       `mapstructure:"enabled"`
	RequestsPerMinute int                        `mapstructure:"requests_per_minute"`
	MinDelayMs        int                        `mapstructure:"min_delay_ms"`
	MaxDelayMs        int                        `mapstructure:"max_delay_ms"`
	QueueSize         int                        `mapstructure:"queue_size"`
	WaitTimeoutMs     int                        `mapstructure:"wait_timeout_ms"`
	RespectRobots     bool                       `mapstructure:"respect_robots"`
	UserAgent         string                     `mapstructure:"user_agent"`
	Presets           map[string]RateLimitPreset `mapstructure:"presets"`
}

// RateLimitPreset overrides pacing for one root domain. Aliases are
// subdomains that share the root's budget.
type RateLimitPreset struct {
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
	MinDelayMs        int      `mapstructure:"min_delay_ms"`
	Aliases           []string `mapstructure:"aliases"`
}

// StealthConfig controls the rendered-page browser sessions.
type StealthConfig struct {
	Enabled                  bool   `mapstructure:"enabled"`
	MaxParallel              int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds        int    `mapstructure:"nav_timeout_seconds"`
	UserAgentRotation        bool   `mapstructure:"user_agent_rotation"`
	FingerprintRandomization bool   `mapstructure:"fingerprint_randomization"`
	HumanBehavior            bool   `mapstructure:"human_behavior"`
	TimingRandomization      bool   `mapstructure:"timing_randomization"`
	CanvasNoise              bool   `mapstructure:"canvas_noise"`
	AudioNoise               bool   `mapstructure:"audio_noise"`
	WebRTCProtection         bool        `mapstructure:"webrtc_protection"`
	Proxy                    ProxyConfig `mapstructure:"proxy"`
}

// ProxyConfig routes rendered-page traffic through an upstream proxy.
// Rotation and session stickiness are delegated to the gateway behind URL.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// FallbackDirect retries a failed proxied navigation once without the
	// proxy instead of failing the render.
	FallbackDirect bool `mapstructure:"fallback_direct"`
}

// DiscoveryConfig holds run-level defaults and the SMTP probe settings.
type DiscoveryConfig struct {
	MaxResultsDefault int `mapstructure:"max_results_default"`
	// PreferAPIs promotes API-backed sources ahead of scraped ones in every
	// run plan.
	PreferAPIs bool            `mapstructure:"prefer_apis"`
	EmailProbe SMTPProbeConfig `mapstructure:"email_probe"`
}

// SMTPProbeConfig configures catch-all detection.
type SMTPProbeConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	HelloDomain string `mapstructure:"hello_domain"`
	FromAddress string `mapstructure:"from_address"`
}

// ProviderConfig describes one API provider's key pool and endpoint.
type ProviderConfig struct {
	Keys       []string `mapstructure:"keys"`
	DailyLimit int      `mapstructure:"daily_limit"`
	Endpoint   string   `mapstructure:"endpoint"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// stores.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// PubSubConfig names the queue and notification resources. An empty project
// selects the in-memory queue.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	RunTopic        string `mapstructure:"run_topic"`
	RunSubscription string `mapstructure:"run_subscription"`
	CompletionTopic string `mapstructure:"completion_topic"`
	AlertTopic      string `mapstructure:"alert_topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_depth", 64)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_ms", 250)
	v.SetDefault("retry.max_delay_ms", 5000)
	v.SetDefault("retry.breaker_threshold", 5)
	v.SetDefault("retry.breaker_cooldown_seconds", 30)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 20)
	v.SetDefault("ratelimit.min_delay_ms", 1000)
	v.SetDefault("ratelimit.max_delay_ms", 30000)
	v.SetDefault("ratelimit.queue_size", 32)
	v.SetDefault("ratelimit.wait_timeout_ms", 30000)
	v.SetDefault("ratelimit.respect_robots", true)
	v.SetDefault("ratelimit.user_agent", "leadscout/0.1")
	v.SetDefault("stealth.enabled", false)
	v.SetDefault("stealth.max_parallel", 2)
	v.SetDefault("stealth.nav_timeout_seconds", 25)
	v.SetDefault("stealth.user_agent_rotation", true)
	v.SetDefault("stealth.fingerprint_randomization", true)
	v.SetDefault("stealth.human_behavior", true)
	v.SetDefault("stealth.timing_randomization", true)
	v.SetDefault("stealth.canvas_noise", true)
	v.SetDefault("stealth.audio_noise", true)
	v.SetDefault("stealth.webrtc_protection", true)
	v.SetDefault("stealth.proxy.enabled", false)
	v.SetDefault("stealth.proxy.fallback_direct", false)
	v.SetDefault("discovery.max_results_default", 50)
	v.SetDefault("discovery.prefer_apis", false)
	v.SetDefault("discovery.email_probe.enabled", false)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
	if c.Stealth.Enabled && c.Stealth.MaxParallel <= 0 {
		return fmt.Errorf("stealth.max_parallel must be > 0 when stealth is enabled")
	}
	if c.Stealth.Proxy.Enabled && c.Stealth.Proxy.URL == "" {
		return fmt.Errorf("stealth.proxy.url must be set when the proxy is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for name, p := range c.Providers {
		if len(p.Keys) == 0 {
			return fmt.Errorf("providers.%s.keys must not be empty", name)
		}
		if p.DailyLimit <= 0 {
			return fmt.Errorf("providers.%s.daily_limit must be > 0", name)
		}
	}
	return nil
}

// ServerTimeout converts the configured request timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
