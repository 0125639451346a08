// Package server assembles the discovery service from its parts.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/api"
	"github.com/leadscout/leadscout/internal/clock/system"
	"github.com/leadscout/leadscout/internal/confidence"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/dispatcher"
	"github.com/leadscout/leadscout/internal/emailpattern"
	"github.com/leadscout/leadscout/internal/hash/sha256"
	"github.com/leadscout/leadscout/internal/id/uuid"
	"github.com/leadscout/leadscout/internal/keypool"
	"github.com/leadscout/leadscout/internal/logging"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/orchestrator"
	"github.com/leadscout/leadscout/internal/progress"
	progresssinks "github.com/leadscout/leadscout/internal/progress/sinks"
	memorypublisher "github.com/leadscout/leadscout/internal/publisher/memory"
	gcppublisher "github.com/leadscout/leadscout/internal/publisher/pubsub"
	"github.com/leadscout/leadscout/internal/queue"
	queueMemory "github.com/leadscout/leadscout/internal/queue/memory"
	"github.com/leadscout/leadscout/internal/ratelimit"
	"github.com/leadscout/leadscout/internal/retry"
	"github.com/leadscout/leadscout/internal/sources"
	"github.com/leadscout/leadscout/internal/stealth"
	memoryStorage "github.com/leadscout/leadscout/internal/storage/memory"
	pgstore "github.com/leadscout/leadscout/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	progressHub  *progress.Hub
	queue        discovery.Queue
	limiter      *ratelimit.Limiter
	browser      *stealth.Browser
	pubsubClient *pubsub.Client
	runner       dispatcher.Runner
	closers      []func()
}

// Search executes one discovery run synchronously, bypassing the queue.
func (a *App) Search(ctx context.Context, req discovery.SearchRequest) (discovery.RunResult, error) {
	return a.runner.Run(ctx, req)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.WorkerCount()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	switch q := a.queue.(type) {
	case *queueMemory.Queue:
		q.Close()
	case *queue.PubSub:
		if err := q.Close(); err != nil {
			a.logger.Warn("queue close failed", zap.Error(err))
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	for _, closeFn := range a.closers {
		closeFn()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

type stores struct {
	runs     discovery.RunStore
	stats    discovery.SourceStatsStore
	patterns discovery.PatternStore
	feedback discovery.FeedbackStore
	mirror   discovery.MirrorStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies")

	st, err := setupStores(ctx, app)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	hasher := sha256.New()

	keys := keypool.New(keypool.Config{Providers: providerConfigs(cfg)}, clock, st.mirror, logger.Named("keypool"))

	app.limiter = ratelimit.New(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		MinDelay:          time.Duration(cfg.RateLimit.MinDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.RateLimit.MaxDelayMs) * time.Millisecond,
		QueueSize:         cfg.RateLimit.QueueSize,
		WaitTimeout:       time.Duration(cfg.RateLimit.WaitTimeoutMs) * time.Millisecond,
		RespectRobots:     cfg.RateLimit.RespectRobots,
		UserAgent:         cfg.RateLimit.UserAgent,
		Presets:           domainPresets(cfg),
	}, st.mirror, logger.Named("ratelimit"))

	deps := sources.Deps{
		Keys:      keys,
		Gate:      app.limiter,
		Client:    &http.Client{Timeout: 15 * time.Second},
		Logger:    logger.Named("sources"),
		Endpoints: providerEndpoints(cfg),
	}
	if cfg.Stealth.Enabled {
		browserCfg := stealth.Config{
			Enabled:                  true,
			MaxParallel:              cfg.Stealth.MaxParallel,
			NavigationTimeout:        time.Duration(cfg.Stealth.NavTimeoutSeconds) * time.Second,
			UserAgentRotation:        cfg.Stealth.UserAgentRotation,
			FingerprintRandomization: cfg.Stealth.FingerprintRandomization,
			HumanBehavior:            cfg.Stealth.HumanBehavior,
			TimingRandomization:      cfg.Stealth.TimingRandomization,
			CanvasNoise:              cfg.Stealth.CanvasNoise,
			AudioNoise:               cfg.Stealth.AudioNoise,
			WebRTCProtection:         cfg.Stealth.WebRTCProtection,
		}
		if cfg.Stealth.Proxy.Enabled {
			browserCfg.ProxyURL = cfg.Stealth.Proxy.URL
			browserCfg.ProxyFallbackDirect = cfg.Stealth.Proxy.FallbackDirect
		}
		browser, berr := stealth.NewBrowser(browserCfg, logger.Named("stealth"))
		if berr != nil {
			logger.Warn("stealth browser init failed; rendered sources disabled", zap.Error(berr))
		} else {
			app.browser = browser
			deps.Renderer = browser
		}
	}
	catalog := sources.Catalog(deps)

	var catchAll confidence.CatchAllChecker
	if cfg.Discovery.EmailProbe.Enabled {
		catchAll = emailpattern.NewCatchAllProber(emailpattern.ProberConfig{
			HelloDomain: cfg.Discovery.EmailProbe.HelloDomain,
			FromAddress: cfg.Discovery.EmailProbe.FromAddress,
		}, logger.Named("emailprobe"))
	}
	learner := emailpattern.NewLearner(st.patterns, clock, logger.Named("patterns"))
	scorer := confidence.NewScorer(learner, catchAll, st.feedback, clock, logger.Named("confidence"))
	loop := confidence.NewLoop(st.feedback, clock, logger.Named("feedback"))

	breakers := retry.NewBreakerSet(retry.BreakerConfig{
		FailureThreshold: cfg.Retry.BreakerThreshold,
		CoolDown:         time.Duration(cfg.Retry.BreakerCooldownS) * time.Second,
	})

	hub, err := setupProgress(app, st)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(catalog, breakers, scorer, hasher, clock, hub, logger.Named("orchestrator"))
	orch.SetPreferAPIs(cfg.Discovery.PreferAPIs)
	app.runner = orch

	if err := setupQueue(ctx, app); err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.dispatch = dispatcher.New(app.queue, cfg.Workers.Count, dispatcher.WorkerDeps{
		Runner:          orch,
		Runs:            st.runs,
		Stats:           st.stats,
		Publisher:       publisher,
		CompletionTopic: cfg.PubSub.CompletionTopic,
		AlertTopic:      cfg.PubSub.AlertTopic,
		Logger:          logger.Named("worker"),
	})

	app.apiServer = api.NewServer(
		st.runs,
		app.dispatch,
		loop,
		keys,
		uuid.New(),
		clock,
		*cfg,
		logger.Named("api"),
	)

	return app, nil
}

func setupStores(ctx context.Context, app *App) (stores, error) {
	if app.cfg.DB.DSN == "" {
		app.logger.Info("using in-memory stores")
		runs := memoryStorage.NewRunStore()
		return stores{
			runs:     runs,
			stats:    runs,
			patterns: memoryStorage.NewPatternStore(),
			feedback: memoryStorage.NewFeedbackStore(),
			mirror:   memoryStorage.NewMirrorStore(),
		}, nil
	}

	pgCfg := pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        int32(app.cfg.DB.MaxConns),
		MinConns:        int32(app.cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(app.cfg.DB.ConnLifetimeMin) * time.Minute,
	}
	runs, err := pgstore.NewRunStore(ctx, pgCfg)
	if err != nil {
		return stores{}, fmt.Errorf("run store init failed: %w", err)
	}
	app.closers = append(app.closers, runs.Close)
	patterns, err := pgstore.NewPatternStore(ctx, pgCfg)
	if err != nil {
		return stores{}, fmt.Errorf("pattern store init failed: %w", err)
	}
	app.closers = append(app.closers, patterns.Close)
	feedback, err := pgstore.NewFeedbackStore(ctx, pgCfg)
	if err != nil {
		return stores{}, fmt.Errorf("feedback store init failed: %w", err)
	}
	app.closers = append(app.closers, feedback.Close)
	mirror, err := pgstore.NewMirrorStore(ctx, pgCfg)
	if err != nil {
		return stores{}, fmt.Errorf("mirror store init failed: %w", err)
	}
	app.closers = append(app.closers, mirror.Close)
	app.logger.Info("postgres stores initialized")
	return stores{
		runs:     runs,
		stats:    runs,
		patterns: patterns,
		feedback: feedback,
		mirror:   mirror,
	}, nil
}

func setupProgress(app *App, st stores) (progress.Emitter, error) {
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(app.logger.Named("progress")),
		progresssinks.NewStoreSink(st.stats, st.runs, app.logger.Named("progress")),
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	app.progressHub = progress.NewHub(progress.Config{Logger: app.logger.Named("progress")}, sinkList...)
	return app.progressHub, nil
}

func setupQueue(ctx context.Context, app *App) error {
	cfg := app.cfg
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.RunTopic == "" {
		app.logger.Info("using in-memory run queue", zap.Int("depth", cfg.Workers.QueueDepth))
		app.queue = queueMemory.NewQueue(cfg.Workers.QueueDepth)
		return nil
	}
	q, err := queue.NewPubSub(ctx, queue.PubSubConfig{
		ProjectID:    cfg.PubSub.ProjectID,
		Topic:        cfg.PubSub.RunTopic,
		Subscription: cfg.PubSub.RunSubscription,
		Buffer:       cfg.Workers.QueueDepth,
	}, app.logger.Named("queue"))
	if err != nil {
		return fmt.Errorf("pubsub queue init failed: %w", err)
	}
	app.queue = q
	return nil
}

func setupPublisher(ctx context.Context, app *App) (discovery.Publisher, error) {
	cfg := app.cfg
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.CompletionTopic == "" {
		app.logger.Info("using in-memory event publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.logger.Info("pubsub publisher initialized",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("completion_topic", cfg.PubSub.CompletionTopic))
	return gcppublisher.New(client), nil
}

func providerConfigs(cfg *config.Config) map[string]keypool.ProviderConfig {
	out := make(map[string]keypool.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		out[name] = keypool.ProviderConfig{Keys: p.Keys, DailyLimit: p.DailyLimit}
	}
	return out
}

func domainPresets(cfg *config.Config) map[string]ratelimit.DomainPreset {
	if len(cfg.RateLimit.Presets) == 0 {
		return nil
	}
	out := make(map[string]ratelimit.DomainPreset, len(cfg.RateLimit.Presets))
	for domain, p := range cfg.RateLimit.Presets {
		out[domain] = ratelimit.DomainPreset{
			RequestsPerMinute: p.RequestsPerMinute,
			MinDelay:          time.Duration(p.MinDelayMs) * time.Millisecond,
			Aliases:           p.Aliases,
		}
	}
	return out
}

func providerEndpoints(cfg *config.Config) map[string]string {
	out := make(map[string]string)
	for name, p := range cfg.Providers {
		if p.Endpoint != "" {
			out[name] = p.Endpoint
		}
	}
	return out
}
