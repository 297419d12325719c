package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salesfusion/cmd/mainconfig"
	"github.com/wolfman30/salesfusion/internal/api/router"
	"github.com/wolfman30/salesfusion/internal/chat"
	appconfig "github.com/wolfman30/salesfusion/internal/config"
	"github.com/wolfman30/salesfusion/internal/crm"
	"github.com/wolfman30/salesfusion/internal/http/handlers"
	"github.com/wolfman30/salesfusion/internal/notify"
	"github.com/wolfman30/salesfusion/internal/observability/metrics"
	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/session"
	"github.com/wolfman30/salesfusion/internal/sessionstore"
	"github.com/wolfman30/salesfusion/internal/transcripts"
	"github.com/wolfman30/salesfusion/internal/validation"
	"github.com/wolfman30/salesfusion/pkg/logging"
)

type app struct {
	handler  http.Handler
	sessions *session.Service
	notifier *notify.Service
	limiters []*validation.RateLimiter
	closers  []func()
}

// Close releases pools and clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// sweep periodically prunes rate-limiter windows and evicts sessions idle
// for longer than idle.
func (a *app) sweep(ctx context.Context, every, idle time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range a.limiters {
				l.Sweep()
			}
			if a.sessions != nil {
				a.sessions.EvictIdle(ctx, idle)
			}
		}
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}

	schema, err := cfg.BuildSchema()
	if err != nil {
		return nil, err
	}
	if warn := schema.WeightWarning(); warn != "" {
		logger.Warn("qualification schema weights", "schema", schema.ID, "warning", warn)
	}
	machine, err := qualification.NewMachine(schema,
		qualification.WithWindow(cfg.Qualification.Window),
		qualification.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	metricsHandler, m := setupMetrics()

	backend, pinger, closeStorage, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStorage)
	kv := sessionstore.New(backend,
		sessionstore.WithPrefix(cfg.StorageKeyPrefix),
		sessionstore.WithDefaultTTL(cfg.StorageDefaultTTL),
		sessionstore.WithLogger(logger),
	)
	store := transcripts.NewStore(kv,
		transcripts.WithCatalog(transcripts.Catalog(cfg.Thresholds.HotLead, cfg.Thresholds.WarmLead)),
		transcripts.WithTTL(cfg.TranscriptTTL),
		transcripts.WithLogger(logger),
	)

	a.notifier = setupNotifier(ctx, cfg, m, logger)

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}
	provider, leadReader, err := setupCRM(cfg, pool)
	if err != nil {
		return nil, err
	}
	syncer := crm.NewSyncer(provider, store, schema, logger)

	sessionLimiter := validation.NewRateLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow, nil)
	ipLimiter := validation.NewRateLimiter(cfg.RateLimitIPRequests, cfg.RateLimitWindow, nil)
	a.limiters = []*validation.RateLimiter{sessionLimiter, ipLimiter}

	opts := []session.Option{
		session.WithObservers(a.notifier),
		session.WithCRM(syncer),
		session.WithRateLimiter(sessionLimiter),
		session.WithMetrics(m),
		session.WithLogger(logger),
	}
	responder, err := setupChat(cfg, logger)
	if err != nil {
		return nil, err
	}
	if responder != nil {
		opts = append(opts, session.WithResponder(responder))
	} else {
		logger.Warn("CHAT_API_URL not set, every reply will be a canned fallback")
	}
	a.sessions = session.NewService(machine, store, opts...)

	routerCfg := &router.Config{
		Logger:             logger,
		Sessions:           session.NewHandler(a.sessions, logger),
		Transcripts:        transcripts.NewHandler(store, logger),
		Health:             handlers.NewHealthHandler(cfg.StorageBackend, pinger),
		MetricsHandler:     metricsHandler,
		IPLimiter:          ipLimiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if leadReader != nil {
		routerCfg.Leads = crm.NewHandler(leadReader, logger)
	}
	if cfg.DebugAPIEnabled {
		routerCfg.Debug = handlers.NewDebugHandler(a.sessions, store, debugSnapshot(cfg, schema, responder != nil), logger)
	}
	a.handler = router.New(routerCfg)
	return a, nil
}

func setupMetrics() (http.Handler, *metrics.QualificationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewQualificationMetrics(reg)
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// setupStorage returns the configured backend. A nil pinger means the
// backend lives in-process.
func setupStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (sessionstore.Backend, handlers.Pinger, func(), error) {
	switch cfg.StorageBackend {
	case "", "memory":
		return sessionstore.NewMemoryBackend(), nil, func() {}, nil
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Writes fail soft, so start anyway and let /health report it.
			logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		backend := sessionstore.NewRedisBackend(client, sessionstore.WithKeyTTL(redisKeyTTL(cfg)))
		return backend, redisPinger{client: client}, func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

// redisKeyTTL is the longest retention any stored key needs.
func redisKeyTTL(cfg *appconfig.Config) time.Duration {
	if cfg.TranscriptTTL > cfg.StorageDefaultTTL {
		return cfg.TranscriptTTL
	}
	return cfg.StorageDefaultTTL
}

func setupNotifier(ctx context.Context, cfg *appconfig.Config, m *metrics.QualificationMetrics, logger *logging.Logger) *notify.Service {
	gate := notify.NewGate(notify.GateConfig{
		Thresholds:        cfg.NotifyThresholds,
		SignificantChange: cfg.Thresholds.SignificantChange,
		Cooldown:          cfg.NotifyCooldown,
		RearmMargin:       cfg.NotifyRearmMargin,
	}, nil)

	var alerts notify.AlertSender
	if cfg.SlackEnabled {
		if slack := notify.NewSlackWebhook(cfg.SlackWebhookURL, nil, logger); slack != nil {
			alerts = slack
		} else {
			logger.Info("SLACK_WEBHOOK_URL not set, lead alerts disabled")
		}
	}

	return notify.NewService(gate, alerts, setupEmailSender(ctx, cfg, logger),
		notify.ServiceConfig{SalesTeamEmail: cfg.SalesTeamEmail}, m, logger)
}

// setupEmailSender picks the handoff mail transport. Misconfigured providers
// fall back to the recording sender so handoffs still show up in logs.
func setupEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sg != nil {
			return sg
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid without SENDGRID_API_KEY, recording e-mails instead")
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("failed to load AWS config, recording e-mails instead", "error", err)
			break
		}
		return notify.NewSESSender(mainconfig.NewSESClient(awsCfg, cfg), notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	return notify.NewRecordingEmailSender(logger)
}

func setupChat(cfg *appconfig.Config, logger *logging.Logger) (session.Responder, error) {
	if cfg.ChatAPIURL == "" {
		return nil, nil
	}
	client, err := chat.New(chat.Config{
		BaseURL: cfg.ChatAPIURL,
		APIKey:  cfg.ChatAPIKey,
		Model:   cfg.ChatModel,
		Timeout: cfg.ChatTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func setupCRM(cfg *appconfig.Config, pool *pgxpool.Pool) (crm.Provider, crm.LeadReader, error) {
	var pg *crm.PostgresProvider
	if pool != nil {
		pg = crm.NewPostgresProvider(pool)
	}
	provider, err := crm.NewProvider(cfg.CRMProvider, pg)
	if err != nil {
		return nil, nil, err
	}
	reader, _ := provider.(crm.LeadReader)
	return provider, reader, nil
}

func debugSnapshot(cfg *appconfig.Config, schema qualification.Schema, chatBackend bool) handlers.DebugSnapshot {
	return handlers.DebugSnapshot{
		Schema:        schema,
		WeightWarning: schema.WeightWarning(),
		Window:        cfg.Qualification.Window,
		HotLead:       cfg.Thresholds.HotLead,
		WarmLead:      cfg.Thresholds.WarmLead,
		Notify: notify.GateConfig{
			Thresholds:        cfg.NotifyThresholds,
			SignificantChange: cfg.Thresholds.SignificantChange,
			Cooldown:          cfg.NotifyCooldown,
			RearmMargin:       cfg.NotifyRearmMargin,
		},
		StorageBackend: cfg.StorageBackend,
		EmailProvider:  cfg.EmailProvider,
		CRMProvider:    cfg.CRMProvider,
		SlackEnabled:   cfg.SlackEnabled && cfg.SlackWebhookURL != "",
		ChatBackend:    chatBackend,
	}
}
