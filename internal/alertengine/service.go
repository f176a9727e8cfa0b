// Package alertengine wires the alert engine's components and manages
// their lifecycle.
package alertengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"trading-alerts/config"
	"trading-alerts/internal/alerting"
	"trading-alerts/internal/alerts"
	"trading-alerts/internal/api"
	"trading-alerts/internal/indicator"
	"trading-alerts/internal/logger"
	"trading-alerts/internal/marketdata"
	"trading-alerts/internal/metrics"
	"trading-alerts/internal/model"
	"trading-alerts/internal/notification"
	"trading-alerts/internal/settings"
	redisstore "trading-alerts/internal/store/redis"
	sqlitestore "trading-alerts/internal/store/sqlite"
	"trading-alerts/internal/symbols"
)

const (
	livenessInterval = 15 * time.Second
	shutdownTimeout  = 5 * time.Second
	webhookTimeout   = 10 * time.Second
)

// Service owns every component of one alert engine process.
type Service struct {
	cfg *config.Config
	log *logrus.Entry

	db         *sqlitestore.DB
	redis      *redisstore.Client // nil when Redis is not configured
	kafka      *notification.KafkaPublisher
	publishers []model.EventPublisher

	market  model.MarketData
	catalog model.AssetCatalog

	alerts   *alerts.Store
	symbols  *symbols.Registry
	settings *settings.Store
	inbox    *notification.Inbox
	hub      *api.Hub
	manager  *alerting.Manager

	registry *prometheus.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	http     *http.Server
	metrics  *metrics.Server
}

// New builds the service: it opens storage, loads alerts, symbols and
// settings, and connects the optional Redis and Kafka sinks.
func New(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Service, error) {
	svc := &Service{
		cfg:      cfg,
		log:      log.WithField("component", "service"),
		registry: prometheus.NewRegistry(),
		health:   metrics.NewHealthStatus(),
	}
	svc.prom = metrics.NewMetrics(svc.registry)
	svc.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := svc.openStorage(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	svc.connectSinks()
	svc.buildMarketData()
	if err := svc.loadState(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	svc.buildEngine()
	return svc, nil
}

func (svc *Service) openStorage(ctx context.Context) error {
	db, err := sqlitestore.Open(svc.cfg.SQLitePath, svc.log)
	if err != nil {
		return err
	}
	svc.db = db

	if svc.cfg.Redis.Addr == "" {
		return nil
	}
	rc, err := redisstore.New(redisstore.Config{
		Addr:     svc.cfg.Redis.Addr,
		Password: svc.cfg.Redis.Password,
		DB:       svc.cfg.Redis.DB,
	}, svc.log)
	if err != nil {
		// Redis only serves the bar cache and trigger stream.
		svc.log.WithError(err).Warn("redis unavailable, continuing without cache and stream")
		return nil
	}
	svc.redis = rc
	return nil
}

func (svc *Service) connectSinks() {
	if svc.redis != nil {
		svc.publishers = append(svc.publishers, svc.redis)
	}
	if len(svc.cfg.Kafka.Brokers) > 0 {
		svc.kafka = notification.NewKafkaPublisher(svc.cfg.Kafka.Brokers, svc.cfg.Kafka.Topic)
		svc.publishers = append(svc.publishers, svc.kafka)
		svc.log.WithFields(logrus.Fields{"brokers": svc.cfg.Kafka.Brokers, "topic": svc.cfg.Kafka.Topic}).Info("kafka publisher enabled")
	}
}

func (svc *Service) buildMarketData() {
	md := svc.cfg.MarketData
	switch md.Provider {
	case config.ProviderAlpaca:
		client := marketdata.NewClient(marketdata.ClientConfig{
			BaseURL:        md.BaseURL,
			DataURL:        md.DataURL,
			APIKey:         md.APIKey,
			APISecret:      md.APISecret,
			Feed:           md.Feed,
			RequestsPerSec: md.RequestsPerSec,
			Timeout:        md.Timeout,
			OnBreakerChange: func(_, to marketdata.BreakerState) {
				svc.prom.BreakerChanged(int(to))
			},
		}, svc.log)
		svc.market, svc.catalog = client, client
	default:
		sim := marketdata.NewSimulator()
		svc.market, svc.catalog = sim, sim
	}

	if svc.redis != nil && md.CacheTTL > 0 {
		svc.market = marketdata.NewCached(svc.market, svc.redis, md.CacheTTL, svc.log)
	}
	svc.log.WithFields(logrus.Fields{
		"provider": md.Provider,
		"cached":   svc.redis != nil && md.CacheTTL > 0,
	}).Info("market data ready")
}

func (svc *Service) loadState(ctx context.Context) error {
	svc.alerts = alerts.New(svc.db)
	if err := svc.alerts.Load(ctx); err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	svc.symbols = symbols.New(svc.db, svc.log)
	if err := svc.symbols.Load(ctx); err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	if svc.cfg.SeedSymbols {
		if _, err := svc.symbols.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("seed symbols: %w", err)
		}
	}
	if svc.cfg.MarketData.SyncOnStart {
		res, err := svc.symbols.Sync(ctx, svc.catalog)
		if err != nil {
			svc.log.WithError(err).Warn("symbol sync failed")
		} else {
			svc.log.WithFields(logrus.Fields{"added": res.Added, "updated": res.Updated}).Info("symbols synced")
		}
	}

	defaults := model.DefaultSettings()
	defaults.CheckInterval = svc.cfg.CheckInterval
	defaults.AutoCheck = svc.cfg.AutoCheck
	svc.settings = settings.New(svc.db, defaults)
	if err := svc.settings.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	svc.log.WithFields(logrus.Fields{
		"alerts":  svc.alerts.Len(),
		"symbols": len(svc.symbols.List()),
	}).Info("state loaded")
	return nil
}

func (svc *Service) buildEngine() {
	svc.inbox = notification.NewInbox(svc.cfg.InboxSize)
	svc.hub = api.NewHub(svc.inbox, svc.log)
	svc.inbox.OnPush = svc.hub.Broadcast

	dispatcher := notification.NewDispatcher(notification.Config{
		Settings:   svc.settings.Notification,
		Inbox:      svc.inbox,
		Email:      notification.NewEmailSender(),
		Webhook:    notification.NewWebhookSender(webhookTimeout),
		Telegram:   notification.NewTelegramSender(svc.cfg.TelegramRate),
		Publishers: svc.publishers,
		Recorder:   svc.prom,
	}, svc.log)

	rec := &recorder{Metrics: svc.prom, health: svc.health}
	reg := indicator.Builtin()
	engine := alerting.NewEngine(alerting.EngineConfig{
		Store:      svc.alerts,
		Indicators: reg,
		Market:     svc.market,
		Notifier:   dispatcher,
		Recorder:   rec,
	}, svc.log)
	svc.manager = alerting.NewManager(alerting.ManagerConfig{
		Alerts:     svc.alerts,
		Symbols:    svc.symbols,
		Indicators: reg,
		Settings:   svc.settings,
		Engine:     engine,
		Recorder:   rec,
	}, svc.log)

	router := api.NewRouter(api.Deps{
		Manager:    svc.manager,
		Symbols:    svc.symbols,
		Indicators: reg,
		Market:     svc.market,
		Catalog:    svc.catalog,
		Inbox:      svc.inbox,
		Hub:        svc.hub,
		TOTPSecret: svc.cfg.AdminTOTPSecret,
	}, svc.log)
	svc.http = &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	svc.metrics = metrics.NewServer(svc.cfg.MetricsAddr, svc.registry, svc.health, svc.log)
}

// Manager exposes the control surface.
func (svc *Service) Manager() *alerting.Manager { return svc.manager }

// Handler returns the HTTP API handler.
func (svc *Service) Handler() http.Handler { return svc.http.Handler }

// Run serves the API and, when auto_check is set, the scheduler. It blocks
// until ctx is cancelled and then shuts everything down.
func (svc *Service) Run(ctx context.Context) error {
	svc.metrics.Start()
	svc.health.StartLivenessChecker(ctx, svc.db, svc.redisPinger(), livenessInterval)

	errCh := make(chan error, 1)
	go func() {
		svc.log.WithField("addr", svc.cfg.HTTPAddr).Info("api listening")
		if err := svc.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if svc.manager.Settings().AutoCheck {
		svc.manager.StartChecking()
	}
	svc.log.WithFields(logrus.Fields{
		"alerts":         svc.alerts.Len(),
		"check_interval": svc.manager.Settings().CheckInterval,
		"scheduler":      svc.manager.SchedulerRunning(),
	}).Info("alert engine running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		svc.log.WithError(runErr).Error("api server failed")
	}
	svc.shutdown()
	return runErr
}

// RunOnce runs a single sweep and returns its results.
func (svc *Service) RunOnce(ctx context.Context) []model.CheckResult {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("once", time.Now()))
	return svc.manager.CheckAllAlerts(ctx)
}

func (svc *Service) shutdown() {
	svc.log.Info("shutting down")
	if err := svc.manager.StopChecking(); err != nil {
		svc.log.WithError(err).Warn("scheduler stop")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.http.Shutdown(ctx); err != nil {
		svc.log.WithError(err).Warn("api shutdown")
	}
	svc.metrics.Stop(ctx)
	svc.Close()
	svc.log.Info("shutdown complete")
}

// Close releases storage and sinks. It is safe to call on a partially
// built service.
func (svc *Service) Close() {
	svc.publishers = nil
	if svc.kafka != nil {
		if err := svc.kafka.Close(); err != nil {
			svc.log.WithError(err).Warn("close kafka publisher")
		}
		svc.kafka = nil
	}
	if svc.redis != nil {
		svc.redis.Close()
		svc.redis = nil
	}
	if svc.db != nil {
		svc.db.Close()
		svc.db = nil
	}
}

func (svc *Service) redisPinger() metrics.Pinger {
	if svc.redis == nil {
		return nil
	}
	return svc.redis
}

// recorder feeds engine events to Prometheus and the health endpoint.
type recorder struct {
	*metrics.Metrics
	health *metrics.HealthStatus
}

func (r *recorder) ObserveSweep(active int, d time.Duration) {
	r.Metrics.ObserveSweep(active, d)
	r.health.SetLastSweep(time.Now())
}

func (r *recorder) SetSchedulerRunning(v bool) {
	r.Metrics.SetSchedulerRunning(v)
	r.health.SetSchedulerRunning(v)
}
