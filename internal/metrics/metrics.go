// Package metrics exposes Prometheus metrics and the health endpoint of the
// alert engine.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/model"
)

// Metrics holds all Prometheus metrics of the alert engine.
type Metrics struct {
	ChecksTotal       *prometheus.CounterVec // labels: status
	TriggersTotal     *prometheus.CounterVec // labels: indicator
	CheckDur          prometheus.Histogram
	SweepDur          prometheus.Histogram
	SweepPanics       prometheus.Counter
	NotificationsSent *prometheus.CounterVec // labels: channel, result
	ActiveAlerts      prometheus.Gauge
	SchedulerRunning  prometheus.Gauge // 0=stopped, 1=running

	// Market data circuit breaker
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_checks_total",
			Help: "Alert checks by outcome status",
		}, []string{"status"}),
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_triggers_total",
			Help: "Alert triggers by indicator",
		}, []string{"indicator"}),
		CheckDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alerts_check_duration_seconds",
			Help:    "Single alert check latency including data fetch",
			Buckets: prometheus.DefBuckets,
		}),
		SweepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alerts_sweep_duration_seconds",
			Help:    "Full sweep latency over all active alerts",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SweepPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_sweep_panics_total",
			Help: "Sweeps aborted by a recovered panic",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_notifications_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alerts_active",
			Help: "Active alerts seen by the last sweep",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alerts_scheduler_running",
			Help: "Scheduler state (0=stopped, 1=running)",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alerts_marketdata_circuit_breaker_state",
			Help: "Market data circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_marketdata_circuit_breaker_trips_total",
			Help: "Times the market data circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.ChecksTotal,
		m.TriggersTotal,
		m.CheckDur,
		m.SweepDur,
		m.SweepPanics,
		m.NotificationsSent,
		m.ActiveAlerts,
		m.SchedulerRunning,
		m.BreakerState,
		m.BreakerTrips,
	)
	return m
}

// ObserveCheck records one check result.
func (m *Metrics) ObserveCheck(r model.CheckResult, indicator string, d time.Duration) {
	m.ChecksTotal.WithLabelValues(string(r.Status)).Inc()
	m.CheckDur.Observe(d.Seconds())
	if r.Triggered {
		m.TriggersTotal.WithLabelValues(indicator).Inc()
	}
}

// ObserveSweep records one sweep.
func (m *Metrics) ObserveSweep(active int, d time.Duration) {
	m.ActiveAlerts.Set(float64(active))
	m.SweepDur.Observe(d.Seconds())
}

// SweepPanicked counts a recovered sweep panic.
func (m *Metrics) SweepPanicked() { m.SweepPanics.Inc() }

// SetSchedulerRunning records the scheduler state.
func (m *Metrics) SetSchedulerRunning(v bool) {
	if v {
		m.SchedulerRunning.Set(1)
		return
	}
	m.SchedulerRunning.Set(0)
}

// NotificationSent counts one delivery.
func (m *Metrics) NotificationSent(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsSent.WithLabelValues(channel, result).Inc()
}

// BreakerChanged records a breaker transition. to is the numeric state.
func (m *Metrics) BreakerChanged(to int) {
	m.BreakerState.Set(float64(to))
	if to == 1 {
		m.BreakerTrips.Inc()
	}
}

// Pinger is a dependency the liveness checker can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled     bool
	RedisConnected   bool
	SQLiteOK         bool
	SchedulerRunning bool
	LastSweepAt      time.Time

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetSchedulerRunning(v bool) {
	h.mu.Lock()
	h.SchedulerRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSweep(t time.Time) {
	h.mu.Lock()
	h.LastSweepAt = t
	h.mu.Unlock()
}

// Check probes SQLite and, when configured, Redis, recording latency and
// connectivity.
func (h *HealthStatus) Check(ctx context.Context, sqlite, redis Pinger) {
	sqlLat, sqlErr := probe(ctx, sqlite)

	var redisErr error
	var redisLat time.Duration
	if redis != nil {
		redisLat, redisErr = probe(ctx, redis)
	}

	h.mu.Lock()
	h.SQLiteOK = sqlErr == nil
	h.SQLiteLatencyMs = float64(sqlLat.Microseconds()) / 1000.0
	h.RedisEnabled = redis != nil
	h.RedisConnected = redis != nil && redisErr == nil
	h.RedisLatencyMs = float64(redisLat.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (time.Duration, error) {
	start := time.Now()
	err := p.Ping(ctx)
	return time.Since(start), err
}

// StartLivenessChecker runs an immediate check and then one per interval.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, sqlite, redis Pinger, interval time.Duration) {
	run := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		h.Check(probeCtx, sqlite, redis)
		cancel()
	}
	go func() {
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}

	lastSweep := ""
	if !h.LastSweepAt.IsZero() {
		lastSweep = h.LastSweepAt.Format(time.RFC3339)
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		SchedulerRunning bool    `json:"scheduler_running"`
		LastSweepAt      string  `json:"last_sweep_at"`
		RedisEnabled     bool    `json:"redis_enabled"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		SQLiteOK         bool    `json:"sqlite_ok"`
		SQLiteLatencyMs  float64 `json:"sqlite_latency_ms"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		SchedulerRunning: h.SchedulerRunning,
		LastSweepAt:      lastSweep,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *logrus.Entry
}

// NewServer creates a metrics and health server.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log *logrus.Entry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.WithField("component", "metrics"),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.WithField("addr", s.addr).Info("server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.WithError(err).Error("server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
