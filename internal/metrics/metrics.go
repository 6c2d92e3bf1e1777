package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the kline pipeline.
type Metrics struct {
	KlineEventsTotal *prometheus.CounterVec // labels: kind=final|provisional
	InvalidEvents    prometheus.Counter
	WSReconnects     prometheus.Counter

	PollTicksTotal  prometheus.Counter
	PollErrorsTotal prometheus.Counter

	FailoverTransitions *prometheus.CounterVec // labels: state=primary|fallback
	ChannelState        prometheus.Gauge       // 0=primary, 1=fallback

	BroadcastDropsTotal prometheus.Counter
	Subscribers         prometheus.Gauge

	SnapshotBuildDur   prometheus.Histogram
	RedisWriteDur      prometheus.Histogram
	RedisBarDropsTotal prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		KlineEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_kline_events_total",
			Help: "Kline events ingested (by kind)",
		}, []string{"kind"}),
		InvalidEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_invalid_events_total",
			Help: "Events rejected at the ingestion boundary",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_ws_reconnects_total",
			Help: "Primary WebSocket reconnection attempts",
		}),

		PollTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_poll_ticks_total",
			Help: "Fallback REST poll attempts",
		}),
		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_poll_errors_total",
			Help: "Fallback REST poll attempts that failed",
		}),

		FailoverTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_failover_transitions_total",
			Help: "Channel state transitions (by resulting state)",
		}, []string{"state"}),
		ChannelState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_channel_state",
			Help: "Active ingestion channel (0=primary, 1=fallback)",
		}),

		BroadcastDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_broadcast_drops_total",
			Help: "Snapshots evicted from full subscriber rings",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_subscribers",
			Help: "Currently connected snapshot subscribers",
		}),

		SnapshotBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_snapshot_build_duration_seconds",
			Help:    "Snapshot assembly latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisBarDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_redis_bar_drops_total",
			Help: "Finalized bars discarded because the Redis mirror queue was full",
		}),
	}

	prometheus.MustRegister(
		m.KlineEventsTotal,
		m.InvalidEvents,
		m.WSReconnects,
		m.PollTicksTotal,
		m.PollErrorsTotal,
		m.FailoverTransitions,
		m.ChannelState,
		m.BroadcastDropsTotal,
		m.Subscribers,
		m.SnapshotBuildDur,
		m.RedisWriteDur,
		m.RedisBarDropsTotal,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool
	LastEventTime  time.Time
	RedisConnected bool
	JournalOK      bool
	Channel        string

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Channel:   "primary",
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetChannel(s string) {
	h.mu.Lock()
	h.Channel = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Fallback ingestion still counts as serving; only a fully dark
	// pipeline is unhealthy.
	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected && h.Channel != "fallback" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Channel         string  `json:"channel"`
		WSConnected     bool    `json:"ws_connected"`
		LastEventTime   string  `json:"last_event_time"`
		EventAge        string  `json:"event_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		JournalOK       bool    `json:"journal_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Channel:         h.Channel,
		WSConnected:     h.WSConnected,
		LastEventTime:   h.LastEventTime.Format(time.RFC3339),
		EventAge:        eventAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		JournalOK:       h.JournalOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
