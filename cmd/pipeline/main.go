package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"emastream/config"
	"emastream/internal/broadcast"
	"emastream/internal/indicator"
	"emastream/internal/journal"
	"emastream/internal/logger"
	"emastream/internal/marketdata/failover"
	"emastream/internal/marketdata/poll"
	"emastream/internal/marketdata/stream"
	"emastream/internal/metrics"
	"emastream/internal/model"
	"emastream/internal/status"
	redisstore "emastream/internal/store/redis"
	"emastream/pkg/binance"
)

func main() {
	cfg := config.Load()
	log := logger.Init("pipeline", logger.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log.Info("starting kline pipeline",
		"symbol", cfg.Symbol, "interval", cfg.Interval,
		"ema", cfg.EMAPeriod, "ma", cfg.MAPeriod,
		"fallback_enabled", cfg.FallbackEnabled)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Indicator engine ----
	engine, err := indicator.NewEngine(cfg.IndicatorConfig())
	if err != nil {
		log.Error("indicator engine init failed", "err", err)
		os.Exit(1)
	}

	// ---- Trade journal (optional) ----
	var jnl *journal.Journal
	if cfg.SQLitePath != "" {
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		jnl, err = journal.Open(cfg.SQLitePath, log)
		if err != nil {
			log.Warn("trade journal init failed, continuing without it", "err", err)
			jnl = nil
		} else {
			defer jnl.Close()
			health.SetJournalOK(true)
		}
	}
	var trades status.TradeSource
	if jnl != nil {
		trades = jnl
	}

	// ---- Redis mirror (optional) ----
	var redisWriter *redisstore.Writer
	if cfg.RedisAddr != "" {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, log)
		if err != nil {
			log.Warn("redis init failed, continuing without redis", "err", err)
			redisWriter = nil
		} else {
			defer redisWriter.Close()
			health.SetRedisConnected(true)
			redisWriter.OnWrite = func(d time.Duration) {
				prom.RedisWriteDur.Observe(d.Seconds())
			}
			redisWriter.Breaker().OnStateChange = func(from, to redisstore.State) {
				log.Warn("redis circuit breaker transition",
					"from", from.String(), "to", to.String())
			}
		}
	}

	// ---- Liveness probes ----
	switch {
	case redisWriter != nil && jnl != nil:
		health.StartLivenessChecker(ctx, redisWriter.Client(), jnl.DB(), 10*time.Second)
	case redisWriter != nil:
		health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 10*time.Second)
	case jnl != nil:
		health.StartLivenessChecker(ctx, nil, jnl.DB(), 10*time.Second)
	}

	// ---- Historical warmup ----
	rest := binance.NewRESTClient(cfg.RESTBaseURL, 10*time.Second)
	if cfg.HistoryLimit > 0 {
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		bars, err := rest.GetKlines(warmCtx, cfg.Symbol, cfg.Interval, cfg.HistoryLimit)
		warmCancel()
		if err != nil {
			log.Warn("historical warmup failed, starting cold", "err", err)
		} else {
			engine.IngestHistorical(bars)
			log.Info("historical warmup complete", "bars", len(bars),
				"last_close_time", engine.LastCloseTime())
		}
	}

	// ---- Broadcast ----
	dist := broadcast.New(cfg.QueueCapacity)
	dist.OnDrop = func() { prom.BroadcastDropsTotal.Inc() }
	defer dist.Close()

	builder := status.NewBuilder(cfg.Symbol, cfg.Interval, trades)

	// ---- Redis mirroring, off the hot path ----
	var barQueue *redisstore.BarQueue
	if redisWriter != nil {
		snapSub := dist.Subscribe()
		go func() {
			for {
				snap, ok := snapSub.Next(ctx)
				if !ok {
					return
				}
				redisWriter.WriteSnapshot(ctx, snap)
			}
		}()

		barQueue = redisstore.NewBarQueue(256)
		barQueue.OnDrop = func() {
			prom.RedisBarDropsTotal.Inc()
			log.Warn("redis bar queue full, finalized bar not mirrored")
		}
		go barQueue.Drain(ctx, func(bar model.Bar) {
			redisWriter.WriteFinalBar(ctx, cfg.Symbol, cfg.Interval, bar)
		})
	}

	// ---- Ingestion path, shared by both channels ----
	var ctrl *failover.Controller

	handleKline := func(ev model.KlineEvent) {
		kind := "provisional"
		if ev.Final {
			kind = "final"
		}
		prom.KlineEventsTotal.WithLabelValues(kind).Inc()
		health.SetLastEventTime(time.Now())

		prevClose := engine.LastCloseTime()
		v := engine.IngestLive(ev)

		if ev.Final && v.LastCloseTime > prevClose && barQueue != nil {
			barQueue.Enqueue(ev.Bar())
		}

		start := time.Now()
		snap := builder.Build(v, ctrl.State())
		prom.SnapshotBuildDur.Observe(time.Since(start).Seconds())
		dist.Publish(snap)
	}

	// ---- Failover controller + fallback poller ----
	poller := poll.New(rest, cfg.Symbol, cfg.Interval, engine.LastCloseTime, handleKline, log)
	poller.OnPoll = func(err error) {
		prom.PollTicksTotal.Inc()
		if err != nil {
			prom.PollErrorsTotal.Inc()
		}
	}

	ctrl = failover.New(poller, cfg.PollInterval, cfg.FallbackEnabled, log)
	ctrl.OnTransition = func(s model.ChannelState) {
		prom.FailoverTransitions.WithLabelValues(s.String()).Inc()
		prom.ChannelState.Set(float64(s))
		health.SetChannel(s.String())
	}
	ctrl.Start(ctx)
	defer ctrl.Shutdown()

	// ---- Status server ----
	provider := func() *model.Snapshot {
		return builder.Build(engine.View(), ctrl.State())
	}
	statusSrv := status.NewServer(cfg.ListenAddr, provider, dist, log)
	statusSrv.OnSubscribe = func() { prom.Subscribers.Inc() }
	statusSrv.OnUnsubscribe = func() { prom.Subscribers.Dec() }
	statusSrv.Start()

	// ---- Primary stream ----
	streamCh := stream.New(stream.Config{
		URL: binance.StreamURL(cfg.WSBaseURL, cfg.Symbol, cfg.Interval),
	}, log)
	streamCh.OnEvent = handleKline
	streamCh.Health = func(ev failover.Event) {
		health.SetWSConnected(ev == failover.PrimaryOpened)
		ctrl.Handle(ev)
	}
	streamCh.OnReconnect = func() { prom.WSReconnects.Inc() }
	streamCh.OnInvalidFrame = func() { prom.InvalidEvents.Inc() }
	go streamCh.Run(ctx)

	log.Info("pipeline ready",
		"listen", cfg.ListenAddr, "metrics", cfg.MetricsAddr,
		"stream", binance.StreamURL(cfg.WSBaseURL, cfg.Symbol, cfg.Interval))

	// ---- Wait for shutdown ----
	<-sigCh
	log.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	statusSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Info("shutdown complete")
}
