// Package redis mirrors the pipeline's outputs into Redis: the latest
// snapshot under a SET key with TTL, finalized bars appended to a trimmed
// stream. Writes run through a circuit breaker so a Redis outage never
// slows the pipeline down; the store is strictly optional.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"emastream/internal/model"
)

const (
	// Stream trimming: roughly a day of 1m bars plus slack.
	barStreamMaxLen = 2000
	latestTTL       = 30 * time.Minute

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer mirrors snapshots and finalized bars into Redis.
type Writer struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	log     *slog.Logger

	// OnWrite observes the latency of each successful write, for metrics.
	OnWrite func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the circuit breaker, so callers can hook transitions.
func (w *Writer) Breaker() *CircuitBreaker { return w.breaker }

// New creates a Writer and pings the server.
func New(cfg WriterConfig, log *slog.Logger) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("redis connected", "addr", cfg.Addr)
	return &Writer{
		client:  client,
		breaker: NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout),
		log:     log,
	}, nil
}

// WriteSnapshot stores the latest snapshot under a keyed SET with TTL.
// Errors are absorbed here (logged, counted by the breaker); the caller's
// hot path never depends on Redis health.
func (w *Writer) WriteSnapshot(ctx context.Context, snap *model.Snapshot) {
	key := "snapshot:latest:" + snap.Symbol + ":" + snap.Interval
	data := string(snap.JSON())

	start := time.Now()
	err := w.breaker.Execute(func() error {
		return w.client.Set(ctx, key, data, latestTTL).Err()
	})
	if err != nil {
		if err != ErrCircuitOpen {
			w.log.Warn("redis snapshot write failed", "err", err)
		}
		return
	}
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
}

// WriteFinalBar appends one finalized bar to the symbol's kline stream,
// trimmed to a bounded length, and refreshes the latest-bar key.
func (w *Writer) WriteFinalBar(ctx context.Context, symbol, interval string, bar model.Bar) {
	streamKey := "kline:" + interval + ":" + symbol
	latestKey := "kline:" + interval + ":latest:" + symbol
	data := string(bar.JSON())

	start := time.Now()
	err := w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: barStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, latestKey, data, latestTTL)
		_, execErr := pipe.Exec(ctx)
		return execErr
	})
	if err != nil {
		if err != ErrCircuitOpen {
			w.log.Warn("redis bar write failed", "err", err, "stream", streamKey)
		}
		return
	}
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
