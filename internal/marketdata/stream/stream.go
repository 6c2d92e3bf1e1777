// Package stream is the primary ingestion channel: a long-lived Binance
// kline WebSocket subscription with automatic reconnection. Connection
// health is reported to the failover controller so the fallback poller
// can cover the gaps.
package stream

import (
	"context"
	"log/slog"
	"time"

	"emastream/internal/marketdata/failover"
	"emastream/internal/model"
	"emastream/pkg/binance"
)

// Config holds configuration for the primary stream channel.
type Config struct {
	// URL of the kline stream, e.g. binance.StreamURL(base, symbol, interval).
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Channel reads normalized kline events from the exchange WebSocket and
// hands them to the pipeline. Invalid frames are dropped at this boundary.
type Channel struct {
	cfg Config
	log *slog.Logger

	// OnEvent receives every valid kline event, in arrival order.
	OnEvent func(model.KlineEvent)

	// Health receives connection lifecycle events for the failover
	// controller.
	Health func(failover.Event)

	// Optional hooks for metrics.
	OnReconnect    func()
	OnInvalidFrame func()
}

// New creates a stream channel.
func New(cfg Config, log *slog.Logger) *Channel {
	cfg.defaults()
	return &Channel{cfg: cfg, log: log}
}

// Run connects and streams until ctx is cancelled, reconnecting with
// capped exponential backoff. The backoff resets after each successful
// connection.
func (ch *Channel) Run(ctx context.Context) {
	delay := ch.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		connected, err := ch.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		if connected {
			delay = ch.cfg.ReconnectDelay
		}
		ch.log.Warn("stream disconnected", "err", err, "retry_in", delay.String())
		if ch.OnReconnect != nil {
			ch.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ch.cfg.MaxReconnectDelay {
			delay = ch.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. Reports whether a connection was established.
func (ch *Channel) runOnce(ctx context.Context) (bool, error) {
	client := binance.NewWSClient(ch.cfg.URL)
	if err := client.Dial(ctx); err != nil {
		ch.report(failover.PrimaryError)
		return false, err
	}
	defer client.Close()

	ch.log.Info("stream connected", "url", ch.cfg.URL)
	ch.report(failover.PrimaryOpened)

	// Close the connection when ctx is cancelled so ReadEvent unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	for {
		ev, ok, err := client.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			ch.report(failover.PrimaryClosed)
			return true, err
		}
		if !ok {
			// Subscribe ack or other non-kline frame.
			continue
		}
		if verr := ev.Validate(); verr != nil {
			ch.log.Warn("dropping invalid kline event", "err", verr)
			if ch.OnInvalidFrame != nil {
				ch.OnInvalidFrame()
			}
			continue
		}
		if ch.OnEvent != nil {
			ch.OnEvent(ev)
		}
	}
}

func (ch *Channel) report(ev failover.Event) {
	if ch.Health != nil {
		ch.Health(ev)
	}
}
