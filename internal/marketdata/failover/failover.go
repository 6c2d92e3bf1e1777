// Package failover owns which ingestion channel is active: the primary
// WebSocket stream or the fallback REST poller. Exactly one is active at
// any instant, enforced by the controller's internal lock.
//
// The design is level-triggered: state reflects "is the primary currently
// healthy", so bursts of error events cannot flap the fallback loop —
// starting an already-running loop is a no-op.
package failover

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"emastream/internal/model"
)

// Event is a health event reported by the primary channel. The fallback
// loop itself is driven only by its timer, never by events.
type Event int

const (
	PrimaryOpened Event = iota
	PrimaryError
	PrimaryClosed
)

func (e Event) String() string {
	switch e {
	case PrimaryOpened:
		return "primary_opened"
	case PrimaryError:
		return "primary_error"
	case PrimaryClosed:
		return "primary_closed"
	default:
		return "unknown"
	}
}

// Poller performs one fallback poll attempt. A returned error is swallowed
// by the loop and retried on the next tick; it never terminates the loop.
type Poller interface {
	Poll(ctx context.Context) error
}

// Controller is the failover state machine.
type Controller struct {
	poller   Poller
	interval time.Duration
	enabled  bool
	log      *slog.Logger

	// OnTransition is called after every state change, for metrics.
	OnTransition func(model.ChannelState)

	mu      sync.Mutex
	baseCtx context.Context

	// state is written under mu but read atomically: the fallback loop's
	// sink reads State() on every poll, possibly while Handle holds mu
	// draining that same loop. A mutex read here would deadlock the stop.
	state atomic.Int32 // model.ChannelState

	// Fallback loop single-flight token: non-nil while a loop is running.
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a controller in PRIMARY_ACTIVE state. interval is the fixed
// poll cadence; enabled=false disables fallback entirely (deployments that
// prefer latency over continuity).
func New(poller Poller, interval time.Duration, enabled bool, log *slog.Logger) *Controller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	// The zero state value is PrimaryActive.
	return &Controller{
		poller:   poller,
		interval: interval,
		enabled:  enabled,
		log:      log,
		baseCtx:  context.Background(),
	}
}

// Start binds the controller to the pipeline's lifetime context. Any
// running fallback loop stops when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()
}

// State returns the currently active channel. Lock-free so the ingestion
// path can read it from inside a poll attempt without ever contending with
// Handle.
func (c *Controller) State() model.ChannelState {
	return model.ChannelState(c.state.Load())
}

// FallbackRunning reports whether a fallback loop is currently live.
func (c *Controller) FallbackRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopDone != nil
}

// Handle applies one health event. Transitions are pure functions of
// (state, event); starting an already-running fallback loop is a no-op and
// stopping is synchronous.
func (c *Controller) Handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev {
	case PrimaryOpened:
		if c.State() == model.FallbackActive {
			c.stopFallbackLocked()
			c.setStateLocked(model.PrimaryActive)
		}

	case PrimaryError, PrimaryClosed:
		if c.State() == model.PrimaryActive && c.enabled {
			c.startFallbackLocked()
			c.setStateLocked(model.FallbackActive)
		}
		// Already on fallback: loop keeps its own cadence regardless of
		// further primary noise. Fallback disabled: stay on primary and
		// let the stream's reconnect loop recover.
	}
}

// Shutdown stops any running fallback loop. Part of pipeline teardown.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopFallbackLocked()
}

func (c *Controller) setStateLocked(s model.ChannelState) {
	c.state.Store(int32(s))
	c.log.Info("channel state changed", "state", s.String())
	if c.OnTransition != nil {
		c.OnTransition(s)
	}
}

// startFallbackLocked starts the poll loop unless one is already running
// (single-flight guarantee). Caller holds c.mu.
func (c *Controller) startFallbackLocked() {
	if c.loopDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	done := make(chan struct{})
	c.loopCancel = cancel
	c.loopDone = done
	go c.runFallback(ctx, done)
}

// stopFallbackLocked cancels the loop and waits until it has fully
// quiesced: no further poll tick fires after this returns. Caller holds
// c.mu; the loop itself never takes c.mu, and State() is lock-free, so a
// poll attempt in flight cannot block this wait.
func (c *Controller) stopFallbackLocked() {
	if c.loopDone == nil {
		return
	}
	c.loopCancel()
	<-c.loopDone
	c.loopCancel = nil
	c.loopDone = nil
}

// runFallback issues one poll attempt per interval until stopped. A
// failure inside one attempt is swallowed and retried on the next tick.
func (c *Controller) runFallback(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.log.Info("fallback poll loop started", "interval", c.interval.String())
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("fallback poll loop stopped")
			return
		case <-ticker.C:
			if err := c.poller.Poll(ctx); err != nil {
				c.log.Warn("fallback poll attempt failed", "err", err)
			}
		}
	}
}
