// Package indicator provides incremental EMA/SMA/slope computation over
// finalized kline closes, plus crossover and slope-threshold queries.
//
// The Engine is the single owner of all rolling indicator state. Writes
// come from exactly one ingestion task at a time; readers always observe a
// whole, self-consistent update (EMA and MA for the same bar advance
// together under one lock).
package indicator

import (
	"fmt"
	"sync"

	"emastream/internal/model"
)

// emaHistCap bounds how many defined EMA values are retained for slope
// queries. Any reasonable lookback fits well inside this.
const emaHistCap = 256

// Config holds the indicator parameters for one pipeline instance.
type Config struct {
	EMAPeriod    int
	MAPeriod     int
	Slope        SlopeConfig
	RecentWindow int // finalized bars kept for snapshots
}

// Validate rejects invalid parameters eagerly, before any state exists.
func (c Config) Validate() error {
	if c.EMAPeriod <= 0 {
		return fmt.Errorf("indicator: ema period must be > 0, got %d", c.EMAPeriod)
	}
	if c.MAPeriod <= 0 {
		return fmt.Errorf("indicator: ma period must be > 0, got %d", c.MAPeriod)
	}
	if c.RecentWindow <= 0 {
		return fmt.Errorf("indicator: recent window must be > 0, got %d", c.RecentWindow)
	}
	return c.Slope.Validate()
}

// View is a self-consistent reading of all engine outputs, taken under one
// lock. Undefined indicator values carry ok=false.
type View struct {
	Price float64

	EMA   float64
	EMAOK bool
	MA    float64
	MAOK  bool

	Slope   float64
	SlopeOK bool

	Cross model.CrossSignal
	Gate  model.SlopeGate

	RecentBars    []model.Bar // oldest first, copies
	Provisional   *model.Bar  // still-forming bar, nil right after a close
	LastCloseTime int64
	FinalBars     int
}

// Engine maintains rolling indicator state for one symbol+interval series.
type Engine struct {
	mu  sync.RWMutex
	cfg Config

	ema *EMA
	ma  *SMA

	// Defined EMA values, oldest first, for slope queries.
	emaVals []float64

	// The two most recent finalized (EMA, MA) pairs for crossover.
	prev, curr valuePair

	recent        []model.Bar // last RecentWindow finalized bars
	provisional   *model.Bar
	currentPrice  float64
	lastCloseTime int64
	finalBars     int
}

// NewEngine creates an engine, rejecting invalid configuration eagerly.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ema, err := NewEMA(cfg.EMAPeriod)
	if err != nil {
		return nil, err
	}
	ma, err := NewSMA(cfg.MAPeriod)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		ema:     ema,
		ma:      ma,
		emaVals: make([]float64, 0, emaHistCap),
		recent:  make([]model.Bar, 0, cfg.RecentWindow),
	}, nil
}

// IngestHistorical seeds all state from an ordered backlog of finalized
// bars. Bars at or before the last processed close time are skipped, so
// overlapping backfills are safe.
func (e *Engine) IngestHistorical(bars []model.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range bars {
		if bars[i].CloseTime <= e.lastCloseTime {
			continue
		}
		e.applyFinal(bars[i])
	}
}

// IngestLive applies one normalized event and returns the resulting view.
//
// A provisional (non-final) event updates only the display-facing current
// price and forming bar; it is never folded into the permanent window.
// A final event whose close time was already processed is a no-op
// (idempotent by close_time key).
func (e *Engine) IngestLive(ev model.KlineEvent) View {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !ev.Final {
		bar := ev.Bar()
		e.provisional = &bar
		e.currentPrice = ev.Close
		return e.viewLocked()
	}

	if ev.CloseTime <= e.lastCloseTime {
		return e.viewLocked()
	}

	e.applyFinal(ev.Bar())
	return e.viewLocked()
}

// applyFinal advances all period state with one finalized bar.
// Caller holds e.mu.
func (e *Engine) applyFinal(b model.Bar) {
	e.ema.Update(b.Close)
	e.ma.Update(b.Close)

	if e.ema.Ready() {
		if len(e.emaVals) == emaHistCap {
			copy(e.emaVals, e.emaVals[1:])
			e.emaVals = e.emaVals[:emaHistCap-1]
		}
		e.emaVals = append(e.emaVals, e.ema.Value())
	}

	e.prev = e.curr
	e.curr = valuePair{
		ema:   e.ema.Value(),
		ma:    e.ma.Value(),
		emaOK: e.ema.Ready(),
		maOK:  e.ma.Ready(),
	}

	if len(e.recent) == e.cfg.RecentWindow {
		copy(e.recent, e.recent[1:])
		e.recent = e.recent[:e.cfg.RecentWindow-1]
	}
	e.recent = append(e.recent, b)

	e.lastCloseTime = b.CloseTime
	e.currentPrice = b.Close
	e.provisional = nil
	e.finalBars++
}

// View returns a self-consistent reading of all outputs using the
// configured slope parameters.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewLocked()
}

func (e *Engine) viewLocked() View {
	v := View{
		Price:         e.currentPrice,
		EMA:           e.curr.ema,
		EMAOK:         e.curr.emaOK,
		MA:            e.curr.ma,
		MAOK:          e.curr.maOK,
		Cross:         crossover(e.prev, e.curr),
		LastCloseTime: e.lastCloseTime,
		FinalBars:     e.finalBars,
	}

	v.Slope, v.SlopeOK = e.slopeLocked(e.cfg.Slope.Lookback, e.cfg.Slope.Mode, e.cfg.Slope.Normalize)
	v.Gate = e.gateLocked(e.cfg.Slope)

	v.RecentBars = make([]model.Bar, len(e.recent))
	copy(v.RecentBars, e.recent)
	if e.provisional != nil {
		bar := *e.provisional
		v.Provisional = &bar
	}
	return v
}

// Crossover derives golden/death cross from the two most recent finalized
// (EMA, MA) pairs.
func (e *Engine) Crossover() model.CrossSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return crossover(e.prev, e.curr)
}

// Slope estimates the EMA slope over the last lookback defined values.
// ok=false when fewer than lookback values exist or lookback < 2.
func (e *Engine) Slope(lookback int, mode SlopeMode, normalize bool) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.slopeLocked(lookback, mode, normalize)
}

func (e *Engine) slopeLocked(lookback int, mode SlopeMode, normalize bool) (float64, bool) {
	if lookback < 2 || len(e.emaVals) < lookback {
		return 0, false
	}
	return slopeOf(e.emaVals[len(e.emaVals)-lookback:], mode, normalize)
}

// SlopeGate evaluates the long/short slope thresholds for the given
// parameters. Both gates are false when the slope is undefined.
func (e *Engine) SlopeGate(sc SlopeConfig) model.SlopeGate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gateLocked(sc)
}

func (e *Engine) gateLocked(sc SlopeConfig) model.SlopeGate {
	s, ok := e.slopeLocked(sc.Lookback, sc.Mode, sc.Normalize)
	if !ok {
		return model.SlopeGate{}
	}
	gate := model.SlopeGate{
		LongOK:  s >= sc.MinSlope,
		ShortOK: s <= -sc.MinSlope,
	}
	if sc.StrictMonotonic {
		window := e.emaVals[len(e.emaVals)-sc.Lookback:]
		gate.LongOK = gate.LongOK && strictlyIncreasing(window)
		gate.ShortOK = gate.ShortOK && strictlyDecreasing(window)
	}
	return gate
}

// LastCloseTime returns the close time of the most recent finalized bar,
// or 0 before any bar has been processed. The fallback poller reuses this
// so polled prices never advance the permanent series.
func (e *Engine) LastCloseTime() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCloseTime
}
