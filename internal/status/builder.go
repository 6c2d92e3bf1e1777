// Package status assembles point-in-time snapshots of the whole pipeline
// and serves them to observers, pull (GET /status) and push (GET /ws).
package status

import (
	"time"

	"emastream/internal/indicator"
	"emastream/internal/model"
)

// recentTradeCount is how many recent fills a snapshot carries.
const recentTradeCount = 5

// TradeSource supplies the trading collaborator's recent fills and open
// position. A nil source leaves those snapshot fields empty.
type TradeSource interface {
	RecentTrades(n int) []model.Trade
	Position() *model.Position
}

// Builder turns an indicator view plus channel state into an immutable
// Snapshot. It does no I/O and takes no locks of its own; the view it is
// handed is already self-consistent.
type Builder struct {
	symbol   string
	interval string
	trades   TradeSource
}

// NewBuilder creates a builder for one symbol+interval. trades may be nil.
func NewBuilder(symbol, interval string, trades TradeSource) *Builder {
	return &Builder{symbol: symbol, interval: interval, trades: trades}
}

// Build assembles a snapshot and stamps it with the assembly time.
// Undefined indicator values become nil pointers (JSON null).
func (b *Builder) Build(v indicator.View, ch model.ChannelState) *model.Snapshot {
	now := time.Now().UTC()

	snap := &model.Snapshot{
		Symbol:       b.symbol,
		Interval:     b.interval,
		Channel:      ch,
		CurrentPrice: v.Price,
		Cross:        v.Cross,
		Gate:         v.Gate,
		RecentKlines: v.RecentBars,
		LatestKline:  v.Provisional,
		ServerTime:   now.UnixMilli(),
		AssembledAt:  now,
	}

	if v.EMAOK {
		snap.EMA = ptr(v.EMA)
	}
	if v.MAOK {
		snap.MA = ptr(v.MA)
	}
	if v.SlopeOK {
		snap.Slope = ptr(v.Slope)
	}

	if b.trades != nil {
		snap.RecentTrades = b.trades.RecentTrades(recentTradeCount)
		snap.Position = b.trades.Position()
	}

	return snap
}

func ptr(f float64) *float64 { return &f }
