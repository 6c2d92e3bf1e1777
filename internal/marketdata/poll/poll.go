// Package poll is the fallback ingestion channel. While the primary
// stream is down, each poll fetches the latest traded price over REST and
// synthesizes a provisional kline event from it. The event reuses the
// last known close time, so polled prices keep the display fresh without
// ever advancing the permanent indicator series.
package poll

import (
	"context"
	"log/slog"
	"time"

	"emastream/internal/model"
)

// PriceSource fetches the latest traded price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Poller implements the failover controller's poll attempt.
type Poller struct {
	src      PriceSource
	symbol   string
	interval string
	log      *slog.Logger

	// lastCloseTime supplies the close time of the most recent finalized
	// bar (0 before any bar exists).
	lastCloseTime func() int64

	// sink receives each synthesized event, same entry point as the
	// primary stream.
	sink func(model.KlineEvent)

	// OnPoll is called once per attempt with its outcome, for metrics.
	OnPoll func(err error)
}

// New creates a poller feeding sink.
func New(src PriceSource, symbol, interval string, lastCloseTime func() int64, sink func(model.KlineEvent), log *slog.Logger) *Poller {
	return &Poller{
		src:           src,
		symbol:        symbol,
		interval:      interval,
		log:           log,
		lastCloseTime: lastCloseTime,
		sink:          sink,
	}
}

// Poll performs one attempt: fetch price, synthesize a provisional event,
// hand it to the sink. Returns the fetch error, if any; the failover loop
// retries on its next tick.
func (p *Poller) Poll(ctx context.Context) error {
	price, err := p.src.GetPrice(ctx, p.symbol)
	if p.OnPoll != nil {
		p.OnPoll(err)
	}
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	closeTime := p.lastCloseTime()
	if closeTime == 0 {
		// No finalized bar yet; stamp with wall clock so the event is
		// still valid. It stays provisional either way.
		closeTime = now
	}

	ev := model.KlineEvent{
		Symbol:    p.symbol,
		Interval:  p.interval,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		OpenTime:  closeTime,
		CloseTime: closeTime,
		EventTime: now,
		Final:     false,
	}
	p.log.Debug("fallback poll", "price", price, "close_time", closeTime)
	p.sink(ev)
	return nil
}
