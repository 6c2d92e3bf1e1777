package redis

import (
	"context"

	"emastream/internal/model"
)

// BarQueue decouples the ingestion hot path from Redis write latency.
// Enqueue never blocks: when the buffer is full the bar is discarded and
// OnDrop fires, so a slow or circuit-broken Redis cannot stall ingestion.
type BarQueue struct {
	ch chan model.Bar

	// OnDrop is called once per discarded bar, for metrics.
	OnDrop func()
}

// NewBarQueue creates a queue with the given buffer capacity.
func NewBarQueue(capacity int) *BarQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &BarQueue{ch: make(chan model.Bar, capacity)}
}

// Enqueue offers one finalized bar. Reports false when the buffer was full
// and the bar was discarded.
func (q *BarQueue) Enqueue(bar model.Bar) bool {
	select {
	case q.ch <- bar:
		return true
	default:
		if q.OnDrop != nil {
			q.OnDrop()
		}
		return false
	}
}

// Drain delivers queued bars to write until ctx is cancelled.
func (q *BarQueue) Drain(ctx context.Context, write func(model.Bar)) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar := <-q.ch:
			write(bar)
		}
	}
}
