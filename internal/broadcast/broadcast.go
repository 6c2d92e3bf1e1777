// Package broadcast fans snapshots out from the single producer (the
// ingestion task) to any number of long-lived subscribers.
//
// Each subscriber owns a bounded FIFO ring. Publish never blocks: when a
// subscriber's ring is full the OLDEST snapshot is evicted to make room,
// keeping the most recent state visible (drop-oldest policy). A slow or
// stuck subscriber therefore never delays the producer or its peers, and
// memory stays bounded by capacity regardless of consumption speed.
package broadcast

import (
	"context"
	"sync"

	"emastream/internal/model"
)

// DefaultCapacity is the per-subscriber ring capacity when none is given.
const DefaultCapacity = 1000

// Distributor fans out snapshots to registered subscribers.
type Distributor struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	cap    int
	closed bool

	// OnDrop is called once per evicted snapshot, for metrics.
	OnDrop func()
}

// New creates a Distributor with the given per-subscriber capacity.
// Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Distributor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Distributor{
		subs: make(map[*Subscriber]struct{}),
		cap:  capacity,
	}
}

// Subscribe registers a new subscriber with its own independent ring.
// Returns nil after Close.
func (d *Distributor) Subscribe() *Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	s := &Subscriber{
		buf:  make([]*model.Snapshot, d.cap),
		wake: make(chan struct{}, 1),
	}
	d.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes a subscriber and releases its pending reader.
func (d *Distributor) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	d.mu.Lock()
	delete(d.subs, s)
	d.mu.Unlock()
	s.close()
}

// Publish offers a snapshot to every subscriber. Never blocks.
func (d *Distributor) Publish(snap *model.Snapshot) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for s := range d.subs {
		if s.push(snap) && d.OnDrop != nil {
			d.OnDrop()
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (d *Distributor) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close releases all subscribers. Subsequent Publish calls are no-ops.
func (d *Distributor) Close() {
	d.mu.Lock()
	subs := make([]*Subscriber, 0, len(d.subs))
	for s := range d.subs {
		subs = append(subs, s)
	}
	d.subs = make(map[*Subscriber]struct{})
	d.closed = true
	d.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscriber is one logical view of the snapshot stream. Reads are FIFO.
// No state is shared between subscribers.
type Subscriber struct {
	mu     sync.Mutex
	buf    []*model.Snapshot // ring
	head   int               // index of oldest
	size   int
	closed bool

	// wake carries at most one pending notification; Next re-checks the
	// ring after each wakeup so coalesced signals are safe.
	wake chan struct{}
}

// push appends a snapshot, evicting the oldest on overflow.
// Reports whether an eviction happened.
func (s *Subscriber) push(snap *model.Snapshot) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if s.size == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		dropped = true
	}
	s.buf[(s.head+s.size)%len(s.buf)] = snap
	s.size++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped
}

// Next blocks until a snapshot is available, the subscriber is closed, or
// ctx is done. Returns ok=false when no more snapshots will arrive.
func (s *Subscriber) Next(ctx context.Context) (*model.Snapshot, bool) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			snap := s.buf[s.head]
			s.buf[s.head] = nil
			s.head = (s.head + 1) % len(s.buf)
			s.size--
			s.mu.Unlock()
			return snap, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-s.wake:
		}
	}
}

// Pending returns the number of buffered snapshots.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}
