package indicator

import "fmt"

// SMA calculates a Simple Moving Average over a rolling window of finalized
// closes. Uses a preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates an SMA with the given period. Rejects period <= 0 eagerly.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma: period must be > 0, got %d", period)
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}, nil
}

// Update feeds one finalized close.
func (s *SMA) Update(close float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = close
	s.sum += close
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

// Value returns the current mean. Meaningless until Ready.
func (s *SMA) Value() float64 { return s.current }

// Ready reports whether period closes have been accumulated.
func (s *SMA) Ready() bool { return s.count >= s.period }

// Period returns the configured window length.
func (s *SMA) Period() int { return s.period }

// peek computes what Value() would be with one more close without mutating
// state.
func (s *SMA) peek(close float64) float64 {
	if s.count < s.period {
		return (s.sum + close) / float64(s.count+1)
	}
	// Preview: the oldest value (at idx) falls out of the window
	return (s.sum - s.buf[s.idx] + close) / float64(s.period)
}
