package indicator

import "fmt"

// EMA calculates an Exponential Moving Average seeded by the SMA over the
// first period closes, matching exchange charting behavior:
//
//	EMA_t = close_t*k + EMA_{t-1}*(1-k),  k = 2/(period+1)
//
// O(1) per update — no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates an EMA with the given period. Rejects period <= 0 eagerly.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema: period must be > 0, got %d", period)
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}, nil
}

// Update feeds one finalized close.
func (e *EMA) Update(close float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for the initial SMA seed
		e.sum += close
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (close * e.multiplier) + (e.current * (1 - e.multiplier))
}

// Value returns the current EMA. Meaningless until Ready.
func (e *EMA) Value() float64 { return e.current }

// Ready reports whether the seed point has been reached.
func (e *EMA) Ready() bool { return e.count >= e.period }

// Period returns the configured period.
func (e *EMA) Period() int { return e.period }

// peek computes what Value() would be with one more close without mutating
// state. Before the seed point the close itself is the best estimate.
func (e *EMA) peek(close float64) float64 {
	if e.count < e.period {
		return close
	}
	return (close * e.multiplier) + (e.current * (1 - e.multiplier))
}
