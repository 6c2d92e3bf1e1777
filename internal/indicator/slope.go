package indicator

import "fmt"

// SlopeMode selects how the EMA slope is estimated.
type SlopeMode string

const (
	// SlopeMeanDiff averages the first differences over the lookback
	// window — more sensitive.
	SlopeMeanDiff SlopeMode = "mean_diff"
	// SlopeLinReg fits an ordinary-least-squares line against index
	// 0..lookback-1 — more noise-resistant.
	SlopeLinReg SlopeMode = "linreg"
)

// SlopeConfig holds the slope estimation and gating parameters.
type SlopeConfig struct {
	Lookback        int
	Mode            SlopeMode
	MinSlope        float64
	Normalize       bool // divide by the latest EMA value (skipped when zero)
	StrictMonotonic bool
}

// Validate rejects invalid slope parameters eagerly.
func (c SlopeConfig) Validate() error {
	if c.Lookback < 2 {
		return fmt.Errorf("slope: lookback must be >= 2, got %d", c.Lookback)
	}
	switch c.Mode {
	case SlopeMeanDiff, SlopeLinReg:
	default:
		return fmt.Errorf("slope: unknown mode %q", c.Mode)
	}
	return nil
}

// slopeOf estimates the per-bar slope of vals. vals must hold exactly the
// lookback window, oldest first. Returns ok=false when the slope is
// undefined (fewer than 2 values, or degenerate linreg variance).
func slopeOf(vals []float64, mode SlopeMode, normalize bool) (float64, bool) {
	n := len(vals)
	if n < 2 {
		return 0, false
	}

	var slope float64
	switch mode {
	case SlopeLinReg:
		// OLS fit: x = 0..n-1, y = vals
		meanX := float64(n-1) / 2.0
		var meanY float64
		for _, v := range vals {
			meanY += v
		}
		meanY /= float64(n)

		var varX, covXY float64
		for i, v := range vals {
			dx := float64(i) - meanX
			varX += dx * dx
			covXY += dx * (v - meanY)
		}
		if varX == 0 {
			return 0, false
		}
		slope = covXY / varX
	default:
		// Mean of first differences
		var sum float64
		for i := 1; i < n; i++ {
			sum += vals[i] - vals[i-1]
		}
		slope = sum / float64(n-1)
	}

	if normalize {
		curr := vals[n-1]
		if curr != 0 {
			slope /= curr
		}
	}
	return slope, true
}

// strictlyIncreasing reports whether vals is strictly increasing.
func strictlyIncreasing(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i-1] >= vals[i] {
			return false
		}
	}
	return true
}

// strictlyDecreasing reports whether vals is strictly decreasing.
func strictlyDecreasing(vals []float64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i-1] <= vals[i] {
			return false
		}
	}
	return true
}
