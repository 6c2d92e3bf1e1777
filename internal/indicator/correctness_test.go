package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// batchSMA recomputes SMA over the whole series, returning one value per
// input (NaN while undefined). Reference for drift checks.
func batchSMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for _, v := range closes[i+1-period : i+1] {
			sum += v
		}
		out[i] = sum / float64(period)
	}
	return out
}

// batchEMA recomputes EMA over the whole series: SMA seed at index
// period-1, recurrence afterwards.
func batchEMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	k := 2.0 / float64(period+1)
	for i := range closes {
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		if i+1 == period {
			var sum float64
			for _, v := range closes[:period] {
				sum += v
			}
			out[i] = sum / float64(period)
			continue
		}
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// SMA correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Closes: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102.0
	// SMA after bar 4: (102+104+103)/3 = 103.0
	// SMA after bar 5: (104+103+105)/3 = 104.0
	sma, err := NewSMA(3)
	if err != nil {
		t.Fatalf("NewSMA: %v", err)
	}

	closes := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, c := range closes {
		sma.Update(c)
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestSMA_UndefinedPrefix(t *testing.T) {
	// First period-1 outputs must be undefined for any period.
	for _, period := range []int{2, 5, 15} {
		sma, err := NewSMA(period)
		if err != nil {
			t.Fatalf("NewSMA(%d): %v", period, err)
		}
		for i := 0; i < period-1; i++ {
			sma.Update(float64(100 + i))
			if sma.Ready() {
				t.Errorf("period %d: ready after %d bars", period, i+1)
			}
		}
		sma.Update(200)
		if !sma.Ready() {
			t.Errorf("period %d: not ready after %d bars", period, period)
		}
	}
}

func TestSMA_RejectsInvalidPeriod(t *testing.T) {
	if _, err := NewSMA(0); err == nil {
		t.Error("NewSMA(0): expected error")
	}
	if _, err := NewSMA(-3); err == nil {
		t.Error("NewSMA(-3): expected error")
	}
}

// ────────────────────────────────────────────────────────────
// EMA correctness
// ────────────────────────────────────────────────────────────

func TestEMA_SeedEqualsSMA(t *testing.T) {
	// EMA(3): k = 0.5
	// Closes: 100, 102, 104, 103, 105
	// Seed at bar 3: (100+102+104)/3 = 102.0
	// Bar 4: 103*0.5 + 102.0*0.5 = 102.5
	// Bar 5: 105*0.5 + 102.5*0.5 = 103.75
	ema, err := NewEMA(3)
	if err != nil {
		t.Fatalf("NewEMA: %v", err)
	}

	closes := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, c := range closes {
		ema.Update(c)
		if ema.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-9)
		}
	}
}

func TestEMA_RejectsInvalidPeriod(t *testing.T) {
	if _, err := NewEMA(0); err == nil {
		t.Error("NewEMA(0): expected error")
	}
}

// TestIncrementalEqualsBatch verifies the no-drift invariant: processing
// bars one at a time equals batch recomputation over the same prefix, for
// every prefix length.
func TestIncrementalEqualsBatch(t *testing.T) {
	closes := []float64{
		100.0, 101.5, 99.2, 103.7, 104.1, 102.8, 106.3, 105.0,
		107.9, 110.2, 108.4, 109.9, 112.3, 111.1, 113.8, 115.0,
	}

	for _, period := range []int{2, 3, 5, 7} {
		sma, _ := NewSMA(period)
		ema, _ := NewEMA(period)
		refSMA := batchSMA(closes, period)
		refEMA := batchEMA(closes, period)

		for i, c := range closes {
			sma.Update(c)
			ema.Update(c)

			if !math.IsNaN(refSMA[i]) {
				if !sma.Ready() {
					t.Fatalf("SMA(%d) prefix %d: not ready but batch defined", period, i+1)
				}
				assertClose(t, "SMA incremental vs batch", sma.Value(), refSMA[i], 1e-9)
			} else if sma.Ready() {
				t.Fatalf("SMA(%d) prefix %d: ready but batch undefined", period, i+1)
			}

			if !math.IsNaN(refEMA[i]) {
				if !ema.Ready() {
					t.Fatalf("EMA(%d) prefix %d: not ready but batch defined", period, i+1)
				}
				assertClose(t, "EMA incremental vs batch", ema.Value(), refEMA[i], 1e-9)
			} else if ema.Ready() {
				t.Fatalf("EMA(%d) prefix %d: ready but batch undefined", period, i+1)
			}
		}
	}
}

func TestPeek_DoesNotMutate(t *testing.T) {
	sma, _ := NewSMA(3)
	ema, _ := NewEMA(3)
	for _, c := range []float64{100, 102, 104} {
		sma.Update(c)
		ema.Update(c)
	}
	smaBefore, emaBefore := sma.Value(), ema.Value()

	sma.peek(200)
	ema.peek(200)

	assertClose(t, "SMA after peek", sma.Value(), smaBefore, 1e-9)
	assertClose(t, "EMA after peek", ema.Value(), emaBefore, 1e-9)

	// peek previews the window shift: (102+104+106)/3 = 104
	assertClose(t, "SMA peek", sma.peek(106), 104.0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Crossover
// ────────────────────────────────────────────────────────────

func TestCrossover_Golden(t *testing.T) {
	// ema: ..., 10, 12   ma: ..., 11, 11 → golden
	sig := crossover(
		valuePair{ema: 10, ma: 11, emaOK: true, maOK: true},
		valuePair{ema: 12, ma: 11, emaOK: true, maOK: true},
	)
	if !sig.GoldenCross {
		t.Error("expected golden cross")
	}
	if sig.DeathCross {
		t.Error("unexpected death cross")
	}
}

func TestCrossover_Death(t *testing.T) {
	// ema: ..., 11, 9   ma: ..., 10, 10 → death
	sig := crossover(
		valuePair{ema: 11, ma: 10, emaOK: true, maOK: true},
		valuePair{ema: 9, ma: 10, emaOK: true, maOK: true},
	)
	if !sig.DeathCross {
		t.Error("expected death cross")
	}
	if sig.GoldenCross {
		t.Error("unexpected golden cross")
	}
}

func TestCrossover_UndefinedInputs(t *testing.T) {
	// Any undefined value suppresses both signals.
	sig := crossover(
		valuePair{ema: 10, ma: 11, emaOK: true, maOK: false},
		valuePair{ema: 12, ma: 11, emaOK: true, maOK: true},
	)
	if sig.GoldenCross || sig.DeathCross {
		t.Errorf("expected no signal with undefined input, got %+v", sig)
	}
}

func TestCrossover_TouchThenBreak(t *testing.T) {
	// Equality on the previous bar still counts toward a golden cross.
	sig := crossover(
		valuePair{ema: 11, ma: 11, emaOK: true, maOK: true},
		valuePair{ema: 12, ma: 11, emaOK: true, maOK: true},
	)
	if !sig.GoldenCross {
		t.Error("expected golden cross on touch-then-break")
	}
}

// ────────────────────────────────────────────────────────────
// Slope
// ────────────────────────────────────────────────────────────

func TestSlope_LinReg(t *testing.T) {
	// values [1,2,3] against x=[0,1,2]: slope = 1
	s, ok := slopeOf([]float64{1, 2, 3}, SlopeLinReg, false)
	if !ok {
		t.Fatal("expected defined slope")
	}
	assertClose(t, "linreg raw", s, 1.0, 1e-9)

	// normalized: 1 / last value 3 ≈ 0.3333
	s, ok = slopeOf([]float64{1, 2, 3}, SlopeLinReg, true)
	if !ok {
		t.Fatal("expected defined slope")
	}
	assertClose(t, "linreg normalized", s, 1.0/3.0, 1e-9)
}

func TestSlope_MeanDiff(t *testing.T) {
	// diffs: +2, -1, +5 → mean = 2
	s, ok := slopeOf([]float64{10, 12, 11, 16}, SlopeMeanDiff, false)
	if !ok {
		t.Fatal("expected defined slope")
	}
	assertClose(t, "mean_diff", s, 2.0, 1e-9)
}

func TestSlope_NormalizeSkippedOnZero(t *testing.T) {
	// Latest value 0 — normalization skipped, raw slope returned.
	s, ok := slopeOf([]float64{2, 1, 0}, SlopeLinReg, true)
	if !ok {
		t.Fatal("expected defined slope")
	}
	assertClose(t, "zero-latest normalize", s, -1.0, 1e-9)
}

func TestSlope_UndefinedWhenShort(t *testing.T) {
	if _, ok := slopeOf([]float64{5}, SlopeMeanDiff, false); ok {
		t.Error("expected undefined slope for single value")
	}
	if _, ok := slopeOf(nil, SlopeLinReg, false); ok {
		t.Error("expected undefined slope for empty window")
	}
}

func TestSlopeConfig_Validate(t *testing.T) {
	bad := SlopeConfig{Lookback: 1, Mode: SlopeLinReg}
	if err := bad.Validate(); err == nil {
		t.Error("lookback=1: expected error")
	}
	bad = SlopeConfig{Lookback: 3, Mode: "parabolic"}
	if err := bad.Validate(); err == nil {
		t.Error("unknown mode: expected error")
	}
	good := SlopeConfig{Lookback: 4, Mode: SlopeMeanDiff}
	if err := good.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
