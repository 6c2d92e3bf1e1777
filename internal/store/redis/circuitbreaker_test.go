package redis

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	fail := func() error { return errBackend }
	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.CurrentState())
	}

	// Open breaker rejects without calling through.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker must not invoke the function")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBackend })
	cb.Execute(func() error { return errBackend })

	if cb.CurrentState() != StateClosed {
		t.Errorf("non-consecutive failures tripped the breaker: %s", cb.CurrentState())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.Execute(func() error { return errBackend })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %s, want open", cb.CurrentState())
	}

	time.Sleep(20 * time.Millisecond)

	// Probe failure reopens.
	cb.Execute(func() error { return errBackend })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("failed probe should reopen, state = %s", cb.CurrentState())
	}

	time.Sleep(20 * time.Millisecond)

	// Probe success closes.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("successful probe should close, state = %s", cb.CurrentState())
	}
}

func TestBreakerStateChangeHook(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	var transitions []State
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}
