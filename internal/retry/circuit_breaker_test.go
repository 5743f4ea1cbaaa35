package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sberr "switchboard/internal/errors"
)

func breaker(maxFailures int, reset time.Duration, halfOpenMax int) *CircuitBreaker {
	return NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  maxFailures,
		ResetTimeout: reset,
		HalfOpenMax:  halfOpenMax,
	})
}

func trip(cb *CircuitBreaker, times int) {
	for i := 0; i < times; i++ {
		cb.Execute(func() error { return errors.New("fail") }) //nolint:errcheck
	}
}

func TestBreaker_PassesWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb := breaker(3, time.Second, 1)

	trip(cb, 2)
	if got := cb.CurrentState(); got != StateClosed {
		t.Fatalf("state = %s before threshold, want closed", got)
	}

	trip(cb, 1)
	if got := cb.CurrentState(); got != StateOpen {
		t.Errorf("state = %s after threshold, want open", got)
	}
	if got := cb.Failures(); got != 3 {
		t.Errorf("Failures = %d, want 3", got)
	}
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	cb := breaker(1, time.Hour, 1)
	trip(cb, 1)

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	if !sberr.Is(err, sberr.ErrCircuitOpen) {
		t.Errorf("error = %v, want it to wrap ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the circuit was open")
	}
}

func TestBreaker_ProbesAfterResetTimeout(t *testing.T) {
	cb := breaker(1, 10*time.Millisecond, 2)
	trip(cb, 1)

	time.Sleep(20 * time.Millisecond)

	// First probe succeeds but one success is not enough to close.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if got := cb.CurrentState(); got != StateHalfOpen {
		t.Errorf("state = %s after first probe, want half-open", got)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}
	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %s after probe streak, want closed", got)
	}
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	cb := breaker(1, 10*time.Millisecond, 2)
	trip(cb, 1)

	time.Sleep(20 * time.Millisecond)
	trip(cb, 1)

	if got := cb.CurrentState(); got != StateOpen {
		t.Errorf("state = %s after failed probe, want open", got)
	}
}

func TestBreaker_ManualReset(t *testing.T) {
	cb := breaker(1, time.Hour, 1)
	trip(cb, 1)

	cb.Reset()
	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %s after reset, want closed", got)
	}
	if got := cb.Failures(); got != 0 {
		t.Errorf("Failures = %d after reset, want 0", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("attempt rejected after reset: %v", err)
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s->%s", from, to))
		},
	})

	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)
	cb.Execute(func() error { return nil }) //nolint:errcheck

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreaker_NilConfigDefaults(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.maxFailures != 5 || cb.halfOpenMax != 2 {
		t.Errorf("defaults = (%d, %d), want (5, 2)", cb.maxFailures, cb.halfOpenMax)
	}
}

func TestBreaker_SuccessClearsStreak(t *testing.T) {
	cb := breaker(3, time.Second, 1)

	trip(cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cb.Failures(); got != 0 {
		t.Errorf("Failures = %d after success, want 0", got)
	}

	// The cleared streak means two more failures still do not open it.
	trip(cb, 2)
	if got := cb.CurrentState(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}
