package retry

import (
	"fmt"
	"sync"
	"time"

	sberr "switchboard/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State is the breaker's position.
type State int

const (
	// StateClosed passes attempts through; the host is believed good.
	StateClosed State = iota
	// StateOpen rejects attempts outright; the host keeps failing and
	// dialing it again would only add latency to every create request.
	StateOpen
	// StateHalfOpen admits probe attempts to test whether the host
	// has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is how many consecutive establish failures a host is
	// allowed before the circuit opens (default 5).
	MaxFailures int
	// ResetTimeout is how long an open circuit waits before admitting
	// probe attempts (default 30s).
	ResetTimeout time.Duration
	// HalfOpenMax is the probe streak required to close the circuit
	// again (default 2).
	HalfOpenMax int
	// OnStateChange is called on every transition.  It runs under the
	// breaker lock, so keep it fast.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig mirrors the connect defaults in the
// config package.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker stops repeated establish attempts against a host that
// keeps failing.  The daemon keeps one breaker per host, shared across
// every session targeting it, so one unreachable bastion cannot soak
// up the whole retry budget of each create request in turn.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failureStreak int
	probeStreak   int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	lastFailure   time.Time
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a breaker from cfg; nil gets the defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	maxF := cfg.MaxFailures
	if maxF <= 0 {
		maxF = 5
	}
	rt := cfg.ResetTimeout
	if rt <= 0 {
		rt = 30 * time.Second
	}
	hom := cfg.HalfOpenMax
	if hom <= 0 {
		hom = 2
	}
	return &CircuitBreaker{
		state:         StateClosed,
		maxFailures:   maxF,
		resetTimeout:  rt,
		halfOpenMax:   hom,
		onStateChange: cfg.OnStateChange,
	}
}

// Execute runs fn through the breaker.  While the circuit is open, fn
// is not called and an error wrapping [sberr.ErrCircuitOpen] comes
// back immediately; the establish path treats that as permanent.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker's position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureStreak
}

// Reset forces the breaker closed and forgets the failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureStreak = 0
	cb.probeStreak = 0
	cb.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

// admit decides whether an attempt may proceed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if time.Since(cb.lastFailure) > cb.resetTimeout {
		cb.transition(StateHalfOpen)
		return nil
	}
	remaining := cb.resetTimeout - time.Since(cb.lastFailure)
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		sberr.ErrCircuitOpen, cb.failureStreak, remaining.Truncate(time.Second))
}

// record folds an attempt's outcome into the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureStreak++
		cb.probeStreak = 0
		cb.lastFailure = time.Now()

		// A failed probe reopens immediately; in closed state the
		// streak has to reach the threshold first.
		if cb.state == StateHalfOpen || cb.failureStreak >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	cb.probeStreak++
	switch cb.state {
	case StateHalfOpen:
		if cb.probeStreak >= cb.halfOpenMax {
			cb.failureStreak = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failureStreak = 0
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
