package breaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned by Allow while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config holds configuration for the circuit breaker
type Config struct {
	Name                string
	FailureThreshold    int           // consecutive failures before opening
	SuccessThreshold    int           // successes in half-open before closing
	Timeout             time.Duration // time spent open before probing
	HalfOpenMaxRequests int           // concurrent probes allowed while half-open
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config    Config
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
	mutex     sync.Mutex
	log       *zap.Logger
	now       func() time.Time
}

// New creates a new circuit breaker
func New(config Config, log *zap.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		log:    log,
		now:    time.Now,
	}
}

// State returns the current state, moving open to half-open once the
// timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.refresh()
	return cb.state
}

func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.failures = 0
		cb.successes = 0
		cb.inFlight = 0
	}
}

// Allow reports whether a call may proceed. Every nil return must be
// paired with exactly one Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.refresh()
	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.config.HalfOpenMaxRequests {
			return ErrOpen
		}
		cb.inFlight++
	}
	return nil
}

// Record reports the outcome of an allowed call.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if !success {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold) {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.log.Warn("Circuit breaker opened",
				zap.String("breaker", cb.config.Name),
				zap.Int("failures", cb.failures))
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.successes = 0
			cb.log.Info("Circuit breaker closed", zap.String("breaker", cb.config.Name))
		}
	}
}
