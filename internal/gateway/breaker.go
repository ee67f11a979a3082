package gateway

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"
	CircuitStateOpen     CircuitState = "OPEN"
	CircuitStateHalfOpen CircuitState = "HALF_OPEN"
)

// String implements Stringer interface
func (s CircuitState) String() string {
	return string(s)
}

// Breaker implements the circuit breaker pattern for one upstream
// service. Consecutive failures open the circuit; after the cooldown
// a single trial call decides whether it closes again. While a trial
// is in flight every other caller is refused.
type Breaker struct {
	service          string
	state            CircuitState
	failureCount     int
	failureThreshold int
	cooldown         time.Duration
	nextRetryTime    time.Time
	trialInFlight    bool
	logger           *zap.Logger
	mu               sync.Mutex
}

func NewBreaker(service string, failureThreshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	return &Breaker{
		service:          service,
		state:            CircuitStateClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		logger:           logger,
	}
}

// Allow reports whether a call may proceed right now. Crossing the
// cooldown boundary claims the half-open trial slot for the caller.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		return true
	case CircuitStateOpen:
		if time.Now().Before(b.nextRetryTime) {
			return false
		}
		b.transitionTo(CircuitStateHalfOpen)
		b.trialInFlight = true
		return true
	case CircuitStateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateHalfOpen {
		b.logger.Info("Circuit breaker: service recovered, closing circuit",
			zap.String("service", b.service),
		)
		b.transitionTo(CircuitStateClosed)
		b.failureCount = 0
		b.trialInFlight = false
	} else if b.state == CircuitStateClosed && b.failureCount > 0 {
		b.logger.Debug("Circuit breaker: resetting failure count",
			zap.String("service", b.service),
			zap.Int("was", b.failureCount),
		)
		b.failureCount = 0
	}
}

// RecordFailure records a failed call. A positive customCooldown
// overrides the configured one, used for rate-limit responses that
// deserve a longer back-off.
func (b *Breaker) RecordFailure(customCooldown time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++

	timeout := b.cooldown
	if customCooldown > 0 {
		timeout = customCooldown
	}

	b.logger.Warn("Circuit breaker: failure recorded",
		zap.String("service", b.service),
		zap.Int("count", b.failureCount),
		zap.Int("threshold", b.failureThreshold),
		zap.Duration("timeout", timeout),
	)

	if b.state == CircuitStateHalfOpen {
		// Failed trial reopens immediately.
		b.logger.Error("Circuit breaker: trial call failed, reopening circuit",
			zap.String("service", b.service),
		)
		b.trialInFlight = false
		b.nextRetryTime = time.Now().Add(timeout)
		b.transitionTo(CircuitStateOpen)
	} else if b.state == CircuitStateClosed && b.failureCount >= b.failureThreshold {
		b.logger.Error("Circuit breaker: threshold reached, opening circuit",
			zap.String("service", b.service),
			zap.Int("threshold", b.failureThreshold),
		)
		b.nextRetryTime = time.Now().Add(timeout)
		b.transitionTo(CircuitStateOpen)
	}
}

// ReleaseTrial frees the half-open trial slot without a verdict. Used
// when a trial is aborted by the caller's own deadline, which says
// nothing about the service's health; the next caller past the
// cooldown gets a fresh trial.
func (b *Breaker) ReleaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateHalfOpen && b.trialInFlight {
		b.trialInFlight = false
		b.logger.Debug("Circuit breaker: trial aborted, slot released",
			zap.String("service", b.service),
		)
	}
}

// transitionTo changes the circuit state (internal, must be called with lock held)
func (b *Breaker) transitionTo(newState CircuitState) {
	oldState := b.state
	b.state = newState

	nextRetry := "n/a"
	if newState == CircuitStateOpen {
		nextRetry = b.nextRetryTime.Format(time.RFC3339)
	}

	b.logger.Info("Circuit breaker: state transition",
		zap.String("service", b.service),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
		zap.Int("failure_count", b.failureCount),
		zap.String("next_retry", nextRetry),
	)
}

// State returns the current circuit state without side effects.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually resets the circuit breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("Circuit breaker: manual reset",
		zap.String("service", b.service),
	)
	b.state = CircuitStateClosed
	b.failureCount = 0
	b.trialInFlight = false
	b.nextRetryTime = time.Time{}
}

// GetStatus returns the current status
func (b *Breaker) GetStatus() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := BreakerStatus{
		Service:      b.service,
		State:        b.state,
		FailureCount: b.failureCount,
	}

	if b.state == CircuitStateOpen {
		t := b.nextRetryTime
		status.NextRetryTime = &t
	}

	return status
}

// BreakerStatus represents the circuit breaker status
type BreakerStatus struct {
	Service       string
	State         CircuitState
	FailureCount  int
	NextRetryTime *time.Time
}
