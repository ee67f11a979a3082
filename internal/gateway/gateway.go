package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

// Call describes one outbound request to an upstream service.
// Retryable must only be set for idempotent lookups; the gateway
// never replays a call that could double a side effect.
type Call struct {
	Service        string
	Operation      string
	Timeout        time.Duration
	Retryable      bool
	IdempotencyKey string
	Invoke         func(ctx context.Context) (any, error)
}

type Config struct {
	DefaultTimeout   time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	RateLimitTimeout time.Duration
}

// Gateway is the single chokepoint for external calls. It keeps one
// circuit breaker per service name, applies per-call timeouts and
// grants retryable calls exactly one more attempt.
type Gateway struct {
	cfg      Config
	breakers map[string]*Breaker
	mu       sync.Mutex
	logger   *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Gateway {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = constants.APIConfig.ServiceTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = constants.CircuitBreakerConfig.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = constants.CircuitBreakerConfig.Cooldown
	}
	if cfg.RateLimitTimeout <= 0 {
		cfg.RateLimitTimeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}

	return &Gateway{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
		logger:   logger,
	}
}

// BreakerFor returns the breaker guarding a service, creating it on
// first use.
func (g *Gateway) BreakerFor(service string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	br, ok := g.breakers[service]
	if !ok {
		br = NewBreaker(service, g.cfg.FailureThreshold, g.cfg.Cooldown, g.logger)
		g.breakers[service] = br
	}
	return br
}

// Status reports every known breaker, for the health endpoint and
// logs.
func (g *Gateway) Status() []BreakerStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	statuses := make([]BreakerStatus, 0, len(g.breakers))
	for _, br := range g.breakers {
		statuses = append(statuses, br.GetStatus())
	}
	return statuses
}

// Execute runs one call through the service's breaker. An open
// circuit fails fast with SERVICE_UNAVAILABLE before the service is
// touched. Failures are classified into the shared taxonomy so
// handlers can degrade by kind.
func (g *Gateway) Execute(ctx context.Context, call Call) (any, error) {
	if call.Invoke == nil {
		return nil, errors.NewValidationError("call has no invoke function", "invoke", nil)
	}
	if call.Service == "" {
		return nil, errors.NewValidationError("call has no service name", "service", "")
	}

	br := g.BreakerFor(call.Service)
	attempts := 1
	if call.Retryable {
		attempts = constants.RetryConfig.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, g.classify(ctx, nil, call, ctx.Err())
		}

		if !br.Allow() {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, errors.NewBotError(
				fmt.Sprintf("%s is unavailable, circuit open", call.Service),
				errors.CodeServiceUnavailable,
				503,
				map[string]any{"service": call.Service, "operation": call.Operation},
			)
		}

		if attempt > 0 {
			select {
			case <-time.After(computeDelay(attempt)):
			case <-ctx.Done():
				br.ReleaseTrial()
				return nil, g.classify(ctx, nil, call, ctx.Err())
			}
			g.logger.Warn("Retrying external call",
				zap.String("service", call.Service),
				zap.String("operation", call.Operation),
				zap.Int("attempt", attempt+1),
			)
		}

		result, err := g.attempt(ctx, br, call)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !call.Retryable || !errors.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, br *Breaker, call Call) (any, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = g.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	type outcome struct {
		result any
		err    error
	}
	resCh := make(chan outcome, 1)

	go func() {
		defer cancel()
		start := time.Now()
		result, err := call.Invoke(callCtx)
		if err != nil {
			err = g.classify(ctx, callCtx, call, err)
			g.settle(br, call, err, time.Since(start))
			resCh <- outcome{nil, err}
			return
		}
		br.RecordSuccess()
		resCh <- outcome{result, nil}
	}()

	select {
	case out := <-resCh:
		return out.result, out.err
	case <-ctx.Done():
		// The event's budget ran out mid-call. The result, if one
		// ever arrives, is discarded; the goroutine above still
		// settles the breaker.
		return nil, g.classify(ctx, callCtx, call, ctx.Err())
	}
}

// settle applies breaker bookkeeping for a failed call. Failures
// caused by the event's own deadline do not count against the
// service.
func (g *Gateway) settle(br *Breaker, call Call, err error, elapsed time.Duration) {
	switch errors.CodeOf(err) {
	case errors.CodeDeadlineExceeded:
		// The aborted call may have been the half-open trial; free the
		// slot so the breaker does not wedge refusing every caller.
		br.ReleaseTrial()
		return
	case errors.CodeRateLimited:
		br.RecordFailure(g.cfg.RateLimitTimeout)
	default:
		br.RecordFailure(0)
	}

	g.logger.Warn("External call failed",
		zap.String("service", call.Service),
		zap.String("operation", call.Operation),
		zap.String("idempotency_key", call.IdempotencyKey),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

// classify maps raw call errors onto the shared taxonomy. Errors that
// already carry a code pass through untouched.
func (g *Gateway) classify(ctx, callCtx context.Context, call Call, err error) error {
	if code := errors.CodeOf(err); code != "" && code != errors.CodeAPIError {
		return err
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.CodeDeadlineExceeded,
			fmt.Sprintf("event deadline exceeded during %s call", call.Service), err)
	}
	if callCtx != nil && callCtx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.CodeTimeout,
			fmt.Sprintf("%s call timed out", call.Service), err)
	}
	if ctx.Err() == context.Canceled {
		return errors.Wrap(errors.CodeTimeout,
			fmt.Sprintf("%s call canceled", call.Service), err)
	}

	return errors.Wrap(errors.CodeUpstreamError,
		fmt.Sprintf("%s call failed", call.Service), err)
}

// computeDelay returns the back-off before a retry attempt.
func computeDelay(attempt int) time.Duration {
	delay := constants.RetryConfig.BaseDelay * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(constants.RetryConfig.Jitter)))
	return delay + jitter
}
