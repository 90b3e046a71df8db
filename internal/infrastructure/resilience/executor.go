package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Outcome is a classified collaborator failure. Retry asks for another
// attempt within the policy budget; TripBreaker counts the failure toward
// opening the operation's circuit. Client errors set neither.
type Outcome struct {
	Retry       bool
	TripBreaker bool
}

// Classifier maps one collaborator's error shapes onto an Outcome.
type Classifier func(err error) Outcome

// Executor runs collaborator calls under a Policy. Each operation name
// gets its own circuit breaker, so a dead embed endpoint does not block
// generation against the same provider.
type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify Classifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = permanentFailure
	}

	if !e.policy.BreakerEnabled {
		return e.attempt(ctx, op, fn, classify)
	}

	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, op, fn, classify)
	})
	return err
}

// attempt runs the retry loop. The final error is always the last one the
// call produced, never a retry bookkeeping error.
func (e *Executor) attempt(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classify Classifier,
) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr).Retry || attempt >= e.policy.MaxAttempts {
			return lastErr
		}

		wait := e.backoff(attempt)
		slog.Warn("dependency_retry",
			"operation", operation,
			"attempt", attempt,
			"remaining", e.policy.MaxAttempts-attempt,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return lastErr
		}
	}
}

// backoff grows geometrically from InitialBackoff, capped at MaxBackoff.
func (e *Executor) backoff(attempt int) time.Duration {
	wait := e.policy.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * e.policy.BackoffFactor)
		if wait >= e.policy.MaxBackoff {
			return e.policy.MaxBackoff
		}
	}
	if wait > e.policy.MaxBackoff {
		return e.policy.MaxBackoff
	}
	return wait
}

func (e *Executor) breaker(operation string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.policy.BreakerProbes,
		Timeout:     e.policy.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.policy.BreakerMinSample {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.policy.BreakerTripRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).TripBreaker
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("dependency_breaker_state",
				"operation", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func permanentFailure(error) Outcome {
	return Outcome{TripBreaker: true}
}

// sleep waits for the backoff or the context, whichever ends first.
func sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
