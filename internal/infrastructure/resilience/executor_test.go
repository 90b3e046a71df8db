package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func retryAlways(err error) Outcome {
	return Outcome{Retry: true, TripBreaker: true}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastPolicy(3))

	attempts := 0
	err := exec.Execute(context.Background(), "llm.generate", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, retryAlways)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnNonRetryableOutcome(t *testing.T) {
	exec := NewExecutor(fastPolicy(3))

	attempts := 0
	errBadRequest := errors.New("invalid prompt")
	err := exec.Execute(context.Background(), "llm.generate", func(context.Context) error {
		attempts++
		return errBadRequest
	}, func(error) Outcome {
		return Outcome{}
	})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected the call error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestExecuteReturnsLastCallError(t *testing.T) {
	exec := NewExecutor(fastPolicy(2))

	errFirst := errors.New("first")
	errSecond := errors.New("second")
	calls := 0
	err := exec.Execute(context.Background(), "queue.publish", func(context.Context) error {
		calls++
		if calls == 1 {
			return errFirst
		}
		return errSecond
	}, retryAlways)
	if !errors.Is(err, errSecond) {
		t.Fatalf("expected last attempt error, got %v", err)
	}
}

func TestExecuteHonoursContextCancellation(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		BackoffFactor:  2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errDown := errors.New("down")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := exec.Execute(ctx, "queue.publish", func(context.Context) error {
		attempts++
		return errDown
	}, retryAlways)
	if !errors.Is(err, errDown) {
		t.Fatalf("expected last call error after cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected backoff to be cancelled after 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterRepeatedFailures(t *testing.T) {
	policy := fastPolicy(1)
	policy.BreakerEnabled = true
	policy.BreakerMinSample = 2
	policy.BreakerTripRatio = 0.5
	policy.BreakerCooldown = time.Minute
	policy.BreakerProbes = 1
	exec := NewExecutor(policy)

	errDown := errors.New("broker down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "queue.publish", func(context.Context) error {
			return errDown
		}, retryAlways)
		if !errors.Is(err, errDown) {
			t.Fatalf("warm-up call %d: expected broker error, got %v", i, err)
		}
	}

	calls := 0
	err := exec.Execute(context.Background(), "queue.publish", func(context.Context) error {
		calls++
		return nil
	}, retryAlways)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("open circuit must not invoke the callback, got %d calls", calls)
	}
}

func TestBreakerIgnoresNonTrippingFailures(t *testing.T) {
	policy := fastPolicy(1)
	policy.BreakerEnabled = true
	policy.BreakerMinSample = 2
	policy.BreakerTripRatio = 0.5
	policy.BreakerCooldown = time.Minute
	policy.BreakerProbes = 1
	exec := NewExecutor(policy)

	errClient := errors.New("bad request")
	clientOnly := func(error) Outcome {
		return Outcome{}
	}
	for i := 0; i < 5; i++ {
		err := exec.Execute(context.Background(), "llm.generate", func(context.Context) error {
			return errClient
		}, clientOnly)
		if !errors.Is(err, errClient) {
			t.Fatalf("call %d: expected client error, got %v", i, err)
		}
	}

	calls := 0
	if err := exec.Execute(context.Background(), "llm.generate", func(context.Context) error {
		calls++
		return nil
	}, clientOnly); err != nil {
		t.Fatalf("circuit must stay closed for client errors, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected callback to run, got %d calls", calls)
	}
}

func TestBreakersAreIndependentPerOperation(t *testing.T) {
	policy := fastPolicy(1)
	policy.BreakerEnabled = true
	policy.BreakerMinSample = 2
	policy.BreakerTripRatio = 0.5
	policy.BreakerCooldown = time.Minute
	policy.BreakerProbes = 1
	exec := NewExecutor(policy)

	errDown := errors.New("down")
	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "llm.embed", func(context.Context) error {
			return errDown
		}, retryAlways)
	}
	if err := exec.Execute(context.Background(), "llm.embed", func(context.Context) error {
		return nil
	}, retryAlways); !IsCircuitOpen(err) {
		t.Fatalf("expected embed circuit open, got %v", err)
	}

	if err := exec.Execute(context.Background(), "llm.generate", func(context.Context) error {
		return nil
	}, retryAlways); err != nil {
		t.Fatalf("generate circuit must be unaffected, got %v", err)
	}
}

func TestNormalizeCapsDegeneratePolicies(t *testing.T) {
	p := Policy{MaxAttempts: -1, InitialBackoff: 5 * time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 0}.normalize()
	if p.MaxAttempts != 1 {
		t.Fatalf("expected single attempt floor, got %d", p.MaxAttempts)
	}
	if p.MaxBackoff < p.InitialBackoff {
		t.Fatalf("max backoff must not undercut initial backoff: %v < %v", p.MaxBackoff, p.InitialBackoff)
	}
	if p.BackoffFactor < 1 {
		t.Fatalf("backoff factor floor is 1, got %v", p.BackoffFactor)
	}
}
