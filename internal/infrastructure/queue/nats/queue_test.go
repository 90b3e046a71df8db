package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/resilience"
)

func fastPublishPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func sampleRecord() domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ExecutionID: "exec-1",
		TenantID:    "tenant-1",
		Query:       "why did checkout fail",
		Intent:      "informational",
		Strategy:    "direct",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPublishRetriesConnectionFailures(t *testing.T) {
	attempts := 0
	queue := &Queue{
		subject:  "agent.executions.completed",
		executor: resilience.NewExecutor(fastPublishPolicy()),
		publish: func([]byte) error {
			attempts++
			if attempts < 3 {
				return nats.ErrConnectionReconnecting
			}
			return nil
		},
	}

	if err := queue.PublishExecutionCompleted(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("expected publish to succeed after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", attempts)
	}
}

func TestPublishWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	attempts := 0
	queue := &Queue{
		subject:  "agent.executions.completed",
		executor: resilience.NewExecutor(fastPublishPolicy()),
		publish: func([]byte) error {
			attempts++
			return nats.ErrTimeout
		},
	}

	err := queue.PublishExecutionCompleted(context.Background(), sampleRecord())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error after exhausted retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected the full retry budget, got %d attempts", attempts)
	}
}

func TestPublishDoesNotRetryUnknownErrors(t *testing.T) {
	attempts := 0
	errBug := errors.New("payload rejected")
	queue := &Queue{
		subject:  "agent.executions.completed",
		executor: resilience.NewExecutor(fastPublishPolicy()),
		publish: func([]byte) error {
			attempts++
			return errBug
		},
	}

	err := queue.PublishExecutionCompleted(context.Background(), sampleRecord())
	if !errors.Is(err, errBug) {
		t.Fatalf("expected the publish error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("unknown errors must not be tagged temporary: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestPublishWithoutExecutorCallsOnce(t *testing.T) {
	attempts := 0
	queue := &Queue{
		subject: "agent.executions.completed",
		publish: func([]byte) error {
			attempts++
			return nats.ErrTimeout
		},
	}

	err := queue.PublishExecutionCompleted(context.Background(), sampleRecord())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary wrap on the direct path, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt without an executor, got %d", attempts)
	}
}

func TestPublishOutcomeClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want resilience.Outcome
	}{
		{"nil", nil, resilience.Outcome{}},
		{"cancelled", context.Canceled, resilience.Outcome{}},
		{"no servers", nats.ErrNoServers, resilience.Outcome{Retry: true, TripBreaker: true}},
		{"timeout", nats.ErrTimeout, resilience.Outcome{Retry: true, TripBreaker: true}},
		{"closed", nats.ErrConnectionClosed, resilience.Outcome{Retry: true, TripBreaker: true}},
		{"unknown", errors.New("boom"), resilience.Outcome{TripBreaker: true}},
	}
	for _, tc := range cases {
		if got := publishOutcome(tc.err); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}
