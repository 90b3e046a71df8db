package resilience

import "time"

// Policy is the retry and breaker budget for one collaborator class.
// The orchestrator keeps its pipeline calls single-attempt; these budgets
// live inside the transport adapters only.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	BreakerEnabled   bool
	BreakerMinSample uint32
	BreakerTripRatio float64
	BreakerCooldown  time.Duration
	BreakerProbes    uint32
}

// LanguageModelPolicy budgets Ollama generate and embed calls. One retry
// at most: every LLM stage above it already has a degradation path, and a
// second transport attempt is all a request's latency budget tolerates.
func LanguageModelPolicy() Policy {
	return Policy{
		MaxAttempts:    2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,

		BreakerEnabled:   true,
		BreakerMinSample: 5,
		BreakerTripRatio: 0.6,
		BreakerCooldown:  30 * time.Second,
		BreakerProbes:    1,
	}
}

// PublishPolicy budgets the history-record publish. The caller treats a
// lost record as fail-open, so backoffs stay short and the breaker trips
// early on a dead broker.
func PublishPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2,

		BreakerEnabled:   true,
		BreakerMinSample: 10,
		BreakerTripRatio: 0.5,
		BreakerCooldown:  10 * time.Second,
		BreakerProbes:    2,
	}
}

func (p Policy) normalize() Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.InitialBackoff < 0 {
		out.InitialBackoff = 0
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.BackoffFactor < 1 {
		out.BackoffFactor = 1
	}
	if out.BreakerMinSample == 0 {
		out.BreakerMinSample = 1
	}
	if out.BreakerTripRatio <= 0 || out.BreakerTripRatio > 1 {
		out.BreakerTripRatio = 0.5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 10 * time.Second
	}
	if out.BreakerProbes == 0 {
		out.BreakerProbes = 1
	}
	return out
}
