package ports

import (
	"context"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorSearchParams struct {
	Vector         []float32
	Limit          int
	ScoreThreshold float64
	Filter         domain.SearchFilter
	Offset         int
}

// VectorIndex performs tenant-scoped semantic search. Implementations must
// apply the tenant filter on every call in addition to params.Filter.
type VectorIndex interface {
	Search(ctx context.Context, tenantID string, params VectorSearchParams) (domain.SearchPage, error)
}

// Reranker scores (query, candidate text) pairs with a cross-encoder style
// model. It may be absent or disabled; callers skip it transparently.
type Reranker interface {
	Available() bool
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

type GenerationRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type GenerationResult struct {
	Text  string
	Model string
}

// LanguageModel generates a completion for a single prompt.
type LanguageModel interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// ModelRegistry resolves a provider by name. Resolution never fails: unknown
// or empty names yield a deterministic fallback provider that answers with a
// fixed unavailable message instead of erroring.
type ModelRegistry interface {
	Resolve(provider string) LanguageModel
}

// Cache stores JSON payloads under opaque keys with a TTL. Implementations
// must be safely disable-able: a disabled cache misses on reads and drops
// writes without error.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// TaskStore persists tenant tasks, consumed only by the tool executor.
type TaskStore interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	ListOpenTasks(ctx context.Context, tenantID string, limit int) ([]domain.Task, error)
}

// IncidentStore summarizes tenant incidents over a trailing window.
type IncidentStore interface {
	SummarizeIncidents(ctx context.Context, tenantID string, timeframeDays int) (domain.IncidentSummary, error)
}

// ExecutionPublisher hands completed executions to the history pipeline.
type ExecutionPublisher interface {
	PublishExecutionCompleted(ctx context.Context, record domain.ExecutionRecord) error
}

// HistoryStore persists query-history rows, consumed by the worker.
type HistoryStore interface {
	InsertExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error
}
