package ports

import (
	"context"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

// AgentService is the inbound contract for one intent-routed orchestration run.
type AgentService interface {
	Execute(ctx context.Context, req domain.ExecuteRequest) (*domain.AgentExecution, error)
}

// ContextRetriever is the inbound read contract of the retrieval coordinator:
// one tenant-scoped paginated search with caching and optional reranking.
type ContextRetriever interface {
	Search(ctx context.Context, tenantID, query string, opts domain.SearchOptions) (domain.SearchPage, error)
}
