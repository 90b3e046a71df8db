package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const defaultCacheTTL = 5 * time.Minute

// RetrievalCoordinator runs one tenant-scoped search:
// cache lookup, embed, vector search, optional rerank, cache store.
// Cache and rerank fail open; only embedding and the vector search itself
// surface an error, which callers treat as an empty result for that query.
type RetrievalCoordinator struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	cache    ports.Cache    // optional
	reranker ports.Reranker // optional
	cacheTTL time.Duration
}

func NewRetrievalCoordinator(
	embedder ports.Embedder,
	index ports.VectorIndex,
	cache ports.Cache,
	reranker ports.Reranker,
	cacheTTL time.Duration,
) *RetrievalCoordinator {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &RetrievalCoordinator{
		embedder: embedder,
		index:    index,
		cache:    cache,
		reranker: reranker,
		cacheTTL: cacheTTL,
	}
}

func (c *RetrievalCoordinator) Search(
	ctx context.Context,
	tenantID, query string,
	opts domain.SearchOptions,
) (domain.SearchPage, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	cacheKey := ""
	if c.cacheUsable(opts) {
		cacheKey = buildRetrievalCacheKey(tenantID, query, opts.Limit, opts.ScoreThreshold, opts.Filter)
		var cached domain.SearchPage
		hit, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			slog.Warn("retrieval_cache_get_failed", "error", err)
		} else if hit {
			return cached, nil
		}
	}

	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.SearchPage{Items: []domain.ContextSnippet{}}, fmt.Errorf("embed query: %w", err)
	}

	page, err := c.index.Search(ctx, tenantID, ports.VectorSearchParams{
		Vector:         vector,
		Limit:          opts.Limit,
		ScoreThreshold: opts.ScoreThreshold,
		Filter:         opts.Filter,
		Offset:         opts.Offset,
	})
	if err != nil {
		return domain.SearchPage{Items: []domain.ContextSnippet{}}, fmt.Errorf("vector search: %w", err)
	}

	if opts.Rerank && c.reranker != nil && c.reranker.Available() && len(page.Items) > 0 {
		page.Items = c.rerank(ctx, query, page.Items, opts.Limit)
	}

	if cacheKey != "" {
		if err := c.cache.SetJSON(ctx, cacheKey, page, c.cacheTTL); err != nil {
			slog.Warn("retrieval_cache_set_failed", "error", err)
		}
	}
	return page, nil
}

// cacheUsable rejects point lookups: a per-document filter targets a narrow
// result set that would go stale immediately after reindexing.
func (c *RetrievalCoordinator) cacheUsable(opts domain.SearchOptions) bool {
	return c.cache != nil &&
		opts.UseCache &&
		opts.Offset == 0 &&
		len(opts.Filter.DocumentIDs) == 0
}

// rerank re-sorts the page by cross-encoder score and truncates to limit.
// Any failure keeps the vector-search order.
func (c *RetrievalCoordinator) rerank(
	ctx context.Context,
	query string,
	items []domain.ContextSnippet,
	limit int,
) []domain.ContextSnippet {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	scores, err := c.reranker.Score(ctx, query, texts)
	if err != nil || len(scores) != len(items) {
		if err != nil {
			slog.Warn("rerank_failed", "error", err)
		}
		return items
	}

	order := make([]domain.ContextSnippet, len(items))
	for i := range items {
		order[i] = items[i]
		score := scores[i]
		order[i].RerankScore = &score
	}
	sort.SliceStable(order, func(i, j int) bool { return *order[i].RerankScore > *order[j].RerankScore })

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order
}

func buildRetrievalCacheKey(tenantID, query string, limit int, scoreThreshold float64, filter domain.SearchFilter) string {
	return strings.Join([]string{
		"retrieval",
		tenantID,
		strings.TrimSpace(query),
		fmt.Sprintf("%d", limit),
		fmt.Sprintf("%.3f", scoreThreshold),
		filter.Canonical(),
	}, "|")
}
