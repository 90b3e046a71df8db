package usecase

import (
	"sort"
	"strings"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

// maxAggregatedContexts is the hard ceiling on contexts handed to synthesis,
// independent of how many sub-queries the decomposer produced.
const maxAggregatedContexts = 24

// contextAggregator merges per-sub-query retrieval results into one
// deduplicated context set keyed by (documentID, chunkID), keeping the
// highest score on collision. The merge is commutative, so fan-out tasks
// can ingest in any completion order.
type contextAggregator struct {
	merged map[string]domain.ContextSnippet
	traces map[string]map[string]domain.ContextSnippet
}

func newContextAggregator() *contextAggregator {
	return &contextAggregator{
		merged: make(map[string]domain.ContextSnippet),
		traces: make(map[string]map[string]domain.ContextSnippet),
	}
}

func (a *contextAggregator) ingest(label string, items []domain.ContextSnippet) {
	for _, item := range items {
		key := item.Key()
		if existing, ok := a.merged[key]; !ok || item.Score > existing.Score {
			a.merged[key] = item
		}
	}
	a.recordTrace(label, items)
}

func (a *contextAggregator) recordTrace(label string, items []domain.ContextSnippet) {
	if len(items) == 0 {
		return
	}
	bucket, ok := a.traces[label]
	if !ok {
		bucket = make(map[string]domain.ContextSnippet)
		a.traces[label] = bucket
	}
	for _, item := range items {
		key := item.Key()
		if existing, found := bucket[key]; !found || item.Score > existing.Score {
			bucket[key] = item
		}
	}
}

func (a *contextAggregator) isEmpty() bool {
	return len(a.merged) == 0
}

// contexts returns all merged snippets sorted descending by score and
// trimmed to min(limit, maxAggregatedContexts).
func (a *contextAggregator) contexts(limit int) []domain.ContextSnippet {
	out := make([]domain.ContextSnippet, 0, len(a.merged))
	for _, item := range a.merged {
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if limit <= 0 || limit > maxAggregatedContexts {
		limit = maxAggregatedContexts
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// buildTraces emits one trace per distinct label in first-seen order.
// The original query label is included only for the direct strategy.
func (a *contextAggregator) buildTraces(
	originalQuery string,
	strategy domain.Strategy,
	recordedSubqueries, subqueries []string,
) []domain.Trace {
	labels := make([]string, 0, 2+len(recordedSubqueries)+len(subqueries))
	if strategy == domain.StrategyDirect {
		labels = append(labels, originalQuery)
	}
	labels = append(labels, recordedSubqueries...)
	labels = append(labels, subqueries...)

	traces := make([]domain.Trace, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		normalized := strings.TrimSpace(label)
		if normalized == "" {
			continue
		}
		lower := strings.ToLower(normalized)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}

		contexts := make([]domain.ContextSnippet, 0, len(a.traces[normalized]))
		for _, item := range a.traces[normalized] {
			contexts = append(contexts, item)
		}
		sort.SliceStable(contexts, func(i, j int) bool { return contexts[i].Score > contexts[j].Score })
		traces = append(traces, domain.Trace{Subquery: normalized, Contexts: contexts})
	}
	return traces
}

// dedupeSubqueries removes blank and case-insensitive duplicate entries
// while preserving first-seen order.
func dedupeSubqueries(candidates []string) []string {
	ordered := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		normalized := strings.TrimSpace(candidate)
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ordered = append(ordered, normalized)
	}
	return ordered
}
