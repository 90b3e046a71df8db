package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ContextSnippet is a scored chunk of retrieved document text.
// Identity key is (DocumentID, ChunkID); snippets are never mutated
// after creation.
type ContextSnippet struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	Source     string  `json:"source,omitempty"`
	PageNumber *int    `json:"page_number,omitempty"`
	ChunkIndex int     `json:"chunk_index"`

	// RerankScore is the cross-encoder score, set only when the reranker
	// ran. Score always stays the vector-search similarity.
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

func (s ContextSnippet) Key() string {
	return s.DocumentID + ":" + s.ChunkID
}

type RangeFilter struct {
	GTE *float64 `json:"gte,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// SearchFilter narrows a tenant-scoped vector search. The tenant filter
// itself is not part of this struct: it is mandatory and applied by the
// vector index adapter on every call.
type SearchFilter struct {
	DocumentIDs  []string     `json:"document_ids,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	DocumentType string       `json:"document_type,omitempty"`
	CreatedAt    *RangeFilter `json:"created_at,omitempty"`
}

func (f SearchFilter) IsZero() bool {
	return len(f.DocumentIDs) == 0 && len(f.Tags) == 0 && f.DocumentType == "" && f.CreatedAt == nil
}

// Canonical renders a deterministic representation for cache keys:
// list values sorted, fields in fixed order, empty filter as "*".
func (f SearchFilter) Canonical() string {
	if f.IsZero() {
		return "*"
	}

	parts := make([]string, 0, 4)
	if len(f.DocumentIDs) > 0 {
		ids := append([]string(nil), f.DocumentIDs...)
		sort.Strings(ids)
		parts = append(parts, "document_id="+strings.Join(ids, ","))
	}
	if len(f.Tags) > 0 {
		tags := append([]string(nil), f.Tags...)
		sort.Strings(tags)
		parts = append(parts, "tags="+strings.Join(tags, ","))
	}
	if f.DocumentType != "" {
		parts = append(parts, "document_type="+f.DocumentType)
	}
	if f.CreatedAt != nil {
		bound := func(v *float64) string {
			if v == nil {
				return ""
			}
			return strconv.FormatFloat(*v, 'f', -1, 64)
		}
		parts = append(parts, fmt.Sprintf("created_at=%s..%s", bound(f.CreatedAt.GTE), bound(f.CreatedAt.LTE)))
	}
	return strings.Join(parts, ";")
}

// SearchPage is the uniform paginated result shape for one retrieval call.
type SearchPage struct {
	Items      []ContextSnippet `json:"items"`
	NextOffset *int             `json:"next_offset,omitempty"`
	HasMore    bool             `json:"has_more"`
}

type SearchOptions struct {
	Limit          int
	ScoreThreshold float64
	Filter         SearchFilter
	Offset         int
	UseCache       bool
	Rerank         bool
}
