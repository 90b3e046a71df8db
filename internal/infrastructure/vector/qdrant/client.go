package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

// Client queries a Qdrant collection over its HTTP API. Every search carries
// a mandatory tenant_id condition; tenant isolation is enforced here, not in
// the calling code.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ ports.VectorIndex = (*Client)(nil)

func (c *Client) Search(ctx context.Context, tenantID string, params ports.VectorSearchParams) (domain.SearchPage, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	reqBody := map[string]any{
		"vector": params.Vector,
		// One extra point past the page boundary decides has_more without a
		// count round trip.
		"limit":        limit + 1,
		"with_payload": true,
		"filter":       buildFilter(tenantID, params.Filter),
	}
	if params.Offset > 0 {
		reqBody["offset"] = params.Offset
	}
	if params.ScoreThreshold > 0 {
		reqBody["score_threshold"] = params.ScoreThreshold
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.SearchPage{}, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.SearchPage{}, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SearchPage{}, domain.WrapError(domain.ErrUnavailable, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.SearchPage{}, domain.WrapError(domain.ErrUnavailable, "qdrant search",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return domain.SearchPage{}, fmt.Errorf("decode search response: %w", err)
	}

	hasMore := len(searchResp.Result) > limit
	results := searchResp.Result
	if hasMore {
		results = results[:limit]
	}

	items := make([]domain.ContextSnippet, 0, len(results))
	for _, r := range results {
		items = append(items, domain.ContextSnippet{
			ChunkID:    getStringPayload(r.Payload, "chunk_id"),
			DocumentID: getStringPayload(r.Payload, "document_id"),
			Score:      r.Score,
			Text:       getStringPayload(r.Payload, "text"),
			Source:     getStringPayload(r.Payload, "source"),
			PageNumber: getIntPayload(r.Payload, "page_number"),
			ChunkIndex: getIntValue(r.Payload, "chunk_index"),
		})
	}

	page := domain.SearchPage{Items: items, HasMore: hasMore}
	if hasMore {
		next := params.Offset + limit
		page.NextOffset = &next
	}
	return page, nil
}

// buildFilter translates the request filter into Qdrant must conditions.
// The tenant condition is always first and never optional.
func buildFilter(tenantID string, filter domain.SearchFilter) map[string]any {
	must := []map[string]any{
		{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
	}

	if len(filter.DocumentIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filter.DocumentIDs},
		})
	}
	if len(filter.Tags) > 0 {
		must = append(must, map[string]any{
			"key":   "tags",
			"match": map[string]any{"any": filter.Tags},
		})
	}
	if filter.DocumentType != "" {
		must = append(must, map[string]any{
			"key":   "document_type",
			"match": map[string]any{"value": filter.DocumentType},
		})
	}
	if filter.CreatedAt != nil {
		rangeCond := map[string]any{}
		if filter.CreatedAt.GTE != nil {
			rangeCond["gte"] = *filter.CreatedAt.GTE
		}
		if filter.CreatedAt.LTE != nil {
			rangeCond["lte"] = *filter.CreatedAt.LTE
		}
		if len(rangeCond) > 0 {
			must = append(must, map[string]any{
				"key":   "created_at_ts",
				"range": rangeCond,
			})
		}
	}

	return map[string]any{"must": must}
}

func getStringPayload(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func getIntPayload(payload map[string]any, key string) *int {
	if payload == nil {
		return nil
	}
	if value, ok := payload[key].(float64); ok {
		number := int(value)
		return &number
	}
	return nil
}

func getIntValue(payload map[string]any, key string) int {
	if value := getIntPayload(payload, key); value != nil {
		return *value
	}
	return 0
}
