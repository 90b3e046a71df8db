package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

func searchServer(t *testing.T, captured *map[string]any, points int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		results := make([]map[string]any, 0, points)
		for i := 0; i < points; i++ {
			results = append(results, map[string]any{
				"score": 0.9 - float64(i)*0.1,
				"payload": map[string]any{
					"chunk_id":    fmt.Sprintf("c%d", i),
					"document_id": "doc-a",
					"text":        "chunk text",
					"source":      "runbook.md",
					"page_number": float64(3),
					"chunk_index": float64(i),
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": results})
	}))
}

func mustFilter(t *testing.T, captured map[string]any) []any {
	t.Helper()
	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("missing filter in request: %v", captured)
	}
	must, ok := filter["must"].([]any)
	if !ok {
		t.Fatalf("missing must conditions: %v", filter)
	}
	return must
}

func TestSearchAlwaysFiltersByTenant(t *testing.T) {
	var captured map[string]any
	server := searchServer(t, &captured, 1)
	defer server.Close()

	client := New(server.URL, "docs")
	page, err := client.Search(context.Background(), "tenant-1", ports.VectorSearchParams{
		Vector: []float32{0.1}, Limit: 4, ScoreThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	must := mustFilter(t, captured)
	first, _ := must[0].(map[string]any)
	if first["key"] != "tenant_id" {
		t.Fatalf("first condition must scope the tenant, got %v", first)
	}
	if captured["score_threshold"] != 0.35 {
		t.Fatalf("expected score_threshold forwarded, got %v", captured["score_threshold"])
	}
	if captured["limit"] != float64(5) {
		t.Fatalf("expected overfetch limit 5, got %v", captured["limit"])
	}

	if len(page.Items) != 1 || page.HasMore {
		t.Fatalf("unexpected page %+v", page)
	}
	item := page.Items[0]
	if item.ChunkID != "c0" || item.DocumentID != "doc-a" || item.Source != "runbook.md" {
		t.Fatalf("unexpected snippet %+v", item)
	}
	if item.PageNumber == nil || *item.PageNumber != 3 {
		t.Fatalf("expected page number 3, got %v", item.PageNumber)
	}
}

func TestSearchTranslatesFilterConditions(t *testing.T) {
	var captured map[string]any
	server := searchServer(t, &captured, 0)
	defer server.Close()

	gte := 1700000000.0
	client := New(server.URL, "docs")
	_, err := client.Search(context.Background(), "tenant-1", ports.VectorSearchParams{
		Vector: []float32{0.1},
		Limit:  4,
		Filter: domain.SearchFilter{
			DocumentIDs:  []string{"doc-a", "doc-b"},
			Tags:         []string{"infra"},
			DocumentType: "runbook",
			CreatedAt:    &domain.RangeFilter{GTE: &gte},
		},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	must := mustFilter(t, captured)
	if len(must) != 5 {
		t.Fatalf("expected 5 must conditions, got %d: %v", len(must), must)
	}
	keys := make([]string, 0, len(must))
	for _, cond := range must {
		m, _ := cond.(map[string]any)
		keys = append(keys, fmt.Sprint(m["key"]))
	}
	want := []string{"tenant_id", "document_id", "tags", "document_type", "created_at_ts"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("condition %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestSearchPaginationOverfetch(t *testing.T) {
	var captured map[string]any
	server := searchServer(t, &captured, 5)
	defer server.Close()

	client := New(server.URL, "docs")
	page, err := client.Search(context.Background(), "tenant-1", ports.VectorSearchParams{
		Vector: []float32{0.1}, Limit: 4, Offset: 8,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if captured["offset"] != float64(8) {
		t.Fatalf("expected offset forwarded, got %v", captured["offset"])
	}
	if len(page.Items) != 4 || !page.HasMore {
		t.Fatalf("expected trimmed page with has_more, got %d items has_more=%v", len(page.Items), page.HasMore)
	}
	if page.NextOffset == nil || *page.NextOffset != 12 {
		t.Fatalf("expected next offset 12, got %v", page.NextOffset)
	}
}

func TestSearchHTTPErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	_, err := client.Search(context.Background(), "tenant-1", ports.VectorSearchParams{Vector: []float32{0.1}, Limit: 4})
	if err == nil || !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
