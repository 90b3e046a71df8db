package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

// Client scores query/passage pairs against a cross-encoder sidecar speaking
// the text-embeddings-inference rerank API. An empty base URL disables the
// stage entirely; the retrieval path checks Available before calling Score.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

var _ ports.Reranker = (*Client)(nil)

func (c *Client) Available() bool {
	return c.baseURL != ""
}

func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if !c.Available() {
		return nil, fmt.Errorf("reranker not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"query": query,
		"texts": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("rerank status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	// The sidecar returns entries ordered by relevance; scores are mapped
	// back to input positions so callers can re-sort themselves.
	var entries []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	scores := make([]float64, len(texts))
	for _, entry := range entries {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("rerank index %d out of range", entry.Index)
		}
		scores[entry.Index] = entry.Score
	}
	if len(entries) != len(texts) {
		return nil, fmt.Errorf("rerank returned %d scores for %d texts", len(entries), len(texts))
	}
	return scores, nil
}
