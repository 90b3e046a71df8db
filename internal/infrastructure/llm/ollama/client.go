package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/resilience"
)

// Client talks to a single Ollama instance. One instance serves both the
// generation and the embedding model.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Generate implements ports.LanguageModel against /api/generate.
func (c *Client) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	payload := map[string]any{
		"model":  c.genModel,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.MaxTokens > 0 {
		payload["options"].(map[string]any)["num_predict"] = req.MaxTokens
	}

	var response struct {
		Response string `json:"response"`
		Model    string `json:"model"`
	}
	if err := c.execute(ctx, "generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", payload, &response, "generate")
	}); err != nil {
		return ports.GenerationResult{}, err
	}

	model := response.Model
	if model == "" {
		model = c.genModel
	}
	return ports.GenerationResult{
		Text:  strings.TrimSpace(response.Response),
		Model: model,
	}, nil
}

// Embedder exposes the embedding model of the shared client as ports.Embedder.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.execute(ctx, "embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", payload, &response, "embed")
	}); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return markTemporary(operation, fn(ctx))
	}
	err := c.executor.Execute(ctx, "ollama."+operation, fn, classifyTransportError)
	return markTemporary(operation, err)
}
