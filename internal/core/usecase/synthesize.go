package usecase

import (
	"context"
	"fmt"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

// Temperature and token budgets are deliberately distinct from the intent
// and decomposition calls: synthesis favours grounded but slightly varied
// prose, the initial informed summary stays deterministic and short.
const (
	synthesisTemperature = 0.15
	synthesisMaxTokens   = 650
	summaryTemperature   = 0.0
	summaryMaxTokens     = 400

	contextSourceLimit  = 3
	contextSnippetChars = 600
)

// ResponseSynthesizer turns an aggregated context set into a cited answer.
type ResponseSynthesizer struct {
	models  ports.ModelRegistry
	prompts *PromptSet
}

func NewResponseSynthesizer(models ports.ModelRegistry, prompts *PromptSet) *ResponseSynthesizer {
	return &ResponseSynthesizer{models: models, prompts: prompts}
}

// Synthesize is on the required path: its failure propagates to the caller.
func (s *ResponseSynthesizer) Synthesize(
	ctx context.Context,
	provider, query string,
	contexts []domain.ContextSnippet,
) (ports.GenerationResult, error) {
	findings := formatContext(contexts, 0, 0)
	result, err := s.models.Resolve(provider).Generate(ctx, ports.GenerationRequest{
		System:      s.prompts.CitationSystem,
		Prompt:      s.prompts.synthesisPrompt(query, findings),
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("synthesize answer: %w", err)
	}
	return result, nil
}

// SummarizeInitial condenses the informed strategy's probe results into a
// short seed summary for gap-directed decomposition.
func (s *ResponseSynthesizer) SummarizeInitial(
	ctx context.Context,
	provider, query string,
	contexts []domain.ContextSnippet,
) (string, error) {
	findings := formatContext(contexts, contextSourceLimit, contextSnippetChars)
	result, err := s.models.Resolve(provider).Generate(ctx, ports.GenerationRequest{
		System:      s.prompts.RAGSystem,
		Prompt:      s.prompts.synthesisPrompt(query, findings),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize initial contexts: %w", err)
	}
	return result.Text, nil
}
