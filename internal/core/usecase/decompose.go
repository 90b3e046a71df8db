package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const (
	decomposeTemperature = 0.0
	decomposeMaxTokens   = 256
	maxSubqueries        = 4
)

// QueryDecomposer asks the language model for 2-4 focused sub-queries.
// Failures return nil: the caller substitutes the original query and never
// retries the model for this fallback.
type QueryDecomposer struct {
	models  ports.ModelRegistry
	prompts *PromptSet
}

func NewQueryDecomposer(models ports.ModelRegistry, prompts *PromptSet) *QueryDecomposer {
	return &QueryDecomposer{models: models, prompts: prompts}
}

func (d *QueryDecomposer) Decompose(ctx context.Context, query, provider string) []string {
	return d.generate(ctx, provider, d.prompts.decompositionPrompt(query))
}

// DecomposeInformed biases sub-queries toward closing gaps left by an
// initial retrieval pass instead of restating the original question.
func (d *QueryDecomposer) DecomposeInformed(ctx context.Context, query, provider, initialSummary, contextSnippets string) []string {
	return d.generate(ctx, provider, d.prompts.informedDecompositionPrompt(query, initialSummary, contextSnippets))
}

func (d *QueryDecomposer) generate(ctx context.Context, provider, prompt string) []string {
	result, err := d.models.Resolve(provider).Generate(ctx, ports.GenerationRequest{
		System:      d.prompts.DecompositionSystem,
		Prompt:      prompt,
		Temperature: decomposeTemperature,
		MaxTokens:   decomposeMaxTokens,
	})
	if err != nil {
		slog.Warn("subquery_generation_failed", "error", err)
		return nil
	}
	return parseBulletList(result.Text, maxSubqueries)
}

func parseBulletList(text string, max int) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, max)
	for _, line := range lines {
		candidate := stripListMarker(line)
		if candidate == "" {
			continue
		}
		out = append(out, candidate)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stripListMarker drops a leading bullet ("- ", "* ") or ordinal ("1. ",
// "2) ") marker. A line that merely starts with a number keeps it.
func stripListMarker(line string) string {
	candidate := strings.TrimSpace(line)
	candidate = strings.TrimSpace(strings.TrimLeft(candidate, "-*\t"))

	digits := 0
	for digits < len(candidate) && candidate[digits] >= '0' && candidate[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(candidate) && (candidate[digits] == '.' || candidate[digits] == ')') {
		candidate = candidate[digits+1:]
	}
	return strings.TrimSpace(candidate)
}
