package llm

import (
	"context"
	"strings"

	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

// Registry resolves provider names to configured language models. Resolution
// is total: an unknown provider yields a model that answers with a fixed
// unavailability notice instead of an error, so the pipeline's fallback
// chain stays in charge of degradation.
type Registry struct {
	models      map[string]ports.LanguageModel
	defaultName string
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{
		models:      make(map[string]ports.LanguageModel),
		defaultName: strings.ToLower(strings.TrimSpace(defaultName)),
	}
}

func (r *Registry) Register(name string, model ports.LanguageModel) {
	r.models[strings.ToLower(strings.TrimSpace(name))] = model
}

func (r *Registry) Resolve(provider string) ports.LanguageModel {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = r.defaultName
	}
	if model, ok := r.models[name]; ok {
		return model
	}
	if model, ok := r.models[r.defaultName]; ok {
		return model
	}
	return unavailableModel{}
}

type unavailableModel struct{}

func (unavailableModel) Generate(context.Context, ports.GenerationRequest) (ports.GenerationResult, error) {
	return ports.GenerationResult{
		Text:  "The requested language model provider is unavailable.",
		Model: "unavailable",
	}, nil
}
