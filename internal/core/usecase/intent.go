package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const (
	intentTemperature = 0.0
	intentMaxTokens   = 300
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// IntentClassifier routes a query to one of the four intent kinds. It is a
// two-strategy chain: the LLM strategy runs first, and any failure in the
// call or in parsing falls through to the heuristic strategy, which never
// errors.
type IntentClassifier struct {
	models  ports.ModelRegistry
	prompts *PromptSet
}

func NewIntentClassifier(models ports.ModelRegistry, prompts *PromptSet) *IntentClassifier {
	return &IntentClassifier{models: models, prompts: prompts}
}

func (c *IntentClassifier) Classify(ctx context.Context, query, provider string) domain.Intent {
	if intent, err := c.classifyWithModel(ctx, query, provider); err == nil {
		return intent
	}
	return heuristicIntent(query)
}

func (c *IntentClassifier) classifyWithModel(ctx context.Context, query, provider string) (domain.Intent, error) {
	result, err := c.models.Resolve(provider).Generate(ctx, ports.GenerationRequest{
		System:      c.prompts.IntentSystem,
		Prompt:      c.prompts.intentPrompt(query),
		Temperature: intentTemperature,
		MaxTokens:   intentMaxTokens,
	})
	if err != nil {
		return domain.Intent{}, fmt.Errorf("intent generation: %w", err)
	}

	intent, err := parseIntentPayload(result.Text)
	if err != nil {
		return domain.Intent{}, err
	}
	intent.RawResponse = strings.TrimSpace(result.Text)
	return intent, nil
}

// parseIntentPayload decodes the model output, retrying once on the first
// balanced {...} fragment when the response wraps the JSON in prose.
func parseIntentPayload(raw string) (domain.Intent, error) {
	payload, err := decodeIntentJSON(raw)
	if err != nil {
		fragment := jsonObjectPattern.FindString(raw)
		if fragment == "" {
			return domain.Intent{}, fmt.Errorf("no json object in intent response")
		}
		payload, err = decodeIntentJSON(fragment)
		if err != nil {
			return domain.Intent{}, fmt.Errorf("parse intent fragment: %w", err)
		}
	}

	confidence := 0.5
	if payload.Confidence != nil {
		confidence = clamp01(*payload.Confidence)
	}

	entities := make([]string, 0, len(payload.Entities))
	for _, entity := range payload.Entities {
		text := strings.TrimSpace(fmt.Sprint(entity))
		if text != "" && text != "<nil>" {
			entities = append(entities, text)
		}
	}

	requested := ""
	if action, ok := payload.RequestedAction.(string); ok {
		requested = strings.TrimSpace(action)
	}

	return domain.Intent{
		Kind:            domain.ParseIntentKind(strings.ToLower(strings.TrimSpace(payload.Intent))),
		Confidence:      confidence,
		Reasoning:       strings.TrimSpace(payload.Reasoning),
		Entities:        entities,
		RequestedAction: requested,
	}, nil
}

type intentPayload struct {
	Intent          string   `json:"intent"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Entities        []any    `json:"entities"`
	RequestedAction any      `json:"requested_action"`
}

func decodeIntentJSON(raw string) (intentPayload, error) {
	var payload intentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return intentPayload{}, err
	}
	return payload, nil
}

var (
	actionKeywords     = []string{"create", "open", "schedule", "assign", "escalate", "log a task"}
	analyticalKeywords = []string{"compare", "trend", "analysis", "impact", "metric", "root cause"}
	clarifyKeywords    = []string{"what do you mean", "clarify", "can you explain", "not sure"}
)

// heuristicIntent is the terminal fallback. It inspects keyword sets and
// defaults to informational at low confidence.
func heuristicIntent(query string) domain.Intent {
	lowered := strings.ToLower(query)

	kind := domain.IntentInformational
	confidence := 0.3

	switch {
	case containsAny(lowered, clarifyKeywords):
		kind = domain.IntentClarify
		confidence = 0.6
	case containsAny(lowered, actionKeywords):
		kind = domain.IntentAction
		confidence = 0.6
	case containsAny(lowered, analyticalKeywords):
		kind = domain.IntentAnalytical
		confidence = 0.5
	}

	return domain.Intent{
		Kind:       kind,
		Confidence: confidence,
		Reasoning:  "heuristic fallback",
		Entities:   []string{},
	}
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
