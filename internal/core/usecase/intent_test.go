package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

type intentModelFake struct {
	text string
	err  error
	last ports.GenerationRequest
}

func (f *intentModelFake) Generate(_ context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	f.last = req
	if f.err != nil {
		return ports.GenerationResult{}, f.err
	}
	return ports.GenerationResult{Text: f.text, Model: "fake"}, nil
}

type intentRegistryFake struct {
	model ports.LanguageModel
}

func (f *intentRegistryFake) Resolve(string) ports.LanguageModel { return f.model }

func newIntentClassifierForTest(model ports.LanguageModel) *IntentClassifier {
	return NewIntentClassifier(&intentRegistryFake{model: model}, DefaultPromptSet())
}

func TestClassifyParsesModelJSON(t *testing.T) {
	model := &intentModelFake{text: `{"intent":"analytical","confidence":0.82,"reasoning":"asks for a trend","entities":["latency","eu-west"],"requested_action":null}`}
	classifier := newIntentClassifierForTest(model)

	intent := classifier.Classify(context.Background(), "how did latency trend in eu-west", "")
	if intent.Kind != domain.IntentAnalytical {
		t.Fatalf("expected analytical intent, got %s", intent.Kind)
	}
	if intent.Confidence != 0.82 {
		t.Fatalf("expected confidence 0.82, got %v", intent.Confidence)
	}
	if len(intent.Entities) != 2 || intent.Entities[0] != "latency" {
		t.Fatalf("unexpected entities: %v", intent.Entities)
	}
	if model.last.Temperature != 0 || model.last.MaxTokens != 300 {
		t.Fatalf("unexpected generation options: %+v", model.last)
	}
}

func TestClassifyRecoversJSONFragmentFromProse(t *testing.T) {
	model := &intentModelFake{text: "Sure, here is the classification:\n{\"intent\":\"action\",\"confidence\":0.9,\"requested_action\":\"create_task\"}\nHope that helps."}
	classifier := newIntentClassifierForTest(model)

	intent := classifier.Classify(context.Background(), "create a task for the cert renewal", "")
	if intent.Kind != domain.IntentAction {
		t.Fatalf("expected action intent, got %s", intent.Kind)
	}
	if intent.RequestedAction != "create_task" {
		t.Fatalf("expected requested action, got %q", intent.RequestedAction)
	}
}

func TestClassifyDefaultsAndClampsConfidence(t *testing.T) {
	classifier := newIntentClassifierForTest(&intentModelFake{text: `{"intent":"informational"}`})
	intent := classifier.Classify(context.Background(), "what is the runbook", "")
	if intent.Confidence != 0.5 {
		t.Fatalf("expected default confidence 0.5, got %v", intent.Confidence)
	}

	classifier = newIntentClassifierForTest(&intentModelFake{text: `{"intent":"informational","confidence":3.5}`})
	intent = classifier.Classify(context.Background(), "what is the runbook", "")
	if intent.Confidence != 1 {
		t.Fatalf("expected clamped confidence 1, got %v", intent.Confidence)
	}
}

func TestClassifyUnknownKindMapsToInformational(t *testing.T) {
	classifier := newIntentClassifierForTest(&intentModelFake{text: `{"intent":"smalltalk","confidence":0.7}`})
	intent := classifier.Classify(context.Background(), "hello there", "")
	if intent.Kind != domain.IntentInformational {
		t.Fatalf("expected informational fallback kind, got %s", intent.Kind)
	}
}

func TestClassifyFallsBackToHeuristicOnModelError(t *testing.T) {
	classifier := newIntentClassifierForTest(&intentModelFake{err: errors.New("model down")})

	cases := []struct {
		query      string
		kind       domain.IntentKind
		confidence float64
	}{
		{"please create a ticket for the outage", domain.IntentAction, 0.6},
		{"compare error rates across regions", domain.IntentAnalytical, 0.5},
		{"what do you mean by degraded", domain.IntentClarify, 0.6},
		{"where is the deployment guide", domain.IntentInformational, 0.3},
	}
	for _, tc := range cases {
		intent := classifier.Classify(context.Background(), tc.query, "")
		if intent.Kind != tc.kind {
			t.Fatalf("query %q: expected %s, got %s", tc.query, tc.kind, intent.Kind)
		}
		if intent.Confidence != tc.confidence {
			t.Fatalf("query %q: expected confidence %v, got %v", tc.query, tc.confidence, intent.Confidence)
		}
		if intent.Reasoning != "heuristic fallback" {
			t.Fatalf("query %q: unexpected reasoning %q", tc.query, intent.Reasoning)
		}
	}
}

func TestClassifyFallsBackOnGarbageResponse(t *testing.T) {
	classifier := newIntentClassifierForTest(&intentModelFake{text: "I could not decide."})
	intent := classifier.Classify(context.Background(), "escalate the incident to oncall", "")
	if intent.Kind != domain.IntentAction {
		t.Fatalf("expected heuristic action intent, got %s", intent.Kind)
	}
}
