package usecase

import (
	"testing"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

func executionWithConfidence(confidence float64) *domain.AgentExecution {
	return &domain.AgentExecution{
		ID:     "exec-1",
		Intent: domain.Intent{Kind: domain.IntentInformational, Confidence: confidence},
		Result: domain.AgentResult{
			Response: "answer",
			Contexts: []domain.ContextSnippet{snippet("doc-a", "c1", 0.9)},
			Strategy: domain.StrategyDirect,
		},
	}
}

func TestGuardrailLowConfidenceBoundary(t *testing.T) {
	report := BuildGuardrailReport(executionWithConfidence(0.39))
	if !report.HasWarnings || len(report.Warnings) != 1 {
		t.Fatalf("expected exactly one warning at 0.39, got %v", report.Warnings)
	}
	if report.Warnings[0] != "Intent classification confidence is low; confirm the requested action or question." {
		t.Fatalf("unexpected warning text: %q", report.Warnings[0])
	}

	report = BuildGuardrailReport(executionWithConfidence(0.40))
	if report.HasWarnings {
		t.Fatalf("0.40 confidence must not warn, got %v", report.Warnings)
	}
}

func TestGuardrailNoContextWarning(t *testing.T) {
	execution := executionWithConfidence(0.9)
	execution.Result.Contexts = nil

	report := BuildGuardrailReport(execution)
	if len(report.Warnings) != 1 || report.Warnings[0] != "No supporting documents were retrieved for this answer." {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestGuardrailActionSuppressesContextWarning(t *testing.T) {
	execution := executionWithConfidence(0.9)
	execution.Result.Contexts = nil
	execution.Action = &domain.AgentAction{
		Tool:   "create_task",
		Result: domain.ToolResult{Status: domain.ToolStatusSuccess, Detail: "Task created"},
	}

	report := BuildGuardrailReport(execution)
	if report.HasWarnings {
		t.Fatalf("successful action execution must not warn, got %v", report.Warnings)
	}
}

func TestGuardrailFailedToolWarns(t *testing.T) {
	execution := executionWithConfidence(0.9)
	execution.Result.Contexts = nil
	execution.Action = &domain.AgentAction{
		Tool:   "create_task",
		Result: domain.ToolResult{Status: domain.ToolStatusFailed, Detail: "Task title missing"},
	}

	report := BuildGuardrailReport(execution)
	if len(report.Warnings) != 1 || report.Warnings[0] != "Tool 'create_task' returned status 'failed'." {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
	if report.Info["tool_detail"] != "Task title missing" {
		t.Fatalf("expected tool detail in info, got %v", report.Info)
	}
}

func TestGuardrailInfoAndSources(t *testing.T) {
	execution := executionWithConfidence(0.8)
	execution.Result.Subqueries = []string{"a", "b"}
	execution.Result.Contexts = []domain.ContextSnippet{
		snippet("doc-a", "c1", 0.9),
		snippet("doc-a", "c2", 0.8),
		snippet("doc-b", "c1", 0.7),
	}

	report := BuildGuardrailReport(execution)
	if report.Info["context_count"] != 3 {
		t.Fatalf("expected context_count 3, got %v", report.Info["context_count"])
	}
	sources, ok := report.Info["sources"].([]string)
	if !ok || len(sources) != 2 {
		t.Fatalf("expected 2 deduplicated sources, got %v", report.Info["sources"])
	}
}

func TestGuardrailIsDeterministic(t *testing.T) {
	execution := executionWithConfidence(0.2)
	first := BuildGuardrailReport(execution)
	second := BuildGuardrailReport(execution)
	if len(first.Warnings) != len(second.Warnings) || first.HasWarnings != second.HasWarnings {
		t.Fatalf("report must be idempotent: %v vs %v", first, second)
	}
}
