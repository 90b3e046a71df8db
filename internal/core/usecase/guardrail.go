package usecase

import (
	"fmt"
	"strings"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

const lowConfidenceThreshold = 0.4

// BuildGuardrailReport derives warnings and diagnostic info from a completed
// execution. Pure and idempotent: identical executions produce identical
// reports.
func BuildGuardrailReport(execution *domain.AgentExecution) domain.GuardrailReport {
	warnings := make([]string, 0, 3)
	info := map[string]any{
		"intent":            string(execution.Intent.Kind),
		"intent_confidence": execution.Intent.Confidence,
		"strategy":          string(execution.Result.Strategy),
		"subqueries":        execution.Result.Subqueries,
		"context_count":     len(execution.Result.Contexts),
	}

	sources := make([]string, 0, len(execution.Result.Contexts))
	seen := make(map[string]struct{})
	for _, ctx := range execution.Result.Contexts {
		if ctx.Source == "" {
			continue
		}
		if _, dup := seen[ctx.Source]; dup {
			continue
		}
		seen[ctx.Source] = struct{}{}
		sources = append(sources, ctx.Source)
	}
	if len(sources) > 0 {
		info["sources"] = sources
	}

	if execution.Intent.Confidence < lowConfidenceThreshold {
		warnings = append(warnings, "Intent classification confidence is low; confirm the requested action or question.")
	}
	if execution.Action == nil && len(execution.Result.Contexts) == 0 {
		warnings = append(warnings, "No supporting documents were retrieved for this answer.")
	}
	if execution.Action != nil && !strings.EqualFold(string(execution.Action.Result.Status), string(domain.ToolStatusSuccess)) {
		warnings = append(warnings, fmt.Sprintf(
			"Tool '%s' returned status '%s'.",
			execution.Action.Tool,
			execution.Action.Result.Status,
		))
		info["tool_status"] = string(execution.Action.Result.Status)
		info["tool_detail"] = execution.Action.Result.Detail
	}

	return domain.GuardrailReport{
		Warnings:    warnings,
		HasWarnings: len(warnings) > 0,
		Info:        info,
	}
}
