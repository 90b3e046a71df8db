package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const (
	plannerTemperature = 0.0
	plannerMaxTokens   = 256

	openTasksLimit        = 10
	defaultIncidentWindow = 7
)

// toolHandler executes one registered tool for a tenant. Handlers report
// problems through the structured ToolResult, never by error, so a failed
// tool still yields a complete execution record.
type toolHandler func(ctx context.Context, tenantID string, args map[string]any) domain.ToolResult

// ActionExecutor plans a structured tool invocation with the language model
// and dispatches it through an explicit registry. Tenant identity is threaded
// into every handler; nothing is inferred from the plan payload.
type ActionExecutor struct {
	models    ports.ModelRegistry
	prompts   *PromptSet
	tasks     ports.TaskStore
	incidents ports.IncidentStore
	tools     map[string]toolHandler
}

func NewActionExecutor(
	models ports.ModelRegistry,
	prompts *PromptSet,
	tasks ports.TaskStore,
	incidents ports.IncidentStore,
) *ActionExecutor {
	executor := &ActionExecutor{
		models:    models,
		prompts:   prompts,
		tasks:     tasks,
		incidents: incidents,
	}
	executor.tools = map[string]toolHandler{
		"create_task":         executor.createTask,
		"get_open_tasks":      executor.listOpenTasks,
		"summarize_incidents": executor.summarizeIncidents,
	}
	return executor
}

func (e *ActionExecutor) Run(ctx context.Context, tenantID, query, provider string) (*domain.AgentAction, error) {
	planResponse, err := e.models.Resolve(provider).Generate(ctx, ports.GenerationRequest{
		System:      e.prompts.ActionPlannerSystem,
		Prompt:      e.prompts.actionPlannerPrompt(query),
		Temperature: plannerTemperature,
		MaxTokens:   plannerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate action plan: %w", err)
	}

	plan, err := parseActionPlan(planResponse.Text)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, tenantID, plan), nil
}

type actionPlan struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// parseActionPlan mirrors the intent parser's two-stage recovery, but an
// unparsable plan escalates as a client error: there is no safe default tool.
func parseActionPlan(raw string) (actionPlan, error) {
	var plan actionPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		fragment := jsonObjectPattern.FindString(raw)
		if fragment == "" {
			return actionPlan{}, domain.WrapError(domain.ErrInvalidInput, "parse action plan", err)
		}
		if fragErr := json.Unmarshal([]byte(fragment), &plan); fragErr != nil {
			return actionPlan{}, domain.WrapError(domain.ErrInvalidInput, "parse action plan", fragErr)
		}
	}

	plan.Tool = strings.ToLower(strings.TrimSpace(plan.Tool))
	if plan.Tool == "" {
		plan.Tool = "none"
	}
	if plan.Arguments == nil {
		plan.Arguments = map[string]any{}
	}
	return plan, nil
}

func (e *ActionExecutor) dispatch(ctx context.Context, tenantID string, plan actionPlan) *domain.AgentAction {
	handler, ok := e.tools[plan.Tool]
	if !ok {
		return &domain.AgentAction{
			Tool:      plan.Tool,
			Arguments: plan.Arguments,
			Result: domain.ToolResult{
				Status: domain.ToolStatusUnsupported,
				Detail: "No matching tool for this request",
				Data:   map[string]any{},
			},
		}
	}

	return &domain.AgentAction{
		Tool:      plan.Tool,
		Arguments: plan.Arguments,
		Result:    handler(ctx, tenantID, plan.Arguments),
	}
}

func (e *ActionExecutor) createTask(ctx context.Context, tenantID string, args map[string]any) domain.ToolResult {
	title := strings.TrimSpace(stringArg(args, "title", ""))
	if title == "" {
		return domain.ToolResult{
			Status: domain.ToolStatusFailed,
			Detail: "Task title missing",
			Data:   map[string]any{},
		}
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Title:       title,
		Description: strings.TrimSpace(stringArg(args, "description", "")),
		Priority:    parsePriority(stringArg(args, "priority", "")),
		Status:      domain.TaskStatusOpen,
		Tags:        stringListArg(args, "tags"),
		DueDate:     parseDueDate(stringArg(args, "due_date", "")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.tasks.CreateTask(ctx, task); err != nil {
		return domain.ToolResult{
			Status: domain.ToolStatusFailed,
			Detail: fmt.Sprintf("Task creation failed: %v", err),
			Data:   map[string]any{},
		}
	}

	return domain.ToolResult{
		Status: domain.ToolStatusSuccess,
		Detail: "Task created",
		Data: map[string]any{
			"task_id":  task.ID,
			"title":    task.Title,
			"priority": string(task.Priority),
			"status":   string(task.Status),
		},
	}
}

func (e *ActionExecutor) listOpenTasks(ctx context.Context, tenantID string, _ map[string]any) domain.ToolResult {
	tasks, err := e.tasks.ListOpenTasks(ctx, tenantID, openTasksLimit)
	if err != nil {
		return domain.ToolResult{
			Status: domain.ToolStatusFailed,
			Detail: fmt.Sprintf("Task listing failed: %v", err),
			Data:   map[string]any{},
		}
	}

	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, map[string]any{
			"task_id":    task.ID,
			"title":      task.Title,
			"priority":   string(task.Priority),
			"created_at": task.CreatedAt.Format(time.RFC3339),
		})
	}
	return domain.ToolResult{
		Status: domain.ToolStatusSuccess,
		Detail: fmt.Sprintf("Found %d open tasks", len(items)),
		Data:   map[string]any{"tasks": items},
	}
}

func (e *ActionExecutor) summarizeIncidents(ctx context.Context, tenantID string, args map[string]any) domain.ToolResult {
	days := intArg(args, "timeframe_days", defaultIncidentWindow)
	if days < 1 {
		days = 1
	}

	summary, err := e.incidents.SummarizeIncidents(ctx, tenantID, days)
	if err != nil {
		return domain.ToolResult{
			Status: domain.ToolStatusFailed,
			Detail: fmt.Sprintf("Incident summary failed: %v", err),
			Data:   map[string]any{},
		}
	}

	recent := make([]map[string]any, 0, len(summary.Recent))
	for _, incident := range summary.Recent {
		recent = append(recent, map[string]any{
			"incident_id": incident.IncidentID,
			"title":       incident.Title,
			"severity":    incident.Severity,
			"status":      incident.Status,
		})
	}
	return domain.ToolResult{
		Status: domain.ToolStatusSuccess,
		Detail: "Incident summary generated",
		Data: map[string]any{
			"timeframe_days":        summary.TimeframeDays,
			"total_incidents":       summary.TotalIncidents,
			"open_incidents":        summary.OpenIncidents,
			"resolved_incidents":    summary.ResolvedIncidents,
			"incidents_by_severity": summary.BySeverity,
			"incidents_by_status":   summary.ByStatus,
			"recent_incidents":      recent,
		},
	}
}

func parsePriority(raw string) domain.TaskPriority {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, option := range domain.TaskPriorities {
		if string(option) == normalized {
			return option
		}
	}
	return domain.TaskPriorityMedium
}

// parseDueDate is deliberately forgiving: an unparsable date drops the field
// instead of failing the whole action.
func parseDueDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

func stringArg(args map[string]any, key, fallback string) string {
	if args == nil {
		return fallback
	}
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	default:
		return fallback
	}
}

func stringListArg(args map[string]any, key string) []string {
	if args == nil {
		return nil
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		text := strings.TrimSpace(fmt.Sprint(item))
		if text != "" {
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
