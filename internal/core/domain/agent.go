package domain

import "time"

type IntentKind string

const (
	IntentInformational IntentKind = "informational"
	IntentAnalytical    IntentKind = "analytical"
	IntentAction        IntentKind = "action"
	IntentClarify       IntentKind = "clarify"
)

// ParseIntentKind maps free-form model output to a known kind.
// Anything unrecognized routes to the informational branch.
func ParseIntentKind(raw string) IntentKind {
	switch IntentKind(raw) {
	case IntentInformational, IntentAnalytical, IntentAction, IntentClarify:
		return IntentKind(raw)
	default:
		return IntentInformational
	}
}

type Intent struct {
	Kind            IntentKind `json:"intent"`
	Confidence      float64    `json:"confidence"`
	Reasoning       string     `json:"reasoning,omitempty"`
	Entities        []string   `json:"entities,omitempty"`
	RequestedAction string     `json:"requested_action,omitempty"`
	RawResponse     string     `json:"raw_response,omitempty"`
}

type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyInformed Strategy = "informed"
)

// Trace records what a single sub-query retrieved. Observability only,
// never fed back into ranking.
type Trace struct {
	Subquery string           `json:"subquery"`
	Contexts []ContextSnippet `json:"contexts"`
}

type AgentResult struct {
	Response   string           `json:"response"`
	Contexts   []ContextSnippet `json:"contexts"`
	ModelInfo  string           `json:"model_info,omitempty"`
	Subqueries []string         `json:"subqueries"`
	Strategy   Strategy         `json:"strategy"`
	Traces     []Trace          `json:"traces,omitempty"`
}

type ToolStatus string

const (
	ToolStatusSuccess     ToolStatus = "success"
	ToolStatusFailed      ToolStatus = "failed"
	ToolStatusUnsupported ToolStatus = "unsupported"
)

type ToolResult struct {
	Status ToolStatus     `json:"status"`
	Detail string         `json:"detail"`
	Data   map[string]any `json:"data"`
}

type AgentAction struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    ToolResult     `json:"result"`
}

// AgentExecution is the complete record of one orchestration call.
// Action-path executions carry an empty AgentResult; retrieval-path
// executions carry a nil Action.
type AgentExecution struct {
	ID     string       `json:"id"`
	Intent Intent       `json:"intent"`
	Result AgentResult  `json:"result"`
	Action *AgentAction `json:"action,omitempty"`
}

type GuardrailReport struct {
	Warnings    []string       `json:"warnings"`
	HasWarnings bool           `json:"has_warnings"`
	Info        map[string]any `json:"info"`
}

type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ExecuteRequest struct {
	TenantID       string         `json:"tenant_id"`
	Query          string         `json:"query"`
	Strategy       Strategy       `json:"strategy,omitempty"`
	MaxChunks      int            `json:"max_chunks,omitempty"`
	ScoreThreshold float64        `json:"score_threshold,omitempty"`
	LLMProvider    string         `json:"llm_provider,omitempty"`
	Conversation   []AgentMessage `json:"conversation,omitempty"`
}

type AgentLimits struct {
	MaxChunks        int
	ScoreThreshold   float64
	MaxFanout        int
	LLMTimeout       time.Duration
	RetrievalTimeout time.Duration
}

// ExecutionRecord is the flattened event published after each run for
// asynchronous query-history persistence.
type ExecutionRecord struct {
	ExecutionID  string    `json:"execution_id"`
	TenantID     string    `json:"tenant_id"`
	Query        string    `json:"query"`
	Intent       string    `json:"intent"`
	Confidence   float64   `json:"confidence"`
	Strategy     string    `json:"strategy"`
	Subqueries   []string  `json:"subqueries,omitempty"`
	ContextCount int       `json:"context_count"`
	Answer       string    `json:"answer,omitempty"`
	Tool         string    `json:"tool,omitempty"`
	ToolStatus   string    `json:"tool_status,omitempty"`
	ElapsedMS    float64   `json:"elapsed_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
