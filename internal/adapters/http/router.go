package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
	"github.com/opsmind/tenant-rag-agent/internal/core/usecase"
	"github.com/opsmind/tenant-rag-agent/internal/observability/metrics"
)

type RouterConfig struct {
	ServiceName      string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

type Router struct {
	agent   ports.AgentService
	metrics *metrics.HTTPServerMetrics
	cfg     RouterConfig
}

func NewRouter(agent ports.AgentService, serverMetrics *metrics.HTTPServerMetrics, cfg RouterConfig) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api"
	}
	return &Router{agent: agent, metrics: serverMetrics, cfg: cfg}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/agent/execute", rt.executeAgent)
	mux.HandleFunc("/v1/agent/stream", rt.streamAgent)

	var handler http.Handler = mux
	if rt.cfg.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.BackpressureWait)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type executionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Intent      domain.Intent          `json:"intent"`
	Result      domain.AgentResult     `json:"result"`
	Action      *domain.AgentAction    `json:"action,omitempty"`
	Guardrails  domain.GuardrailReport `json:"guardrails"`
}

func (rt *Router) executeAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	execution, err := rt.agent.Execute(r.Context(), req)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= 500 {
			slog.Error("agent_execute_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	response := buildExecutionResponse(execution)
	rt.recordExecution(execution, response.Guardrails, time.Since(start))
	writeJSON(w, http.StatusOK, response)
}

func decodeExecuteRequest(w http.ResponseWriter, r *http.Request) (domain.ExecuteRequest, bool) {
	var req domain.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return domain.ExecuteRequest{}, false
	}
	return req, true
}

func buildExecutionResponse(execution *domain.AgentExecution) executionResponse {
	return executionResponse{
		ExecutionID: execution.ID,
		Intent:      execution.Intent,
		Result:      execution.Result,
		Action:      execution.Action,
		Guardrails:  usecase.BuildGuardrailReport(execution),
	}
}

func (rt *Router) recordExecution(execution *domain.AgentExecution, guardrails domain.GuardrailReport, elapsed time.Duration) {
	rt.metrics.RecordExecution(
		rt.cfg.ServiceName,
		string(execution.Intent.Kind),
		string(execution.Result.Strategy),
		len(execution.Result.Contexts),
		len(execution.Result.Subqueries),
		elapsed,
	)
	if execution.Action != nil {
		rt.metrics.RecordToolCall(rt.cfg.ServiceName, execution.Action.Tool, string(execution.Action.Result.Status))
	}
	if guardrails.HasWarnings {
		rt.metrics.RecordGuardrailWarnings(rt.cfg.ServiceName)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write_response_failed", "error", err)
	}
}
