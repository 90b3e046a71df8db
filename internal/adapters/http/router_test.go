package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/observability/metrics"
)

type agentServiceFake struct {
	execution *domain.AgentExecution
	err       error
	lastReq   domain.ExecuteRequest
}

func (f *agentServiceFake) Execute(_ context.Context, req domain.ExecuteRequest) (*domain.AgentExecution, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.execution, nil
}

func sampleExecution() *domain.AgentExecution {
	return &domain.AgentExecution{
		ID:     "exec-1",
		Intent: domain.Intent{Kind: domain.IntentInformational, Confidence: 0.9},
		Result: domain.AgentResult{
			Response: "answer [Source 1]",
			Contexts: []domain.ContextSnippet{{
				ChunkID: "c1", DocumentID: "doc-a", Score: 0.9, Text: "chunk", Source: "runbook.md",
			}},
			Subqueries: []string{"sub"},
			Strategy:   domain.StrategyDirect,
		},
	}
}

func newTestRouter(agent *agentServiceFake, cfg RouterConfig) http.Handler {
	return NewRouter(agent, metrics.NewHTTPServerMetrics("api-test"), cfg).Handler()
}

func executeBody(t *testing.T) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"tenant_id": "tenant-1",
		"query":     "why did checkout fail",
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(payload)
}

func TestExecuteEndpointReturnsExecution(t *testing.T) {
	agent := &agentServiceFake{execution: sampleExecution()}
	handler := newTestRouter(agent, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/execute", executeBody(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if agent.lastReq.TenantID != "tenant-1" {
		t.Fatalf("tenant not forwarded: %+v", agent.lastReq)
	}

	var response struct {
		ExecutionID string                 `json:"execution_id"`
		Result      domain.AgentResult     `json:"result"`
		Guardrails  domain.GuardrailReport `json:"guardrails"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.ExecutionID != "exec-1" || response.Result.Response != "answer [Source 1]" {
		t.Fatalf("unexpected response %+v", response)
	}
	if response.Guardrails.HasWarnings {
		t.Fatalf("unexpected guardrail warnings %v", response.Guardrails.Warnings)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestExecuteEndpointIncludesGuardrailWarnings(t *testing.T) {
	execution := sampleExecution()
	execution.Intent.Confidence = 0.2
	handler := newTestRouter(&agentServiceFake{execution: execution}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/execute", executeBody(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var response struct {
		Guardrails domain.GuardrailReport `json:"guardrails"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Guardrails.HasWarnings {
		t.Fatalf("expected low confidence warning")
	}
}

func TestExecuteEndpointMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "agent execute", errors.New("tenant_id is required")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrTemporary, "generate", errors.New("model down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestRouter(&agentServiceFake{err: tc.err}, RouterConfig{})
		req := httptest.NewRequest(http.MethodPost, "/v1/agent/execute", executeBody(t))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.status {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.status, res.Code)
		}
	}
}

func TestExecuteEndpointRejectsBadJSONAndMethod(t *testing.T) {
	handler := newTestRouter(&agentServiceFake{execution: sampleExecution()}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/execute", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/agent/execute", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestStreamEndpointEventOrder(t *testing.T) {
	execution := sampleExecution()
	execution.Action = &domain.AgentAction{
		Tool:   "create_task",
		Result: domain.ToolResult{Status: domain.ToolStatusSuccess, Detail: "Task created"},
	}
	handler := newTestRouter(&agentServiceFake{execution: execution}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/stream", executeBody(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	events := parseSSEEvents(res.Body.String())
	want := []string{"status", "intent", "contexts", "action", "answer", "done"}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
}

func TestStreamEndpointOmitsActionWithoutDispatch(t *testing.T) {
	handler := newTestRouter(&agentServiceFake{execution: sampleExecution()}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/stream", executeBody(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	for _, event := range parseSSEEvents(res.Body.String()) {
		if event == "action" {
			t.Fatalf("action event must be omitted when no tool was dispatched")
		}
	}
}

func TestStreamEndpointEmitsErrorEvent(t *testing.T) {
	handler := newTestRouter(&agentServiceFake{err: fmt.Errorf("pipeline broke")}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/agent/stream", executeBody(t))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	events := parseSSEEvents(res.Body.String())
	if len(events) != 2 || events[0] != "status" || events[1] != "error" {
		t.Fatalf("expected status then error, got %v", events)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&agentServiceFake{}, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func parseSSEEvents(body string) []string {
	events := []string{}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	return events
}
