package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/usecase"
)

// streamAgent runs the same pipeline as executeAgent but reports progress
// as server-sent events: status, intent, contexts, action (when dispatched),
// answer, then done. A failure after the stream starts becomes an error
// event, since the 200 header is already on the wire.
func (rt *Router) streamAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	req, ok := decodeExecuteRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	stream := &sseWriter{w: w, flusher: flusher}
	stream.event("status", map[string]string{"state": "running"})

	start := time.Now()
	execution, err := rt.agent.Execute(r.Context(), req)
	if err != nil {
		stream.event("error", map[string]any{
			"error":  err.Error(),
			"status": mapErrorToHTTPStatus(err),
		})
		return
	}

	stream.event("intent", execution.Intent)
	stream.event("contexts", map[string]any{
		"contexts":   execution.Result.Contexts,
		"subqueries": execution.Result.Subqueries,
		"strategy":   execution.Result.Strategy,
	})
	if execution.Action != nil {
		stream.event("action", execution.Action)
	}
	stream.event("answer", map[string]any{
		"response":   execution.Result.Response,
		"model_info": execution.Result.ModelInfo,
	})

	guardrails := usecase.BuildGuardrailReport(execution)
	rt.recordExecution(execution, guardrails, time.Since(start))
	stream.event("done", map[string]any{
		"execution_id": execution.ID,
		"guardrails":   guardrails,
	})
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

func (s *sseWriter) event(name string, payload any) {
	if s.failed {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.failed = true
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		s.failed = true
		return
	}
	s.flusher.Flush()
}
