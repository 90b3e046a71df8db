package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const initialQueryLabelPrefix = "Initial query: "

// Orchestrator sequences the pipeline for one query: intent classification,
// then either tool dispatch, a canned clarification, or the retrieval branch
// (decompose, fan-out search, aggregate, synthesize).
type Orchestrator struct {
	classifier  *IntentClassifier
	decomposer  *QueryDecomposer
	retriever   ports.ContextRetriever
	synthesizer *ResponseSynthesizer
	actions     *ActionExecutor
	prompts     *PromptSet
	publisher   ports.ExecutionPublisher // optional
	limits      domain.AgentLimits
}

func NewOrchestrator(
	classifier *IntentClassifier,
	decomposer *QueryDecomposer,
	retriever ports.ContextRetriever,
	synthesizer *ResponseSynthesizer,
	actions *ActionExecutor,
	prompts *PromptSet,
	publisher ports.ExecutionPublisher,
	limits domain.AgentLimits,
) *Orchestrator {
	if limits.MaxChunks <= 0 {
		limits.MaxChunks = 4
	}
	if limits.ScoreThreshold <= 0 {
		limits.ScoreThreshold = 0.35
	}
	if limits.MaxFanout <= 0 {
		limits.MaxFanout = 4
	}
	if limits.LLMTimeout <= 0 {
		limits.LLMTimeout = 60 * time.Second
	}
	if limits.RetrievalTimeout <= 0 {
		limits.RetrievalTimeout = 15 * time.Second
	}

	return &Orchestrator{
		classifier:  classifier,
		decomposer:  decomposer,
		retriever:   retriever,
		synthesizer: synthesizer,
		actions:     actions,
		prompts:     prompts,
		publisher:   publisher,
		limits:      limits,
	}
}

func (o *Orchestrator) Execute(ctx context.Context, req domain.ExecuteRequest) (*domain.AgentExecution, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent execute", fmt.Errorf("tenant_id is required"))
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent execute", fmt.Errorf("query is required"))
	}

	strategy := req.Strategy
	if strategy != domain.StrategyInformed {
		strategy = domain.StrategyDirect
	}
	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = o.limits.MaxChunks
	}
	threshold := req.ScoreThreshold
	if threshold <= 0 {
		threshold = o.limits.ScoreThreshold
	}

	started := time.Now()
	processedQuery := formatConversation(req.Conversation, query)

	intentCtx, cancelIntent := context.WithTimeout(ctx, o.limits.LLMTimeout)
	intent := o.classifier.Classify(intentCtx, processedQuery, req.LLMProvider)
	cancelIntent()

	execution := &domain.AgentExecution{
		ID:     uuid.NewString(),
		Intent: intent,
	}

	switch intent.Kind {
	case domain.IntentAction:
		action, err := o.actions.Run(ctx, tenantID, processedQuery, req.LLMProvider)
		if err != nil {
			return nil, err
		}
		execution.Result = domain.AgentResult{
			Contexts:   []domain.ContextSnippet{},
			Subqueries: []string{},
			Strategy:   strategy,
		}
		execution.Action = action
	case domain.IntentClarify:
		execution.Result = domain.AgentResult{
			Response:   o.prompts.Clarification,
			Contexts:   []domain.ContextSnippet{},
			Subqueries: []string{},
			Strategy:   strategy,
		}
	default:
		result, err := o.retrieveAndAnswer(ctx, tenantID, processedQuery, req.LLMProvider, maxChunks, threshold, strategy)
		if err != nil {
			return nil, err
		}
		execution.Result = *result
	}

	o.publishRecord(ctx, tenantID, query, execution, time.Since(started))
	return execution, nil
}

func (o *Orchestrator) retrieveAndAnswer(
	ctx context.Context,
	tenantID, query, provider string,
	maxChunks int,
	threshold float64,
	strategy domain.Strategy,
) (*domain.AgentResult, error) {
	agg := newContextAggregator()
	effective := strategy
	recorded := make([]string, 0, 1)
	var subqueries []string

	if strategy == domain.StrategyInformed {
		initialLabel := initialQueryLabelPrefix + query
		initial := o.searchContext(ctx, tenantID, query, maxChunks, threshold)
		agg.ingest(initialLabel, initial)

		if len(initial) > 0 {
			recorded = append(recorded, initialLabel)

			initialSummary := ""
			summaryCtx, cancel := context.WithTimeout(ctx, o.limits.LLMTimeout)
			summary, err := o.synthesizer.SummarizeInitial(summaryCtx, provider, query, initial)
			cancel()
			if err != nil {
				slog.Warn("initial_summary_failed", "tenant_id", tenantID, "error", err)
			} else {
				initialSummary = summary
			}

			subqueries = o.decomposer.DecomposeInformed(
				ctx, query, provider,
				initialSummary,
				formatContext(initial, contextSourceLimit, contextSnippetChars),
			)
		}
	}

	if len(subqueries) == 0 {
		if effective == domain.StrategyInformed && agg.isEmpty() {
			// An informed strategy with no seed context is equivalent to direct.
			effective = domain.StrategyDirect
		}
		subqueries = o.decomposer.Decompose(ctx, query, provider)
	}
	if len(subqueries) == 0 {
		subqueries = []string{query}
	}

	fanout := subqueries
	if effective == domain.StrategyDirect {
		fanout = append([]string{query}, subqueries...)
	}
	o.searchFanout(ctx, tenantID, fanout, maxChunks, threshold, agg)

	allLabels := dedupeSubqueries(append(append([]string{}, recorded...), subqueries...))
	traces := agg.buildTraces(query, effective, recorded, subqueries)

	if agg.isEmpty() {
		return &domain.AgentResult{
			Response:   o.prompts.NoContextAnswer,
			Contexts:   []domain.ContextSnippet{},
			Subqueries: allLabels,
			Strategy:   effective,
			Traces:     traces,
		}, nil
	}

	limit := maxChunks * max(1, len(subqueries))
	trimmed := agg.contexts(limit)

	synthCtx, cancel := context.WithTimeout(ctx, o.limits.LLMTimeout)
	answer, err := o.synthesizer.Synthesize(synthCtx, provider, query, trimmed)
	cancel()
	if err != nil {
		return nil, err
	}

	return &domain.AgentResult{
		Response:   answer.Text,
		Contexts:   trimmed,
		ModelInfo:  answer.Model,
		Subqueries: allLabels,
		Strategy:   effective,
		Traces:     traces,
	}, nil
}

// searchFanout issues the per-label searches concurrently with a bounded
// number of in-flight tasks and joins before aggregation continues. The
// aggregator merge is commutative, so completion order does not matter.
func (o *Orchestrator) searchFanout(
	ctx context.Context,
	tenantID string,
	labels []string,
	maxChunks int,
	threshold float64,
	agg *contextAggregator,
) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, o.limits.MaxFanout)
	)

	for _, label := range labels {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			items := o.searchContext(ctx, tenantID, label, maxChunks, threshold)

			mu.Lock()
			agg.ingest(label, items)
			mu.Unlock()
		}(label)
	}
	wg.Wait()
}

// searchContext runs one coordinated search. A failed sub-query degrades to
// an empty result for that sub-query only.
func (o *Orchestrator) searchContext(
	ctx context.Context,
	tenantID, query string,
	maxChunks int,
	threshold float64,
) []domain.ContextSnippet {
	searchCtx, cancel := context.WithTimeout(ctx, o.limits.RetrievalTimeout)
	defer cancel()

	page, err := o.retriever.Search(searchCtx, tenantID, query, domain.SearchOptions{
		Limit:          maxChunks,
		ScoreThreshold: threshold,
		UseCache:       true,
		Rerank:         true,
	})
	if err != nil {
		slog.Warn("subquery_search_failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	return page.Items
}

func (o *Orchestrator) publishRecord(
	ctx context.Context,
	tenantID, query string,
	execution *domain.AgentExecution,
	elapsed time.Duration,
) {
	if o.publisher == nil {
		return
	}

	record := domain.ExecutionRecord{
		ExecutionID:  execution.ID,
		TenantID:     tenantID,
		Query:        query,
		Intent:       string(execution.Intent.Kind),
		Confidence:   execution.Intent.Confidence,
		Strategy:     string(execution.Result.Strategy),
		Subqueries:   execution.Result.Subqueries,
		ContextCount: len(execution.Result.Contexts),
		Answer:       execution.Result.Response,
		ElapsedMS:    float64(elapsed.Microseconds()) / 1000.0,
		CreatedAt:    time.Now().UTC(),
	}
	if execution.Action != nil {
		record.Tool = execution.Action.Tool
		record.ToolStatus = string(execution.Action.Result.Status)
	}

	if err := o.publisher.PublishExecutionCompleted(ctx, record); err != nil {
		slog.Warn("execution_publish_failed", "tenant_id", tenantID, "execution_id", execution.ID, "error", err)
	}
}
