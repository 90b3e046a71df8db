package usecase

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
)

// PromptSet holds every template the pipeline sends to a language model.
// Individual templates can be overridden from a YAML file at startup.
type PromptSet struct {
	IntentSystem          string `yaml:"intent_system"`
	IntentTemplate        string `yaml:"intent_template"`
	DecomposerRole        string `yaml:"decomposer_role"`
	DecompositionTemplate string `yaml:"decomposition_template"`
	InformedTemplate      string `yaml:"informed_template"`
	DecompositionSystem   string `yaml:"decomposition_system"`
	SynthesizerRole       string `yaml:"synthesizer_role"`
	SynthesisTemplate     string `yaml:"synthesis_template"`
	RAGSystem             string `yaml:"rag_system"`
	CitationSystem        string `yaml:"citation_system"`
	ActionPlannerSystem   string `yaml:"action_planner_system"`
	ActionPlannerTemplate string `yaml:"action_planner_template"`
	Clarification         string `yaml:"clarification"`
	NoContextAnswer       string `yaml:"no_context_answer"`
}

func DefaultPromptSet() *PromptSet {
	return &PromptSet{
		IntentSystem: "You are an operations assistant that analyses queries before routing them to tools. " +
			"Always emit valid JSON matching the requested schema.",
		IntentTemplate: `Analyze the following query before answering it:

Query: %s

1. Determine the user's intent category.
2. List the key entities or concepts.
3. Identify any implied actions or objectives.
4. Explain your reasoning briefly.

Respond with valid JSON using this schema:
{
  "intent": "informational | analytical | action | clarify",
  "confidence": float between 0 and 1,
  "reasoning": "short explanation",
  "entities": ["key noun phrases"],
  "requested_action": "action verb phrase if intent == action else null"
}`,
		DecomposerRole: "You are a research planner who breaks complex questions into precise follow-up queries.",
		DecompositionTemplate: `%s

Original Query: %s

Break this query into 2-4 focused subquestions. Each subquestion should be self-contained,
target a specific aspect of the original query, and maximise relevance for document retrieval.

Return only the follow-up queries as bullet points, no prose.`,
		InformedTemplate: `%s

Original Query: %s

Initial Summary:
%s

Context Snippets:
%s

Suggest 2-3 follow-up questions that would close remaining gaps, resolve ambiguities, or surface
alternative perspectives. Avoid duplicating information already covered.

Return only the follow-up queries as bullet points, no prose.`,
		DecompositionSystem: "You produce concise bullet lists and nothing else.",
		SynthesizerRole:     "You combine evidence from multiple documents into a cohesive, well-structured answer with citations.",
		SynthesisTemplate: `%s

Original Query: %s

Findings:
%s

Write a concise, well-structured answer that integrates the findings, cites sources with [Source X],
and notes unresolved gaps or conflicting evidence.`,
		RAGSystem: "You are a helpful assistant. Review the supplied context and clearly cite the supporting source for each fact.\n" +
			"If the context lacks relevant information, say so explicitly.",
		CitationSystem: "You must attribute every factual statement to a specific context source using [Source X] notation.\n" +
			"Distinguish clearly between contextual evidence and general knowledge.",
		ActionPlannerSystem: "Map user intent to the provided tools and return JSON only.",
		ActionPlannerTemplate: "You are an assistant that maps user requests to internal tools. Delimiters: ```\n\n" +
			"User Query:\n```\n%s\n```\n\n" +
			`Available tools:
- create_task(title, description?, priority?, due_date?)
- get_open_tasks()
- summarize_incidents(timeframe_days?)

Respond with JSON using this schema:
{
  "tool": "create_task | get_open_tasks | summarize_incidents | none",
  "arguments": {"key": "value"}
}

Only choose tools that directly satisfy the request. If no tool applies, return "none".`,
		Clarification:   "I need a bit more detail to assist. Could you restate what action or analysis you expect?",
		NoContextAnswer: "No relevant documents were retrieved for this query.",
	}
}

// LoadPromptSet returns the defaults with any non-empty overrides from the
// YAML file applied. A missing path yields the defaults unchanged.
func LoadPromptSet(path string) (*PromptSet, error) {
	prompts := DefaultPromptSet()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	var overrides PromptSet
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	prompts.apply(overrides)
	return prompts, nil
}

func (p *PromptSet) apply(overrides PromptSet) {
	fields := []struct {
		dst *string
		src string
	}{
		{&p.IntentSystem, overrides.IntentSystem},
		{&p.IntentTemplate, overrides.IntentTemplate},
		{&p.DecomposerRole, overrides.DecomposerRole},
		{&p.DecompositionTemplate, overrides.DecompositionTemplate},
		{&p.InformedTemplate, overrides.InformedTemplate},
		{&p.DecompositionSystem, overrides.DecompositionSystem},
		{&p.SynthesizerRole, overrides.SynthesizerRole},
		{&p.SynthesisTemplate, overrides.SynthesisTemplate},
		{&p.RAGSystem, overrides.RAGSystem},
		{&p.CitationSystem, overrides.CitationSystem},
		{&p.ActionPlannerSystem, overrides.ActionPlannerSystem},
		{&p.ActionPlannerTemplate, overrides.ActionPlannerTemplate},
		{&p.Clarification, overrides.Clarification},
		{&p.NoContextAnswer, overrides.NoContextAnswer},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.src) != "" {
			*field.dst = field.src
		}
	}
}

func (p *PromptSet) intentPrompt(query string) string {
	return fmt.Sprintf(p.IntentTemplate, query)
}

func (p *PromptSet) decompositionPrompt(query string) string {
	return fmt.Sprintf(p.DecompositionTemplate, p.DecomposerRole, query)
}

func (p *PromptSet) informedDecompositionPrompt(query, initialSummary, contextSnippets string) string {
	return fmt.Sprintf(p.InformedTemplate, p.DecomposerRole, query, initialSummary, contextSnippets)
}

func (p *PromptSet) synthesisPrompt(query, findings string) string {
	return fmt.Sprintf(p.SynthesisTemplate, p.SynthesizerRole, query, findings)
}

func (p *PromptSet) actionPlannerPrompt(query string) string {
	return fmt.Sprintf(p.ActionPlannerTemplate, query)
}

// formatContext renders the highest scoring snippets as numbered sources.
// maxLength truncates each snippet body; zero disables truncation.
func formatContext(contexts []domain.ContextSnippet, limit, maxLength int) string {
	ranked := append([]domain.ContextSnippet(nil), contexts...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	parts := make([]string, 0, len(ranked))
	for idx, ctx := range ranked {
		snippet := strings.TrimSpace(ctx.Text)
		if snippet == "" {
			continue
		}
		if maxLength > 0 {
			if runes := []rune(snippet); len(runes) > maxLength {
				snippet = string(runes[:maxLength])
			}
		}
		title := ctx.Source
		if title == "" {
			title = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Source %d] %s\n%s", idx+1, title, snippet))
	}
	return strings.Join(parts, "\n\n")
}

// formatConversation folds prior messages into the working query so the
// classifier and retriever see the conversational context.
func formatConversation(history []domain.AgentMessage, query string) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, content))
	}
	if len(lines) == 0 {
		return query
	}
	return fmt.Sprintf("Conversation so far:\n%s\n\nCurrent question: %s", strings.Join(lines, "\n"), query)
}
