package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/config"
	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
	"github.com/opsmind/tenant-rag-agent/internal/core/usecase"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/cache/redis"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/llm"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/llm/ollama"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/queue/nats"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/repository/postgres"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/rerank"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/resilience"
	"github.com/opsmind/tenant-rag-agent/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Agent ports.AgentService
	Queue *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	tasks := postgres.NewTaskRepository(db)
	incidents := postgres.NewIncidentRepository(db)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.PublishPolicy()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llmExecutor := resilience.NewExecutor(resilience.LanguageModelPolicy())
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, llmExecutor)
	embedder := ollama.NewEmbedder(ollamaClient)

	registry := llm.NewRegistry(cfg.DefaultProvider)
	registry.Register("ollama", ollamaClient)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	var cache ports.Cache
	if cfg.CacheEnabled {
		cache = redis.NewCache(cfg.RedisURL)
	}

	prompts, err := usecase.LoadPromptSet(cfg.PromptsFile)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	retriever := usecase.NewRetrievalCoordinator(
		embedder,
		vectorIndex,
		cache,
		rerank.New(cfg.RerankURL),
		time.Duration(cfg.CacheTTLSeconds)*time.Second,
	)

	classifier := usecase.NewIntentClassifier(registry, prompts)
	decomposer := usecase.NewQueryDecomposer(registry, prompts)
	synthesizer := usecase.NewResponseSynthesizer(registry, prompts)
	actions := usecase.NewActionExecutor(registry, prompts, tasks, incidents)

	agent := usecase.NewOrchestrator(
		classifier,
		decomposer,
		retriever,
		synthesizer,
		actions,
		prompts,
		queue,
		domain.AgentLimits{
			MaxChunks:        cfg.AgentMaxChunks,
			ScoreThreshold:   cfg.AgentScoreThreshold,
			MaxFanout:        cfg.AgentMaxFanout,
			LLMTimeout:       time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
			RetrievalTimeout: time.Duration(cfg.RetrievalTimeoutSeconds) * time.Second,
		},
	)

	return &App{
		Config: cfg,
		Agent:  agent,
		Queue:  queue,

		closeFn: func() {
			queue.Close()
			if closer, ok := cache.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
