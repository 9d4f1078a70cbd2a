package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/adubovik/portfolio-agent/internal/config"
	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
	"github.com/adubovik/portfolio-agent/internal/core/usecase"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/chunking"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/llm/ollama"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/queue/nats"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/repository/postgres"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/resilience"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/storage/localfs"
	"github.com/adubovik/portfolio-agent/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.KnowledgeRepository
	IngestUC  ports.KnowledgeIngestor
	IndexUC   ports.KnowledgeIndexer
	Assistant ports.AssistantService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	repo := postgres.NewKnowledgeRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure knowledge schema: %w", err)
	}
	conversations := postgres.NewConversationRepository(db)
	if err := conversations.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure conversation schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	embedder := ollama.NewResilientEmbedder(ollama.NewEmbedder(ollamaClient), executor)
	planner := ollama.NewResilientPlanner(ollama.NewPlanner(ollamaClient), executor)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	searchUC := usecase.NewKnowledgeSearchUseCase(embedder, vectorIndex, usecase.SearchConfig{
		RelevanceThreshold: cfg.SearchRelevanceThreshold,
		MaxResults:         cfg.SearchMaxResults,
		OverfetchLimit:     cfg.SearchOverfetchLimit,
	})
	validator := usecase.NewSourceValidator(cfg.TrustedSourceTypes...)

	ingestUC := usecase.NewKnowledgeIngestUseCase(repo, storage, queue)
	indexUC := usecase.NewKnowledgeIndexUseCase(repo, storage, chunker, embedder, vectorIndex)
	assistantUC := usecase.NewAssistantUseCase(searchUC, planner, validator, conversations, domain.AgentLimits{
		MaxToolCalls: cfg.AgentMaxToolCalls,
		MaxSearches:  cfg.AgentMaxSearches,
		Timeout:      time.Duration(cfg.AgentTimeoutSeconds) * time.Second,
		ShortMemory:  cfg.AgentShortMemoryMsgs,
	}, cfg.ResumeText)

	return &App{
		Config: cfg,

		Queue:     queue,
		Repo:      repo,
		IngestUC:  ingestUC,
		IndexUC:   indexUC,
		Assistant: assistantUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
