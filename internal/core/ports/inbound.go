package ports

import (
	"context"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// KnowledgeIngestor is the inbound contract for knowledge record submission.
type KnowledgeIngestor interface {
	Submit(ctx context.Context, rec domain.KnowledgeRecord) (*domain.KnowledgeRecord, error)
}

// KnowledgeIndexer is the inbound contract for asynchronous record indexing.
type KnowledgeIndexer interface {
	IndexByID(ctx context.Context, recordID string) error
}

// KnowledgeReader is the inbound read model for record metadata/state.
type KnowledgeReader interface {
	GetByID(ctx context.Context, id string) (*domain.KnowledgeRecord, error)
}

// SearchService runs one analyzed, filtered, ranked retrieval and records
// returned IDs into the turn's SearchContext.
type SearchService interface {
	Search(ctx context.Context, query string, filter domain.SearchFilter, sctx *domain.SearchContext) ([]domain.SearchResult, error)
}

// AssistantService is the inbound contract for the agent.
type AssistantService interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.AgentRunResult, error)
	Answer(ctx context.Context, question string) (*domain.AgentAnswer, error)
}
