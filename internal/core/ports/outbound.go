package ports

import (
	"context"
	"io"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// KnowledgeRepository persists knowledge-record state.
type KnowledgeRepository interface {
	Create(ctx context.Context, rec *domain.KnowledgeRecord) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.KnowledgeStatus, errMessage string) error
	SaveMetadata(ctx context.Context, id string, meta domain.RecordMetadata) error
}

// ObjectStorage stores raw record payloads between ingest and indexing.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes knowledge sync events.
type MessageQueue interface {
	PublishRecordQueued(ctx context.Context, recordID string) error
	SubscribeRecordQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// Embedder builds vectors for record chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits record content into embeddable chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex indexes records and performs nearest-neighbor search.
// FindNearest returns raw candidates with cosine distance; thresholding,
// metadata filtering and ranking happen in the search use case.
type VectorIndex interface {
	IndexRecord(ctx context.Context, rec *domain.KnowledgeRecord, chunks []string, vectors [][]float32) error
	FindNearest(ctx context.Context, vector []float32, limit int) ([]domain.VectorHit, error)
}

// PlannerModel is the opaque text/tool-calling oracle behind the agent:
// it drafts plan steps as JSON and writes the final answer text.
type PlannerModel interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.SearchResult) (string, error)
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// ConversationStore persists conversation transcripts.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	NextUserTurn(ctx context.Context, userID, conversationID string) (int, error)
	AppendMessage(ctx context.Context, message domain.ConversationMessage) error
	ListRecentMessages(ctx context.Context, userID, conversationID string, limit int) ([]domain.ConversationMessage, error)
}
