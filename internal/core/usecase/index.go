package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
)

// KnowledgeIndexUseCase turns a queued record into searchable vectors:
// load payload, derive retrieval metadata, chunk, embed, index.
type KnowledgeIndexUseCase struct {
	repo     ports.KnowledgeRepository
	storage  ports.ObjectStorage
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
}

func NewKnowledgeIndexUseCase(
	repo ports.KnowledgeRepository,
	storage ports.ObjectStorage,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
) *KnowledgeIndexUseCase {
	return &KnowledgeIndexUseCase{
		repo:     repo,
		storage:  storage,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
	}
}

func (uc *KnowledgeIndexUseCase) IndexByID(ctx context.Context, recordID string) error {
	if err := uc.repo.UpdateStatus(ctx, recordID, domain.StatusIndexing, ""); err != nil {
		return fmt.Errorf("set status=indexing: %w", err)
	}

	rec, err := uc.indexPipeline(ctx, recordID)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, recordID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveMetadata(ctx, rec.ID, domain.RecordMetadata{
		Skills:      rec.Skills,
		TechStack:   rec.TechStack,
		ProjectType: rec.ProjectType,
	}); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, recordID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save derived metadata: %w", err)
	}

	if err := uc.repo.UpdateStatus(ctx, recordID, domain.StatusIndexed, ""); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}
	return nil
}

func (uc *KnowledgeIndexUseCase) indexPipeline(ctx context.Context, recordID string) (*domain.KnowledgeRecord, error) {
	rec, err := uc.loadPayload(ctx, recordID)
	if err != nil {
		return nil, err
	}

	// Index-time metadata must match the analyzer's query-time vocabulary,
	// otherwise filter hints never hit.
	meta := DeriveRecordMetadata(rec)
	if len(rec.Skills) == 0 {
		rec.Skills = meta.Skills
	}
	if len(rec.TechStack) == 0 {
		rec.TechStack = meta.TechStack
	}
	if rec.ProjectType == "" {
		rec.ProjectType = meta.ProjectType
	}

	chunks := uc.chunker.Split(embeddingText(rec))
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk record", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.index.IndexRecord(ctx, rec, chunks, vectors); err != nil {
		return nil, fmt.Errorf("index record vectors: %w", err)
	}
	return rec, nil
}

func (uc *KnowledgeIndexUseCase) loadPayload(ctx context.Context, recordID string) (*domain.KnowledgeRecord, error) {
	reader, err := uc.storage.Open(ctx, storageKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("open record payload: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read record payload: %w", err)
	}

	var rec domain.KnowledgeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record payload: %w", err)
	}
	if strings.TrimSpace(rec.Content) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load record", errors.New("record content is empty"))
	}
	return &rec, nil
}

func embeddingText(rec *domain.KnowledgeRecord) string {
	parts := make([]string, 0, 3)
	if rec.Title != "" {
		parts = append(parts, rec.Title)
	}
	if rec.Summary != "" {
		parts = append(parts, rec.Summary)
	}
	parts = append(parts, rec.Content)
	return strings.Join(parts, "\n\n")
}
