package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
)

// KnowledgeIngestUseCase accepts records from the knowledge pipeline,
// persists the raw payload and registry row, and queues indexing.
type KnowledgeIngestUseCase struct {
	repo    ports.KnowledgeRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewKnowledgeIngestUseCase(
	repo ports.KnowledgeRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *KnowledgeIngestUseCase {
	return &KnowledgeIngestUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *KnowledgeIngestUseCase) Submit(ctx context.Context, rec domain.KnowledgeRecord) (*domain.KnowledgeRecord, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Content = strings.TrimSpace(rec.Content)
	if rec.Title == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit record", errors.New("title is required"))
	}
	if rec.Content == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit record", errors.New("content is required"))
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Category == "" {
		rec.Category = "project"
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	now := time.Now().UTC()
	rec.Status = domain.StatusPending
	rec.Error = ""
	rec.CreatedAt = now
	rec.UpdatedAt = now

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record payload: %w", err)
	}
	if err := uc.storage.Save(ctx, storageKey(rec.ID), bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("save record payload: %w", err)
	}

	if err := uc.repo.Create(ctx, &rec); err != nil {
		return nil, fmt.Errorf("create record row: %w", err)
	}

	if err := uc.queue.PublishRecordQueued(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("publish sync event: %w", err)
	}

	return &rec, nil
}

func storageKey(recordID string) string {
	return recordID + ".json"
}
