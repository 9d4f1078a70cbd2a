package domain

import "time"

type KnowledgeStatus string

const (
	StatusPending  KnowledgeStatus = "pending"
	StatusIndexing KnowledgeStatus = "indexing"
	StatusIndexed  KnowledgeStatus = "indexed"
	StatusFailed   KnowledgeStatus = "failed"
)

// KnowledgeRecord is one entry of the portfolio knowledge base, as delivered
// by the ingestion pipeline: a project, a career entry, a blog post.
type KnowledgeRecord struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	Tags        []string        `json:"tags,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Content     string          `json:"content"`
	Skills      []string        `json:"skills,omitempty"`
	TechStack   []string        `json:"tech_stack,omitempty"`
	ProjectType string          `json:"project_type,omitempty"`
	Status      KnowledgeStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RecordMetadata is retrieval metadata derived from a record's tags and text.
type RecordMetadata struct {
	Skills      []string `json:"skills"`
	TechStack   []string `json:"tech_stack"`
	ProjectType string   `json:"project_type,omitempty"`
}

// SearchFilter narrows retrieval. Skills and Tech use OR semantics with
// case-insensitive substring matching; ProjectType is exact (case-insensitive).
type SearchFilter struct {
	Skills      []string `json:"skills,omitempty"`
	Tech        []string `json:"tech,omitempty"`
	ProjectType string   `json:"project_type,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// SearchResult is one retrieved record as surfaced to the agent.
// RelevanceScore is 1 - cosine distance, rounded to two decimals.
type SearchResult struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Category       string   `json:"category"`
	Skills         []string `json:"skills,omitempty"`
	TechStack      []string `json:"tech_stack,omitempty"`
	ProjectType    string   `json:"project_type,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// VectorHit is a raw nearest-neighbor candidate from the vector store,
// before thresholding and metadata filtering.
type VectorHit struct {
	RecordID    string
	ChunkIndex  int
	Distance    float64
	Title       string
	Content     string
	Category    string
	Skills      []string
	TechStack   []string
	ProjectType string
}
