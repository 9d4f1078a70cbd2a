package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// KnowledgeRepository persists the registry row of each knowledge record.
// The full payload lives in object storage; the row carries status and the
// retrieval metadata.
type KnowledgeRepository struct {
	db *sql.DB
}

func NewKnowledgeRepository(db *sql.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *KnowledgeRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS knowledge_records (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	summary TEXT,
	skills JSONB NOT NULL DEFAULT '[]'::jsonb,
	tech_stack JSONB NOT NULL DEFAULT '[]'::jsonb,
	project_type TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_records_status ON knowledge_records(status);
CREATE INDEX IF NOT EXISTS idx_knowledge_records_created_at ON knowledge_records(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) Create(ctx context.Context, rec *domain.KnowledgeRecord) error {
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	skillsJSON, err := json.Marshal(orEmpty(rec.Skills))
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	techJSON, err := json.Marshal(orEmpty(rec.TechStack))
	if err != nil {
		return fmt.Errorf("marshal tech stack: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO knowledge_records (
	id, title, category, tags, summary, skills, tech_stack, project_type, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		rec.ID, rec.Title, rec.Category, tagsJSON, rec.Summary, skillsJSON, techJSON,
		rec.ProjectType, string(rec.Status), rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge record: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, category, tags, summary, skills, tech_stack, project_type, status, error_message, created_at, updated_at
FROM knowledge_records
WHERE id = $1
`, id)

	var rec domain.KnowledgeRecord
	var tagsRaw, skillsRaw, techRaw []byte
	var status string

	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Category, &tagsRaw, &rec.Summary,
		&skillsRaw, &techRaw, &rec.ProjectType, &status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get knowledge record", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan knowledge record: %w", err)
	}

	if err := json.Unmarshal(tagsRaw, &rec.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(skillsRaw, &rec.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal skills: %w", err)
	}
	if err := json.Unmarshal(techRaw, &rec.TechStack); err != nil {
		return nil, fmt.Errorf("unmarshal tech stack: %w", err)
	}
	rec.Status = domain.KnowledgeStatus(status)
	return &rec, nil
}

func (r *KnowledgeRepository) UpdateStatus(ctx context.Context, id string, status domain.KnowledgeStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE knowledge_records
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update knowledge record status: %w", err)
	}
	return requireRowAffected(res, "update status", id)
}

func (r *KnowledgeRepository) SaveMetadata(ctx context.Context, id string, meta domain.RecordMetadata) error {
	skillsJSON, err := json.Marshal(orEmpty(meta.Skills))
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	techJSON, err := json.Marshal(orEmpty(meta.TechStack))
	if err != nil {
		return fmt.Errorf("marshal tech stack: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE knowledge_records
SET skills = $2, tech_stack = $3, project_type = $4, updated_at = $5
WHERE id = $1
`, id, skillsJSON, techJSON, meta.ProjectType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save record metadata: %w", err)
	}
	return requireRowAffected(res, "save metadata", id)
}

func requireRowAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRecordNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
