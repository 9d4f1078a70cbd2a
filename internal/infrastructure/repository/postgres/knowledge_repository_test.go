package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*KnowledgeRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &KnowledgeRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestCreateInsertsRegistryRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO knowledge_records").
		WithArgs("rec-1", "결제 시스템", "project", []byte(`["pg","정산"]`), "요약",
			[]byte(`["백엔드"]`), []byte(`["kafka"]`), "backend", string(domain.StatusPending), "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.KnowledgeRecord{
		ID:          "rec-1",
		Title:       "결제 시스템",
		Category:    "project",
		Tags:        []string{"pg", "정산"},
		Summary:     "요약",
		Skills:      []string{"백엔드"},
		TechStack:   []string{"kafka"},
		ProjectType: "backend",
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, category, tags").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansJSONColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "title", "category", "tags", "summary", "skills", "tech_stack",
		"project_type", "status", "error_message", "created_at", "updated_at",
	}).AddRow("rec-1", "결제 시스템", "project", []byte(`["pg"]`), "요약",
		[]byte(`["백엔드"]`), []byte(`["kafka"]`), "backend", "indexed", "", now, now)

	mock.ExpectQuery("SELECT id, title, category, tags").
		WithArgs("rec-1").
		WillReturnRows(rows)

	rec, err := repo.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.Status != domain.StatusIndexed {
		t.Fatalf("unexpected status: %s", rec.Status)
	}
	if len(rec.TechStack) != 1 || rec.TechStack[0] != "kafka" {
		t.Fatalf("tech stack not decoded: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE knowledge_records").
		WithArgs("missing", string(domain.StatusIndexing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusIndexing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveMetadataReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE knowledge_records").
		WithArgs("missing", sqlmock.AnyArg(), sqlmock.AnyArg(), "web", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveMetadata(context.Background(), "missing", domain.RecordMetadata{
		Skills:      []string{"프론트엔드"},
		TechStack:   []string{"react"},
		ProjectType: "web",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
