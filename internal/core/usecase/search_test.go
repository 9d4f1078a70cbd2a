package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

type queryEmbedderFake struct {
	vector []float32
	err    error
	calls  int
}

func (f *queryEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *queryEmbedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type vectorIndexFake struct {
	hits     []domain.VectorHit
	err      error
	gotLimit int
}

func (f *vectorIndexFake) IndexRecord(_ context.Context, _ *domain.KnowledgeRecord, _ []string, _ [][]float32) error {
	return nil
}

func (f *vectorIndexFake) FindNearest(_ context.Context, _ []float32, limit int) ([]domain.VectorHit, error) {
	f.gotLimit = limit
	return f.hits, f.err
}

func newSearchFixture(hits []domain.VectorHit) (*KnowledgeSearchUseCase, *vectorIndexFake) {
	index := &vectorIndexFake{hits: hits}
	uc := NewKnowledgeSearchUseCase(&queryEmbedderFake{vector: []float32{0.1, 0.2}}, index, SearchConfig{})
	return uc, index
}

func hit(id string, distance float64) domain.VectorHit {
	return domain.VectorHit{
		RecordID: id,
		Distance: distance,
		Title:    "record " + id,
		Content:  "content " + id,
		Category: "project",
	}
}

func TestSearchRanksThresholdsAndTruncates(t *testing.T) {
	hits := []domain.VectorHit{
		hit("a", 0.25), // 0.75
		hit("b", 0.05), // 0.95
		hit("c", 0.40), // 0.60, below threshold
		hit("d", 0.10), // 0.90
		hit("e", 0.20), // 0.80
		hit("f", 0.15), // 0.85
		hit("g", 0.12), // 0.88
	}
	uc, index := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if index.gotLimit != 10 {
		t.Fatalf("expected over-fetch of 10, got %d", index.gotLimit)
	}
	if len(results) != 5 {
		t.Fatalf("expected truncation to 5 results, got %d", len(results))
	}
	wantOrder := []string{"b", "d", "g", "f", "e"}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Fatalf("rank %d: want %s got %s (results %+v)", i, want, results[i].ID, results)
		}
	}
	for _, r := range results {
		if r.RelevanceScore < 0.7 {
			t.Fatalf("sub-threshold result leaked: %+v", r)
		}
	}
}

func TestSearchCollapsesChunksOfSameRecord(t *testing.T) {
	hits := []domain.VectorHit{
		{RecordID: "a", ChunkIndex: 0, Distance: 0.20, Title: "record a", Category: "project"},
		{RecordID: "a", ChunkIndex: 1, Distance: 0.05, Title: "record a", Category: "project", Content: "best chunk"},
		{RecordID: "b", ChunkIndex: 0, Distance: 0.15, Title: "record b", Category: "project"},
	}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one result per record, got %d", len(results))
	}
	if results[0].ID != "a" || results[0].RelevanceScore != 0.95 || results[0].Content != "best chunk" {
		t.Fatalf("expected record a represented by its best chunk, got %+v", results[0])
	}
}

func TestSearchAppliesMetadataFilters(t *testing.T) {
	hits := []domain.VectorHit{
		{RecordID: "a", Distance: 0.1, Category: "project", TechStack: []string{"React", "Next.js"}},
		{RecordID: "b", Distance: 0.1, Category: "project", TechStack: []string{"Spring"}},
		{RecordID: "c", Distance: 0.1, Category: "project", TechStack: []string{"react-native"}},
	}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{Tech: []string{"react"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected substring OR matching, got %+v", results)
	}
	for _, r := range results {
		if r.ID == "b" {
			t.Fatalf("spring record must be filtered out")
		}
	}
}

func TestSearchProjectTypeFilterIsExact(t *testing.T) {
	hits := []domain.VectorHit{
		{RecordID: "a", Distance: 0.1, Category: "project", ProjectType: "Web"},
		{RecordID: "b", Distance: 0.1, Category: "project", ProjectType: "mobile"},
	}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{ProjectType: "web"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected case-insensitive exact match on project type, got %+v", results)
	}
}

func TestSearchAppliesAnalyzerFiltersWhenCallerGivesNone(t *testing.T) {
	hits := []domain.VectorHit{
		{RecordID: "a", Distance: 0.1, Category: "project", TechStack: []string{"React"}},
		{RecordID: "b", Distance: 0.1, Category: "project", TechStack: []string{"Spring"}},
	}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "React 사용 경험이 궁금합니다", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("analyzer tech filter should apply, got %+v", results)
	}
}

func TestSearchSkipsMalformedHits(t *testing.T) {
	hits := []domain.VectorHit{
		{RecordID: "", Distance: 0.1, Category: "project"},
		{RecordID: "bad", Distance: -0.5, Category: "project"},
		{RecordID: "ok", Distance: 0.1, Category: "project"},
	}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "ok" {
		t.Fatalf("malformed hits must be dropped, got %+v", results)
	}
}

func TestSearchRecordsReturnedIDsInContext(t *testing.T) {
	hits := []domain.VectorHit{
		hit("a", 0.1),
		hit("b", 0.1),
		hit("c", 0.5), // below threshold, must not be recorded
	}
	uc, _ := newSearchFixture(hits)
	sctx := domain.NewSearchContext()

	if _, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, sctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sctx.Contains("project", "a") || !sctx.Contains("project", "b") {
		t.Fatalf("returned ids must be recorded, got %v", sctx.IDs("project"))
	}
	if sctx.Contains("project", "c") {
		t.Fatalf("filtered-out ids must not be recorded")
	}
}

func TestSearchEmbedderFailureDegradesToEmpty(t *testing.T) {
	index := &vectorIndexFake{hits: []domain.VectorHit{hit("a", 0.1)}}
	uc := NewKnowledgeSearchUseCase(&queryEmbedderFake{err: errors.New("ollama down")}, index, SearchConfig{})

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("transient embed failure must not surface an error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}

func TestSearchStoreFailureDegradesToEmpty(t *testing.T) {
	index := &vectorIndexFake{err: errors.New("qdrant down")}
	uc := NewKnowledgeSearchUseCase(&queryEmbedderFake{vector: []float32{0.1}}, index, SearchConfig{})

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{}, nil)
	if err != nil {
		t.Fatalf("transient store failure must not surface an error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}

func TestSearchHonorsCancelledContext(t *testing.T) {
	uc, _ := newSearchFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := uc.Search(ctx, "결제 시스템", domain.SearchFilter{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearchCallerLimitTighterThanDefault(t *testing.T) {
	hits := []domain.VectorHit{hit("a", 0.1), hit("b", 0.15), hit("c", 0.2)}
	uc, _ := newSearchFixture(hits)

	results, err := uc.Search(context.Background(), "결제 시스템", domain.SearchFilter{Limit: 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected caller limit respected, got %d", len(results))
	}
}
