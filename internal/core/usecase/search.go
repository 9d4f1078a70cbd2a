package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
)

// SearchConfig carries the retrieval constants. The defaults are deliberate
// literals, not tuned values: candidates below the relevance threshold are
// dropped, the store is over-fetched to leave post-filtering headroom.
type SearchConfig struct {
	RelevanceThreshold float64
	MaxResults         int
	OverfetchLimit     int
}

func (c SearchConfig) normalize() SearchConfig {
	out := c
	if out.RelevanceThreshold <= 0 {
		out.RelevanceThreshold = 0.7
	}
	if out.MaxResults <= 0 {
		out.MaxResults = 5
	}
	if out.OverfetchLimit < out.MaxResults {
		out.OverfetchLimit = 10
	}
	return out
}

type KnowledgeSearchUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	cfg      SearchConfig
}

func NewKnowledgeSearchUseCase(embedder ports.Embedder, index ports.VectorIndex, cfg SearchConfig) *KnowledgeSearchUseCase {
	return &KnowledgeSearchUseCase{
		embedder: embedder,
		index:    index,
		cfg:      cfg.normalize(),
	}
}

// Search embeds the query, over-fetches nearest neighbors, thresholds,
// applies metadata filters, ranks, truncates and records the returned IDs
// into the turn's SearchContext. Recording is a required side effect: it is
// what source validation later checks against.
//
// Transient embedder/store failures degrade to an empty result list with a
// logged error; the agent loop treats zero results as a signal to rewrite,
// never as a fatal condition. The only error returned is cancellation.
func (uc *KnowledgeSearchUseCase) Search(
	ctx context.Context,
	query string,
	filter domain.SearchFilter,
	sctx *domain.SearchContext,
) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The analyzer runs before every search; explicit caller filters
	// take precedence over its hints.
	analysis := AnalyzeQuery(query)
	filter = mergeFilters(filter, analysis)

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Error("search_embed_failed", "query_len", len(query), "error", err)
		return []domain.SearchResult{}, nil
	}

	hits, err := uc.index.FindNearest(ctx, vector, uc.cfg.OverfetchLimit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Error("search_vector_store_failed", "error", err)
		return []domain.SearchResult{}, nil
	}

	results := uc.collectCandidates(hits, filter)

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].ID < results[j].ID
	})

	limit := filter.Limit
	if limit <= 0 || limit > uc.cfg.MaxResults {
		limit = uc.cfg.MaxResults
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if sctx != nil {
		for _, r := range results {
			sctx.Record(r.Category, r.ID)
		}
	}
	return results, nil
}

// collectCandidates converts raw hits to scored results, dropping malformed
// hits, sub-threshold candidates and filter misses. Multiple chunk hits of
// the same record collapse into the record's best-scoring chunk.
func (uc *KnowledgeSearchUseCase) collectCandidates(hits []domain.VectorHit, filter domain.SearchFilter) []domain.SearchResult {
	best := make(map[string]domain.SearchResult, len(hits))
	for _, hit := range hits {
		// Fail soft on malformed upstream records.
		if hit.RecordID == "" || hit.Distance < 0 || hit.Distance > 2 {
			slog.Warn("search_skip_malformed_hit", "record_id", hit.RecordID, "distance", hit.Distance)
			continue
		}

		relevance := round2(1 - hit.Distance)
		if relevance < uc.cfg.RelevanceThreshold {
			continue
		}

		candidate := domain.SearchResult{
			ID:             hit.RecordID,
			Title:          hit.Title,
			Content:        hit.Content,
			Category:       hit.Category,
			Skills:         hit.Skills,
			TechStack:      hit.TechStack,
			ProjectType:    hit.ProjectType,
			RelevanceScore: relevance,
		}
		if !matchesFilter(candidate, filter) {
			continue
		}

		if prev, ok := best[candidate.ID]; !ok || candidate.RelevanceScore > prev.RelevanceScore {
			best[candidate.ID] = candidate
		}
	}

	out := make([]domain.SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

// matchesFilter keeps a candidate when ANY of its skill tags matches ANY
// requested skill (case-insensitive substring), same OR semantics for tech;
// project type is exact case-insensitive equality.
func matchesFilter(r domain.SearchResult, filter domain.SearchFilter) bool {
	if len(filter.Skills) > 0 && !anyTagMatches(r.Skills, filter.Skills) {
		return false
	}
	if len(filter.Tech) > 0 && !anyTagMatches(r.TechStack, filter.Tech) {
		return false
	}
	if filter.ProjectType != "" && !strings.EqualFold(r.ProjectType, filter.ProjectType) {
		return false
	}
	return true
}

func anyTagMatches(tags, requested []string) bool {
	for _, tag := range tags {
		loweredTag := strings.ToLower(tag)
		for _, want := range requested {
			if strings.Contains(loweredTag, strings.ToLower(want)) {
				return true
			}
		}
	}
	return false
}

func mergeFilters(explicit domain.SearchFilter, analysis domain.QueryAnalysis) domain.SearchFilter {
	out := explicit
	if len(out.Skills) == 0 {
		out.Skills = analysis.SkillFilters
	}
	if len(out.Tech) == 0 {
		out.Tech = analysis.TechFilters
	}
	if out.ProjectType == "" {
		out.ProjectType = analysis.ProjectTypeFilter
	}
	return out
}
