package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// EvaluateResults scores a result set for relevance and keyword coverage and
// recommends the agent's next action. Pure function of its inputs.
//
// The decision table is evaluated top to bottom, first match wins:
//
//	no results                          -> rewrite
//	mean relevance < 0.5                -> rewrite
//	coverage < 0.3 and fewer than 2     -> expand
//	mean >= 0.7 and at least 2 results  -> answer
//	mean >= 0.5                         -> answer
//	otherwise                           -> rewrite
func EvaluateResults(query string, results []domain.SearchResult, analysis *domain.QueryAnalysis) domain.EvaluationResult {
	if len(results) == 0 {
		return domain.EvaluationResult{
			IsRelevant:      false,
			RelevanceScore:  0,
			CoverageScore:   0,
			SuggestedAction: domain.ActionRewrite,
			Reason:          "no results returned; the query should be rewritten",
		}
	}

	meanRelevance := 0.0
	for _, r := range results {
		meanRelevance += r.RelevanceScore
	}
	meanRelevance = round2(meanRelevance / float64(len(results)))

	coverage := coverageScore(query, results, analysis)
	isRelevant := meanRelevance >= 0.5

	var action domain.SuggestedAction
	var reason string
	switch {
	case meanRelevance < 0.5:
		action = domain.ActionRewrite
		reason = fmt.Sprintf("mean relevance %.2f is below 0.5; rewrite the query", meanRelevance)
	case coverage < 0.3 && len(results) < 2:
		action = domain.ActionExpand
		reason = fmt.Sprintf("keyword coverage %.2f is low with only %d result(s); broaden the query", coverage, len(results))
	case meanRelevance >= 0.7 && len(results) >= 2:
		action = domain.ActionAnswer
		reason = fmt.Sprintf("strong results: mean relevance %.2f across %d results", meanRelevance, len(results))
	case meanRelevance >= 0.5:
		action = domain.ActionAnswer
		reason = fmt.Sprintf("acceptable results: mean relevance %.2f", meanRelevance)
	default:
		action = domain.ActionRewrite
		reason = "results are inconclusive; rewrite the query"
	}

	return domain.EvaluationResult{
		IsRelevant:      isRelevant,
		RelevanceScore:  meanRelevance,
		CoverageScore:   coverage,
		SuggestedAction: action,
		Reason:          reason,
	}
}

// coverageScore is the fraction of keywords found as case-insensitive
// substrings anywhere across the concatenated result contents. Keywords come
// from the analysis when available, else from the raw query tokens.
func coverageScore(query string, results []domain.SearchResult, analysis *domain.QueryAnalysis) float64 {
	var keywords []string
	if analysis != nil && len(analysis.Keywords) > 0 {
		keywords = analysis.Keywords
	} else {
		keywords = extractKeywords(query)
	}
	if len(keywords) == 0 {
		return 0
	}

	var combined strings.Builder
	for _, r := range results {
		combined.WriteString(strings.ToLower(r.Content))
		combined.WriteString(" ")
	}
	haystack := combined.String()

	found := 0
	for _, keyword := range keywords {
		if strings.Contains(haystack, strings.ToLower(keyword)) {
			found++
		}
	}
	return round2(float64(found) / float64(len(keywords)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
