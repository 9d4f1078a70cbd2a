package domain

type SuggestedAction string

const (
	ActionAnswer  SuggestedAction = "answer"
	ActionRewrite SuggestedAction = "rewrite"
	ActionExpand  SuggestedAction = "expand"
)

// EvaluationResult is the assessment of one result set against the query.
type EvaluationResult struct {
	IsRelevant      bool            `json:"is_relevant"`
	RelevanceScore  float64         `json:"relevance_score"`
	CoverageScore   float64         `json:"coverage_score"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
	Reason          string          `json:"reason"`
}
