package domain

type RewriteStrategy string

const (
	StrategyBroaden   RewriteStrategy = "broaden"
	StrategyNarrow    RewriteStrategy = "narrow"
	StrategyRephrase  RewriteStrategy = "rephrase"
	StrategyDecompose RewriteStrategy = "decompose"
)

// RewriteResult carries the transformed query plus an audit trail of the
// transformations that were applied.
type RewriteResult struct {
	RewrittenQuery string   `json:"rewritten_query"`
	Modifications  []string `json:"modifications"`
}
