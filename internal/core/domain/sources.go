package domain

import (
	"sort"
	"sync"
)

// SourceTypeResume marks the static résumé text that is part of the system
// prompt rather than retrieved from the knowledge base. Citations of this
// type are trusted unconditionally and need no document ID.
const SourceTypeResume = "resume"

// AnswerSource is a citation declared by the model in its final answer.
// Type matches the category of the cited knowledge record ("project",
// "career", ...) or a trusted non-retrieved type such as "resume".
type AnswerSource struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	ID    string `json:"id,omitempty"`
}

// SearchContext accumulates the record IDs genuinely returned by search
// calls during one conversation turn, one ID set per record category. A
// fresh context is created per turn and passed explicitly through search
// and validation; it is never shared across turns, since stale IDs from
// prior turns would make source validation overly permissive.
type SearchContext struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewSearchContext() *SearchContext {
	return &SearchContext{seen: make(map[string]map[string]struct{})}
}

// Record appends IDs into the category's set. Duplicates are no-ops.
func (c *SearchContext) Record(category string, ids ...string) {
	if category == "" || len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.seen[category]
	if !ok {
		set = make(map[string]struct{})
		c.seen[category] = set
	}
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

func (c *SearchContext) Contains(category, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.seen[category]
	if !ok {
		return false
	}
	_, ok = set[id]
	return ok
}

// IDs returns the sorted IDs recorded for a category.
func (c *SearchContext) IDs(category string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.seen[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Size reports the total number of distinct recorded IDs.
func (c *SearchContext) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, set := range c.seen {
		total += len(set)
	}
	return total
}

// SourceValidation is the outcome of checking declared citations against a
// SearchContext. A missing ID produces a warning only; an ID that was never
// retrieved makes the source invalid and IsValid false.
type SourceValidation struct {
	IsValid        bool           `json:"is_valid"`
	ValidSources   []AnswerSource `json:"valid_sources"`
	InvalidSources []AnswerSource `json:"invalid_sources"`
	Warnings       []string       `json:"warnings"`
}
