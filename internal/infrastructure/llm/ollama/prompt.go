package ollama

import (
	"fmt"
	"strings"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

func buildAnswerPrompt(question string, results []domain.SearchResult) string {
	var contextBuilder strings.Builder
	for idx, r := range results {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] id=%s title=%s category=%s relevance=%.2f\n%s\n\n",
			idx+1,
			r.ID,
			r.Title,
			r.Category,
			r.RelevanceScore,
			r.Content,
		))
	}

	return fmt.Sprintf(`You answer questions from portfolio-site visitors about the site owner's work history.
Answer in the language of the question, only from the context below.
If the context is insufficient, say so directly instead of guessing.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
