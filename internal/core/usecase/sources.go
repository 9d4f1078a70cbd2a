package usecase

import (
	"fmt"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// SourceValidator checks that an answer's declared citations trace back to
// record IDs genuinely returned by search calls in the same turn. This is
// the anti-hallucination gate: the model cannot cite a document it never
// retrieved.
type SourceValidator struct {
	trusted map[string]struct{}
}

// NewSourceValidator builds a validator. Trusted types (static content not
// retrieved from the knowledge base, such as the résumé text) are valid
// unconditionally. With no types given, only the résumé type is trusted.
func NewSourceValidator(trustedTypes ...string) *SourceValidator {
	if len(trustedTypes) == 0 {
		trustedTypes = []string{domain.SourceTypeResume}
	}
	trusted := make(map[string]struct{}, len(trustedTypes))
	for _, t := range trustedTypes {
		if t != "" {
			trusted[t] = struct{}{}
		}
	}
	return &SourceValidator{trusted: trusted}
}

// Validate classifies each source:
//   - trusted type: valid, no warning;
//   - retrievable type without ID: valid with a warning (soft contract, the
//     answer may still be useful);
//   - retrievable type with an ID absent from the context: invalid, flagged
//     as a likely hallucination.
//
// The overall verdict fails only on a wrong ID, never on a missing one.
func (v *SourceValidator) Validate(sources []domain.AnswerSource, sctx *domain.SearchContext) domain.SourceValidation {
	out := domain.SourceValidation{
		IsValid:        true,
		ValidSources:   []domain.AnswerSource{},
		InvalidSources: []domain.AnswerSource{},
		Warnings:       []string{},
	}

	for _, source := range sources {
		if _, ok := v.trusted[source.Type]; ok {
			out.ValidSources = append(out.ValidSources, source)
			continue
		}

		if source.ID == "" {
			out.ValidSources = append(out.ValidSources, source)
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"source %q (type=%s) has no record id; citation cannot be verified", source.Title, source.Type))
			continue
		}

		if sctx != nil && sctx.Contains(source.Type, source.ID) {
			out.ValidSources = append(out.ValidSources, source)
			continue
		}

		out.InvalidSources = append(out.InvalidSources, source)
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"source %q (type=%s) cites id %q that was never retrieved this turn", source.Title, source.Type, source.ID))
	}

	out.IsValid = len(out.InvalidSources) == 0
	return out
}
