package usecase

import (
	"fmt"
	"strings"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

// Ordered so that rewrites are deterministic.
var broadenSubstitutions = []struct {
	term    string
	broader string
}{
	{"react", "프론트엔드"},
	{"typescript", "자바스크립트"},
	{"next.js", "웹 프레임워크"},
	{"kubernetes", "인프라"},
	{"graphql", "api"},
	{"postgresql", "데이터베이스"},
	{"mongodb", "데이터베이스"},
	{"최적화", "개선"},
	{"리팩토링", "개선"},
}

var narrowPhrases = map[domain.Intent]string{
	domain.IntentSkillInquiry:   "실무 활용 사례",
	domain.IntentProjectInquiry: "프로젝트 사례",
	domain.IntentTechInquiry:    "기술 적용 경험",
	domain.IntentProblemSolving: "문제 해결 과정",
	domain.IntentTeamExperience: "협업 경험",
}

var rephraseSynonyms = []struct {
	term         string
	alternatives []string
}{
	{"개발", []string{"구현", "제작"}},
	{"경험", []string{"이력", "사례"}},
	{"사용", []string{"활용", "적용"}},
	{"만든", []string{"개발한"}},
	{"기술", []string{"스택"}},
	{"프로젝트", []string{"작업"}},
	{"문제", []string{"이슈"}},
}

// RewriteQuery transforms the original query according to one strategy.
// Deterministic: identical inputs always yield the identical result. Every
// applied transformation is recorded in Modifications; a narrow rewrite with
// an unmapped intent is the one deliberate no-op and records nothing.
func RewriteQuery(original string, intent domain.Intent, keywords []string, strategy domain.RewriteStrategy) domain.RewriteResult {
	switch strategy {
	case domain.StrategyBroaden:
		return broadenQuery(original, keywords)
	case domain.StrategyNarrow:
		return narrowQuery(original, intent)
	case domain.StrategyRephrase:
		return rephraseQuery(original, keywords)
	case domain.StrategyDecompose:
		return decomposeQuery(original, keywords)
	default:
		return domain.RewriteResult{
			RewrittenQuery: original,
			Modifications:  []string{fmt.Sprintf("unknown strategy %q; query unchanged", strategy)},
		}
	}
}

// broadenQuery swaps specific terms for broader ones; with nothing to swap it
// generalizes down to the leading keywords plus a generic suffix.
func broadenQuery(original string, keywords []string) domain.RewriteResult {
	lowered := strings.ToLower(original)
	rewritten := original
	mods := make([]string, 0, 2)

	for _, sub := range broadenSubstitutions {
		if !strings.Contains(lowered, sub.term) {
			continue
		}
		rewritten = replaceFold(rewritten, sub.term, sub.broader)
		mods = append(mods, fmt.Sprintf("broadened %q to %q", sub.term, sub.broader))
	}
	if len(mods) > 0 {
		return domain.RewriteResult{RewrittenQuery: rewritten, Modifications: mods}
	}

	lead := keywords
	if len(lead) > 2 {
		lead = lead[:2]
	}
	if len(lead) == 0 {
		return domain.RewriteResult{
			RewrittenQuery: original + " 관련 경험",
			Modifications:  []string{"appended generic experience suffix"},
		}
	}
	return domain.RewriteResult{
		RewrittenQuery: strings.Join(lead, " ") + " 관련 경험",
		Modifications:  []string{fmt.Sprintf("generalized to leading keywords %v with experience suffix", lead)},
	}
}

func narrowQuery(original string, intent domain.Intent) domain.RewriteResult {
	phrase, ok := narrowPhrases[intent]
	if !ok {
		return domain.RewriteResult{RewrittenQuery: original, Modifications: []string{}}
	}
	return domain.RewriteResult{
		RewrittenQuery: original + " " + phrase,
		Modifications:  []string{fmt.Sprintf("appended %q qualifier for intent %s", phrase, intent)},
	}
}

// rephraseQuery substitutes the first recognized term with its first listed
// alternative; with no recognized term it reverses the keyword order.
func rephraseQuery(original string, keywords []string) domain.RewriteResult {
	for _, syn := range rephraseSynonyms {
		if !strings.Contains(original, syn.term) {
			continue
		}
		alt := syn.alternatives[0]
		return domain.RewriteResult{
			RewrittenQuery: strings.Replace(original, syn.term, alt, 1),
			Modifications:  []string{fmt.Sprintf("replaced %q with %q", syn.term, alt)},
		}
	}

	if len(keywords) == 0 {
		return domain.RewriteResult{
			RewrittenQuery: original,
			Modifications:  []string{"no recognized terms or keywords; query unchanged"},
		}
	}
	reversed := make([]string, 0, len(keywords))
	for i := len(keywords) - 1; i >= 0; i-- {
		reversed = append(reversed, keywords[i])
	}
	return domain.RewriteResult{
		RewrittenQuery: strings.Join(reversed, " "),
		Modifications:  []string{"reversed keyword order"},
	}
}

func decomposeQuery(original string, keywords []string) domain.RewriteResult {
	switch {
	case len(keywords) > 2:
		return domain.RewriteResult{
			RewrittenQuery: strings.Join(keywords[:2], " "),
			Modifications:  []string{fmt.Sprintf("reduced to first two keywords %v", keywords[:2])},
		}
	case len(keywords) >= 1:
		return domain.RewriteResult{
			RewrittenQuery: keywords[0],
			Modifications:  []string{fmt.Sprintf("reduced to first keyword %q", keywords[0])},
		}
	default:
		return domain.RewriteResult{
			RewrittenQuery: original,
			Modifications:  []string{"no keywords to decompose; query unchanged"},
		}
	}
}

// replaceFold replaces every case-insensitive occurrence of term.
func replaceFold(s, term, replacement string) string {
	lowered := strings.ToLower(s)
	term = strings.ToLower(term)

	var out strings.Builder
	for {
		idx := strings.Index(lowered, term)
		if idx < 0 {
			out.WriteString(s)
			return out.String()
		}
		out.WriteString(s[:idx])
		out.WriteString(replacement)
		s = s[idx+len(term):]
		lowered = lowered[idx+len(term):]
	}
}
