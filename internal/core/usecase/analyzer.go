package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

const maxAnalysisKeywords = 5

// Intent rules are tested in order; the first group with any matching
// keyword wins. Ties resolve by list position, not match count.
var intentRules = []struct {
	intent   domain.Intent
	keywords []string
}{
	{domain.IntentSkillInquiry, []string{"스킬", "역량", "강점", "잘하", "능숙", "skill", "strength", "good at"}},
	{domain.IntentProjectInquiry, []string{"프로젝트", "포트폴리오", "만든", "개발한", "구축", "project", "built", "portfolio"}},
	{domain.IntentTechInquiry, []string{"기술", "스택", "사용", "언어", "프레임워크", "도구", "tech", "stack", "framework", "language", "react", "typescript"}},
	{domain.IntentProblemSolving, []string{"문제", "해결", "트러블", "장애", "버그", "개선", "problem", "debug", "issue", "troubleshoot"}},
	{domain.IntentTeamExperience, []string{"팀", "협업", "소통", "동료", "리더", "team", "collaborat", "communicat"}},
}

var techVocabulary = []string{
	"react", "typescript", "javascript", "next.js", "node", "golang",
	"python", "java", "kotlin", "spring", "docker", "kubernetes", "aws",
	"gcp", "firebase", "graphql", "redis", "postgresql", "mysql",
	"mongodb", "kafka", "tailwind", "flutter", "swift",
}

var skillVocabulary = []string{
	"프론트엔드", "frontend", "백엔드", "backend", "풀스택", "fullstack",
	"데이터", "인프라", "설계", "최적화", "테스트", "리팩토링",
	"아키텍처", "성능", "배포", "ui", "ux",
}

// Project type groups are tested in order; first match wins.
var projectTypeRules = []struct {
	projectType string
	keywords    []string
}{
	{"web", []string{"웹", "web", "사이트", "홈페이지", "프론트"}},
	{"backend", []string{"백엔드", "backend", "서버", "api"}},
	{"mobile", []string{"모바일", "mobile", "앱", "ios", "android"}},
	{"infrastructure", []string{"인프라", "infra", "배포", "devops", "ci/cd"}},
}

// AnalyzeQuery classifies a free-text visitor query. It is deterministic,
// pure and never fails: unmatched queries fall back to general_info with
// empty filters. It runs before every search call and is the single source
// of the filter hints that narrow retrieval.
func AnalyzeQuery(query string) domain.QueryAnalysis {
	lowered := strings.ToLower(query)

	analysis := domain.QueryAnalysis{
		Intent:       domain.IntentGeneralInfo,
		Keywords:     extractKeywords(query),
		SkillFilters: []string{},
		TechFilters:  []string{},
	}

	for _, rule := range intentRules {
		if containsAny(lowered, rule.keywords) {
			analysis.Intent = rule.intent
			break
		}
	}

	for _, term := range techVocabulary {
		if strings.Contains(lowered, term) {
			analysis.TechFilters = append(analysis.TechFilters, term)
		}
	}
	for _, term := range skillVocabulary {
		if strings.Contains(lowered, term) {
			analysis.SkillFilters = append(analysis.SkillFilters, term)
		}
	}

	for _, rule := range projectTypeRules {
		if containsAny(lowered, rule.keywords) {
			analysis.ProjectTypeFilter = rule.projectType
			break
		}
	}

	return analysis
}

// extractKeywords takes the first non-trivial whitespace-split tokens.
func extractKeywords(query string) []string {
	tokens := strings.Fields(query)
	keywords := make([]string, 0, maxAnalysisKeywords)
	for _, token := range tokens {
		if utf8.RuneCountInString(token) <= 1 {
			continue
		}
		keywords = append(keywords, token)
		if len(keywords) == maxAnalysisKeywords {
			break
		}
	}
	return keywords
}

func containsAny(lowered string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// DeriveRecordMetadata maps a record's tags, title and summary onto the
// retrieval vocabularies so that indexed payloads carry the same filter
// terms the analyzer produces at query time.
func DeriveRecordMetadata(rec *domain.KnowledgeRecord) domain.RecordMetadata {
	corpus := strings.ToLower(strings.Join(rec.Tags, " ") + " " + rec.Title + " " + rec.Summary)

	meta := domain.RecordMetadata{
		Skills:    []string{},
		TechStack: []string{},
	}
	for _, term := range techVocabulary {
		if strings.Contains(corpus, term) {
			meta.TechStack = append(meta.TechStack, term)
		}
	}
	for _, term := range skillVocabulary {
		if strings.Contains(corpus, term) {
			meta.Skills = append(meta.Skills, term)
		}
	}
	for _, rule := range projectTypeRules {
		if containsAny(corpus, rule.keywords) {
			meta.ProjectType = rule.projectType
			break
		}
	}
	return meta
}
