package domain

type Intent string

const (
	IntentSkillInquiry   Intent = "skill_inquiry"
	IntentProjectInquiry Intent = "project_inquiry"
	IntentTechInquiry    Intent = "tech_inquiry"
	IntentGeneralInfo    Intent = "general_info"
	IntentProblemSolving Intent = "problem_solving"
	IntentTeamExperience Intent = "team_experience"
)

// QueryAnalysis is the best-effort classification of one user query.
// It is created fresh per query and consumed by the search call that follows.
// An empty ProjectTypeFilter means no project-type restriction.
type QueryAnalysis struct {
	Intent            Intent   `json:"intent"`
	Keywords          []string `json:"keywords"`
	SkillFilters      []string `json:"skill_filters"`
	TechFilters       []string `json:"tech_filters"`
	ProjectTypeFilter string   `json:"project_type_filter,omitempty"`
}
