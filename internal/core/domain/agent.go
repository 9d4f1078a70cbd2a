package domain

import "time"

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AgentLimits bounds one agent turn. MaxSearches caps search invocations;
// MaxToolCalls is the hard ceiling on all tool invocations. Hitting either
// forces a best-effort answer, never an error.
type AgentLimits struct {
	MaxToolCalls   int           `json:"max_tool_calls"`
	MaxSearches    int           `json:"max_searches"`
	Timeout        time.Duration `json:"timeout"`
	PlannerTimeout time.Duration `json:"planner_timeout"`
	ToolTimeout    time.Duration `json:"tool_timeout"`
	ShortMemory    int           `json:"short_memory_messages"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	UserID         string        `json:"user_id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Messages       []ChatMessage `json:"messages"`
}

// ValidationSummary is the caller-facing view of source validation.
type ValidationSummary struct {
	IsValid            bool     `json:"is_valid"`
	Warnings           []string `json:"warnings,omitempty"`
	InvalidSourceCount int      `json:"invalid_source_count"`
}

// AgentAnswer is the final answer surface: text, the citations that survived
// validation, a confidence marker, and the validation verdict.
type AgentAnswer struct {
	Answer     string            `json:"answer"`
	Sources    []AnswerSource    `json:"sources"`
	Confidence Confidence        `json:"confidence"`
	Validation ValidationSummary `json:"validation"`
}

type AgentToolEvent struct {
	Tool   string `json:"tool"`
	Status string `json:"status"`
	Output string `json:"output"`
}

type AgentRunResult struct {
	ConversationID string           `json:"conversation_id"`
	Answer         AgentAnswer      `json:"answer"`
	Iterations     int              `json:"iterations"`
	Searches       int              `json:"searches"`
	ToolsInvoked   []string         `json:"tools_invoked,omitempty"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	ToolEvents     []AgentToolEvent `json:"tool_events,omitempty"`
}

// AgentPlanStep is one planner decision: either a tool invocation or the
// final answer with declared sources.
type AgentPlanStep struct {
	Type       string         `json:"type"`
	Tool       string         `json:"tool,omitempty"`
	Answer     string         `json:"answer,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Sources    []AnswerSource `json:"sources,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

type Conversation struct {
	UserID          string    `json:"user_id"`
	ConversationID  string    `json:"conversation_id"`
	CurrentUserTurn int       `json:"current_user_turn"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ConversationMessage struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ToolName       string    `json:"tool_name,omitempty"`
	UserTurn       int       `json:"user_turn"`
	CreatedAt      time.Time `json:"created_at"`
}
