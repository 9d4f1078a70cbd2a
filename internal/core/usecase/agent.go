package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
)

const (
	toolAnalyzeQuery    = "analyze_query"
	toolSearchKnowledge = "search_knowledge"
	toolEvaluateResults = "evaluate_results"
	toolRewriteQuery    = "rewrite_query"
)

const noAnswerText = "죄송합니다. 지금은 해당 질문에 답할 수 있는 자료를 찾지 못했습니다. 질문을 조금 바꿔서 다시 시도해 주세요."

// AssistantUseCase drives one agent turn. The planner model decides which
// tool to call next, but the hard limits live here: a capped number of
// search invocations, a capped total tool budget, and a source validation
// gate on the final answer. Prompt text alone is never trusted to enforce
// the budgets.
type AssistantUseCase struct {
	search        *KnowledgeSearchUseCase
	planner       ports.PlannerModel
	validator     *SourceValidator
	conversations ports.ConversationStore
	limits        domain.AgentLimits
	resumeText    string
}

func NewAssistantUseCase(
	search *KnowledgeSearchUseCase,
	planner ports.PlannerModel,
	validator *SourceValidator,
	conversations ports.ConversationStore,
	limits domain.AgentLimits,
	resumeText string,
) *AssistantUseCase {
	if limits.MaxToolCalls <= 0 {
		limits.MaxToolCalls = 5
	}
	if limits.MaxSearches <= 0 {
		limits.MaxSearches = 2
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 60 * time.Second
	}
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 20 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 15 * time.Second
	}
	if limits.ShortMemory <= 0 {
		limits.ShortMemory = 10
	}

	return &AssistantUseCase{
		search:        search,
		planner:       planner,
		validator:     validator,
		conversations: conversations,
		limits:        limits,
		resumeText:    resumeText,
	}
}

// turnState is the single-writer mutable state of one turn. The search
// context collects retrieved IDs for the validation gate; search calls
// within a turn are strictly sequenced by the loop, so there is no
// concurrent-write hazard.
type turnState struct {
	question     string
	currentQuery string
	sctx         *domain.SearchContext
	analysis     *domain.QueryAnalysis
	results      []domain.SearchResult
	lastEval     *domain.EvaluationResult
	searches     int
	scratchpad   []string
	toolEvents   []domain.AgentToolEvent
	toolsInvoked []string
	toolSet      map[string]struct{}
}

func newTurnState(question string) *turnState {
	return &turnState{
		question:     question,
		currentQuery: question,
		sctx:         domain.NewSearchContext(),
		toolSet:      make(map[string]struct{}),
	}
}

func (s *turnState) noteTool(event domain.AgentToolEvent) {
	s.toolEvents = append(s.toolEvents, event)
	if event.Tool == "" {
		return
	}
	if _, seen := s.toolSet[event.Tool]; !seen {
		s.toolSet[event.Tool] = struct{}{}
		s.toolsInvoked = append(s.toolsInvoked, event.Tool)
	}
	s.scratchpad = append(s.scratchpad, fmt.Sprintf("%s(%s): %s", event.Tool, event.Status, event.Output))
}

// Chat runs a full conversation turn: transcript plumbing, the bounded
// planner loop, and answer assembly through the validation gate.
func (uc *AssistantUseCase) Chat(ctx context.Context, req domain.ChatRequest) (*domain.AgentRunResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent chat", errors.New("user_id is required"))
	}
	question, ok := latestUserInput(req.Messages)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent chat", errors.New("at least one user message is required"))
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if _, err := uc.conversations.EnsureConversation(ctx, userID, conversationID); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	shortMemory, err := uc.conversations.ListRecentMessages(ctx, userID, conversationID, uc.limits.ShortMemory)
	if err != nil {
		return nil, fmt.Errorf("load short memory: %w", err)
	}
	turn, err := uc.conversations.NextUserTurn(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("next user turn: %w", err)
	}
	if err := uc.appendMessage(ctx, userID, conversationID, "user", question, "", turn); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	state := newTurnState(question)
	answer, iterations, fallbackReason := uc.runPlannerLoop(loopCtx, state, shortMemory)

	if answer == nil {
		// Budget exhaustion, planner failure or timeout: never an error,
		// always a best-effort answer from whatever is on hand.
		forced := uc.forcedAnswer(ctx, state, fallbackReason)
		answer = &forced
	}

	for _, event := range state.toolEvents {
		if err := uc.appendMessage(ctx, userID, conversationID, "tool", event.Output, event.Tool, turn); err != nil {
			return nil, err
		}
	}
	if err := uc.appendMessage(ctx, userID, conversationID, "assistant", answer.Answer, "", turn); err != nil {
		return nil, err
	}

	return &domain.AgentRunResult{
		ConversationID: conversationID,
		Answer:         *answer,
		Iterations:     iterations,
		Searches:       state.searches,
		ToolsInvoked:   state.toolsInvoked,
		FallbackReason: fallbackReason,
		ToolEvents:     state.toolEvents,
	}, nil
}

// runPlannerLoop executes up to MaxToolCalls planner decisions. It returns
// a nil answer with a fallback reason when the turn must be force-finished.
func (uc *AssistantUseCase) runPlannerLoop(
	ctx context.Context,
	state *turnState,
	shortMemory []domain.ConversationMessage,
) (*domain.AgentAnswer, int, string) {
	iterations := 0

	for i := 1; i <= uc.limits.MaxToolCalls; i++ {
		if ctx.Err() != nil {
			return nil, iterations, "timeout"
		}
		iterations = i

		step, reason := uc.planStep(ctx, state, shortMemory)
		if reason != "" {
			return nil, iterations, reason
		}

		switch step.Type {
		case "final":
			answer := uc.assembleFinal(state, step)
			return &answer, iterations, ""
		case "tool":
			event, forceAnswer := uc.executeTool(ctx, state, step)
			state.noteTool(event)
			if forceAnswer {
				return nil, iterations, "search_budget_exhausted"
			}
		default:
			return nil, iterations, "unsupported_step_type"
		}
	}

	return nil, iterations, "tool_budget_exhausted"
}

// planStep asks the planner for the next step, with one JSON repair attempt.
func (uc *AssistantUseCase) planStep(
	ctx context.Context,
	state *turnState,
	shortMemory []domain.ConversationMessage,
) (domain.AgentPlanStep, string) {
	plannerCtx, cancel := context.WithTimeout(ctx, uc.limits.PlannerTimeout)
	raw, err := uc.planner.GenerateJSONFromPrompt(plannerCtx, uc.buildPlannerPrompt(state, shortMemory))
	cancel()
	if err != nil {
		if isTimeoutError(err) {
			return domain.AgentPlanStep{}, "timeout"
		}
		return domain.AgentPlanStep{}, "planner_error"
	}

	step, err := parsePlanStep(raw)
	if err == nil {
		return step, ""
	}

	repairCtx, cancel := context.WithTimeout(ctx, uc.limits.PlannerTimeout)
	repaired, repairErr := uc.planner.GenerateJSONFromPrompt(repairCtx, buildPlanRepairPrompt(raw))
	cancel()
	if repairErr != nil {
		if isTimeoutError(repairErr) {
			return domain.AgentPlanStep{}, "timeout"
		}
		return domain.AgentPlanStep{}, "planner_invalid_json"
	}
	step, err = parsePlanStep(repaired)
	if err != nil {
		return domain.AgentPlanStep{}, "planner_invalid_json"
	}
	return step, ""
}

// executeTool runs one guarded tool invocation. The second return value is
// true when the search budget is spent and the turn must move to ANSWER.
func (uc *AssistantUseCase) executeTool(ctx context.Context, state *turnState, step domain.AgentPlanStep) (domain.AgentToolEvent, bool) {
	switch step.Tool {
	case toolAnalyzeQuery:
		query := stringInput(step.Input, "query", state.currentQuery)
		analysis := AnalyzeQuery(query)
		state.analysis = &analysis
		return toolOK(toolAnalyzeQuery, analysis), false

	case toolSearchKnowledge:
		if state.searches >= uc.limits.MaxSearches {
			return toolDenied(toolSearchKnowledge, "search budget exhausted"), true
		}
		state.searches++
		query := stringInput(step.Input, "query", state.currentQuery)
		state.currentQuery = query
		analysis := AnalyzeQuery(query)
		state.analysis = &analysis

		toolCtx, cancel := context.WithTimeout(ctx, uc.limits.ToolTimeout)
		results, err := uc.search.Search(toolCtx, query, searchFilterFromInput(step.Input), state.sctx)
		cancel()
		if err != nil {
			// A timed-out search is identical to a zero-result search.
			results = []domain.SearchResult{}
		}
		state.results = results
		return toolOK(toolSearchKnowledge, searchToolPayload(results)), false

	case toolEvaluateResults:
		if state.searches == 0 {
			return toolDenied(toolEvaluateResults, "no search has run yet"), false
		}
		eval := EvaluateResults(state.currentQuery, state.results, state.analysis)
		state.lastEval = &eval
		return toolOK(toolEvaluateResults, eval), false

	case toolRewriteQuery:
		// Rewrites are reactive: only after the evaluator asked for one.
		if state.lastEval == nil || state.lastEval.SuggestedAction == domain.ActionAnswer {
			return toolDenied(toolRewriteQuery, "rewrite is only allowed after a rewrite or expand verdict"), false
		}
		strategy := domain.RewriteStrategy(stringInput(step.Input, "strategy", string(strategyForAction(state.lastEval.SuggestedAction))))
		intent := domain.IntentGeneralInfo
		var keywords []string
		if state.analysis != nil {
			intent = state.analysis.Intent
			keywords = state.analysis.Keywords
		}
		result := RewriteQuery(state.currentQuery, intent, keywords, strategy)
		state.currentQuery = result.RewrittenQuery
		return toolOK(toolRewriteQuery, result), false

	default:
		return toolDenied(step.Tool, fmt.Sprintf("unsupported tool: %s", step.Tool)), false
	}
}

// assembleFinal turns the planner's final step into a validated answer.
// Invalid citations do not block the answer; they strip down the source
// list and drop confidence instead.
func (uc *AssistantUseCase) assembleFinal(state *turnState, step domain.AgentPlanStep) domain.AgentAnswer {
	text := strings.TrimSpace(step.Answer)
	if text == "" {
		text = noAnswerText
	}

	validation := uc.validator.Validate(step.Sources, state.sctx)
	confidence := parseConfidence(step.Confidence)
	if confidence == "" {
		confidence = uc.confidenceFrom(state)
	}
	if !validation.IsValid {
		confidence = domain.ConfidenceLow
	}

	return domain.AgentAnswer{
		Answer:     text,
		Sources:    validation.ValidSources,
		Confidence: confidence,
		Validation: domain.ValidationSummary{
			IsValid:            validation.IsValid,
			Warnings:           validation.Warnings,
			InvalidSourceCount: len(validation.InvalidSources),
		},
	}
}

// forcedAnswer finishes a turn the planner could not: it falls back to the
// deterministic retrieval pipeline when nothing was retrieved yet, then
// writes a best-effort answer from the results on hand.
func (uc *AssistantUseCase) forcedAnswer(ctx context.Context, state *turnState, fallbackReason string) domain.AgentAnswer {
	if len(state.results) == 0 && state.searches < uc.limits.MaxSearches && shouldFallbackToPipeline(fallbackReason) {
		uc.runRetrievalPipeline(ctx, state)
	}

	text := noAnswerText
	if len(state.results) > 0 {
		genCtx, cancel := context.WithTimeout(ctx, uc.limits.PlannerTimeout)
		generated, err := uc.planner.GenerateAnswer(genCtx, state.question, state.results)
		cancel()
		if err == nil && strings.TrimSpace(generated) != "" {
			text = strings.TrimSpace(generated)
		}
	}

	sources := sourcesFromResults(state.results)
	validation := uc.validator.Validate(sources, state.sctx)

	return domain.AgentAnswer{
		Answer:     text,
		Sources:    validation.ValidSources,
		Confidence: uc.confidenceFrom(state),
		Validation: domain.ValidationSummary{
			IsValid:            validation.IsValid,
			Warnings:           validation.Warnings,
			InvalidSourceCount: len(validation.InvalidSources),
		},
	}
}

// Answer is the deterministic one-shot path: the same state machine the
// planner is steered through, executed directly in code. It also backs the
// planner fallback.
func (uc *AssistantUseCase) Answer(ctx context.Context, question string) (*domain.AgentAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "assistant answer", errors.New("question is required"))
	}

	loopCtx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	state := newTurnState(question)
	uc.runRetrievalPipeline(loopCtx, state)
	answer := uc.forcedAnswer(loopCtx, state, "")
	return &answer, nil
}

// runRetrievalPipeline walks ANALYZE -> SEARCH -> EVALUATE with one bounded
// REWRITE -> SEARCH -> EVALUATE cycle when the evaluator asks for it.
func (uc *AssistantUseCase) runRetrievalPipeline(ctx context.Context, state *turnState) {
	analysis := AnalyzeQuery(state.currentQuery)
	state.analysis = &analysis

	results := uc.timedSearch(ctx, state)
	eval := EvaluateResults(state.currentQuery, results, state.analysis)
	state.results = results
	state.lastEval = &eval

	if eval.SuggestedAction == domain.ActionAnswer || state.searches >= uc.limits.MaxSearches {
		return
	}

	rewrite := RewriteQuery(state.currentQuery, analysis.Intent, analysis.Keywords, strategyForAction(eval.SuggestedAction))
	state.currentQuery = rewrite.RewrittenQuery
	retried := uc.timedSearch(ctx, state)
	retriedEval := EvaluateResults(state.currentQuery, retried, state.analysis)

	// Keep whatever is better on hand; a failed retry must not discard
	// earlier results.
	if len(retried) > 0 || len(state.results) == 0 {
		state.results = retried
		state.lastEval = &retriedEval
	}
}

func (uc *AssistantUseCase) timedSearch(ctx context.Context, state *turnState) []domain.SearchResult {
	state.searches++
	toolCtx, cancel := context.WithTimeout(ctx, uc.limits.ToolTimeout)
	defer cancel()

	results, err := uc.search.Search(toolCtx, state.currentQuery, domain.SearchFilter{}, state.sctx)
	if err != nil {
		return []domain.SearchResult{}
	}
	return results
}

func (uc *AssistantUseCase) confidenceFrom(state *turnState) domain.Confidence {
	eval := state.lastEval
	if eval == nil || len(state.results) == 0 {
		return domain.ConfidenceLow
	}
	if eval.RelevanceScore >= 0.7 && len(state.results) >= 2 {
		return domain.ConfidenceHigh
	}
	if eval.IsRelevant {
		return domain.ConfidenceMedium
	}
	return domain.ConfidenceLow
}

// strategyForAction maps the evaluator's verdict to a rewrite strategy:
// expand broadens, rewrite rephrases.
func strategyForAction(action domain.SuggestedAction) domain.RewriteStrategy {
	if action == domain.ActionExpand {
		return domain.StrategyBroaden
	}
	return domain.StrategyRephrase
}

func shouldFallbackToPipeline(reason string) bool {
	switch reason {
	case "planner_error", "planner_invalid_json", "unsupported_step_type":
		return true
	default:
		return false
	}
}

func sourcesFromResults(results []domain.SearchResult) []domain.AnswerSource {
	sources := make([]domain.AnswerSource, 0, len(results))
	for _, r := range results {
		sources = append(sources, domain.AnswerSource{
			Type:  r.Category,
			Title: r.Title,
			ID:    r.ID,
		})
	}
	return sources
}

func (uc *AssistantUseCase) appendMessage(ctx context.Context, userID, conversationID, role, content, toolName string, turn int) error {
	err := uc.conversations.AppendMessage(ctx, domain.ConversationMessage{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolName:       toolName,
		UserTurn:       turn,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}

func latestUserInput(messages []domain.ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(messages[i].Role), "user") {
			content := strings.TrimSpace(messages[i].Content)
			if content != "" {
				return content, true
			}
		}
	}
	return "", false
}

func parsePlanStep(raw string) (domain.AgentPlanStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AgentPlanStep{}, errors.New("empty planner response")
	}
	var step domain.AgentPlanStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return domain.AgentPlanStep{}, fmt.Errorf("unmarshal planner json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	step.Confidence = strings.ToLower(strings.TrimSpace(step.Confidence))
	return step, nil
}

func parseConfidence(raw string) domain.Confidence {
	switch domain.Confidence(raw) {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		return domain.Confidence(raw)
	default:
		return ""
	}
}

func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func toolOK(tool string, payload any) domain.AgentToolEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", payload))
	}
	return domain.AgentToolEvent{Tool: tool, Status: "ok", Output: string(raw)}
}

func toolDenied(tool, reason string) domain.AgentToolEvent {
	raw, _ := json.Marshal(map[string]string{"denied": reason})
	return domain.AgentToolEvent{Tool: tool, Status: "denied", Output: string(raw)}
}

// searchToolPayload keeps tool outputs compact: ids, titles and scores, with
// a content snippet the planner can quote from.
func searchToolPayload(results []domain.SearchResult) any {
	type item struct {
		ID        string  `json:"id"`
		Title     string  `json:"title"`
		Category  string  `json:"category"`
		Relevance float64 `json:"relevance"`
		Snippet   string  `json:"snippet"`
	}
	items := make([]item, 0, len(results))
	for _, r := range results {
		items = append(items, item{
			ID:        r.ID,
			Title:     r.Title,
			Category:  r.Category,
			Relevance: r.RelevanceScore,
			Snippet:   snippet(r.Content, 240),
		})
	}
	return map[string]any{"count": len(results), "results": items}
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func searchFilterFromInput(input map[string]any) domain.SearchFilter {
	filter := domain.SearchFilter{
		ProjectType: stringInput(input, "project_type", ""),
		Limit:       intInput(input, "limit", 0),
	}
	filter.Skills = stringSliceInput(input, "skills")
	filter.Tech = stringSliceInput(input, "tech")
	return filter
}

func (uc *AssistantUseCase) buildPlannerPrompt(state *turnState, shortMemory []domain.ConversationMessage) string {
	memoryLines := make([]string, 0, len(shortMemory))
	for _, msg := range shortMemory {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		memoryLines = append(memoryLines, fmt.Sprintf("%s: %s", strings.TrimSpace(msg.Role), content))
	}
	if len(memoryLines) == 0 {
		memoryLines = append(memoryLines, "(empty)")
	}
	scratchpad := state.scratchpad
	if len(scratchpad) == 0 {
		scratchpad = []string{"(no tool outputs yet)"}
	}
	resume := strings.TrimSpace(uc.resumeText)
	if resume == "" {
		resume = "(no static resume text configured)"
	}

	return fmt.Sprintf(`You answer visitor questions about the site owner's resume and work history.
Return ONLY one valid JSON object for the next step.
Schema:
{"type":"tool","tool":"analyze_query","input":{"query":"..."}}
or {"type":"tool","tool":"search_knowledge","input":{"query":"...","limit":5}}
or {"type":"tool","tool":"evaluate_results","input":{}}
or {"type":"tool","tool":"rewrite_query","input":{"strategy":"broaden|narrow|rephrase|decompose"}}
or {"type":"final","answer":"...","confidence":"high|medium|low","sources":[{"type":"<record category or resume>","title":"...","id":"<record id>"}]}

Rules:
- Search before answering. Cite only ids that search_knowledge returned this turn; use type "resume" only for the static resume text below.
- Follow evaluate_results: "answer" means finish, "rewrite"/"expand" means rewrite_query then search again.
- Budgets left: %d tool calls, %d searches. When the search budget is spent, produce the final answer from what you have.

Static resume text:
%s

Conversation so far:
%s

Tool scratchpad:
%s

Current question:
%s
`,
		uc.limits.MaxToolCalls-len(state.toolEvents), uc.limits.MaxSearches-state.searches,
		resume, strings.Join(memoryLines, "\n"), strings.Join(scratchpad, "\n"), state.question)
}

func buildPlanRepairPrompt(raw string) string {
	return fmt.Sprintf(`Convert the following text into one valid JSON object for this schema:
{"type":"tool","tool":"analyze_query|search_knowledge|evaluate_results|rewrite_query","input":{...}}
or {"type":"final","answer":"...","confidence":"high|medium|low","sources":[{"type":"...","title":"...","id":"..."}]}
Return only JSON.
Text:
%s`, raw)
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]any, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	default:
		return fallback
	}
}

func stringSliceInput(input map[string]any, key string) []string {
	if input == nil {
		return nil
	}
	raw, ok := input[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
