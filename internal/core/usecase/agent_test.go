package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

type plannerFake struct {
	steps      []string
	next       int
	answer     string
	answerErr  error
	genCalls   int
	planPrompt []string
}

func (f *plannerFake) GenerateAnswer(_ context.Context, _ string, _ []domain.SearchResult) (string, error) {
	f.genCalls++
	return f.answer, f.answerErr
}

func (f *plannerFake) GenerateJSONFromPrompt(_ context.Context, prompt string) (string, error) {
	f.planPrompt = append(f.planPrompt, prompt)
	if f.next >= len(f.steps) {
		return "", errors.New("planner script exhausted")
	}
	step := f.steps[f.next]
	f.next++
	return step, nil
}

type conversationStoreFake struct {
	messages []domain.ConversationMessage
}

func (f *conversationStoreFake) EnsureConversation(_ context.Context, userID, conversationID string) (*domain.Conversation, error) {
	return &domain.Conversation{UserID: userID, ConversationID: conversationID}, nil
}

func (f *conversationStoreFake) NextUserTurn(_ context.Context, _, _ string) (int, error) {
	return 1, nil
}

func (f *conversationStoreFake) AppendMessage(_ context.Context, message domain.ConversationMessage) error {
	f.messages = append(f.messages, message)
	return nil
}

func (f *conversationStoreFake) ListRecentMessages(_ context.Context, _, _ string, _ int) ([]domain.ConversationMessage, error) {
	return nil, nil
}

func newAssistantFixture(hits []domain.VectorHit, planner *plannerFake) (*AssistantUseCase, *conversationStoreFake) {
	search, _ := newSearchFixture(hits)
	store := &conversationStoreFake{}
	uc := NewAssistantUseCase(search, planner, NewSourceValidator(), store, domain.AgentLimits{}, "정적 이력서 텍스트")
	return uc, store
}

func chatReq(question string) domain.ChatRequest {
	return domain.ChatRequest{
		UserID:   "visitor-1",
		Messages: []domain.ChatMessage{{Role: "user", Content: question}},
	}
}

func TestChatHappyPathValidatesCitedSources(t *testing.T) {
	planner := &plannerFake{steps: []string{
		`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템"}}`,
		`{"type":"tool","tool":"evaluate_results","input":{}}`,
		`{"type":"final","answer":"결제 시스템 구축 경험이 있습니다.","confidence":"high","sources":[{"type":"project","title":"record a","id":"a"}]}`,
	}}
	uc, store := newAssistantFixture([]domain.VectorHit{hit("a", 0.1), hit("b", 0.15)}, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 만들어 보셨나요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FallbackReason != "" {
		t.Fatalf("unexpected fallback: %q", result.FallbackReason)
	}
	if result.Iterations != 3 || result.Searches != 1 {
		t.Fatalf("unexpected loop accounting: %+v", result)
	}
	if !result.Answer.Validation.IsValid {
		t.Fatalf("cited retrieved id must validate: %+v", result.Answer.Validation)
	}
	if result.Answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", result.Answer.Confidence)
	}
	if len(result.Answer.Sources) != 1 || result.Answer.Sources[0].ID != "a" {
		t.Fatalf("unexpected sources: %+v", result.Answer.Sources)
	}

	if store.messages[0].Role != "user" {
		t.Fatalf("first persisted message must be the user turn: %+v", store.messages[0])
	}
	last := store.messages[len(store.messages)-1]
	if last.Role != "assistant" || last.Content != "결제 시스템 구축 경험이 있습니다." {
		t.Fatalf("assistant message not persisted last: %+v", last)
	}
}

func TestChatRejectsHallucinatedSource(t *testing.T) {
	planner := &plannerFake{steps: []string{
		`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템"}}`,
		`{"type":"final","answer":"만들어본 적 있습니다.","confidence":"high","sources":[{"type":"project","title":"유령 프로젝트","id":"ghost"}]}`,
	}}
	uc, _ := newAssistantFixture([]domain.VectorHit{hit("a", 0.1)}, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer.Validation.IsValid {
		t.Fatalf("unretrieved id must fail validation")
	}
	if result.Answer.Validation.InvalidSourceCount != 1 {
		t.Fatalf("expected one invalid source, got %d", result.Answer.Validation.InvalidSourceCount)
	}
	if result.Answer.Confidence != domain.ConfidenceLow {
		t.Fatalf("failed validation must drop confidence, got %s", result.Answer.Confidence)
	}
	if len(result.Answer.Sources) != 0 {
		t.Fatalf("hallucinated sources must be stripped, got %+v", result.Answer.Sources)
	}
}

func TestChatEnforcesSearchBudget(t *testing.T) {
	planner := &plannerFake{
		steps: []string{
			`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템"}}`,
			`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템 구축"}}`,
			`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템 운영"}}`,
		},
		answer: "찾은 자료 기준으로 정리한 답변입니다.",
	}
	uc, _ := newAssistantFixture([]domain.VectorHit{hit("a", 0.1)}, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Searches != 2 {
		t.Fatalf("search budget is 2, got %d searches", result.Searches)
	}
	if result.FallbackReason != "search_budget_exhausted" {
		t.Fatalf("unexpected fallback reason: %q", result.FallbackReason)
	}
	if result.Answer.Answer != "찾은 자료 기준으로 정리한 답변입니다." {
		t.Fatalf("expected forced answer from retrieved results, got %q", result.Answer.Answer)
	}
	if !result.Answer.Validation.IsValid || len(result.Answer.Sources) == 0 {
		t.Fatalf("forced answer cites retrieved records: %+v", result.Answer)
	}

	denied := result.ToolEvents[len(result.ToolEvents)-1]
	if denied.Tool != "search_knowledge" || denied.Status != "denied" {
		t.Fatalf("third search must be denied, got %+v", denied)
	}
}

func TestChatFallsBackToPipelineOnInvalidPlannerJSON(t *testing.T) {
	planner := &plannerFake{
		steps:  []string{"이건 JSON이 아닙니다", "여전히 JSON이 아닙니다"},
		answer: "자료 기반 답변입니다.",
	}
	uc, _ := newAssistantFixture([]domain.VectorHit{hit("a", 0.1), hit("b", 0.15)}, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FallbackReason != "planner_invalid_json" {
		t.Fatalf("unexpected fallback reason: %q", result.FallbackReason)
	}
	if result.Searches == 0 {
		t.Fatalf("deterministic pipeline must have searched")
	}
	if result.Answer.Answer != "자료 기반 답변입니다." {
		t.Fatalf("expected generated answer, got %q", result.Answer.Answer)
	}
	if !result.Answer.Validation.IsValid {
		t.Fatalf("pipeline sources are retrieved by construction: %+v", result.Answer.Validation)
	}
}

func TestChatToolBudgetExhaustion(t *testing.T) {
	step := `{"type":"tool","tool":"analyze_query","input":{"query":"결제 시스템"}}`
	planner := &plannerFake{steps: []string{step, step, step, step, step}}
	uc, _ := newAssistantFixture(nil, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FallbackReason != "tool_budget_exhausted" {
		t.Fatalf("unexpected fallback reason: %q", result.FallbackReason)
	}
	if result.Iterations != 5 {
		t.Fatalf("expected 5 iterations, got %d", result.Iterations)
	}
	if result.Answer.Answer != noAnswerText {
		t.Fatalf("nothing retrieved means the apology text, got %q", result.Answer.Answer)
	}
	if result.Answer.Confidence != domain.ConfidenceLow {
		t.Fatalf("expected low confidence, got %s", result.Answer.Confidence)
	}
}

func TestChatDeniesRewriteBeforeEvaluation(t *testing.T) {
	planner := &plannerFake{steps: []string{
		`{"type":"tool","tool":"rewrite_query","input":{"strategy":"broaden"}}`,
		`{"type":"final","answer":"답변입니다.","confidence":"low"}`,
	}}
	uc, _ := newAssistantFixture(nil, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolEvents) != 1 || result.ToolEvents[0].Status != "denied" {
		t.Fatalf("rewrite without an evaluator verdict must be denied: %+v", result.ToolEvents)
	}
}

func TestChatRewriteCycleAfterEmptyResults(t *testing.T) {
	planner := &plannerFake{steps: []string{
		`{"type":"tool","tool":"search_knowledge","input":{"query":"결제 시스템"}}`,
		`{"type":"tool","tool":"evaluate_results","input":{}}`,
		`{"type":"tool","tool":"rewrite_query","input":{"strategy":"rephrase"}}`,
		`{"type":"tool","tool":"search_knowledge","input":{}}`,
		`{"type":"final","answer":"관련 자료를 찾지 못했습니다.","confidence":"low"}`,
	}}
	uc, _ := newAssistantFixture(nil, planner)

	result, err := uc.Chat(context.Background(), chatReq("결제 시스템 경험 있으세요?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Searches != 2 {
		t.Fatalf("expected two searches, got %d", result.Searches)
	}
	for _, event := range result.ToolEvents {
		if event.Status == "denied" {
			t.Fatalf("no tool should be denied in this script: %+v", event)
		}
	}
	if !containsString(result.ToolsInvoked, "rewrite_query") {
		t.Fatalf("rewrite should be on the invoked list: %v", result.ToolsInvoked)
	}
}

func TestChatValidatesInput(t *testing.T) {
	uc, _ := newAssistantFixture(nil, &plannerFake{})

	if _, err := uc.Chat(context.Background(), domain.ChatRequest{Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing user id must be rejected, got %v", err)
	}
	if _, err := uc.Chat(context.Background(), domain.ChatRequest{UserID: "u"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing user message must be rejected, got %v", err)
	}
}

func TestAnswerOneShot(t *testing.T) {
	planner := &plannerFake{answer: "두 프로젝트에서 결제 시스템을 만들었습니다."}
	uc, _ := newAssistantFixture([]domain.VectorHit{hit("a", 0.1), hit("b", 0.15)}, planner)

	answer, err := uc.Answer(context.Background(), "결제 시스템 경험 있으세요?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != "두 프로젝트에서 결제 시스템을 만들었습니다." {
		t.Fatalf("unexpected answer text: %q", answer.Answer)
	}
	if answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", answer.Confidence)
	}
	if len(answer.Sources) != 2 || !answer.Validation.IsValid {
		t.Fatalf("expected both retrieved records cited: %+v", answer)
	}
	if planner.genCalls != 1 {
		t.Fatalf("expected one generation call, got %d", planner.genCalls)
	}
}

func TestAnswerRequiresQuestion(t *testing.T) {
	uc, _ := newAssistantFixture(nil, &plannerFake{})
	if _, err := uc.Answer(context.Background(), "   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank question must be rejected, got %v", err)
	}
}

func TestAnswerNoResultsFallsBackToApology(t *testing.T) {
	planner := &plannerFake{answer: "써서는 안 되는 답변"}
	uc, _ := newAssistantFixture(nil, planner)

	answer, err := uc.Answer(context.Background(), "결제 시스템 경험 있으세요?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != noAnswerText {
		t.Fatalf("expected apology text, got %q", answer.Answer)
	}
	if planner.genCalls != 0 {
		t.Fatalf("generation must be skipped with no results, got %d calls", planner.genCalls)
	}
	if answer.Confidence != domain.ConfidenceLow || len(answer.Sources) != 0 {
		t.Fatalf("unexpected empty-result answer: %+v", answer)
	}
}

func TestBuildPlannerPromptCarriesBudgets(t *testing.T) {
	planner := &plannerFake{steps: []string{`{"type":"final","answer":"바로 답변"}`}}
	uc, _ := newAssistantFixture(nil, planner)

	if _, err := uc.Chat(context.Background(), chatReq("안녕하세요")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(planner.planPrompt) != 1 {
		t.Fatalf("expected a single planner call, got %d", len(planner.planPrompt))
	}
	prompt := planner.planPrompt[0]
	if !strings.Contains(prompt, "5 tool calls, 2 searches") {
		t.Fatalf("prompt must state remaining budgets:\n%s", prompt)
	}
	if !strings.Contains(prompt, "정적 이력서 텍스트") {
		t.Fatalf("prompt must embed the static resume text")
	}
	if !strings.Contains(prompt, "안녕하세요") {
		t.Fatalf("prompt must embed the current question")
	}
}
