package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/adubovik/portfolio-agent/internal/config"
	"github.com/adubovik/portfolio-agent/internal/core/domain"
	"github.com/adubovik/portfolio-agent/internal/core/ports"
	"github.com/adubovik/portfolio-agent/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg       config.Config
	assistant ports.AssistantService
	ingestor  ports.KnowledgeIngestor
	reader    ports.KnowledgeReader
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	assistant ports.AssistantService,
	ingestor ports.KnowledgeIngestor,
	reader ports.KnowledgeReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		assistant: assistant,
		ingestor:  ingestor,
		reader:    reader,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat", rt.chat)
	mux.HandleFunc("/v1/answer", rt.answer)
	mux.HandleFunc("/v1/knowledge/records", rt.submitRecord)
	mux.HandleFunc("/v1/knowledge/records/", rt.getRecordByID)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if rt.cfg.APIMaxConcurrent > 0 {
		wait := time.Duration(rt.cfg.APIOverloadWaitMs) * time.Millisecond
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, wait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.assistant.Chat(r.Context(), req)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		outcome := "completed"
		if result.FallbackReason != "" {
			outcome = result.FallbackReason
		}
		rt.metrics.RecordAgentRun(serviceName, "/v1/chat", outcome, result.Iterations, result.Searches)
		rt.metrics.RecordAnswer(serviceName, "/v1/chat", len(result.Answer.Sources))
		rt.metrics.RecordSourceRejections(serviceName, "/v1/chat", result.Answer.Validation.InvalidSourceCount)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := rt.assistant.Answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAnswer(serviceName, "/v1/answer", len(answer.Sources))
		rt.metrics.RecordSourceRejections(serviceName, "/v1/answer", answer.Validation.InvalidSourceCount)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) submitRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rec domain.KnowledgeRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	created, err := rt.ingestor.Submit(r.Context(), rec)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func (rt *Router) getRecordByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/knowledge/records/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "record id is required")
		return
	}

	rec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
