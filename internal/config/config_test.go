package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.NATSSubject != "knowledge.sync" {
		t.Fatalf("expected default nats subject knowledge.sync, got %q", cfg.NATSSubject)
	}
	if cfg.SearchRelevanceThreshold != 0.7 {
		t.Fatalf("expected default relevance threshold 0.7, got %v", cfg.SearchRelevanceThreshold)
	}
	if cfg.SearchMaxResults != 5 || cfg.SearchOverfetchLimit != 10 {
		t.Fatalf("unexpected search limits: %d/%d", cfg.SearchMaxResults, cfg.SearchOverfetchLimit)
	}
	if cfg.AgentMaxToolCalls != 5 || cfg.AgentMaxSearches != 2 {
		t.Fatalf("unexpected agent budgets: %d/%d", cfg.AgentMaxToolCalls, cfg.AgentMaxSearches)
	}
	if len(cfg.TrustedSourceTypes) != 1 || cfg.TrustedSourceTypes[0] != "resume" {
		t.Fatalf("unexpected trusted source types: %v", cfg.TrustedSourceTypes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEARCH_RELEVANCE_THRESHOLD", "0.55")
	t.Setenv("AGENT_MAX_SEARCHES", "3")
	t.Setenv("TRUSTED_SOURCE_TYPES", "resume, about ,")

	cfg := Load()
	if cfg.SearchRelevanceThreshold != 0.55 {
		t.Fatalf("expected overridden threshold 0.55, got %v", cfg.SearchRelevanceThreshold)
	}
	if cfg.AgentMaxSearches != 3 {
		t.Fatalf("expected overridden max searches 3, got %d", cfg.AgentMaxSearches)
	}
	if len(cfg.TrustedSourceTypes) != 2 || cfg.TrustedSourceTypes[1] != "about" {
		t.Fatalf("unexpected trusted source types: %v", cfg.TrustedSourceTypes)
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("SEARCH_MAX_RESULTS", "not-a-number")
	t.Setenv("API_RATE_LIMIT_RPS", "fast")

	cfg := Load()
	if cfg.SearchMaxResults != 5 {
		t.Fatalf("expected fallback max results 5, got %d", cfg.SearchMaxResults)
	}
	if cfg.APIRateLimitRPS != 10 {
		t.Fatalf("expected fallback rps 10, got %v", cfg.APIRateLimitRPS)
	}
}
