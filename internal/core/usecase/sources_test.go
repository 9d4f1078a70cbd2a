package usecase

import (
	"strings"
	"testing"

	"github.com/adubovik/portfolio-agent/internal/core/domain"
)

func TestValidateAcceptsRetrievedSources(t *testing.T) {
	sctx := domain.NewSearchContext()
	sctx.Record("project", "rec-1", "rec-2")

	validator := NewSourceValidator()
	result := validator.Validate([]domain.AnswerSource{
		{Type: "project", Title: "결제 시스템", ID: "rec-1"},
		{Type: "project", Title: "알림 파이프라인", ID: "rec-2"},
	}, sctx)

	if !result.IsValid {
		t.Fatalf("expected valid verdict, got %+v", result)
	}
	if len(result.ValidSources) != 2 || len(result.InvalidSources) != 0 {
		t.Fatalf("unexpected partition: %+v", result)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateFlagsUnretrievedID(t *testing.T) {
	sctx := domain.NewSearchContext()
	sctx.Record("project", "rec-1")

	validator := NewSourceValidator()
	result := validator.Validate([]domain.AnswerSource{
		{Type: "project", Title: "유령 프로젝트", ID: "rec-999"},
	}, sctx)

	if result.IsValid {
		t.Fatalf("expected invalid verdict")
	}
	if len(result.InvalidSources) != 1 || result.InvalidSources[0].ID != "rec-999" {
		t.Fatalf("unexpected invalid sources: %+v", result.InvalidSources)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "rec-999") {
		t.Fatalf("warning should name the offending id, got %v", result.Warnings)
	}
}

func TestValidateTrustsResumeWithoutID(t *testing.T) {
	validator := NewSourceValidator()
	result := validator.Validate([]domain.AnswerSource{
		{Type: domain.SourceTypeResume, Title: "이력서"},
	}, domain.NewSearchContext())

	if !result.IsValid || len(result.ValidSources) != 1 {
		t.Fatalf("resume source should be trusted: %+v", result)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateMissingIDWarnsButStaysValid(t *testing.T) {
	validator := NewSourceValidator()
	result := validator.Validate([]domain.AnswerSource{
		{Type: "project", Title: "이름만 아는 프로젝트"},
	}, domain.NewSearchContext())

	if !result.IsValid {
		t.Fatalf("missing id must not invalidate the answer")
	}
	if len(result.ValidSources) != 1 {
		t.Fatalf("source should still count as valid: %+v", result)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "no record id") {
		t.Fatalf("expected missing-id warning, got %v", result.Warnings)
	}
}

func TestValidateMixedSources(t *testing.T) {
	sctx := domain.NewSearchContext()
	sctx.Record("project", "rec-1")

	validator := NewSourceValidator()
	result := validator.Validate([]domain.AnswerSource{
		{Type: domain.SourceTypeResume, Title: "이력서"},
		{Type: "project", Title: "결제 시스템", ID: "rec-1"},
		{Type: "project", Title: "유령 프로젝트", ID: "rec-7"},
	}, sctx)

	if result.IsValid {
		t.Fatalf("one hallucinated id must fail the verdict")
	}
	if len(result.ValidSources) != 2 {
		t.Fatalf("retrieved and trusted sources stay valid: %+v", result.ValidSources)
	}
	if len(result.InvalidSources) != 1 || result.InvalidSources[0].ID != "rec-7" {
		t.Fatalf("unexpected invalid sources: %+v", result.InvalidSources)
	}
}

func TestValidateCustomTrustedTypes(t *testing.T) {
	validator := NewSourceValidator("resume", "about")
	result := validator.Validate([]domain.AnswerSource{
		{Type: "about", Title: "소개"},
	}, domain.NewSearchContext())

	if !result.IsValid || len(result.Warnings) != 0 {
		t.Fatalf("custom trusted type should pass untouched: %+v", result)
	}
}

func TestValidateNoSources(t *testing.T) {
	validator := NewSourceValidator()
	result := validator.Validate(nil, domain.NewSearchContext())

	if !result.IsValid {
		t.Fatalf("empty citation list is valid")
	}
	if result.ValidSources == nil || result.InvalidSources == nil || result.Warnings == nil {
		t.Fatalf("slices must be non-nil for JSON encoding: %+v", result)
	}
}

func TestSearchContextRecordAndLookup(t *testing.T) {
	sctx := domain.NewSearchContext()
	sctx.Record("project", "b", "a")
	sctx.Record("project", "a")
	sctx.Record("career", "c")
	sctx.Record("", "ignored")

	if !sctx.Contains("project", "a") || !sctx.Contains("career", "c") {
		t.Fatalf("recorded ids must be found")
	}
	if sctx.Contains("project", "c") {
		t.Fatalf("categories must not leak into each other")
	}
	if got := sctx.IDs("project"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected sorted deduplicated ids, got %v", got)
	}
	if sctx.Size() != 3 {
		t.Fatalf("expected 3 distinct ids, got %d", sctx.Size())
	}
}
