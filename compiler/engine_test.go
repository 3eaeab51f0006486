package compiler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/contextdb/wscompile/compiler"
	"github.com/contextdb/wscompile/compiler/generators"
)

func writeTempSpanFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestCompileWorkingSetHappyPath(t *testing.T) {
	dir := t.TempDir()
	writeTempSpanFile(t, dir, "notes.md", "line one\nline two\nline three\n")

	cand := &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: "v1",
			SpanID:       "s1",
			CharStart:    0,
			CharEnd:      8,
			TokenCost:    10,
		},
		Scores: compiler.ScoreChannels{Semantic: 0.9, Lexical: 0.5},
		Metadata: compiler.SpanMetadata{
			Filepath:   "notes.md",
			SourceType: compiler.SourceKnowledge,
		},
	}

	gen := &generators.MockGenerator{
		GenName:    "semantic",
		Candidates: []*compiler.CandidateSpan{cand},
	}

	engine := compiler.NewEngine(dir, []compiler.Generator{gen})

	resp, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "find the notes",
		BudgetTokens: 1000,
		Explain:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.WorkingSet.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.WorkingSet.Items))
	}
	if resp.WorkingSet.Items[0].Text == "" {
		t.Fatal("expected hydrated text, got empty string")
	}
	if len(resp.Explanations) != 1 {
		t.Fatalf("expected 1 explanation, got %d", len(resp.Explanations))
	}
	if resp.RequestID == "" {
		t.Fatal("expected request id to be assigned")
	}
}

func TestCompileWorkingSetRejectsEmptyRequest(t *testing.T) {
	engine := compiler.NewEngine(t.TempDir(), nil)
	_, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{BudgetTokens: 100})
	if err == nil {
		t.Fatal("expected error for empty intent and no query signals")
	}
	var cerr *compiler.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %T", err)
	}
	if cerr.Kind != compiler.KindEmptyRequest {
		t.Fatalf("expected KindEmptyRequest, got %v", cerr.Kind)
	}
}

func TestCompileWorkingSetBudgetTooSmallYieldsEmptyWorkingSet(t *testing.T) {
	dir := t.TempDir()
	writeTempSpanFile(t, dir, "notes.md", "line one\n")

	cand := &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: "v1",
			SpanID:       "s1",
			CharStart:    0,
			CharEnd:      8,
			TokenCost:    10,
		},
		Scores:   compiler.ScoreChannels{Semantic: 0.9},
		Metadata: compiler.SpanMetadata{Filepath: "notes.md", SourceType: compiler.SourceKnowledge},
	}
	gen := &generators.MockGenerator{GenName: "semantic", Candidates: []*compiler.CandidateSpan{cand}}
	engine := compiler.NewEngine(dir, []compiler.Generator{gen})

	resp, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "anything",
		BudgetTokens: 1,
	})
	if err != nil {
		t.Fatalf("expected a successful response for a too-small budget, got error: %v", err)
	}
	if len(resp.WorkingSet.Items) != 0 {
		t.Fatalf("expected an empty working set, got %d items", len(resp.WorkingSet.Items))
	}
	if resp.Stats.CandidatesGenerated == 0 {
		t.Fatal("expected candidates_generated to reflect generation, not the empty selection")
	}
	if resp.Stats.Reason != string(compiler.KindBudgetTooSmall) {
		t.Fatalf("expected stats reason %q, got %q", compiler.KindBudgetTooSmall, resp.Stats.Reason)
	}
}

func TestCompileWorkingSetRelaxesFiltersToRecoverCandidates(t *testing.T) {
	dir := t.TempDir()
	writeTempSpanFile(t, dir, "notes.md", "line one\nline two\n")

	cand := &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: "v1",
			SpanID:       "s1",
			CharStart:    0,
			CharEnd:      8,
			TokenCost:    10,
		},
		Scores: compiler.ScoreChannels{Semantic: 0.9},
		Metadata: compiler.SpanMetadata{
			Filepath:   "notes.md",
			SourceType: compiler.SourceKnowledge,
			CreatedAt:  1, // far older than any MaxDocAgeDays cap
		},
	}
	gen := &generators.MockGenerator{GenName: "semantic", Candidates: []*compiler.CandidateSpan{cand}}
	engine := compiler.NewEngine(dir, []compiler.Generator{gen})

	resp, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "find the notes",
		BudgetTokens: 1000,
		HardFilters:  compiler.HardFilters{MaxDocAgeDays: 7},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.WorkingSet.Items) != 1 {
		t.Fatalf("expected relaxation to recover the candidate, got %d items", len(resp.WorkingSet.Items))
	}
	if len(resp.Stats.FiltersRelaxed) != 1 || resp.Stats.FiltersRelaxed[0] != "max_doc_age_days" {
		t.Fatalf("expected filters_relaxed to report max_doc_age_days, got %v", resp.Stats.FiltersRelaxed)
	}
}

func TestCompileWorkingSetPopulatesSelectionMetadataAndStats(t *testing.T) {
	dir := t.TempDir()
	writeTempSpanFile(t, dir, "notes.md", "line one\nline two\n")

	cand := &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: "v1",
			SpanID:       "s1",
			CharStart:    0,
			CharEnd:      8,
			TokenCost:    10,
		},
		Scores:   compiler.ScoreChannels{Semantic: 0.9},
		Metadata: compiler.SpanMetadata{Filepath: "notes.md", SourceType: compiler.SourceKnowledge},
	}
	gen := &generators.MockGenerator{GenName: "semantic", Candidates: []*compiler.CandidateSpan{cand}}
	engine := compiler.NewEngine(dir, []compiler.Generator{gen})

	resp, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "find the notes",
		BudgetTokens: 1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.WorkingSet.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.WorkingSet.Items))
	}
	item := resp.WorkingSet.Items[0]
	if item.SelectionRank != 0 {
		t.Fatalf("expected rank 0 for the only item, got %d", item.SelectionRank)
	}
	if item.SourceWeight != 1.0 {
		t.Fatalf("expected source weight 1.0 for the only item, got %v", item.SourceWeight)
	}
	if resp.Stats.CandidatesAfterFilters == 0 {
		t.Fatal("expected candidates_after_filters to be populated")
	}
	if got := resp.Stats.SourceDistribution["notes.md"]; got != 1.0 {
		t.Fatalf("expected source_distribution[notes.md] = 1.0, got %v", got)
	}
}

func TestCompileWorkingSetAllGeneratorsFailed(t *testing.T) {
	gen := &generators.MockGenerator{GenName: "semantic", Err: context.DeadlineExceeded}
	engine := compiler.NewEngine(t.TempDir(), []compiler.Generator{gen})

	_, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "anything",
		BudgetTokens: 1000,
	})
	if err == nil {
		t.Fatal("expected error when every generator fails")
	}
	var cerr *compiler.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %T", err)
	}
	if cerr.Kind != compiler.KindAllGeneratorsFailed {
		t.Fatalf("expected KindAllGeneratorsFailed, got %v", cerr.Kind)
	}
}

func TestCompileWorkingSetSessionPreludeReservesBudget(t *testing.T) {
	dir := t.TempDir()
	writeTempSpanFile(t, dir, "notes.md", "line one\nline two\n")

	cand := &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: "v1",
			SpanID:       "s1",
			CharStart:    0,
			CharEnd:      8,
			TokenCost:    10,
		},
		Scores:   compiler.ScoreChannels{Semantic: 0.9},
		Metadata: compiler.SpanMetadata{Filepath: "notes.md", SourceType: compiler.SourceKnowledge},
	}
	gen := &generators.MockGenerator{GenName: "semantic", Candidates: []*compiler.CandidateSpan{cand}}

	fetcher := fixedSessionFetcher{spans: []compiler.SessionSpan{
		{SpanID: "sess1", TokenCost: 20, Text: "earlier turn", CreatedAt: 1},
	}}

	engine := compiler.NewEngine(dir, []compiler.Generator{gen})
	engine.Session = fetcher

	resp, err := engine.CompileWorkingSet(context.Background(), compiler.CompileRequest{
		Intent:       "find the notes",
		BudgetTokens: 1000,
		SessionID:    "session-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, item := range resp.WorkingSet.Items {
		if item.Metadata.SourceType == compiler.SourceSession {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a session prelude item in the working set")
	}
}

type fixedSessionFetcher struct {
	spans []compiler.SessionSpan
}

func (f fixedSessionFetcher) FetchSession(_ context.Context, _ string) ([]compiler.SessionSpan, error) {
	return f.spans, nil
}
