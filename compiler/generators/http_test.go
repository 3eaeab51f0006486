package generators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contextdb/wscompile/compiler"
)

func TestHTTPGenGenerateChunkShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "how does auth work" {
			t.Errorf("unexpected query: %q", req.Query)
		}

		docVersionID := "doc-1"
		spanID := "span-1"
		charStart, charEnd := 10, 50

		resp := searchResponse{
			Candidates: []searchCandidate{{
				Path:         "02_knowledge/auth.md",
				Score:        0.75,
				TokenCost:    12,
				DocVersionID: &docVersionID,
				SpanID:       &spanID,
				CharStart:    &charStart,
				CharEnd:      &charEnd,
			}},
			NumResults: 1,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gen := NewHTTPGen("semantic", srv.URL, "semantic")
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "how does auth work"}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	c := out[0]
	if c.Scores.Semantic != 0.75 {
		t.Errorf("expected semantic score 0.75, got %v", c.Scores.Semantic)
	}
	if c.Metadata.SourceType != compiler.SourceKnowledge {
		t.Errorf("expected knowledge source type, got %v", c.Metadata.SourceType)
	}
	if c.SpanRef.SpanID != "span-1" || c.SpanRef.CharStart != 10 || c.SpanRef.CharEnd != 50 {
		t.Errorf("unexpected span ref: %+v", c.SpanRef)
	}
}

func TestHTTPGenGenerateLegacyShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := "abc123"
		size := 2000
		resp := searchResponse{
			Candidates: []searchCandidate{{
				ChunkID: 7,
				Path:    "03_workstreams/billing/notes.md",
				Score:   0.4,
				Hash:    &hash,
				Size:    &size,
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gen := NewHTTPGen("lexical", srv.URL, "lexical")
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "billing retries"}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	c := out[0]
	if c.Scores.Lexical != 0.4 {
		t.Errorf("expected lexical score 0.4, got %v", c.Scores.Lexical)
	}
	if c.Metadata.SourceType != compiler.SourceWorkstream {
		t.Errorf("expected workstream source type, got %v", c.Metadata.SourceType)
	}
	if c.Metadata.Workstream != "billing" {
		t.Errorf("expected workstream billing, got %q", c.Metadata.Workstream)
	}
	if c.SpanRef.SpanID != "span_7" {
		t.Errorf("expected legacy span id span_7, got %q", c.SpanRef.SpanID)
	}
}

func TestHTTPGenGenerateEmptyQuery(t *testing.T) {
	gen := NewHTTPGen("semantic", "http://unused.invalid", "semantic")
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil result for empty query, got %v", out)
	}
}

func TestHTTPGenGenerateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := NewHTTPGen("semantic", srv.URL, "semantic")
	_, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "x"}, compiler.HardFilters{}, 10)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
