package generators

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contextdb/wscompile/compiler"
)

func TestGraphGenReturnsNilWithoutServiceURL(t *testing.T) {
	gen := NewGraphGen("")
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "anything"}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil result when unconfigured, got %v", out)
	}
}

func TestGraphGenReturnsNilWithoutIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gen := NewGraphGen(srv.URL)
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil result for empty intent, got %v", out)
	}
}

func TestGraphGenScoresDecayWithDepth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/graphql":
			w.Header().Set("Content-Type", "application/json")
			resp := map[string]any{
				"data": map[string]any{
					"entities": []map[string]any{
						{"id": "e1", "path": "a.go", "depth": 0, "text": "root entity"},
						{"id": "e2", "path": "b.go", "depth": 2, "text": "distant entity"},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gen := NewGraphGen(srv.URL)
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "trace the caller graph"}, compiler.HardFilters{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if out[0].Scores.Graph <= out[1].Scores.Graph {
		t.Errorf("expected shallower entity to score higher: %v vs %v", out[0].Scores.Graph, out[1].Scores.Graph)
	}
}

func TestGraphGenTopKTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/graphql":
			w.Header().Set("Content-Type", "application/json")
			resp := map[string]any{
				"data": map[string]any{
					"entities": []map[string]any{
						{"id": "e1", "path": "a.go", "depth": 0, "text": "one"},
						{"id": "e2", "path": "b.go", "depth": 1, "text": "two"},
						{"id": "e3", "path": "c.go", "depth": 2, "text": "three"},
					},
				},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
	defer srv.Close()

	gen := NewGraphGen(srv.URL)
	out, err := gen.Generate(context.Background(), compiler.DerivedSignals{Intent: "trace"}, compiler.HardFilters{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected topK truncation to 2, got %d", len(out))
	}
}
