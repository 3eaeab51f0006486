package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/contextdb/wscompile/compiler"
)

// GraphGen is the optional graph channel (§4.2). It calls a GraphQL
// endpoint with a parameterized query (never string-interpolated, to
// avoid injection) and converts returned entities into candidates whose
// graph score decays with traversal depth.
type GraphGen struct {
	GenName    string
	ServiceURL string
	Client     *http.Client

	readyOnce sync.Once
	ready     bool
}

func NewGraphGen(serviceURL string) *GraphGen {
	return &GraphGen{GenName: "graph", ServiceURL: serviceURL, Client: http.DefaultClient}
}

func (g *GraphGen) Name() string { return g.GenName }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphEntity struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Depth int    `json:"depth"`
	Text  string `json:"text"`
}

type graphQLResponse struct {
	Data struct {
		Entities []graphEntity `json:"entities"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const traverseEntitiesQuery = `
query TraverseEntities($intent: String!, $maxDepth: Int!) {
  entities: relatedEntities(intent: $intent, maxDepth: $maxDepth) {
    id
    path
    depth
    text
  }
}`

// probeReady checks the graph service once per process lifetime, caching
// the result, so a slow or absent graph service degrades to "channel
// absent" instead of failing every request.
func (g *GraphGen) probeReady(ctx context.Context) bool {
	g.readyOnce.Do(func() {
		if g.ServiceURL == "" {
			return
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, g.ServiceURL+"/health", nil)
		if err != nil {
			return
		}
		resp, err := g.client().Do(req)
		if err != nil {
			return
		}
		defer resp.Body.Close()
		g.ready = resp.StatusCode == http.StatusOK
	})
	return g.ready
}

func (g *GraphGen) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *GraphGen) Generate(ctx context.Context, signals compiler.DerivedSignals, filters compiler.HardFilters, topK int) ([]*compiler.CandidateSpan, error) {
	if !g.probeReady(ctx) {
		return nil, nil
	}
	if signals.Intent == "" {
		return nil, nil
	}

	body, err := json.Marshal(graphQLRequest{
		Query: traverseEntitiesQuery,
		Variables: map[string]any{
			"intent":   signals.Intent,
			"maxDepth": 3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.ServiceURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling graph service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph service returned status %d", resp.StatusCode)
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("graph service error: %s", parsed.Errors[0].Message)
	}

	out := make([]*compiler.CandidateSpan, 0, len(parsed.Data.Entities))
	for _, e := range parsed.Data.Entities {
		decay := 1.0 / float64(1+e.Depth)
		out = append(out, &compiler.CandidateSpan{
			SpanRef: compiler.SpanRef{
				DocVersionID: e.ID,
				SpanID:       e.ID,
				CharEnd:      len(e.Text),
				TokenCost:    max(len(e.Text)/4, 10),
			},
			Scores:      compiler.ScoreChannels{Graph: decay},
			TextPreview: e.Text,
			Metadata: compiler.SpanMetadata{
				Filepath:     e.Path,
				CreatedAt:    time.Now().Unix(),
				RecencyScore: 0.5,
				SourceType:   compiler.SourceArtifact,
			},
		})
		if topK > 0 && len(out) >= topK {
			break
		}
	}
	return out, nil
}
