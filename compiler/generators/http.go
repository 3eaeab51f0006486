package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/contextdb/wscompile/compiler"
)

// searchRequest is the wire shape both the semantic and lexical channels
// share (§6): one POST /search contract, distinguished only by which
// service URL a HTTPGen instance points at.
type searchRequest struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Filters *searchFilters `json:"filters,omitempty"`
}

type searchFilters struct {
	Workstream   string   `json:"workstream,omitempty"`
	AllowedPaths []string `json:"allowed_paths,omitempty"`
}

type searchResponse struct {
	Candidates  []searchCandidate `json:"candidates"`
	NumResults  int               `json:"num_results"`
	QueryTimeMS float64           `json:"query_time_ms"`
}

// searchCandidate accepts both the chunk-level response shape (preferred)
// and the legacy document-level shape, matching the wire contract's two
// generations of index (§6).
type searchCandidate struct {
	ChunkID      int     `json:"chunk_id"`
	Path         string  `json:"path"`
	Score        float64 `json:"score"`
	TokenCost    int     `json:"token_cost"`
	DocVersionID *string `json:"doc_version_id"`
	SpanID       *string `json:"span_id"`
	CharStart    *int    `json:"char_start"`
	CharEnd      *int    `json:"char_end"`
	Hash         *string `json:"hash"`
	Size         *int    `json:"size"`
}

// HTTPGen is a channel generator backed by a remote HTTP search service
// with the shared /search contract. Channel selects which ScoreChannels
// field the response's Score populates ("semantic" or "lexical").
type HTTPGen struct {
	GenName    string
	ServiceURL string
	Channel    string
	Client     *http.Client
}

func NewHTTPGen(name, serviceURL, channel string) *HTTPGen {
	return &HTTPGen{GenName: name, ServiceURL: serviceURL, Channel: channel, Client: http.DefaultClient}
}

func (g *HTTPGen) Name() string { return g.GenName }

func (g *HTTPGen) Generate(ctx context.Context, signals compiler.DerivedSignals, filters compiler.HardFilters, topK int) ([]*compiler.CandidateSpan, error) {
	query := extractQuery(signals)
	if query == "" {
		return nil, nil
	}

	var sf *searchFilters
	if len(filters.Paths) > 0 || len(filters.RequiredWorkstreams) > 0 {
		sf = &searchFilters{}
		if len(filters.RequiredWorkstreams) > 0 {
			sf.Workstream = filters.RequiredWorkstreams[0]
		}
		if len(filters.Paths) > 0 {
			sf.AllowedPaths = filters.Paths
		}
	}

	body, err := json.Marshal(searchRequest{Query: query, K: topK * 3, Filters: sf})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.ServiceURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s search service: %w", g.Channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s search service returned status %d", g.Channel, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding %s search response: %w", g.Channel, err)
	}

	out := make([]*compiler.CandidateSpan, 0, len(parsed.Candidates))
	for _, c := range parsed.Candidates {
		out = append(out, toCandidateSpan(c, g.Channel))
	}
	return out, nil
}

func extractQuery(signals compiler.DerivedSignals) string {
	if signals.Intent != "" {
		return signals.Intent
	}
	if len(signals.Keywords) > 0 {
		return strings.Join(signals.Keywords, " ")
	}
	return ""
}

func toCandidateSpan(c searchCandidate, channel string) *compiler.CandidateSpan {
	now := time.Now().Unix()

	sourceType := compiler.SourceArtifact
	switch {
	case strings.Contains(c.Path, "03_workstreams/"):
		sourceType = compiler.SourceWorkstream
	case strings.Contains(c.Path, "02_knowledge/"):
		sourceType = compiler.SourceKnowledge
	case strings.Contains(c.Path, "01_context/"):
		sourceType = compiler.SourceContext
	}

	var workstream string
	if sourceType == compiler.SourceWorkstream {
		parts := strings.Split(c.Path, "/")
		if len(parts) > 1 {
			workstream = parts[1]
		}
	}

	var docVersionID, spanID string
	var charStart, charEnd, tokenCost int
	if c.DocVersionID != nil && c.SpanID != nil && c.CharStart != nil && c.CharEnd != nil {
		docVersionID, spanID, charStart, charEnd = *c.DocVersionID, *c.SpanID, *c.CharStart, *c.CharEnd
		tokenCost = c.TokenCost
	} else {
		hash := "unknown"
		if c.Hash != nil {
			hash = *c.Hash
		}
		size := 1000
		if c.Size != nil {
			size = *c.Size
		}
		docVersionID = hash
		spanID = fmt.Sprintf("span_%d", c.ChunkID)
		charEnd = size
		tokenCost = size / 4
		if tokenCost < 10 {
			tokenCost = 10
		}
	}

	scores := compiler.ScoreChannels{}
	switch channel {
	case "semantic":
		scores.Semantic = c.Score
	case "lexical":
		scores.Lexical = c.Score
	}

	return &compiler.CandidateSpan{
		SpanRef: compiler.SpanRef{
			DocVersionID: docVersionID,
			SpanID:       spanID,
			CharStart:    charStart,
			CharEnd:      charEnd,
			TokenCost:    tokenCost,
		},
		Scores:      scores,
		TextPreview: fmt.Sprintf("content from %s", c.Path),
		Metadata: compiler.SpanMetadata{
			Filepath:     c.Path,
			Workstream:   workstream,
			CreatedAt:    now,
			RecencyScore: 0.9,
			SourceType:   sourceType,
		},
	}
}
