package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// MemoryCandidate is one hit returned by the memory service.
type MemoryCandidate struct {
	MemoryID  string   `json:"memory_id"`
	Text      string   `json:"text"`
	Score     float64  `json:"score"`
	Stage     string   `json:"stage,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt int64    `json:"created_at"`
	TokenCost int      `json:"token_cost"`
}

type memorySearchResponse struct {
	Memories []MemoryCandidate `json:"memories"`
}

// MemorySource fetches memory candidates over a GET /memories?user_id&query
// endpoint.
type MemorySource struct {
	BaseURL string
	Client  *http.Client

	// MaxCandidates bounds how many memories are requested per call.
	MaxCandidates int
}

// NewMemorySource constructs a MemorySource with a default candidate cap
// of 10.
func NewMemorySource(baseURL string, client *http.Client) *MemorySource {
	if client == nil {
		client = http.DefaultClient
	}
	return &MemorySource{BaseURL: baseURL, Client: client, MaxCandidates: 10}
}

// Fetch retrieves candidate memories for a user and query, converting
// them into CandidateSpans with SourceType Memory and pre-populated
// TextPreview (memory spans skip hydration).
func (m *MemorySource) Fetch(ctx context.Context, userID, query string) ([]*CandidateSpan, error) {
	if m.BaseURL == "" || userID == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("query", query)
	reqURL := fmt.Sprintf("%s/memories?%s", m.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building memory request: %w", err)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling memory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("memory service returned status %d", resp.StatusCode)
	}

	var parsed memorySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding memory response: %w", err)
	}

	max := m.MaxCandidates
	if max <= 0 {
		max = 10
	}
	if len(parsed.Memories) > max {
		parsed.Memories = parsed.Memories[:max]
	}

	out := make([]*CandidateSpan, 0, len(parsed.Memories))
	for _, mem := range parsed.Memories {
		out = append(out, &CandidateSpan{
			SpanRef:     SpanRef{SpanID: mem.MemoryID, TokenCost: mem.TokenCost},
			Scores:      ScoreChannels{Semantic: mem.Score},
			TextPreview: mem.Text,
			Metadata: SpanMetadata{
				SourceType: SourceMemory,
				Stage:      mem.Stage,
				Tags:       mem.Tags,
				CreatedAt:  mem.CreatedAt,
			},
		})
	}
	return out, nil
}
