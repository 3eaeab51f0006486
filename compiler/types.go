// Package compiler implements the working set compiler: it turns a
// natural-language intent plus hard filters and a token budget into a
// bounded, diverse, explainable set of context spans.
package compiler

// SpanRef locates a span of text inside a versioned document.
type SpanRef struct {
	DocVersionID string `json:"doc_version_id"`
	SpanID       string `json:"span_id"`
	CharStart    int    `json:"char_start"`
	CharEnd      int    `json:"char_end"`
	TokenCost    int    `json:"token_cost"`
}

// ScoreChannels holds a candidate's per-channel scores: raw as the
// generators supplied them, until NormalizeScores replaces them in place
// with normalised values in [0, 1].
type ScoreChannels struct {
	Semantic   float64 `json:"semantic"`
	Lexical    float64 `json:"lexical"`
	Structural float64 `json:"structural"`
	Graph      float64 `json:"graph"`
}

// SourceType classifies where a candidate span's document lives.
type SourceType string

const (
	SourceWorkstream SourceType = "workstream"
	SourceKnowledge  SourceType = "knowledge"
	SourceContext    SourceType = "context"
	SourceArtifact   SourceType = "artifact"
	SourceSession    SourceType = "session"
	SourceMemory     SourceType = "memory"
)

// SpanMetadata carries the descriptive fields a candidate span needs for
// scoring, filtering and explanation.
type SpanMetadata struct {
	Filepath     string     `json:"filepath"`
	Workstream   string     `json:"workstream,omitempty"`
	Stage        string     `json:"stage,omitempty"`
	SectionTitle string     `json:"section_title,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	RecencyScore float64    `json:"recency_score"`
	SourceType   SourceType `json:"source_type"`

	// Tags is a free-form label set carried from the indexing pipeline
	// (e.g. "deprecated", "generated"). Not scored directly, but surfaced
	// in explanations and available to future soft-preference extensions.
	Tags []string `json:"tags,omitempty"`
}

// CandidateSpan is a span under consideration for inclusion in a working
// set, together with everything the pipeline needs to score, select,
// hydrate and explain it.
type CandidateSpan struct {
	SpanRef  SpanRef       `json:"span_ref"`
	Scores   ScoreChannels `json:"scores"`
	Metadata SpanMetadata  `json:"metadata"`

	// Embedding is an optional dense vector used for MMR diversity
	// scoring (§4.6). Candidates without one fall back to a path/source
	// heuristic for similarity (see selection.go).
	Embedding []float64 `json:"-"`

	// TextPreview is a short, generator-supplied preview of the span's
	// content. It is not what ends up in the working set; Hydrate fills
	// WSItem.Text from the filesystem (or, for session/memory candidates,
	// copies TextPreview verbatim).
	TextPreview string `json:"text_preview,omitempty"`

	// BaseScore is the normalised, weighted linear combination of Scores
	// plus recency and stage boosts (§4.4). Populated by ScoreCandidates.
	BaseScore float64 `json:"-"`

	// MMRScore is the MMR objective value this candidate had when
	// SelectWithMMR chose it (§4.6); it stays zero for candidates that
	// are not selected.
	MMRScore float64 `json:"-"`
}

// Compression describes how a working-set item's text has been reduced
// from its original span, if at all.
type Compression struct {
	Kind    CompressionKind `json:"kind"`
	Summary string          `json:"summary,omitempty"`
	Bullets []string        `json:"bullets,omitempty"`
}

type CompressionKind string

const (
	CompressionNone    CompressionKind = "none"
	CompressionSummary CompressionKind = "summary"
	CompressionBullets CompressionKind = "bullets"
)

// WSItem is one materialised member of a compiled working set.
type WSItem struct {
	SpanRef  SpanRef       `json:"span_ref"`
	Text     string        `json:"text"`
	Metadata SpanMetadata  `json:"metadata"`
	Scores   ScoreChannels `json:"scores"`

	BaseScore   float64      `json:"base_score"`
	MMRScore    float64      `json:"mmr_score"`
	Compression *Compression `json:"compression,omitempty"`

	// SourceWeight is this item's share of the working set's total
	// selection weight; SourceWeight across all items in a WorkingSet
	// sums to 1.
	SourceWeight float64 `json:"source_weight"`

	// SelectionRank is this item's position in selection order, dense
	// and zero-based (0..N-1).
	SelectionRank int `json:"selection_rank"`
}

// WorkingSet is the compiled result: an ordered, budget-respecting list
// of working-set items.
type WorkingSet struct {
	Items       []WSItem `json:"items"`
	TotalTokens int      `json:"total_tokens"`
}

// QuerySignal is one piece of raw evidence about user intent supplied on
// a CompileRequest: natural language, structural hints, or an episode id
// (§4.1). Kind selects which field is meaningful; the others are left
// zero. DeriveSignals ignores any other kind; there is no explicit
// keywords kind, so keywords come only from the intent text.
type QuerySignal struct {
	Kind string `json:"kind"`

	// Value carries the payload for "natural_language" and
	// "episode_context" kinds.
	Value string `json:"value,omitempty"`

	// StructHints carries the payload for the "structural_hints" kind,
	// passed through to DerivedSignals.StructHints untouched.
	StructHints *StructHints `json:"struct_hints,omitempty"`
}

func NaturalLanguageSignal(text string) QuerySignal {
	return QuerySignal{Kind: "natural_language", Value: text}
}

// StructuralHintsSignal wraps an explicit StructHints for passthrough
// via DeriveSignals, bypassing the intent-phrasing heuristic.
func StructuralHintsSignal(hints StructHints) QuerySignal {
	return QuerySignal{Kind: "structural_hints", StructHints: &hints}
}

// EpisodeContextSignal carries an episode id whose content should flow
// into DerivedSignals.EpisodeContext untouched.
func EpisodeContextSignal(episodeID string) QuerySignal {
	return QuerySignal{Kind: "episode_context", Value: episodeID}
}

// HardFilters excludes candidates outright; a candidate failing any
// active hard filter never reaches scoring.
type HardFilters struct {
	// Paths, when non-empty, is a doublestar glob allow-list: a
	// candidate's SpanMetadata.Filepath must match at least one pattern.
	Paths []string `json:"paths,omitempty"`

	// ExcludedPaths is a doublestar glob deny-list, evaluated after Paths.
	ExcludedPaths []string `json:"excluded_paths,omitempty"`

	RequiredWorkstreams []string     `json:"required_workstreams,omitempty"`
	SourceTypes         []SourceType `json:"source_types,omitempty"`

	// MaxDocAgeDays excludes candidates whose Metadata.CreatedAt is older
	// than this many days relative to now. Zero means unbounded.
	MaxDocAgeDays int `json:"max_doc_age_days,omitempty"`
}

// SoftPreferences bias scoring and selection without excluding anything.
type SoftPreferences struct {
	// PreferStages maps a stage name to a weight in [0, 1]. StageBoost
	// looks up the candidate's stage here; absent stages score 0.
	PreferStages map[string]float64 `json:"prefer_stages,omitempty"`

	// DiversityLambda trades off relevance against diversity in MMR
	// (higher favors relevance). Nil selects the default of 0.6; an
	// explicit 0.0 is honored, so this must stay a pointer rather than
	// collapse unset and zero together. With 0.0 base_score contributes
	// nothing, every MMR value is at most 0 and below the 0.10 floor, and
	// nothing is selected.
	DiversityLambda *float64 `json:"diversity_lambda,omitempty"`

	// SourceRatioCap bounds the fraction of budget_tokens any single
	// source file (by filepath) may accumulate, once enforcement is
	// active (§4.6): source_tokens[filepath] + token_cost must not
	// exceed SourceRatioCap * budget_tokens. Zero or unset defaults to
	// 0.4 (§3).
	SourceRatioCap float64 `json:"source_ratio_cap,omitempty"`
}

// ScoreWeights are the linear-combination weights used in base score
// computation (§4.4). The zero value is invalid; use DefaultScoreWeights.
type ScoreWeights struct {
	Semantic   float64 `json:"semantic"`
	Lexical    float64 `json:"lexical"`
	Structural float64 `json:"structural"`
	Graph      float64 `json:"graph"`
	Recency    float64 `json:"recency"`
	StageBoost float64 `json:"stage_boost"`
}

// DefaultScoreWeights returns the default channel and boost weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Semantic:   0.40,
		Lexical:    0.20,
		Structural: 0.20,
		Graph:      0.10,
		Recency:    0.05,
		StageBoost: 0.05,
	}
}

// CompileRequest is the input to CompileWorkingSet.
type CompileRequest struct {
	RequestID    string          `json:"request_id,omitempty"`
	Intent       string          `json:"intent"`
	BudgetTokens int             `json:"budget_tokens"`
	SessionID    string          `json:"session_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	QuerySignals []QuerySignal   `json:"query_signals,omitempty"`
	HardFilters  HardFilters     `json:"hard_filters"`
	SoftPrefs    SoftPreferences `json:"soft_prefs"`
	Weights      *ScoreWeights   `json:"weights,omitempty"`
	Explain      bool            `json:"explain"`
}

// SpanExplanationReason is one of the fixed vocabulary tags (§4.8) used
// to explain why a span was selected.
type SpanExplanationReason string

const (
	ReasonSemanticMatch    SpanExplanationReason = "semantic_match"
	ReasonLexicalMatch     SpanExplanationReason = "lexical_match"
	ReasonStructuralMatch  SpanExplanationReason = "structural_match"
	ReasonGraphHop         SpanExplanationReason = "graph_hop"
	ReasonRecent           SpanExplanationReason = "recent"
	ReasonStagePreferred   SpanExplanationReason = "stage_preferred"
	ReasonSessionPrelude   SpanExplanationReason = "session_prelude"
	ReasonMemoryHit        SpanExplanationReason = "memory_hit"
	ReasonHydrationClamped SpanExplanationReason = "hydration_clamped"
	ReasonHydrationMissing SpanExplanationReason = "hydration_missing"
)

// SpanExplanation is the human-legible rationale attached to one
// selected span when CompileRequest.Explain is true.
type SpanExplanation struct {
	SpanID  string                  `json:"span_id"`
	Reasons []SpanExplanationReason `json:"reasons"`
	Detail  string                  `json:"detail,omitempty"`

	// FinalScore is the item's last MMR objective value (its MMRScore).
	FinalScore float64 `json:"final_score"`
	// BaseScore is the item's pre-selection weighted channel score.
	BaseScore float64 `json:"base_score"`
	// DiversityPenalty is (1-lambda)*max_sim against the spans already
	// selected at the moment this item was chosen.
	DiversityPenalty float64 `json:"diversity_penalty"`
}

// CompileStats reports pipeline-level metrics about one compilation.
type CompileStats struct {
	CandidatesGenerated    int      `json:"candidates_generated"`
	CandidatesAfterFilters int      `json:"candidates_after_filters"`
	CandidatesSelected     int      `json:"candidates_selected"`
	TokenUtilization       float64  `json:"token_utilization"`
	GenerationTimeMS       int64    `json:"generation_time_ms"`
	SelectionTimeMS        int64    `json:"selection_time_ms"`
	GeneratorsFailed       []string `json:"generators_failed,omitempty"`
	FiltersRelaxed         []string `json:"filters_relaxed,omitempty"`

	// Reason records why the working set came back empty despite a
	// successful compile, e.g. KindBudgetTooSmall. Empty when nothing
	// unusual happened.
	Reason string `json:"reason,omitempty"`

	// SourceDistribution maps each selected item's filepath to its share
	// of TotalTokens in the final working set.
	SourceDistribution map[string]float64 `json:"source_distribution,omitempty"`
}

// CompileResponse is the output of CompileWorkingSet.
type CompileResponse struct {
	RequestID    string            `json:"request_id"`
	WorkingSet   WorkingSet        `json:"working_set"`
	Stats        CompileStats      `json:"stats"`
	Explanations []SpanExplanation `json:"explanations,omitempty"`
}

// DerivedSignals is the output of DeriveSignals (§4.1): everything the
// generators need, pulled out of the raw request.
type DerivedSignals struct {
	Intent          string
	IntentEmbedding []float64
	Keywords        []string
	StructHints     StructHints

	// EpisodeContext is an optional free-text summary of the current
	// working episode (e.g. the last few turns of a session), for
	// generators that want conversational continuity without needing
	// the full session prelude.
	EpisodeContext string
}

// StructHints biases the structural generator toward particular sections
// or document types.
type StructHints struct {
	SectionPatterns []string
	DocTypes        []string
}
