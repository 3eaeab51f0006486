package compiler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionFetcher retrieves the ordered (oldest-first) session transcript
// for a session id. Implementations call out to the session service
// (§6); this interface keeps that transport out of the compiler package.
type SessionFetcher interface {
	FetchSession(ctx context.Context, sessionID string) ([]SessionSpan, error)
}

// Engine wires generators, session/memory sources and a hydration root
// into the full compile pipeline (§4).
type Engine struct {
	Generators  []Generator
	Session     SessionFetcher
	Memory      *MemorySource
	HydrateRoot string
	Weights     ScoreWeights
	Logger      *slog.Logger
}

// NewEngine constructs an Engine with the default score weights.
func NewEngine(root string, gens []Generator) *Engine {
	return &Engine{
		Generators:  gens,
		HydrateRoot: root,
		Weights:     DefaultScoreWeights(),
		Memory:      NewMemorySource("", http.DefaultClient),
		Logger:      slog.Default(),
	}
}

// CompileWorkingSet runs the full pipeline: validate, build the session
// prelude, derive signals, fan out to generators, add memory candidates,
// fuse, filter (relaxing if nothing survives), score, select via MMR,
// hydrate, explain (§4).
func (e *Engine) CompileWorkingSet(ctx context.Context, req CompileRequest) (*CompileResponse, error) {
	start := time.Now()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	logger := e.logger().With("request_id", req.RequestID)

	if req.Intent == "" && len(req.QuerySignals) == 0 {
		return nil, errEmptyRequest("intent or at least one query signal is required")
	}
	if req.BudgetTokens <= 0 {
		return nil, errInvalidBudget("budget_tokens must be > 0")
	}

	weights := e.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}
	prefs := req.SoftPrefs
	if prefs.DiversityLambda == nil {
		defaultLambda := 0.6
		prefs.DiversityLambda = &defaultLambda
	}

	usedTokens := 0
	var sessionItems []WSItem

	if req.SessionID != "" && e.Session != nil {
		spans, err := e.Session.FetchSession(ctx, req.SessionID)
		if err != nil {
			logger.Warn("session fetch failed, continuing without prelude", "error", err)
		} else {
			sessionItems, usedTokens = BuildSessionPrelude(spans, req.BudgetTokens)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errCancelled(err)
	}

	signals := DeriveSignals(req)
	retrievalBudget := req.BudgetTokens - usedTokens
	if retrievalBudget < 0 {
		retrievalBudget = 0
	}
	topK := retrievalBudgetTopK(retrievalBudget)

	genStart := time.Now()
	candidates, failed, err := FanOut(ctx, e.Generators, signals, req.HardFilters, topK)
	if err != nil {
		return nil, err
	}
	generationTime := time.Since(genStart)
	if len(failed) > 0 {
		logger.Warn("generators failed, treating their output as empty", "generators", failed)
	}

	if req.UserID != "" && e.Memory != nil {
		memCandidates, merr := e.Memory.Fetch(ctx, req.UserID, signals.Intent)
		if merr != nil {
			logger.Warn("memory fetch failed, continuing without memory candidates", "error", merr)
		} else {
			candidates = append(candidates, memCandidates...)
		}
	}

	generatedCount := len(candidates)

	candidates = FuseCandidates(candidates)
	filtered, relaxedFilters := FilterCandidatesWithRelaxation(candidates, req.HardFilters)
	if len(relaxedFilters) > 0 {
		logger.Warn("relaxed hard filters after an empty filter pass", "filters", relaxedFilters)
	}
	if len(filtered) == 0 {
		return nil, errNoCandidates("no candidates survived generation and filtering, even after relaxing filters", relaxedFilters)
	}
	candidates = filtered
	candidatesAfterFilters := len(candidates)

	ScoreCandidates(candidates, weights, prefs)

	if err := ctx.Err(); err != nil {
		return nil, errCancelled(err)
	}

	// A budget that cannot hold even the cheapest surviving candidate
	// produces a successful, empty working set rather than an error
	// (§4.6, §8): the request was well-formed, it simply has nothing
	// left to spend on.
	reason := ""
	var selected []*CandidateSpan
	var diversityPenalties map[string]float64
	var selectionTime time.Duration
	if retrievalBudget < minTokenCost(candidates) {
		reason = string(KindBudgetTooSmall)
	} else {
		pool := PrunePool(candidates, retrievalBudget)
		selStart := time.Now()
		selected, diversityPenalties = SelectWithMMR(pool, req.BudgetTokens, usedTokens, prefs)
		selectionTime = time.Since(selStart)
	}

	hydrated, hydrationTags := Hydrate(e.HydrateRoot, selected)
	for spanID, tags := range hydrationTags {
		logger.Warn("span hydration incomplete", "span_id", spanID, "reasons", tags)
	}

	items := append(sessionItems, hydrated...)
	totalTokens := usedTokens
	for _, item := range hydrated {
		totalTokens += item.SpanRef.TokenCost
	}
	assignSelectionMetadata(items, totalTokens)

	var explanations []SpanExplanation
	if req.Explain {
		explanations = Explain(items, prefs, hydrationTags, diversityPenalties)
	}

	utilization := 0.0
	if req.BudgetTokens > 0 {
		utilization = float64(totalTokens) / float64(req.BudgetTokens)
	}

	resp := &CompileResponse{
		RequestID: req.RequestID,
		WorkingSet: WorkingSet{
			Items:       items,
			TotalTokens: totalTokens,
		},
		Stats: CompileStats{
			CandidatesGenerated:    generatedCount,
			CandidatesAfterFilters: candidatesAfterFilters,
			CandidatesSelected:     len(selected),
			TokenUtilization:       utilization,
			GenerationTimeMS:       generationTime.Milliseconds(),
			SelectionTimeMS:        selectionTime.Milliseconds(),
			GeneratorsFailed:       failed,
			FiltersRelaxed:         relaxedFilters,
			Reason:                 reason,
			SourceDistribution:     sourceDistribution(items, totalTokens),
		},
		Explanations: explanations,
	}

	logger.Info("compiled working set",
		"candidates", generatedCount,
		"selected", len(selected),
		"utilization", utilization,
		"duration_ms", time.Since(start).Milliseconds())

	return resp, nil
}

// minTokenCost returns the smallest SpanRef.TokenCost across candidates.
// Callers must not pass an empty slice.
func minTokenCost(candidates []*CandidateSpan) int {
	cost := candidates[0].SpanRef.TokenCost
	for _, c := range candidates[1:] {
		cost = min(cost, c.SpanRef.TokenCost)
	}
	return cost
}

// assignSelectionMetadata sets each item's dense zero-based selection
// rank and its share of the working set's total token budget, so
// SourceWeight across all items sums to 1 (§3, §6).
func assignSelectionMetadata(items []WSItem, totalTokens int) {
	for i := range items {
		items[i].SelectionRank = i
		if totalTokens > 0 {
			items[i].SourceWeight = float64(items[i].SpanRef.TokenCost) / float64(totalTokens)
		}
	}
}

// sourceDistribution maps each item's filepath to its share of
// totalTokens in the final working set.
func sourceDistribution(items []WSItem, totalTokens int) map[string]float64 {
	if totalTokens <= 0 || len(items) == 0 {
		return nil
	}
	dist := make(map[string]float64, len(items))
	for _, item := range items {
		dist[item.Metadata.Filepath] += float64(item.SpanRef.TokenCost) / float64(totalTokens)
	}
	return dist
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// retrievalBudgetTopK is the per-generator top_k heuristic, computed
// against the post-session retrieval budget.
func retrievalBudgetTopK(retrievalBudget int) int {
	k := retrievalBudget / 50
	if k < 100 {
		k = 100
	}
	return k
}
