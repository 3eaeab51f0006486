package compiler

import (
	"math"
	"sort"
)

// pruneBound clamps the candidate pool size before MMR runs (§4.4's
// sizing heuristic): 5 * ceil(budget_tokens / median_token_cost),
// bounded to [32, 1000].
func pruneBound(budgetTokens int, candidates []*CandidateSpan) int {
	if len(candidates) == 0 {
		return 0
	}
	costs := make([]int, len(candidates))
	for i, c := range candidates {
		costs[i] = c.SpanRef.TokenCost
	}
	sort.Ints(costs)
	median := costs[len(costs)/2]
	if median <= 0 {
		median = 1
	}
	n := 5 * ceilDiv(budgetTokens, median)
	if n < 32 {
		n = 32
	}
	if n > 1000 {
		n = 1000
	}
	return n
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// PrunePool sorts candidates by BaseScore descending and truncates to
// the pruning bound, so MMR only ever iterates a workable pool.
func PrunePool(candidates []*CandidateSpan, budgetTokens int) []*CandidateSpan {
	sorted := append([]*CandidateSpan(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BaseScore > sorted[j].BaseScore })
	bound := pruneBound(budgetTokens, sorted)
	if bound < len(sorted) {
		sorted = sorted[:bound]
	}
	return sorted
}

const (
	mmrTieEpsilon  = 0.01
	mmrFloor       = 0.10
	budgetSoftStop = 0.98
)

// similarity estimates how similar two candidates are for MMR's
// diversity term: cosine similarity of embeddings when both carry one,
// otherwise a coarse heuristic (same file -> highly similar, same
// source type -> mildly similar, else dissimilar). The heuristic keeps
// MMR meaningful even before an embedding-backed generator is wired in.
func similarity(a, b *CandidateSpan) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return CosineSimilarity(a.Embedding, b.Embedding)
	}
	if a.Metadata.Filepath != "" && a.Metadata.Filepath == b.Metadata.Filepath {
		return 0.9
	}
	if a.Metadata.SourceType == b.Metadata.SourceType {
		return 0.2
	}
	return 0.0
}

// mmrObjective computes candidate c's marginal-relevance score against
// the spans already selected, along with the max similarity term the
// diversity penalty is derived from.
func mmrObjective(c *CandidateSpan, selected []*CandidateSpan, lambda float64) (score, maxSim float64) {
	if len(selected) == 0 {
		return lambda * c.BaseScore, 0
	}
	for _, s := range selected {
		if sim := similarity(c, s); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*c.BaseScore - (1-lambda)*maxSim, maxSim
}

// tieBreakLess implements the 3-level deterministic tie-break, applied
// whenever two candidates' MMR scores differ by less than
// mmrTieEpsilon: smaller token_cost wins, then more recent created_at,
// then lexicographically smaller span_id.
func tieBreakLess(a, b *CandidateSpan) bool {
	if a.SpanRef.TokenCost != b.SpanRef.TokenCost {
		return a.SpanRef.TokenCost < b.SpanRef.TokenCost
	}
	if a.Metadata.CreatedAt != b.Metadata.CreatedAt {
		return a.Metadata.CreatedAt > b.Metadata.CreatedAt
	}
	return a.SpanRef.SpanID < b.SpanRef.SpanID
}

// filepathsSeen returns the set of distinct filepaths present in a
// candidate slice.
func filepathsSeen(candidates []*CandidateSpan) map[string]struct{} {
	seen := make(map[string]struct{})
	for _, c := range candidates {
		seen[c.Metadata.Filepath] = struct{}{}
	}
	return seen
}

// SelectWithMMR runs the greedy MMR selection loop (§4.6). usedTokens
// seeds the running total (e.g. from a session prelude already
// committed against the same budget); it returns the selected
// candidates in selection order, plus each selected span's diversity
// penalty ((1-lambda)*max_sim at the moment it was chosen), keyed by
// span id, for use in explanations (§4.8).
func SelectWithMMR(pool []*CandidateSpan, budgetTokens int, usedTokens int, prefs SoftPreferences) ([]*CandidateSpan, map[string]float64) {
	lambda := 0.6
	if prefs.DiversityLambda != nil {
		lambda = *prefs.DiversityLambda
	}
	ratioCap := prefs.SourceRatioCap
	if ratioCap <= 0 {
		ratioCap = 0.4
	}

	remaining := append([]*CandidateSpan(nil), pool...)
	selected := make([]*CandidateSpan, 0, len(pool))
	penalties := make(map[string]float64, len(pool))
	sourceTokens := make(map[string]int)
	maxSourceTokens := ratioCap * float64(budgetTokens)

	// Source-ratio enforcement only activates once the pool shows real
	// source diversity (§4.6): a single-source pool never triggers the
	// cap, since there is nothing to diversify against.
	enforceRatio := len(filepathsSeen(pool)) >= 2

	for len(remaining) > 0 {
		if float64(usedTokens) >= budgetSoftStop*float64(budgetTokens) {
			break
		}

		bestIdx := -1
		var bestScore, bestMaxSim float64
		for i, c := range remaining {
			if usedTokens+c.SpanRef.TokenCost > budgetTokens {
				continue
			}
			if enforceRatio {
				projected := float64(sourceTokens[c.Metadata.Filepath] + c.SpanRef.TokenCost)
				if projected > maxSourceTokens {
					continue
				}
			}
			score, maxSim := mmrObjective(c, selected, lambda)
			if bestIdx == -1 {
				bestIdx, bestScore, bestMaxSim = i, score, maxSim
				continue
			}
			if score > bestScore+mmrTieEpsilon {
				bestIdx, bestScore, bestMaxSim = i, score, maxSim
			} else if math.Abs(score-bestScore) < mmrTieEpsilon && tieBreakLess(c, remaining[bestIdx]) {
				bestIdx, bestScore, bestMaxSim = i, score, maxSim
			}
		}

		if bestIdx == -1 {
			// No remaining candidate fits the budget.
			break
		}
		if bestScore < mmrFloor {
			break
		}

		chosen := remaining[bestIdx]
		chosen.MMRScore = bestScore
		penalties[chosen.SpanRef.SpanID] = (1 - lambda) * bestMaxSim
		selected = append(selected, chosen)
		sourceTokens[chosen.Metadata.Filepath] += chosen.SpanRef.TokenCost
		usedTokens += chosen.SpanRef.TokenCost

		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, penalties
}
