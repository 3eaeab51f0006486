package compiler

import "math"

const normEpsilon = 1e-9

// normalizeChannel min-max normalizes one score channel across a slice of
// candidates in place (§4.3): values are mapped to (x-min)/(max-min+eps);
// a channel with no spread (max-min < eps) maps every positive value to
// 1.0 and every non-positive value to 0.0, i.e. an inactive channel
// never contributes noise to the weighted sum.
func normalizeChannel(get func(*CandidateSpan) float64, set func(*CandidateSpan, float64), candidates []*CandidateSpan) {
	if len(candidates) == 0 {
		return
	}
	min, max := get(candidates[0]), get(candidates[0])
	for _, c := range candidates[1:] {
		v := get(c)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	spread := max - min
	for _, c := range candidates {
		v := get(c)
		if spread < normEpsilon {
			if v > 0 {
				set(c, 1.0)
			} else {
				set(c, 0.0)
			}
			continue
		}
		set(c, (v-min)/(spread+normEpsilon))
	}
}

// NormalizeScores normalizes each of the four score channels
// independently across the candidate pool (§4.3).
func NormalizeScores(candidates []*CandidateSpan) {
	normalizeChannel(
		func(c *CandidateSpan) float64 { return c.Scores.Semantic },
		func(c *CandidateSpan, v float64) { c.Scores.Semantic = v },
		candidates)
	normalizeChannel(
		func(c *CandidateSpan) float64 { return c.Scores.Lexical },
		func(c *CandidateSpan, v float64) { c.Scores.Lexical = v },
		candidates)
	normalizeChannel(
		func(c *CandidateSpan) float64 { return c.Scores.Structural },
		func(c *CandidateSpan, v float64) { c.Scores.Structural = v },
		candidates)
	normalizeChannel(
		func(c *CandidateSpan) float64 { return c.Scores.Graph },
		func(c *CandidateSpan, v float64) { c.Scores.Graph = v },
		candidates)
}

// StageBoost returns the weight SoftPreferences.PreferStages assigns to
// the candidate's stage, or 0 if the stage is unset or absent from the
// map. Unlike a flat membership list, this lets callers express partial
// preference between several stages (§4.4).
func StageBoost(stage string, preferStages map[string]float64) float64 {
	if stage == "" || preferStages == nil {
		return 0
	}
	return preferStages[stage]
}

// ComputeBaseScore computes the weighted linear combination of a
// candidate's (already normalized) score channels, recency and stage
// boost (§4.4). Scores are assumed to already be run through
// NormalizeScores.
func ComputeBaseScore(c *CandidateSpan, weights ScoreWeights, preferStages map[string]float64) float64 {
	return weights.Semantic*c.Scores.Semantic +
		weights.Lexical*c.Scores.Lexical +
		weights.Structural*c.Scores.Structural +
		weights.Graph*c.Scores.Graph +
		weights.Recency*c.Metadata.RecencyScore +
		weights.StageBoost*StageBoost(c.Metadata.Stage, preferStages)
}

// ScoreCandidates normalizes the pool and computes BaseScore for every
// candidate.
func ScoreCandidates(candidates []*CandidateSpan, weights ScoreWeights, prefs SoftPreferences) {
	NormalizeScores(candidates)
	for _, c := range candidates {
		c.BaseScore = ComputeBaseScore(c, weights, prefs.PreferStages)
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 if either is empty or their lengths differ (used by MMR
// diversity scoring when candidates carry embeddings).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
