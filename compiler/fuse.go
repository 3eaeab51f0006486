package compiler

// spanKey identifies a candidate span for deduplication across
// generators: the same underlying span may be surfaced by more than one
// channel (e.g. both semantic and lexical hit the same paragraph).
type spanKey struct {
	docVersionID string
	spanID       string
}

func keyOf(c *CandidateSpan) spanKey {
	return spanKey{docVersionID: c.SpanRef.DocVersionID, spanID: c.SpanRef.SpanID}
}

// FuseCandidates merges candidates sharing the same span identity,
// taking the max of each score channel across duplicates (a span that
// scored well semantically and well lexically keeps both maxima) and
// preferring the metadata/text of whichever copy arrived first. The
// embedding kept is whichever duplicate provided one; if more than one
// did, the copy with the higher semantic score wins, since that channel
// is the one that produces embeddings (§4.3).
func FuseCandidates(candidates []*CandidateSpan) []*CandidateSpan {
	order := make([]spanKey, 0, len(candidates))
	byKey := make(map[spanKey]*CandidateSpan, len(candidates))

	for _, c := range candidates {
		k := keyOf(c)
		existing, ok := byKey[k]
		if !ok {
			cp := *c
			byKey[k] = &cp
			order = append(order, k)
			continue
		}
		if len(c.Embedding) > 0 && (len(existing.Embedding) == 0 || c.Scores.Semantic > existing.Scores.Semantic) {
			existing.Embedding = c.Embedding
		}
		existing.Scores.Semantic = maxF(existing.Scores.Semantic, c.Scores.Semantic)
		existing.Scores.Lexical = maxF(existing.Scores.Lexical, c.Scores.Lexical)
		existing.Scores.Structural = maxF(existing.Scores.Structural, c.Scores.Structural)
		existing.Scores.Graph = maxF(existing.Scores.Graph, c.Scores.Graph)
	}

	out := make([]*CandidateSpan, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
