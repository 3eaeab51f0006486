package compiler

// Explain builds one SpanExplanation per selected item using the fixed
// tag vocabulary from §4.8. hydrationTags carries any HydrationClamped
// or HydrationMissing reasons attached during hydration, keyed by span
// id; diversityPenalties carries each span's (1-lambda)*max_sim term
// from SelectWithMMR, keyed by span id.
func Explain(items []WSItem, prefs SoftPreferences, hydrationTags map[string][]SpanExplanationReason, diversityPenalties map[string]float64) []SpanExplanation {
	out := make([]SpanExplanation, 0, len(items))
	for _, item := range items {
		var reasons []SpanExplanationReason

		if item.Scores.Semantic > 0 {
			reasons = append(reasons, ReasonSemanticMatch)
		}
		if item.Scores.Lexical > 0 {
			reasons = append(reasons, ReasonLexicalMatch)
		}
		if item.Scores.Structural > 0 {
			reasons = append(reasons, ReasonStructuralMatch)
		}
		if item.Scores.Graph > 0 {
			reasons = append(reasons, ReasonGraphHop)
		}
		if item.Metadata.RecencyScore >= 0.8 {
			reasons = append(reasons, ReasonRecent)
		}
		if StageBoost(item.Metadata.Stage, prefs.PreferStages) > 0 {
			reasons = append(reasons, ReasonStagePreferred)
		}
		switch item.Metadata.SourceType {
		case SourceSession:
			reasons = append(reasons, ReasonSessionPrelude)
		case SourceMemory:
			reasons = append(reasons, ReasonMemoryHit)
		}
		reasons = append(reasons, hydrationTags[item.SpanRef.SpanID]...)

		out = append(out, SpanExplanation{
			SpanID:           item.SpanRef.SpanID,
			Reasons:          reasons,
			FinalScore:       item.MMRScore,
			BaseScore:        item.BaseScore,
			DiversityPenalty: diversityPenalties[item.SpanRef.SpanID],
		})
	}
	return out
}
