package compiler

// SessionSpan is one turn of session transcript eligible for inclusion
// in the compiled working set's prelude. Session spans carry their own
// text and never go through hydration (§4.5).
type SessionSpan struct {
	SpanID    string
	Text      string
	TokenCost int
	CreatedAt int64
}

// SessionCap is the fraction of the request budget the session prelude
// may occupy before trimming kicks in (§4.5).
const SessionCap = 0.5

// BuildSessionPrelude trims a chronologically ordered (oldest-first)
// session transcript to at most SessionCap of budgetTokens, converts the
// kept spans to WSItems, and reports the token cost consumed.
//
// Spans exceeding the cap are trimmed from the oldest end: the transcript
// is provided oldest-first, so trimming removes leading entries, keeping
// the most recent conversational turns.
func BuildSessionPrelude(spans []SessionSpan, budgetTokens int) ([]WSItem, int) {
	cap := int(float64(budgetTokens) * SessionCap)
	if cap <= 0 || len(spans) == 0 {
		return nil, 0
	}

	total := 0
	for _, s := range spans {
		total += s.TokenCost
	}

	start := 0
	for total > cap && start < len(spans) {
		total -= spans[start].TokenCost
		start++
	}

	kept := spans[start:]
	items := make([]WSItem, 0, len(kept))
	used := 0
	for _, s := range kept {
		items = append(items, WSItem{
			SpanRef: SpanRef{SpanID: s.SpanID, TokenCost: s.TokenCost},
			Text:    s.Text,
			Metadata: SpanMetadata{
				SourceType: SourceSession,
				CreatedAt:  s.CreatedAt,
			},
		})
		used += s.TokenCost
	}
	return items, used
}
