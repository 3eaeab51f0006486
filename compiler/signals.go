package compiler

import (
	"regexp"
	"strings"
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "for": {},
	"and": {}, "or": {}, "is": {}, "are": {}, "on": {}, "with": {}, "how": {},
	"what": {}, "why": {}, "does": {}, "do": {}, "this": {}, "that": {},
}

var wordRE = regexp.MustCompile(`[A-Za-z0-9_]+`)

// DeriveSignals extracts the query text, keyword fallback and structural
// hints a request implies (§4.1). It never fails: an empty or
// keyword-free intent simply yields empty DerivedSignals fields, which
// downstream generators are expected to treat as "no query".
func DeriveSignals(req CompileRequest) DerivedSignals {
	intent := strings.TrimSpace(req.Intent)
	var explicitHints *StructHints
	var episodeContext string
	for _, sig := range req.QuerySignals {
		switch sig.Kind {
		case "natural_language":
			if intent == "" {
				intent = strings.TrimSpace(sig.Value)
			}
		case "structural_hints":
			if sig.StructHints != nil {
				explicitHints = sig.StructHints
			}
		case "episode_context":
			episodeContext = sig.Value
		}
	}

	keywords := extractKeywords(intent)

	hints := deriveStructHints(intent, req.HardFilters)
	if explicitHints != nil {
		// §4.1: structural hints pass through untouched when supplied
		// explicitly, in place of the intent-phrasing heuristic.
		hints = *explicitHints
	}

	return DerivedSignals{
		Intent:         intent,
		Keywords:       keywords,
		StructHints:    hints,
		EpisodeContext: episodeContext,
	}
}

func extractKeywords(text string) []string {
	if text == "" {
		return nil
	}
	words := wordRE.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// deriveStructHints biases the structural generator toward doc types and
// section patterns implied by hard filters and phrasing in the intent
// (e.g. "tests" implies test files, "how do I configure" implies config
// sections).
func deriveStructHints(intent string, filters HardFilters) StructHints {
	hints := StructHints{}
	lower := strings.ToLower(intent)

	switch {
	case strings.Contains(lower, "test"):
		hints.DocTypes = append(hints.DocTypes, "test")
	case strings.Contains(lower, "config") || strings.Contains(lower, "configure"):
		hints.SectionPatterns = append(hints.SectionPatterns, "config", "configuration")
	case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		hints.SectionPatterns = append(hints.SectionPatterns, "error", "troubleshoot")
	}

	for _, st := range filters.SourceTypes {
		if st == SourceWorkstream {
			hints.DocTypes = append(hints.DocTypes, "workstream")
		}
	}

	return hints
}
