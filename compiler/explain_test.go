package compiler

import "testing"

func TestExplainPopulatesScoreFields(t *testing.T) {
	items := []WSItem{
		{
			SpanRef:   SpanRef{SpanID: "s1"},
			Scores:    ScoreChannels{Semantic: 0.8},
			BaseScore: 0.5,
			MMRScore:  0.42,
		},
	}
	penalties := map[string]float64{"s1": 0.13}

	out := Explain(items, SoftPreferences{}, nil, penalties)
	if len(out) != 1 {
		t.Fatalf("expected 1 explanation, got %d", len(out))
	}
	if out[0].FinalScore != 0.42 {
		t.Errorf("expected final_score to mirror mmr_score, got %v", out[0].FinalScore)
	}
	if out[0].BaseScore != 0.5 {
		t.Errorf("expected base_score to mirror the item's base score, got %v", out[0].BaseScore)
	}
	if out[0].DiversityPenalty != 0.13 {
		t.Errorf("expected diversity_penalty from the penalties map, got %v", out[0].DiversityPenalty)
	}
}

func TestExplainDefaultsDiversityPenaltyWhenMissing(t *testing.T) {
	items := []WSItem{{SpanRef: SpanRef{SpanID: "no-penalty"}}}
	out := Explain(items, SoftPreferences{}, nil, nil)
	if len(out) != 1 {
		t.Fatalf("expected 1 explanation, got %d", len(out))
	}
	if out[0].DiversityPenalty != 0 {
		t.Errorf("expected zero diversity_penalty for a span absent from the map, got %v", out[0].DiversityPenalty)
	}
}
