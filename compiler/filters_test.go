package compiler

import (
	"testing"
	"time"
)

func mkFilterCandidate(path, workstream string, src SourceType) *CandidateSpan {
	return &CandidateSpan{
		Metadata: SpanMetadata{
			Filepath:   path,
			Workstream: workstream,
			SourceType: src,
		},
	}
}

func TestPassesHardFiltersPathAllowList(t *testing.T) {
	c := mkFilterCandidate("src/foo.go", "", SourceContext)
	filters := HardFilters{Paths: []string{"src/**/*.go"}}
	if !PassesHardFilters(c, filters) {
		t.Fatal("expected candidate to pass path allow-list")
	}

	other := mkFilterCandidate("docs/readme.md", "", SourceContext)
	if PassesHardFilters(other, filters) {
		t.Fatal("expected candidate outside allow-list to fail")
	}
}

func TestPassesHardFiltersExcludedPaths(t *testing.T) {
	c := mkFilterCandidate("vendor/pkg/foo.go", "", SourceContext)
	filters := HardFilters{ExcludedPaths: []string{"vendor/**"}}
	if PassesHardFilters(c, filters) {
		t.Fatal("expected excluded path to fail")
	}
}

func TestPassesHardFiltersRequiredWorkstream(t *testing.T) {
	filters := HardFilters{RequiredWorkstreams: []string{"billing"}}
	match := mkFilterCandidate("a.go", "billing", SourceContext)
	if !PassesHardFilters(match, filters) {
		t.Fatal("expected matching workstream to pass")
	}
	miss := mkFilterCandidate("a.go", "search", SourceContext)
	if PassesHardFilters(miss, filters) {
		t.Fatal("expected non-matching workstream to fail")
	}
}

func TestPassesHardFiltersSourceTypes(t *testing.T) {
	filters := HardFilters{SourceTypes: []SourceType{SourceKnowledge}}
	match := mkFilterCandidate("a.md", "", SourceKnowledge)
	if !PassesHardFilters(match, filters) {
		t.Fatal("expected matching source type to pass")
	}
	miss := mkFilterCandidate("a.md", "", SourceArtifact)
	if PassesHardFilters(miss, filters) {
		t.Fatal("expected non-matching source type to fail")
	}
}

func TestPassesHardFiltersMaxDocAge(t *testing.T) {
	now := time.Now().Unix()
	fresh := mkFilterCandidate("a.md", "", SourceKnowledge)
	fresh.Metadata.CreatedAt = now - 24*60*60 // 1 day old

	stale := mkFilterCandidate("b.md", "", SourceKnowledge)
	stale.Metadata.CreatedAt = now - 30*24*60*60 // 30 days old

	filters := HardFilters{MaxDocAgeDays: 7}
	if !passesHardFiltersAt(fresh, filters, now) {
		t.Fatal("expected a document within the age cap to pass")
	}
	if passesHardFiltersAt(stale, filters, now) {
		t.Fatal("expected a document older than the age cap to fail")
	}
}

func TestFilterCandidatesWithRelaxationDropsMaxDocAgeFirst(t *testing.T) {
	now := time.Now().Unix()
	stale := mkFilterCandidate("vendor/old.md", "billing", SourceKnowledge)
	stale.Metadata.CreatedAt = now - 365*24*60*60

	filters := HardFilters{
		MaxDocAgeDays:       7,
		ExcludedPaths:       []string{"vendor/**"},
		RequiredWorkstreams: []string{"billing"},
	}

	out, relaxed := FilterCandidatesWithRelaxation([]*CandidateSpan{stale}, filters)
	if len(out) != 0 {
		t.Fatalf("expected the vendor exclusion to still apply after relaxing doc age, got %d survivors", len(out))
	}
	if len(relaxed) == 0 || relaxed[0] != "max_doc_age_days" {
		t.Fatalf("expected max_doc_age_days to be the first relaxation tried, got %v", relaxed)
	}
}

func TestFilterCandidatesWithRelaxationRecoversCandidates(t *testing.T) {
	now := time.Now().Unix()
	stale := mkFilterCandidate("a.md", "billing", SourceKnowledge)
	stale.Metadata.CreatedAt = now - 365*24*60*60

	filters := HardFilters{MaxDocAgeDays: 7, RequiredWorkstreams: []string{"billing"}}

	out, relaxed := FilterCandidatesWithRelaxation([]*CandidateSpan{stale}, filters)
	if len(out) != 1 {
		t.Fatalf("expected relaxation to recover the candidate, got %d", len(out))
	}
	if len(relaxed) != 1 || relaxed[0] != "max_doc_age_days" {
		t.Fatalf("expected exactly one relaxation step (max_doc_age_days), got %v", relaxed)
	}
}

func TestFilterCandidatesWithRelaxationNoOpWhenCandidatesSurvive(t *testing.T) {
	c := mkFilterCandidate("a.md", "", SourceKnowledge)
	out, relaxed := FilterCandidatesWithRelaxation([]*CandidateSpan{c}, HardFilters{})
	if len(out) != 1 {
		t.Fatalf("expected the candidate to survive untouched, got %d", len(out))
	}
	if relaxed != nil {
		t.Fatalf("expected no relaxations when candidates already survive, got %v", relaxed)
	}
}

func TestFilterCandidatesPreservesOrder(t *testing.T) {
	candidates := []*CandidateSpan{
		mkFilterCandidate("a.go", "", SourceContext),
		mkFilterCandidate("vendor/b.go", "", SourceContext),
		mkFilterCandidate("c.go", "", SourceContext),
	}
	filters := HardFilters{ExcludedPaths: []string{"vendor/**"}}
	out := FilterCandidates(candidates, filters)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
	if out[0].Metadata.Filepath != "a.go" || out[1].Metadata.Filepath != "c.go" {
		t.Errorf("unexpected order: %v, %v", out[0].Metadata.Filepath, out[1].Metadata.Filepath)
	}
}
