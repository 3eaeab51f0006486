package compiler

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// PassesHardFilters reports whether a candidate survives every active
// hard filter (§4.2's contract: generators may over-fetch, the pipeline
// is responsible for hard exclusion).
func PassesHardFilters(c *CandidateSpan, filters HardFilters) bool {
	return passesHardFiltersAt(c, filters, time.Now().Unix())
}

func passesHardFiltersAt(c *CandidateSpan, filters HardFilters, now int64) bool {
	if len(filters.Paths) > 0 && !matchesAny(filters.Paths, c.Metadata.Filepath) {
		return false
	}
	if len(filters.ExcludedPaths) > 0 && matchesAny(filters.ExcludedPaths, c.Metadata.Filepath) {
		return false
	}
	if len(filters.RequiredWorkstreams) > 0 && !containsString(filters.RequiredWorkstreams, c.Metadata.Workstream) {
		return false
	}
	if len(filters.SourceTypes) > 0 && !containsSourceType(filters.SourceTypes, c.Metadata.SourceType) {
		return false
	}
	if filters.MaxDocAgeDays > 0 {
		maxAgeSeconds := int64(filters.MaxDocAgeDays) * 24 * 60 * 60
		if now-c.Metadata.CreatedAt > maxAgeSeconds {
			return false
		}
	}
	return true
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsSourceType(list []SourceType, v SourceType) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// FilterCandidates returns the subset of candidates passing every hard
// filter, preserving order.
func FilterCandidates(candidates []*CandidateSpan, filters HardFilters) []*CandidateSpan {
	out := make([]*CandidateSpan, 0, len(candidates))
	for _, c := range candidates {
		if PassesHardFilters(c, filters) {
			out = append(out, c)
		}
	}
	return out
}

// filterRelaxationStep names one hard filter that can be dropped when a
// request yields no survivors, and how to drop it.
type filterRelaxationStep struct {
	name   string
	active func(HardFilters) bool
	drop   func(*HardFilters)
}

// filterRelaxationOrder is the progressive relaxation sequence applied
// when the active hard filters leave zero candidates (§4.6 / §7): drop
// max_doc_age_days first, then paths, then required_workstreams.
var filterRelaxationOrder = []filterRelaxationStep{
	{
		name:   "max_doc_age_days",
		active: func(f HardFilters) bool { return f.MaxDocAgeDays > 0 },
		drop:   func(f *HardFilters) { f.MaxDocAgeDays = 0 },
	},
	{
		name:   "paths",
		active: func(f HardFilters) bool { return len(f.Paths) > 0 },
		drop:   func(f *HardFilters) { f.Paths = nil },
	},
	{
		name:   "required_workstreams",
		active: func(f HardFilters) bool { return len(f.RequiredWorkstreams) > 0 },
		drop:   func(f *HardFilters) { f.RequiredWorkstreams = nil },
	},
}

// FilterCandidatesWithRelaxation applies filters and, if nothing
// survives, retries once by progressively dropping filters in
// filterRelaxationOrder until either candidates survive or every
// relaxable filter has been dropped. It returns the surviving
// candidates and the names of the filters it had to drop.
func FilterCandidatesWithRelaxation(candidates []*CandidateSpan, filters HardFilters) ([]*CandidateSpan, []string) {
	out := FilterCandidates(candidates, filters)
	if len(out) > 0 {
		return out, nil
	}

	var relaxed []string
	current := filters
	for _, step := range filterRelaxationOrder {
		if !step.active(current) {
			continue
		}
		step.drop(&current)
		relaxed = append(relaxed, step.name)
		out = FilterCandidates(candidates, current)
		if len(out) > 0 {
			break
		}
	}
	return out, relaxed
}
