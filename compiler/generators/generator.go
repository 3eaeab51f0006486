// Package generators provides concrete Generator implementations for the
// working set compiler's candidate channels (§4.2).
package generators

import (
	"context"

	"github.com/contextdb/wscompile/compiler"
)

// MockGenerator returns a fixed candidate list, truncated to top_k. It
// is used in tests and local development in place of a remote channel,
// mirroring the original prototype's Mock* generators.
type MockGenerator struct {
	GenName    string
	Candidates []*compiler.CandidateSpan
	Err        error
}

func (m *MockGenerator) Name() string { return m.GenName }

func (m *MockGenerator) Generate(_ context.Context, _ compiler.DerivedSignals, _ compiler.HardFilters, topK int) ([]*compiler.CandidateSpan, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if topK > 0 && topK < len(m.Candidates) {
		return m.Candidates[:topK], nil
	}
	return m.Candidates, nil
}
