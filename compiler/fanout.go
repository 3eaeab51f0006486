package compiler

import (
	"context"
	"sync"
	"time"
)

// Generator produces candidate spans for one channel (semantic, lexical,
// structural, graph, ...). Implementations live in package generators;
// this interface is declared here so the compiler package has zero
// dependency on any particular generator's transport (§4.2).
type Generator interface {
	Name() string
	Generate(ctx context.Context, signals DerivedSignals, filters HardFilters, topK int) ([]*CandidateSpan, error)
}

// maxFanoutBudget is the ceiling on how long generator fan-out is allowed
// to run regardless of the request's overall deadline (§5).
const maxFanoutBudget = 200 * time.Millisecond

// FanOut invokes every generator concurrently and merges their results.
// A generator that errors or times out is recorded in failed and
// otherwise ignored; FanOut only returns an error if every generator
// fails, per §7's AllGeneratorsFailed propagation policy.
//
// The fan-out phase budget is min(time until the context deadline, 200ms)
// per §5; if the context carries no deadline, only 200ms is applied.
func FanOut(ctx context.Context, gens []Generator, signals DerivedSignals, filters HardFilters, topK int) (candidates []*CandidateSpan, failed []string, err error) {
	if len(gens) == 0 {
		return nil, nil, errAllGeneratorsFailed("no generators configured")
	}

	budget := maxFanoutBudget
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	fanCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*CandidateSpan
		fails   []string
	)

	for _, g := range gens {
		wg.Add(1)
		go func(g Generator) {
			defer wg.Done()
			out, gerr := g.Generate(fanCtx, signals, filters, topK)
			mu.Lock()
			defer mu.Unlock()
			if gerr != nil {
				fails = append(fails, g.Name())
				return
			}
			results = append(results, out...)
		}(g)
	}
	wg.Wait()

	if len(fails) == len(gens) {
		return nil, fails, errAllGeneratorsFailed("every generator failed or timed out")
	}
	return results, fails, nil
}
