package compiler

import "fmt"

// ErrorKind classifies a CompileError so callers can branch on failure
// mode rather than parsing messages (§7).
type ErrorKind string

const (
	KindEmptyRequest        ErrorKind = "empty_request"
	KindInvalidBudget       ErrorKind = "invalid_budget"
	KindAllGeneratorsFailed ErrorKind = "all_generators_failed"
	KindNoCandidates        ErrorKind = "no_candidates"
	KindBudgetTooSmall      ErrorKind = "budget_too_small"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// CompileError is the error type returned by CompileWorkingSet and its
// helpers. Use errors.As to recover the Kind.
type CompileError struct {
	Kind ErrorKind
	Msg  string

	// RelaxedFilters lists the hard filters that were relaxed before a
	// NoCandidates failure was raised (§7 propagation policy).
	RelaxedFilters []string

	Err error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CompileError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, err error) *CompileError {
	return &CompileError{Kind: kind, Msg: msg, Err: err}
}

func errEmptyRequest(msg string) *CompileError {
	return newError(KindEmptyRequest, msg, nil)
}

func errInvalidBudget(msg string) *CompileError {
	return newError(KindInvalidBudget, msg, nil)
}

func errAllGeneratorsFailed(msg string) *CompileError {
	return newError(KindAllGeneratorsFailed, msg, nil)
}

func errNoCandidates(msg string, relaxed []string) *CompileError {
	return &CompileError{Kind: KindNoCandidates, Msg: msg, RelaxedFilters: relaxed}
}

func errBudgetTooSmall(msg string) *CompileError {
	return newError(KindBudgetTooSmall, msg, nil)
}

func errCancelled(err error) *CompileError {
	return newError(KindCancelled, "compilation cancelled", err)
}

func errInternal(msg string, err error) *CompileError {
	return newError(KindInternal, msg, err)
}
