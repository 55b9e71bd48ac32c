package gateway

import "fmt"

// StageError tags an internal failure with the method name it should
// surface as on the synthetic Verdict produced in its place. Stages never
// let a raw error escape past their boundary; callers convert it into a
// synthetic Verdict (stageTimeoutVerdict, internalErrorVerdict) instead of
// propagating err.
//
// This mirrors the teacher's APIError/CheckResponse idiom: a typed value
// carrying enough context for CheckResponse-style call sites, rather than
// an opaque wrapped error.
type StageError struct {
	Stage  string
	Method string
	Cause  error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Method, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Method)
}

func (e *StageError) Unwrap() error { return e.Cause }

func newStageError(stage, method string, cause error) *StageError {
	return &StageError{Stage: stage, Method: method, Cause: cause}
}

// stageTimeoutVerdict converts a stage timeout into the synthetic verdict
// the router is allowed to treat as "stage skipped, try the next one if
// budget remains" (spec §7).
func stageTimeoutVerdict(tier int, method string, fallback Verdict) Verdict {
	v := fallback
	v.TierUsed = tier
	v.Method = method
	return v
}

// internalErrorVerdict is returned for programming errors (invariant
// violations, index dimension mismatches at query time) that must fail the
// single request without crashing the worker.
func internalErrorVerdict() Verdict {
	return Verdict{
		Action:       ActionBlock,
		TierUsed:     1,
		Method:       "internal_error",
		FailureClass: ClassPathologicalInput,
		Severity:     SeverityMedium,
		Confidence:   0.50,
	}
}

// budgetExhaustedVerdict is the conservative default for an admission
// control path when the total latency budget elapses before any stage
// produced a terminal verdict.
func budgetExhaustedVerdict() Verdict {
	return Verdict{
		Action:       ActionBlock,
		TierUsed:     1,
		Method:       "budget_exhausted",
		FailureClass: ClassPathologicalInput,
		Severity:     SeverityMedium,
		Confidence:   0.50,
	}
}
