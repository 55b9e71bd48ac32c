package gateway

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"
)

// Pattern is an immutable compiled matcher loaded at startup or on hot
// reload. Anti-patterns decrease suspicion (e.g. the presence of a
// well-formed citation) rather than increase it.
type Pattern struct {
	ID           string
	FailureClass FailureClass
	Matcher      *regexp.Regexp
	Confidence   float64
	IsAntiPattern bool
}

// safeMarkers flag text that is unlikely to need escalation at all — used
// only to produce the "pattern_clear" short-circuit (rule 3 of §4.2), never
// to block.
var safeMarkers = []string{"according to", "source:", "citation", "[1]", "doi:"}

// alternationGroupRe finds a parenthesized alternation group, used by the
// structural ReDoS check below.
var alternationGroupRe = regexp.MustCompile(`\([^()]*\|[^()]*\)`)

// validatePatternSource rejects patterns with unbounded greedy alternation
// at load time: no ".*" immediately adjacent (before or after, ignoring
// whitespace) to an alternation group containing 2 or more branches. This
// is the project's load-time defense against maintainers reintroducing
// catastrophic regex, per spec §4.2. (Go's RE2 engine is already immune to
// backtracking blowups, but the structural check is kept anyway: it is the
// contract the policy file authors are expected to honor, and it catches
// patterns that would be catastrophic if ever ported to a backtracking
// engine.)
func validatePatternSource(src string) error {
	locs := alternationGroupRe.FindAllStringIndex(src, -1)
	for _, loc := range locs {
		group := src[loc[0]:loc[1]]
		if strings.Count(group, "|") < 1 {
			continue
		}
		before := strings.TrimRight(src[:loc[0]], " ")
		after := strings.TrimLeft(src[loc[1]:], " ")
		if strings.HasSuffix(before, ".*") || strings.HasPrefix(after, ".*") {
			return newStageError("pattern_load", "redos_structural_reject", nil)
		}
	}
	return nil
}

// CompilePattern validates and compiles one pattern source. Call this only
// at load/reload time, never per-request.
func CompilePattern(id string, class FailureClass, src string, confidence float64, antiPattern bool) (*Pattern, error) {
	if err := validatePatternSource(src); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, newStageError("pattern_load", "compile_error", err)
	}
	return &Pattern{
		ID:            id,
		FailureClass:  class,
		Matcher:       re,
		Confidence:    confidence,
		IsAntiPattern: antiPattern,
	}, nil
}

const perPatternTimeout = 500 * time.Millisecond

// matchWithTimeout runs one pattern's MatchString under a deadline,
// cooperatively respecting ctx the way the pack's PromptInjectionDetector
// checks ctx.Err() between evaluations: here each individual pattern gets
// its own budget in addition to the per-request ctx check, because a
// single pathological pattern must not be allowed to eat a disproportionate
// share of the stage's time even when the overall deadline is far off.
func matchWithTimeout(ctx context.Context, re *regexp.Regexp, text string) (matched bool, timedOut bool) {
	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(text)
	}()
	timer := time.NewTimer(perPatternTimeout)
	defer timer.Stop()
	select {
	case m := <-done:
		return m, false
	case <-timer.C:
		return false, true
	case <-ctx.Done():
		return false, false
	}
}

// T1Result is the Pattern Stage's verdict plus enough state for the router
// to make its escalation decision (spec §4.6 needs max_pos directly, not
// just the terminal/non-terminal verdict).
type T1Result struct {
	Verdict Verdict
	MaxPos  float64
	MaxNeg  float64
	// Terminal is true when one of rules 1-3 fired; false means the verdict
	// carries the actionPending escalation marker.
	Terminal bool
}

// EvaluatePatterns runs the Pattern Stage (C2) against text using the given
// pattern table. Patterns are evaluated in order; ctx.Err() is checked
// between patterns so an upstream cancel aborts promptly, matching the
// cooperative-cancellation idiom demonstrated by the pack's
// PromptInjectionDetector.Detect.
func EvaluatePatterns(ctx context.Context, text string, patterns []Pattern) T1Result {
	var maxPos, maxNeg float64
	var posClass, negClass FailureClass
	anySignal := false

	for _, p := range patterns {
		if ctx.Err() != nil {
			break
		}
		matched, timedOut := matchWithTimeout(ctx, p.Matcher, text)
		if timedOut {
			log.Printf("pattern %s timed out after %v, skipped", p.ID, perPatternTimeout)
			continue
		}
		if !matched {
			continue
		}
		anySignal = true
		if p.IsAntiPattern {
			if p.Confidence > maxNeg {
				maxNeg = p.Confidence
				negClass = p.FailureClass
			}
		} else {
			if p.Confidence > maxPos {
				maxPos = p.Confidence
				posClass = p.FailureClass
			}
		}
	}

	switch {
	case maxNeg >= 0.85:
		// Anti-pattern precedence: when both a positive and a negative
		// pattern clear the strong-signal threshold, the anti-pattern wins
		// (spec §4.2/§8) — a well-formed citation should not be overruled
		// by an unrelated strong match elsewhere in the same text.
		return T1Result{
			Verdict: Verdict{
				Action:       ActionAllow,
				TierUsed:     1,
				Method:       "pattern_antimatch",
				FailureClass: ClassNone,
				Severity:     SeverityInfo,
				Confidence:   maxNeg,
				Explanation:  "anti-pattern matched: " + string(negClass),
			},
			MaxPos: maxPos, MaxNeg: maxNeg, Terminal: true,
		}
	case maxPos >= 0.85:
		return T1Result{
			Verdict: Verdict{
				Action:       ActionBlock,
				TierUsed:     1,
				Method:       "pattern_strong",
				FailureClass: posClass,
				Severity:     SeverityCritical,
				Confidence:   maxPos,
			},
			MaxPos: maxPos, MaxNeg: maxNeg, Terminal: true,
		}
	case !anySignal && isShortAndSafe(text):
		return T1Result{
			Verdict: allowVerdict(1, "pattern_clear", 0.90),
			MaxPos:  maxPos, MaxNeg: maxNeg, Terminal: true,
		}
	default:
		class := posClass
		if class == "" {
			class = ClassNone
		}
		return T1Result{
			Verdict: Verdict{
				Action:       actionPending,
				TierUsed:     1,
				Method:       "pattern_provisional",
				FailureClass: class,
				Severity:     SeverityInfo,
				Confidence:   maxPos,
			},
			MaxPos: maxPos, MaxNeg: maxNeg, Terminal: false,
		}
	}
}

func isShortAndSafe(text string) bool {
	if len(text) > 200 {
		return false
	}
	lower := toLowerASCII(text)
	for _, marker := range safeMarkers {
		if containsASCII(lower, marker) {
			return true
		}
	}
	// Short, no signal at all, and reads like a plain question: treat as
	// clear only when it is unambiguously short — longer unmatched text
	// still needs the semantic stage's opinion.
	return len(text) <= 80
}
